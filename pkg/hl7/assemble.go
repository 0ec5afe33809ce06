package hl7

import (
	"fmt"
	"strings"
)

// pendingBatch collects segment lines until envelope assembly is done.
type pendingBatch struct {
	header   string
	trailer  string
	messages [][]string
}

func (p *pendingBatch) startMessage(line string) {
	p.messages = append(p.messages, []string{line})
}

func (p *pendingBatch) appendSegment(line string) {
	last := len(p.messages) - 1
	p.messages[last] = append(p.messages[last], line)
}

// segmentLines splits text on carriage returns, trimming whitespace and
// dropping empty lines.
func segmentLines(text string) []string {
	raw := strings.Split(text, string(rune(DefaultSegmentSeparator)))
	lines := raw[:0]
	for _, line := range raw {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func segmentID(line string) string {
	if len(line) < 3 {
		return line
	}
	return line[:3]
}

func envelopeErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformedEnvelope}, args...)...)
}

// ParseBatch parses a batch of messages with an optional BHS/BTS envelope.
// A BTS with no open BHS is ignored. A second BHS, a BHS without its BTS,
// and any segment that precedes the first MSH are errors.
func ParseBatch(text string, opts ...Option) (*Batch, error) {
	var (
		pending pendingBatch
		open    bool
	)
	for _, line := range segmentLines(text) {
		switch id := segmentID(line); id {
		case "BHS":
			if pending.header != "" {
				return nil, envelopeErr("batch already has a BHS segment")
			}
			pending.header, open = line, true
		case "BTS":
			if open {
				pending.trailer, open = line, false
			}
		case "FHS", "FTS":
			return nil, envelopeErr("unexpected %s segment inside a batch", id)
		case "MSH":
			pending.startMessage(line)
		default:
			if len(pending.messages) == 0 {
				return nil, envelopeErr("segment %s received before message header", id)
			}
			pending.appendSegment(line)
		}
	}
	if open {
		return nil, envelopeErr("BHS segment without matching BTS")
	}
	return buildBatch(&pending, newOptions(opts), opts)
}

// ParseFile parses a file of batches with an optional FHS/FTS envelope.
// Messages that appear outside any BHS/BTS pair are gathered into a final
// batch without an envelope of its own.
func ParseFile(text string, opts ...Option) (*File, error) {
	var (
		fileHeader, fileTrailer string
		fileOpen                bool
		batches                 []*pendingBatch
		current                 *pendingBatch // open BHS batch
		loose                   *pendingBatch // messages outside any batch
		last                    *pendingBatch // batch holding the latest MSH
	)
	for _, line := range segmentLines(text) {
		switch id := segmentID(line); id {
		case "FHS":
			if fileHeader != "" {
				return nil, envelopeErr("file already has an FHS segment")
			}
			if current != nil {
				return nil, envelopeErr("FHS segment inside a batch")
			}
			fileHeader, fileOpen = line, true
			last = nil
		case "FTS":
			if fileOpen {
				fileTrailer, fileOpen = line, false
			}
		case "BHS":
			if current != nil {
				return nil, envelopeErr("batch already has a BHS segment")
			}
			current = &pendingBatch{header: line}
			batches = append(batches, current)
			last = nil
		case "BTS":
			if current != nil {
				current.trailer = line
				current = nil
			}
		case "MSH":
			target := current
			if target == nil {
				if loose == nil {
					loose = &pendingBatch{}
				}
				target = loose
			}
			target.startMessage(line)
			last = target
		default:
			if last == nil {
				return nil, envelopeErr("segment %s received before message header", id)
			}
			last.appendSegment(line)
		}
	}
	if current != nil {
		return nil, envelopeErr("BHS segment without matching BTS")
	}
	if fileOpen {
		return nil, envelopeErr("FHS segment without matching FTS")
	}
	if loose != nil {
		batches = append(batches, loose)
	}

	o := newOptions(opts)
	env := o.env(firstDelimiters(fileHeader, batches))
	file := env.factory().NewFile(env, nil)
	if fileHeader != "" {
		if err := file.SetHeader(ParseSegment(fileHeader, env.Delimiters, opts...)); err != nil {
			return nil, err
		}
		if err := file.SetTrailer(ParseSegment(fileTrailer, env.Delimiters, opts...)); err != nil {
			return nil, err
		}
	}
	for _, p := range batches {
		b, err := buildBatch(p, o, opts)
		if err != nil {
			return nil, err
		}
		file.Append(b)
	}
	return file, nil
}

func buildBatch(p *pendingBatch, o options, opts []Option) (*Batch, error) {
	env := o.env(firstDelimiters(p.header, []*pendingBatch{p}))
	batch := env.factory().NewBatch(env, nil)
	if p.header != "" {
		if err := batch.SetHeader(ParseSegment(p.header, env.Delimiters, opts...)); err != nil {
			return nil, err
		}
		if err := batch.SetTrailer(ParseSegment(p.trailer, env.Delimiters, opts...)); err != nil {
			return nil, err
		}
	}
	for _, lines := range p.messages {
		msg, err := Parse(strings.Join(lines, string(rune(DefaultSegmentSeparator))), opts...)
		if err != nil {
			return nil, err
		}
		batch.Append(msg)
	}
	return batch, nil
}

// firstDelimiters picks the delimiters of an envelope: from its own header
// if it has one, otherwise from the first batch header or message inside.
func firstDelimiters(header string, batches []*pendingBatch) Delimiters {
	candidates := []string{header}
	for _, p := range batches {
		candidates = append(candidates, p.header)
		for _, m := range p.messages {
			candidates = append(candidates, m[0])
		}
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if d, err := DetectDelimiters(c); err == nil {
			return d
		}
	}
	return DefaultDelimiters()
}

// ParseHL7 classifies text and parses it as a file, batch or message,
// returning *File, *Batch or *Message respectively.
func ParseHL7(text string, opts ...Option) (Node, error) {
	switch {
	case strings.HasPrefix(strings.TrimSpace(text), "FHS"):
		return ParseFile(text, opts...)
	case IsBatch(text):
		return ParseBatch(text, opts...)
	case IsHL7(text):
		return Parse(text, opts...)
	}
	return nil, fmt.Errorf("%w: content is not an HL7 message, batch or file", ErrMalformedInput)
}

// ParseHL7Bytes decodes data with the WithEncoding charset and classifies
// it as ParseHL7 does.
func ParseHL7Bytes(data []byte, opts ...Option) (Node, error) {
	text, err := Decode(data, newOptions(opts).encoding)
	if err != nil {
		return nil, err
	}
	return ParseHL7(text, opts...)
}
