package hl7

import (
	"fmt"
	"strings"
)

// envelope is the optional header/trailer pair shared by batches and files.
type envelope struct {
	headerID  string
	trailerID string
	header    *Segment
	trailer   *Segment
}

var (
	batchEnvelope = envelope{headerID: "BHS", trailerID: "BTS"}
	fileEnvelope  = envelope{headerID: "FHS", trailerID: "FTS"}
)

// Header returns the header segment, or nil.
func (e *envelope) Header() *Segment { return e.header }

// Trailer returns the trailer segment, or nil.
func (e *envelope) Trailer() *Segment { return e.trailer }

// SetHeader sets or, with nil, clears the header segment.
func (e *envelope) SetHeader(s *Segment) error {
	if s != nil && s.ID() != e.headerID {
		return fmt.Errorf("%w: header must be %s, got %q", ErrMalformedSegment, e.headerID, s.ID())
	}
	e.header = s
	return nil
}

// SetTrailer sets or, with nil, clears the trailer segment.
func (e *envelope) SetTrailer(s *Segment) error {
	if s != nil && s.ID() != e.trailerID {
		return fmt.Errorf("%w: trailer must be %s, got %q", ErrMalformedSegment, e.trailerID, s.ID())
	}
	e.trailer = s
	return nil
}

func (e *envelope) check() error {
	if (e.header == nil) != (e.trailer == nil) {
		return fmt.Errorf("%w: %s and %s must both be present or both absent", ErrMalformedEnvelope, e.headerID, e.trailerID)
	}
	return nil
}

func (e *envelope) cloneEnvelope() envelope {
	out := envelope{headerID: e.headerID, trailerID: e.trailerID}
	if e.header != nil {
		out.header = e.header.Clone().(*Segment)
	}
	if e.trailer != nil {
		out.trailer = e.trailer.Clone().(*Segment)
	}
	return out
}

// encode writes header, body and trailer, each present segment followed by
// the segment separator. Children already end with one.
func (e *envelope) encode(children []Node, sep byte) string {
	var b strings.Builder
	if e.header != nil {
		b.WriteString(e.header.String())
		b.WriteByte(sep)
	}
	for _, child := range children {
		b.WriteString(child.String())
	}
	if e.trailer != nil {
		b.WriteString(e.trailer.String())
		b.WriteByte(sep)
	}
	return b.String()
}

func newEnvelopeSegment(env Env, id string, header bool) *Segment {
	f := env.factory()
	fields := []Node{f.NewField(env, []Node{Leaf(id)})}
	if header {
		fields = append(fields,
			f.NewField(env, []Node{Leaf(string(env.Delimiters.Field))}),
			f.NewField(env, []Node{Leaf(env.Delimiters.EncodingCharacters())}),
		)
	}
	return f.NewSegment(env, fields)
}

// Batch is a group of messages optionally wrapped in BHS/BTS.
type Batch struct {
	Container
	envelope
}

// Messages returns the messages of the batch.
func (b *Batch) Messages() []*Message {
	out := make([]*Message, 0, len(b.children))
	for _, child := range b.children {
		if m, ok := child.(*Message); ok {
			out = append(out, m)
		}
	}
	return out
}

// Append adds messages at the end of the batch.
func (b *Batch) Append(messages ...*Message) {
	for _, m := range messages {
		b.children = append(b.children, m)
	}
}

// CreateHeader returns a new BHS segment carrying this batch's delimiters.
func (b *Batch) CreateHeader() *Segment { return newEnvelopeSegment(b.env, "BHS", true) }

// CreateTrailer returns a new, empty BTS segment.
func (b *Batch) CreateTrailer() *Segment { return newEnvelopeSegment(b.env, "BTS", false) }

// String serializes whatever is present. Use Encode to reject a header
// without a trailer or the reverse.
func (b *Batch) String() string { return b.encode(b.children, b.Separator()) }

// Encode serializes the batch after checking that BHS and BTS are both
// present or both absent.
func (b *Batch) Encode() (string, error) {
	if err := b.check(); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (b *Batch) Clone() Node {
	out := b.env.factory().NewBatch(b.env, b.cloneChildren())
	out.envelope = b.cloneEnvelope()
	return out
}

// File is a group of batches optionally wrapped in FHS/FTS.
type File struct {
	Container
	envelope
}

// Batches returns the batches of the file.
func (f *File) Batches() []*Batch {
	out := make([]*Batch, 0, len(f.children))
	for _, child := range f.children {
		if b, ok := child.(*Batch); ok {
			out = append(out, b)
		}
	}
	return out
}

// Append adds batches at the end of the file.
func (f *File) Append(batches ...*Batch) {
	for _, b := range batches {
		f.children = append(f.children, b)
	}
}

// CreateHeader returns a new FHS segment carrying this file's delimiters.
func (f *File) CreateHeader() *Segment { return newEnvelopeSegment(f.env, "FHS", true) }

// CreateTrailer returns a new, empty FTS segment.
func (f *File) CreateTrailer() *Segment { return newEnvelopeSegment(f.env, "FTS", false) }

func (f *File) String() string { return f.encode(f.children, f.Separator()) }

// Encode serializes the file after checking that FHS and FTS, and the
// envelope of every batch, are consistent.
func (f *File) Encode() (string, error) {
	if err := f.check(); err != nil {
		return "", err
	}
	for _, b := range f.Batches() {
		if err := b.check(); err != nil {
			return "", err
		}
	}
	return f.String(), nil
}

func (f *File) Clone() Node {
	out := f.env.factory().NewFile(f.env, f.cloneChildren())
	out.envelope = f.cloneEnvelope()
	return out
}
