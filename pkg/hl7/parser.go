package hl7

import (
	"fmt"
	"strings"
)

// Option configures parsing.
type Option func(*options)

type options struct {
	factory     Factory
	diagnostics DiagnosticSink
	encoding    string
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) env(d Delimiters) Env {
	return Env{Delimiters: d, Factory: o.factory, Diagnostics: o.diagnostics}.withDefaults()
}

// WithFactory makes the parser build containers through f.
func WithFactory(f Factory) Option {
	return func(o *options) { o.factory = f }
}

// WithDiagnostics sends unescape and envelope diagnostics to sink.
func WithDiagnostics(sink DiagnosticSink) Option {
	return func(o *options) { o.diagnostics = sink }
}

// WithEncoding names the character encoding of byte input given to the
// *Bytes entry points. The default is UTF-8.
func WithEncoding(name string) Option {
	return func(o *options) { o.encoding = name }
}

// Parse parses a single message. Leading and trailing whitespace is
// ignored; segments are separated by carriage returns.
func Parse(text string, opts ...Option) (*Message, error) {
	text = strings.TrimSpace(text)
	plan, err := NewPlan(text, opts...)
	if err != nil {
		return nil, err
	}
	msg, ok := split(text, plan).(*Message)
	if !ok {
		return nil, fmt.Errorf("%w: factory did not return a message", ErrMalformedInput)
	}
	return msg, nil
}

// ParseBytes decodes data with the WithEncoding charset and parses it as a
// single message.
func ParseBytes(data []byte, opts ...Option) (*Message, error) {
	text, err := Decode(data, newOptions(opts).encoding)
	if err != nil {
		return nil, err
	}
	return Parse(text, opts...)
}

// ParseSegment parses one segment line using the given delimiters.
func ParseSegment(text string, d Delimiters, opts ...Option) *Segment {
	env := newOptions(opts).env(d)
	seg, _ := split(strings.TrimSpace(text), planAt(env, LevelSegment)).(*Segment)
	return seg
}

// split is the recursive core of the parser. Text without any separator
// at or below the plan's level becomes a single leaf; segments and messages
// always wrap it in the next container so fields stay fields.
func split(text string, p Plan) Node {
	next, hasNext := p.Next()
	if !p.Applies(text) {
		if hasNext && p.level <= LevelSegment {
			return p.container([]Node{split(text, next)})
		}
		return p.container([]Node{Leaf(text)})
	}

	var children []Node
	if p.level == LevelSegment && len(text) >= 4 && isHeaderID(text[:3]) {
		children, text = splitHeader(text, p)
		if text == "" {
			return p.container(children)
		}
	}

	for _, part := range strings.Split(text, string(p.Separator())) {
		if hasNext {
			children = append(children, split(part, next))
		} else {
			children = append(children, Leaf(part))
		}
	}
	return p.container(children)
}

// splitHeader peels the identifier, the field separator and the encoding
// characters off a header segment as three literal fields. It returns the
// remaining text after the separator that closes the encoding characters.
func splitHeader(text string, p Plan) ([]Node, string) {
	f := p.env.factory()
	sep := text[3]
	rest := text[4:]
	enc, remainder := rest, ""
	if i := strings.IndexByte(rest, sep); i >= 0 {
		enc, remainder = rest[:i], rest[i+1:]
	}
	return []Node{
		f.NewField(p.env, []Node{Leaf(text[:3])}),
		f.NewField(p.env, []Node{Leaf(string(sep))}),
		f.NewField(p.env, []Node{Leaf(enc)}),
	}, remainder
}
