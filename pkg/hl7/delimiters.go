package hl7

import (
	"fmt"
	"strings"
)

// Separators used when a header leaves a position unspecified.
const (
	DefaultSegmentSeparator      = '\r'
	DefaultFieldSeparator        = '|'
	DefaultRepetitionSeparator   = '~'
	DefaultComponentSeparator    = '^'
	DefaultSubcomponentSeparator = '&'
	DefaultEscapeCharacter       = '\\'
)

// NULL is the HL7 explicit null: a field that is present and deliberately blank.
const NULL = `""`

// Level identifies a depth of the tree. Each container level joins its
// children with one separator from the Delimiters table.
type Level int

const (
	LevelFile Level = iota
	LevelBatch
	LevelMessage
	LevelSegment
	LevelField
	LevelRepetition
	LevelComponent
)

var levelNames = [...]string{"file", "batch", "message", "segment", "field", "repetition", "component"}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// Delimiters is the separator table of a message plus its escape character.
type Delimiters struct {
	Segment      byte
	Field        byte
	Repetition   byte
	Component    byte
	Subcomponent byte
	Escape       byte
}

// DefaultDelimiters returns the table `\r | ~ ^ & \`.
func DefaultDelimiters() Delimiters {
	return Delimiters{
		Segment:      DefaultSegmentSeparator,
		Field:        DefaultFieldSeparator,
		Repetition:   DefaultRepetitionSeparator,
		Component:    DefaultComponentSeparator,
		Subcomponent: DefaultSubcomponentSeparator,
		Escape:       DefaultEscapeCharacter,
	}
}

// Separator returns the byte that joins the children of a container at level.
func (d Delimiters) Separator(level Level) byte {
	switch level {
	case LevelFile, LevelBatch, LevelMessage:
		return d.Segment
	case LevelSegment:
		return d.Field
	case LevelField:
		return d.Repetition
	case LevelRepetition:
		return d.Component
	case LevelComponent:
		return d.Subcomponent
	}
	return 0
}

// EncodingCharacters renders the second header field in wire order:
// component, repetition, escape, subcomponent.
func (d Delimiters) EncodingCharacters() string {
	return string([]byte{d.Component, d.Repetition, d.Escape, d.Subcomponent})
}

// DetectDelimiters derives the separator table from the header segment that
// starts text. The fourth character is the field separator; the run that
// follows, up to the next field separator or segment end, holds the encoding
// characters. Positions the header omits keep their defaults.
func DetectDelimiters(text string) (Delimiters, error) {
	if len(text) < 4 || !isHeaderID(text[:3]) {
		prefix := text
		if len(prefix) > 3 {
			prefix = prefix[:3]
		}
		return Delimiters{}, fmt.Errorf("%w: content must begin with MSH, BHS or FHS, got %q", ErrMalformedInput, prefix)
	}

	d := DefaultDelimiters()
	d.Field = text[3]

	enc := text[4:]
	if end := strings.IndexAny(enc, string([]byte{d.Field, d.Segment})); end >= 0 {
		enc = enc[:end]
	}
	if len(enc) > 0 {
		d.Component = enc[0]
	}
	if len(enc) > 1 {
		d.Repetition = enc[1]
	}
	if len(enc) > 2 {
		d.Escape = enc[2]
	}
	if len(enc) > 3 {
		d.Subcomponent = enc[3]
	}
	return d, nil
}

func isHeaderID(id string) bool {
	return id == "MSH" || id == "BHS" || id == "FHS"
}
