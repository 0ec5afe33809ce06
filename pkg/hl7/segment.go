package hl7

import "strings"

// Segment is one line of a message. Child 0 is the segment identifier, so
// At(n) and Field(n) return HL7 field n directly. For MSH, BHS and FHS the
// field separator itself is field 1 and the encoding characters are field 2.
type Segment struct{ Container }

// ID returns the segment identifier, e.g. "PID".
func (s *Segment) ID() string {
	if len(s.children) == 0 {
		return ""
	}
	return s.children[0].String()
}

// IsHeader reports whether the segment is an MSH, BHS or FHS header.
func (s *Segment) IsHeader() bool { return isHeaderID(s.ID()) }

// At returns field i, with 0 being the identifier, or nil when out of range.
func (s *Segment) At(i int) Node { return s.index(i) }

// SetAt replaces field i, with 0 being the identifier.
func (s *Segment) SetAt(i int, f *Field) error { return s.replace(i, f) }

// Append adds fields at the end of the segment.
func (s *Segment) Append(fields ...*Field) {
	for _, f := range fields {
		s.children = append(s.children, f)
	}
}

// Field returns field i, or nil when the segment is shorter.
func (s *Segment) Field(i int) *Field {
	f, _ := s.index(i).(*Field)
	return f
}

// SetField replaces field i, padding the segment with empty fields when it
// is shorter.
func (s *Segment) SetField(i int, f *Field) {
	s.grow(i + 1)
	s.children[i] = f
}

func (s *Segment) grow(n int) {
	for len(s.children) < n {
		s.children = append(s.children, s.env.factory().NewField(s.env, nil))
	}
}

func (s *Segment) String() string {
	if s.IsHeader() && len(s.children) >= 3 {
		sep := s.children[1].String()
		var b strings.Builder
		b.WriteString(s.children[0].String())
		b.WriteString(sep)
		b.WriteString(s.children[2].String())
		b.WriteString(sep)
		b.WriteString(joinNodes(s.children[3:], s.Separator()))
		return b.String()
	}
	return s.Container.String()
}

func (s *Segment) Clone() Node { return s.env.factory().NewSegment(s.env, s.cloneChildren()) }

// literal reports whether field n of this segment is returned and stored
// verbatim: the separator characters of a header segment.
func (s *Segment) literal(field int) bool {
	return (field == 1 || field == 2) && s.IsHeader()
}
