package hl7

// Message is a parsed HL7 message: an ordered list of segments, the first
// of which is MSH.
type Message struct{ Container }

// String serializes the message. Segments are joined with the segment
// separator and the result ends with one.
func (m *Message) String() string {
	return m.Container.String() + string(m.Separator())
}

func (m *Message) Clone() Node { return m.env.factory().NewMessage(m.env, m.cloneChildren()) }

// Append adds segments at the end of the message.
func (m *Message) Append(segments ...*Segment) {
	for _, s := range segments {
		m.children = append(m.children, s)
	}
}

// SetAt replaces the i-th segment counting from 1.
func (m *Message) SetAt(i int, s *Segment) error { return m.replace(i-1, s) }

// Segments returns every segment with the given identifier, in order.
func (m *Message) Segments(id string) ([]*Segment, error) {
	var out []*Segment
	for _, child := range m.children {
		if s, ok := child.(*Segment); ok && s.ID() == id {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, pathErr(id, ErrSegmentNotFound, "")
	}
	return out, nil
}

// Segment returns the first segment with the given identifier.
func (m *Message) Segment(id string) (*Segment, error) {
	segs, err := m.Segments(id)
	if err != nil {
		return nil, err
	}
	return segs[0], nil
}

// Escape escapes text with this message's delimiters.
func (m *Message) Escape(text string, appMap map[string]string) string {
	return Escape(m.env.Delimiters, text, appMap)
}

// Unescape resolves escape sequences with this message's delimiters.
// Diagnostics go to the sink the message was parsed with.
func (m *Message) Unescape(text string, appMap map[string]string) string {
	return Unescape(m.env.Delimiters, text, appMap, m.env.Diagnostics)
}

// Get extracts the value addressed by an accessor key such as "PID.5.1".
func (m *Message) Get(key string) (string, error) {
	acc, err := ParseKey(key)
	if err != nil {
		return "", err
	}
	return m.Extract(acc)
}

// Set assigns value, escaped against this message's delimiters, at key.
func (m *Message) Set(key, value string) error {
	acc, err := ParseKey(key)
	if err != nil {
		return err
	}
	return m.Assign(acc, value)
}

// SetRaw assigns an already escaped value at key.
func (m *Message) SetRaw(key, value string) error {
	acc, err := ParseKey(key)
	if err != nil {
		return err
	}
	return m.AssignRaw(acc, value)
}

// Extract returns the unescaped value addressed by acc. Wildcards are not
// accepted here; use ExtractAll.
func (m *Message) Extract(acc Accessor) (string, error) {
	if acc.SegmentNum == Wildcard || acc.RepeatNum == Wildcard {
		return "", pathErr(acc.Key(), ErrInvalidKey, "wildcards require ExtractAll")
	}
	seg, err := m.segmentFor(acc)
	if err != nil {
		return "", err
	}
	return seg.Extract(acc)
}

// ExtractAll expands segment and repetition wildcards in acc and returns
// each addressed value in document order. Repetitions of an absent field
// expand to nothing.
func (m *Message) ExtractAll(acc Accessor) ([]string, error) {
	var segs []*Segment
	if acc.SegmentNum == Wildcard {
		all, err := m.Segments(acc.Segment)
		if err != nil {
			return nil, pathErr(acc.Key(), ErrSegmentNotFound, "")
		}
		segs = all
	} else {
		seg, err := m.segmentFor(acc)
		if err != nil {
			return nil, err
		}
		segs = []*Segment{seg}
	}

	var out []string
	for _, seg := range segs {
		if acc.RepeatNum != Wildcard {
			v, err := seg.Extract(acc)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
			continue
		}
		field := seg.Field(max(acc.FieldNum, 1))
		if field == nil {
			continue
		}
		one := acc
		for r := 1; r <= field.Len(); r++ {
			one.RepeatNum = r
			v, err := seg.Extract(one)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// Assign stores value at acc after escaping it, growing the segment as
// needed. The separator fields of a header segment are stored verbatim.
func (m *Message) Assign(acc Accessor, value string) error {
	seg, err := m.assignTarget(acc)
	if err != nil {
		return err
	}
	return seg.Assign(acc, value)
}

// AssignRaw stores an already escaped value at acc.
func (m *Message) AssignRaw(acc Accessor, value string) error {
	seg, err := m.assignTarget(acc)
	if err != nil {
		return err
	}
	return seg.AssignRaw(acc, value)
}

func (m *Message) assignTarget(acc Accessor) (*Segment, error) {
	if acc.SegmentNum == Wildcard || acc.RepeatNum == Wildcard {
		return nil, pathErr(acc.Key(), ErrInvalidKey, "wildcards are not supported for assignment")
	}
	return m.segmentFor(acc)
}

func (m *Message) segmentFor(acc Accessor) (*Segment, error) {
	segs, err := m.Segments(acc.Segment)
	if err != nil {
		return nil, pathErr(acc.Key(), ErrSegmentNotFound, "")
	}
	n := max(acc.SegmentNum, 1)
	if n > len(segs) {
		return nil, pathErr(acc.Key(), ErrSegmentNotFound, "segment repetition out of range")
	}
	return segs[n-1], nil
}
