package hl7

// Extract returns the unescaped value addressed by the field, repetition,
// component and subcomponent numbers of acc. Omitted numbers default to 1.
// Optional parts: a field, repetition, component or subcomponent past the
// end of its list reads as "" when every deeper coordinate is 1, so
// absent trailing data never fails a read.
func (s *Segment) Extract(acc Accessor) (string, error) {
	key := s.keyFor(acc)
	if acc.RepeatNum == Wildcard {
		return "", pathErr(key, ErrInvalidKey, "wildcards require ExtractAll")
	}
	fieldNum := max(acc.FieldNum, 1)
	rep := max(acc.RepeatNum, 1)
	comp := max(acc.ComponentNum, 1)
	sub := max(acc.SubcomponentNum, 1)

	field := s.index(fieldNum)
	if field == nil {
		if rep == 1 && comp == 1 && sub == 1 {
			return "", nil
		}
		return "", pathErr(key, ErrFieldNotPresent, "")
	}
	leaf := func(v string) string {
		if s.literal(fieldNum) {
			return v
		}
		return Unescape(s.env.Delimiters, v, nil, s.env.Diagnostics)
	}

	repetition := childAt(field, rep)
	if repetition == nil {
		if comp == 1 && sub == 1 {
			return "", nil
		}
		return "", pathErr(key, ErrFieldNotPresent, "repetition not present")
	}
	if _, ok := repetition.(*Repetition); !ok {
		if comp == 1 && sub == 1 {
			return leaf(repetition.String()), nil
		}
		return "", pathErr(key, ErrLeafReachedEarly, "")
	}

	component := childAt(repetition, comp)
	if component == nil {
		if sub == 1 {
			return "", nil
		}
		return "", pathErr(key, ErrComponentNotPresent, "")
	}
	if _, ok := component.(*Component); !ok {
		if sub == 1 {
			return leaf(component.String()), nil
		}
		return "", pathErr(key, ErrLeafReachedEarly, "")
	}

	subcomponent := childAt(component, sub)
	if subcomponent == nil {
		return "", nil
	}
	return leaf(subcomponent.String()), nil
}

// Assign escapes value and stores it at acc, growing fields, repetitions
// and components through the factory. The deepest coordinate given
// replaces that slot's whole contents.
func (s *Segment) Assign(acc Accessor, value string) error {
	if !s.literal(acc.FieldNum) {
		value = Escape(s.env.Delimiters, value, nil)
	}
	return s.assign(acc, value)
}

// AssignRaw stores an already escaped value at acc.
func (s *Segment) AssignRaw(acc Accessor, value string) error {
	return s.assign(acc, value)
}

func (s *Segment) assign(acc Accessor, value string) error {
	key := s.keyFor(acc)
	if acc.SegmentNum == Wildcard || acc.RepeatNum == Wildcard {
		return pathErr(key, ErrInvalidKey, "wildcards are not supported for assignment")
	}
	if acc.FieldNum < 1 {
		return pathErr(key, ErrInvalidKey, "assignment needs a field number")
	}
	env := s.env
	f := env.factory()

	s.grow(acc.FieldNum + 1)
	field, ok := s.children[acc.FieldNum].(*Field)
	if !ok {
		field = f.NewField(env, []Node{s.children[acc.FieldNum]})
		s.children[acc.FieldNum] = field
	}
	if acc.RepeatNum < 1 {
		field.children = []Node{Leaf(value)}
		return nil
	}

	for field.Len() < acc.RepeatNum {
		field.children = append(field.children, f.NewRepetition(env, nil))
	}
	repetition, ok := field.children[acc.RepeatNum-1].(*Repetition)
	if !ok {
		repetition = f.NewRepetition(env, []Node{field.children[acc.RepeatNum-1]})
		field.children[acc.RepeatNum-1] = repetition
	}
	if acc.ComponentNum < 1 {
		repetition.children = []Node{Leaf(value)}
		return nil
	}

	for repetition.Len() < acc.ComponentNum {
		repetition.children = append(repetition.children, f.NewComponent(env, nil))
	}
	component, ok := repetition.children[acc.ComponentNum-1].(*Component)
	if !ok {
		component = f.NewComponent(env, []Node{repetition.children[acc.ComponentNum-1]})
		repetition.children[acc.ComponentNum-1] = component
	}
	if acc.SubcomponentNum < 1 {
		component.children = []Node{Leaf(value)}
		return nil
	}

	for component.Len() < acc.SubcomponentNum {
		component.children = append(component.children, Leaf(""))
	}
	component.children[acc.SubcomponentNum-1] = Leaf(value)
	return nil
}

func (s *Segment) keyFor(acc Accessor) string {
	if acc.Segment == "" {
		acc.Segment = s.ID()
	}
	return acc.Key()
}

func childAt(n Node, i int) Node {
	switch c := n.(type) {
	case *Field:
		return c.At(i)
	case *Repetition:
		return c.At(i)
	case *Component:
		return c.At(i)
	}
	return nil
}
