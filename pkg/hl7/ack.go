package hl7

import "time"

// Acknowledgment codes for MSA-1.
const (
	AckAccept = "AA"
	AckError  = "AE"
	AckReject = "AR"
)

// ACKOptions overrides fields of a generated acknowledgment. Zero values
// fall back to the source message.
type ACKOptions struct {
	// MessageID is used as MSH-10; a fresh control id is generated when empty.
	MessageID string
	// Application and Facility become MSH-3 and MSH-4. When empty, the
	// source's receiving application and facility (MSH-5, MSH-6) are used.
	Application string
	Facility    string
	// Now stamps MSH-7. Defaults to time.Now in UTC.
	Now func() time.Time
}

// CreateACK builds the acknowledgment for m: an MSH with sender and
// receiver swapped and message type ACK^<trigger>^ACK, followed by an MSA
// carrying ackCode and the source control id. ackCode defaults to AA.
func (m *Message) CreateACK(ackCode string, opts *ACKOptions) (*Message, error) {
	src, err := m.Segment("MSH")
	if err != nil {
		return nil, err
	}
	var o ACKOptions
	if opts != nil {
		o = *opts
	}
	if ackCode == "" {
		ackCode = AckAccept
	}
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}

	env := m.env
	f := env.factory()
	copyField := func(dst *Segment, to, from int) {
		if field := src.Field(from); field != nil {
			dst.SetField(to, field.Clone().(*Field))
			return
		}
		dst.SetField(to, f.NewField(env, nil))
	}
	set := func(dst *Segment, value string, nums ...int) error {
		acc, err := NewAccessor(dst.ID(), append([]int{1}, nums...)...)
		if err != nil {
			return err
		}
		return dst.Assign(acc, value)
	}

	msh := f.NewSegment(env, []Node{f.NewField(env, []Node{Leaf("MSH")})})
	copyField(msh, 1, 1)
	copyField(msh, 2, 2)
	if o.Application != "" {
		if err := set(msh, o.Application, 3); err != nil {
			return nil, err
		}
	} else {
		copyField(msh, 3, 5)
	}
	if o.Facility != "" {
		if err := set(msh, o.Facility, 4); err != nil {
			return nil, err
		}
	} else {
		copyField(msh, 4, 6)
	}
	copyField(msh, 5, 3)
	copyField(msh, 6, 4)
	if err := set(msh, now().UTC().Format("20060102150405"), 7); err != nil {
		return nil, err
	}

	trigger, _ := src.Extract(Accessor{FieldNum: 9, RepeatNum: 1, ComponentNum: 2})
	for i, v := range []string{"ACK", trigger, "ACK"} {
		if err := set(msh, v, 9, 1, i+1); err != nil {
			return nil, err
		}
	}

	id := o.MessageID
	if id == "" {
		id = GenerateControlID()
	}
	if err := set(msh, id, 10); err != nil {
		return nil, err
	}
	copyField(msh, 11, 11)
	copyField(msh, 12, 12)

	msa := f.NewSegment(env, []Node{f.NewField(env, []Node{Leaf("MSA")})})
	if err := set(msa, ackCode, 1); err != nil {
		return nil, err
	}
	copyField(msa, 2, 10)

	return f.NewMessage(env, []Node{msh, msa}), nil
}
