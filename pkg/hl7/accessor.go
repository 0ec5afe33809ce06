package hl7

import (
	"strconv"
	"strings"
)

// Wildcard selects every segment or every repetition in ExtractAll. It is
// valid only as SegmentNum or RepeatNum.
const Wildcard = -1

// Accessor addresses a value inside a message. A zero field, repetition,
// component or subcomponent number means the coordinate is absent; reads
// treat absent coordinates as 1. SegmentNum is 1 or more, or Wildcard; a
// zero SegmentNum is accepted only by Segment methods, which ignore it, and
// fails Validate.
type Accessor struct {
	Segment         string
	SegmentNum      int
	FieldNum        int
	RepeatNum       int
	ComponentNum    int
	SubcomponentNum int
}

// NewAccessor builds an accessor from a segment identifier and up to five
// numbers in order: segment repetition, field, repetition, component,
// subcomponent. The segment repetition defaults to 1.
func NewAccessor(segment string, nums ...int) (Accessor, error) {
	a := Accessor{Segment: segment, SegmentNum: 1}
	if len(nums) > 5 {
		return Accessor{}, pathErr(segment, ErrInvalidKey, "too many coordinates")
	}
	slots := []*int{&a.SegmentNum, &a.FieldNum, &a.RepeatNum, &a.ComponentNum, &a.SubcomponentNum}
	for i, n := range nums {
		*slots[i] = n
	}
	if err := a.Validate(); err != nil {
		return Accessor{}, err
	}
	return a, nil
}

// Validate checks the accessor's numbers: wildcards only in the segment and
// repetition positions, no other negatives, and no deeper coordinate set
// while a shallower one is absent.
func (a Accessor) Validate() error {
	if len(a.Segment) != 3 {
		return pathErr(a.Key(), ErrInvalidKey, "segment identifier must be three characters")
	}
	nums := []struct {
		name     string
		value    int
		wildcard bool
	}{
		{"F", a.FieldNum, false},
		{"R", a.RepeatNum, true},
		{"C", a.ComponentNum, false},
		{"S", a.SubcomponentNum, false},
	}
	if a.SegmentNum < Wildcard || a.SegmentNum == 0 {
		return pathErr(a.Key(), ErrInvalidKey, "invalid segment repetition")
	}
	absent := false
	for _, n := range nums {
		switch {
		case n.value == Wildcard && !n.wildcard:
			return pathErr(a.Key(), ErrInvalidKey, "wildcard not supported for "+n.name)
		case n.value < Wildcard:
			return pathErr(a.Key(), ErrInvalidKey, "negative "+n.name+" number")
		case n.value == 0:
			absent = true
		case absent:
			return pathErr(a.Key(), ErrInvalidKey, n.name+" given without the coordinates above it")
		}
	}
	return nil
}

// Key renders the accessor in the form it was parsed from: the segment
// repetition is omitted when it is 1 and absent coordinates are skipped.
func (a Accessor) Key() string {
	seg := a.Segment
	switch a.SegmentNum {
	case 0, 1:
	case Wildcard:
		seg += "*"
	default:
		seg += strconv.Itoa(a.SegmentNum)
	}
	parts := []string{seg}
	for _, n := range []int{a.FieldNum, a.RepeatNum, a.ComponentNum, a.SubcomponentNum} {
		switch n {
		case 0:
			continue
		case Wildcard:
			parts = append(parts, "*")
		default:
			parts = append(parts, strconv.Itoa(n))
		}
	}
	return strings.Join(parts, ".")
}

func (a Accessor) String() string { return a.Key() }

// ParseKey parses a key of the form SEG[n].F[.R[.C[.S]]]. Each number may
// carry its letter prefix (F, R, C, S) in either case, and "*" in the
// segment or repetition position is a wildcard. "PID.5.1" and
// "PID.F5.R1" are equivalent.
func ParseKey(key string) (Accessor, error) {
	parts := strings.Split(key, ".")
	if len(parts) > 5 {
		return Accessor{}, pathErr(key, ErrInvalidKey, "too many coordinates")
	}
	head := parts[0]
	if len(head) < 3 {
		return Accessor{}, pathErr(key, ErrInvalidKey, "segment identifier must be three characters")
	}

	a := Accessor{Segment: head[:3], SegmentNum: 1}
	switch num := head[3:]; num {
	case "":
	case "*":
		a.SegmentNum = Wildcard
	default:
		n, err := strconv.Atoi(num)
		if err != nil || n < 1 {
			return Accessor{}, pathErr(key, ErrInvalidKey, "invalid segment repetition "+strconv.Quote(num))
		}
		a.SegmentNum = n
	}

	slots := []struct {
		dst      *int
		prefix   string
		wildcard bool
	}{
		{&a.FieldNum, "F", false},
		{&a.RepeatNum, "R", true},
		{&a.ComponentNum, "C", false},
		{&a.SubcomponentNum, "S", false},
	}
	for i, part := range parts[1:] {
		slot := slots[i]
		if len(part) > 0 && strings.EqualFold(part[:1], slot.prefix) {
			part = part[1:]
		}
		if part == "*" {
			if !slot.wildcard {
				return Accessor{}, pathErr(key, ErrInvalidKey, "wildcard not supported for "+slot.prefix)
			}
			*slot.dst = Wildcard
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return Accessor{}, pathErr(key, ErrInvalidKey, "invalid "+slot.prefix+" number "+strconv.Quote(part))
		}
		*slot.dst = n
	}
	return a, nil
}
