package hl7

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match them with errors.Is; every error returned
// by this package wraps exactly one of them.
var (
	ErrMalformedInput      = errors.New("hl7: malformed input")
	ErrMalformedEnvelope   = errors.New("hl7: malformed batch or file envelope")
	ErrMalformedSegment    = errors.New("hl7: malformed segment")
	ErrFieldNotPresent     = errors.New("hl7: field not present")
	ErrComponentNotPresent = errors.New("hl7: component not present")
	ErrLeafReachedEarly    = errors.New("hl7: field reaches leaf node before completing path")
	ErrSegmentNotFound     = errors.New("hl7: segment not found")
	ErrInvalidKey          = errors.New("hl7: invalid accessor key")
	ErrIndexOutOfRange     = errors.New("hl7: index out of range")
)

// PathError records the accessor key an extraction, assignment or key
// parse failed on.
type PathError struct {
	Key string
	Err error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%v (key %q)", e.Err, e.Key)
}

func (e *PathError) Unwrap() error { return e.Err }

func pathErr(key string, err error, detail string) error {
	if detail != "" {
		err = fmt.Errorf("%w: %s", err, detail)
	}
	return &PathError{Key: key, Err: err}
}
