package mllp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

const (
	// StartBlock is the MLLP start-of-message byte (VT / vertical tab).
	StartBlock = 0x0B

	// EndBlock is the MLLP end-of-message byte (FS / file separator).
	EndBlock = 0x1C

	// CarriageReturn is the trailing CR after the end block.
	CarriageReturn = 0x0D

	// DefaultMaxMessageSize caps the bytes buffered for a single frame (1 MB).
	DefaultMaxMessageSize = 1 << 20
)

var (
	// ErrFrameTooLarge is returned when buffered bytes exceed the reader
	// limit before a complete frame arrives.
	ErrFrameTooLarge = errors.New("mllp: frame exceeds buffer limit")

	// ErrIncompleteFrame is returned when the stream ends inside a frame.
	ErrIncompleteFrame = errors.New("mllp: stream ended inside a frame")
)

var endSequence = []byte{EndBlock, CarriageReturn}

// FrameMessage wraps raw HL7 bytes in MLLP framing:
//
//	<0x0B> + message + <0x1C><0x0D>
func FrameMessage(data []byte) []byte {
	frame := make([]byte, 0, len(data)+3)
	frame = append(frame, StartBlock)
	frame = append(frame, data...)
	frame = append(frame, EndBlock, CarriageReturn)
	return frame
}

// UnframeMessage extracts the first complete frame from data. Bytes before
// the start block are discarded. It returns the payload, the bytes after
// the frame, and whether a complete frame was found.
func UnframeMessage(data []byte) (message []byte, rest []byte, found bool) {
	startIdx := bytes.IndexByte(data, StartBlock)
	if startIdx == -1 {
		return nil, data, false
	}

	endIdx := bytes.Index(data[startIdx+1:], endSequence)
	if endIdx == -1 {
		return nil, data, false
	}
	endIdx = startIdx + 1 + endIdx

	return data[startIdx+1 : endIdx], data[endIdx+2:], true
}

// Reader pulls MLLP frames off a byte stream, holding at most limit bytes
// of an unfinished frame. Partial data survives read errors, so a caller
// may retry ReadMessage after a timeout.
type Reader struct {
	r     io.Reader
	limit int
	buf   []byte
	chunk []byte
}

// NewReader returns a Reader over r. A limit of zero or less means
// DefaultMaxMessageSize.
func NewReader(r io.Reader, limit int) *Reader {
	if limit <= 0 {
		limit = DefaultMaxMessageSize
	}
	return &Reader{r: r, limit: limit, chunk: make([]byte, 4096)}
}

// Buffered reports how many bytes of an unfinished frame are held.
func (r *Reader) Buffered() int { return len(r.buf) }

// ReadMessage returns the payload of the next frame. It returns io.EOF when
// the stream ends cleanly between frames, ErrIncompleteFrame when it ends
// inside one, and ErrFrameTooLarge when the limit is exceeded.
func (r *Reader) ReadMessage() ([]byte, error) {
	for {
		if msg, rest, found := UnframeMessage(r.buf); found {
			if len(msg) > r.limit {
				r.buf = append(r.buf[:0], rest...)
				return nil, fmt.Errorf("%w: %d byte frame, limit %d", ErrFrameTooLarge, len(msg), r.limit)
			}
			out := make([]byte, len(msg))
			copy(out, msg)
			r.buf = append(r.buf[:0], rest...)
			return out, nil
		}
		if len(r.buf) > r.limit {
			r.buf = r.buf[:0]
			return nil, fmt.Errorf("%w: more than %d bytes buffered", ErrFrameTooLarge, r.limit)
		}

		n, err := r.r.Read(r.chunk)
		if n > 0 {
			r.buf = append(r.buf, r.chunk[:n]...)
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(bytes.TrimSpace(r.buf)) == 0 {
				return nil, io.EOF
			}
			return nil, ErrIncompleteFrame
		}
		if err != nil {
			return nil, err
		}
	}
}
