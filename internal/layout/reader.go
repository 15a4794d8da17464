// Package layout decodes and encodes the binary account and instruction layouts
// used by ledger programs.
//
// Decoding is built from small combinators: primitive Decoders (U64, String,
// Address, ...) compose through Option and Vec, and Field binds a decoder to a
// destination under a name. A record's layout is an ordered list of Steps, so
// the field order that must match the program's serialization lives in one place.
//
// Integers are little-endian. Options carry a one-byte presence tag (0 absent,
// anything else present). Strings and vectors carry a four-byte little-endian
// length prefix. Decoding never truncates or defaults: a short buffer or invalid
// UTF-8 fails the whole decode.
package layout

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// DiscriminatorSize is the size of the account header written by the program framework.
const DiscriminatorSize = 8

var (
	// ErrShortBuffer is returned when a field extends past the end of the data.
	ErrShortBuffer = errors.New("short buffer")
	// ErrInvalidUTF8 is returned when a string field is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("invalid utf-8")
	// ErrInvalidBool is returned when a bool byte is neither 0 nor 1.
	ErrInvalidBool = errors.New("invalid bool")
	// ErrDiscriminatorMismatch is returned when an account header names a different type.
	ErrDiscriminatorMismatch = errors.New("account discriminator mismatch")
)

// DecodeError reports which field failed and where.
type DecodeError struct {
	Field  string
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s at offset %d: %v", e.Field, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Reader is a forward-only cursor over a byte slice.
type Reader struct {
	buf []byte
	off int
}

// NewReader creates a reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{buf: data}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.off
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Next consumes and returns the next n bytes.
func (r *Reader) Next(n int) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, n, r.Remaining())
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Decoder reads one value of type T.
type Decoder[T any] func(r *Reader) (T, error)

// U8 decodes a single byte.
func U8(r *Reader) (uint8, error) {
	b, err := r.Next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// U32 decodes a little-endian uint32.
func U32(r *Reader) (uint32, error) {
	b, err := r.Next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// U64 decodes a little-endian uint64.
func U64(r *Reader) (uint64, error) {
	b, err := r.Next(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// I64 decodes a little-endian int64.
func I64(r *Reader) (int64, error) {
	v, err := U64(r)
	return int64(v), err
}

// Bool decodes a strict 0/1 byte.
func Bool(r *Reader) (bool, error) {
	b, err := U8(r)
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: %d", ErrInvalidBool, b)
	}
}

// Fixed decodes exactly n raw bytes into a fresh slice.
func Fixed(n int) Decoder[[]byte] {
	return func(r *Reader) ([]byte, error) {
		b, err := r.Next(n)
		if err != nil {
			return nil, err
		}
		out := make([]byte, n)
		copy(out, b)
		return out, nil
	}
}

// Bytes32 decodes a 32-byte array.
func Bytes32(r *Reader) ([32]byte, error) {
	var out [32]byte
	b, err := r.Next(32)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// length decodes a u32 length prefix and rejects counts the remaining data cannot hold.
func length(r *Reader) (int, error) {
	n, err := U32(r)
	if err != nil {
		return 0, err
	}
	if uint64(n) > uint64(r.Remaining()) {
		return 0, fmt.Errorf("%w: length prefix %d exceeds remaining %d", ErrShortBuffer, n, r.Remaining())
	}
	return int(n), nil
}
