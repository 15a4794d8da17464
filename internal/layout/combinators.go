package layout

import (
	"fmt"
	"unicode/utf8"

	"github.com/R3E-Network/ledger_client/internal/chain"
)

// String decodes a length-prefixed UTF-8 string.
func String(r *Reader) (string, error) {
	n, err := length(r)
	if err != nil {
		return "", err
	}
	b, err := r.Next(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

// Address decodes a 32-byte ledger address.
func Address(r *Reader) (chain.Address, error) {
	b, err := Bytes32(r)
	return chain.Address(b), err
}

// Option decodes a presence tag followed by the value when present.
func Option[T any](inner Decoder[T]) Decoder[*T] {
	return func(r *Reader) (*T, error) {
		tag, err := U8(r)
		if err != nil {
			return nil, err
		}
		if tag == 0 {
			return nil, nil
		}
		v, err := inner(r)
		if err != nil {
			return nil, err
		}
		return &v, nil
	}
}

// Vec decodes a length-prefixed sequence. The result is never nil.
func Vec[T any](elem Decoder[T]) Decoder[[]T] {
	return func(r *Reader) ([]T, error) {
		n, err := length(r)
		if err != nil {
			return nil, err
		}
		out := make([]T, 0, n)
		for i := 0; i < n; i++ {
			v, err := elem(r)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out = append(out, v)
		}
		return out, nil
	}
}

// Map transforms the result of a decoder.
func Map[A, B any](d Decoder[A], f func(A) B) Decoder[B] {
	return func(r *Reader) (B, error) {
		a, err := d(r)
		if err != nil {
			var zero B
			return zero, err
		}
		return f(a), nil
	}
}

// Struct decodes a nested record described by its own steps.
func Struct[T any](steps func(*T) []Step) Decoder[T] {
	return func(r *Reader) (T, error) {
		var v T
		for _, step := range steps(&v) {
			if err := step(r); err != nil {
				return v, err
			}
		}
		return v, nil
	}
}

// Step decodes one named field into its destination.
type Step func(r *Reader) error

// Field binds a decoder to a destination. Failures are reported as *DecodeError.
func Field[T any](name string, dst *T, d Decoder[T]) Step {
	return func(r *Reader) error {
		start := r.Offset()
		v, err := d(r)
		if err != nil {
			if de, ok := err.(*DecodeError); ok {
				return &DecodeError{Field: name + "." + de.Field, Offset: de.Offset, Err: de.Err}
			}
			return &DecodeError{Field: name, Offset: start, Err: err}
		}
		*dst = v
		return nil
	}
}

// Decode runs steps in order over data.
func Decode(data []byte, steps ...Step) error {
	r := NewReader(data)
	for _, step := range steps {
		if err := step(r); err != nil {
			return err
		}
	}
	return nil
}

// DecodeAccount skips the 8-byte account discriminator and decodes the body.
// Trailing bytes are allowed: accounts are allocated at their maximum size.
func DecodeAccount(data []byte, steps ...Step) error {
	_, body, err := SplitDiscriminator(data)
	if err != nil {
		return err
	}
	r := NewReader(body)
	for _, step := range steps {
		if err := step(r); err != nil {
			if de, ok := err.(*DecodeError); ok {
				de.Offset += DiscriminatorSize
			}
			return err
		}
	}
	return nil
}

// SplitDiscriminator separates the account header from the body.
func SplitDiscriminator(data []byte) ([DiscriminatorSize]byte, []byte, error) {
	var disc [DiscriminatorSize]byte
	if len(data) < DiscriminatorSize {
		return disc, nil, &DecodeError{
			Field:  "discriminator",
			Offset: 0,
			Err:    fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, DiscriminatorSize, len(data)),
		}
	}
	copy(disc[:], data[:DiscriminatorSize])
	return disc, data[DiscriminatorSize:], nil
}

// SkipDiscriminator steps over the account header without checking it.
func SkipDiscriminator(r *Reader) error {
	if _, err := r.Next(DiscriminatorSize); err != nil {
		return &DecodeError{Field: "discriminator", Offset: r.Offset(), Err: err}
	}
	return nil
}

// DecodeAccountOf is DecodeAccount for a known account type: the header must
// equal want.
func DecodeAccountOf(data []byte, want [DiscriminatorSize]byte, steps ...Step) error {
	disc, _, err := SplitDiscriminator(data)
	if err != nil {
		return err
	}
	if disc != want {
		return &DecodeError{
			Field:  "discriminator",
			Offset: 0,
			Err:    fmt.Errorf("%w: got %v, want %v", ErrDiscriminatorMismatch, disc, want),
		}
	}
	return DecodeAccount(data, steps...)
}
