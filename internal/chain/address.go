// Package chain is the client side of the ledger program protocol: addresses,
// program-derived addresses, instructions, transaction wire format, the
// JSON-RPC client and the transaction lifecycle manager.
package chain

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	AddressSize   = 32
	SignatureSize = 64
)

// ErrInvalidAddress is returned when text does not decode to 32 bytes.
var ErrInvalidAddress = errors.New("invalid address")

// Address identifies a ledger account. It is either the public half of a
// signing key or a program-derived address.
type Address [AddressSize]byte

// SystemProgramID is the native program that creates accounts.
var SystemProgramID = Address{}

// ParseAddress decodes a base58 address.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("%w %q: %v", ErrInvalidAddress, s, err)
	}
	if len(b) != AddressSize {
		return a, fmt.Errorf("%w %q: decoded %d bytes", ErrInvalidAddress, s, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// MustParseAddress is ParseAddress for constants.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string {
	return base58.Encode(a[:])
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) Equals(b Address) bool {
	return a == b
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func compareAddress(a, b Address) int {
	return bytes.Compare(a[:], b[:])
}

// Hash is a 32-byte ledger hash. Recent blockhashes use it.
type Hash [32]byte

// ParseHash decodes a base58 hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := base58.Decode(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %v", s, err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("invalid hash %q: decoded %d bytes", s, len(b))
	}
	copy(h[:], b)
	return h, nil
}

func (h Hash) String() string {
	return base58.Encode(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash) UnmarshalText(b []byte) error {
	parsed, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Signature is an ed25519 transaction signature. The first signature of a
// transaction is its identifier.
type Signature [SignatureSize]byte

// ParseSignature decodes a base58 signature.
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	b, err := base58.Decode(s)
	if err != nil {
		return sig, fmt.Errorf("invalid signature %q: %v", s, err)
	}
	if len(b) != SignatureSize {
		return sig, fmt.Errorf("invalid signature %q: decoded %d bytes", s, len(b))
	}
	copy(sig[:], b)
	return sig, nil
}

func (s Signature) String() string {
	return base58.Encode(s[:])
}

func (s Signature) IsZero() bool {
	return s == Signature{}
}

func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Signature) UnmarshalText(text []byte) error {
	parsed, err := ParseSignature(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
