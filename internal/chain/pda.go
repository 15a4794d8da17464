package chain

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

const (
	MaxSeeds      = 16
	MaxSeedLength = 32

	pdaMarker = "ProgramDerivedAddress"
)

var (
	// ErrInvalidSeeds is returned for too many or too long seeds, or when the
	// derived point lies on the curve.
	ErrInvalidSeeds = errors.New("invalid seeds")
	// ErrNoViableBump is returned when every bump yields an on-curve point.
	ErrNoViableBump = errors.New("unable to find a viable program address bump")
)

// CreateProgramAddress hashes seeds with the program address. The result must
// not be a valid ed25519 point, otherwise someone could hold its private key.
func CreateProgramAddress(seeds [][]byte, program Address) (Address, error) {
	if len(seeds) > MaxSeeds {
		return Address{}, fmt.Errorf("%w: %d seeds, max %d", ErrInvalidSeeds, len(seeds), MaxSeeds)
	}
	h := sha256.New()
	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Address{}, fmt.Errorf("%w: seed %d is %d bytes, max %d", ErrInvalidSeeds, i, len(seed), MaxSeedLength)
		}
		h.Write(seed)
	}
	h.Write(program[:])
	h.Write([]byte(pdaMarker))

	var addr Address
	copy(addr[:], h.Sum(nil))
	if IsOnCurve(addr[:]) {
		return Address{}, fmt.Errorf("%w: derived address is on curve", ErrInvalidSeeds)
	}
	return addr, nil
}

// FindProgramAddress probes bump seeds from 255 downward and returns the first
// off-curve address together with its bump.
func FindProgramAddress(seeds [][]byte, program Address) (Address, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return Address{}, 0, fmt.Errorf("%w: %d seeds leaves no room for the bump", ErrInvalidSeeds, len(seeds))
	}
	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Address{}, 0, fmt.Errorf("%w: seed %d is %d bytes, max %d", ErrInvalidSeeds, i, len(seed), MaxSeedLength)
		}
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump > 0; bump-- {
		withBump[len(seeds)] = []byte{uint8(bump)}
		if addr, err := CreateProgramAddress(withBump, program); err == nil {
			return addr, uint8(bump), nil
		}
	}
	return Address{}, 0, ErrNoViableBump
}

// ProgramAddress derives the address of a program-owned account. Seed order is
// fixed: the account kind, the owner, then any sub-seeds such as a
// little-endian index.
func ProgramAddress(kind string, owner, program Address, subSeeds ...[]byte) (Address, uint8, error) {
	seeds := make([][]byte, 0, 2+len(subSeeds))
	seeds = append(seeds, []byte(kind), owner[:])
	seeds = append(seeds, subSeeds...)
	return FindProgramAddress(seeds, program)
}

// DeriveProgramAddress is ProgramAddress for seed sets known to be valid.
// Bump exhaustion has probability 2^-255.
func DeriveProgramAddress(kind string, owner, program Address, subSeeds ...[]byte) Address {
	addr, _, err := ProgramAddress(kind, owner, program, subSeeds...)
	if err != nil {
		panic(fmt.Sprintf("derive %s address: %v", kind, err))
	}
	return addr
}

// IsOnCurve reports whether b decodes to an ed25519 point.
func IsOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
