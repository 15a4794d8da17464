package chain

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// Signer produces signatures for one address.
type Signer interface {
	PublicKey() Address
	Sign(message []byte) (Signature, error)
}

// Keypair is an in-process ed25519 signing key.
type Keypair struct {
	private ed25519.PrivateKey
	public  Address
}

// NewKeypair generates a random keypair.
func NewKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return keypairFromPrivate(priv), nil
}

// KeypairFromSeed builds a keypair from a 32-byte seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return keypairFromPrivate(ed25519.NewKeyFromSeed(seed)), nil
}

// KeypairFromBytes builds a keypair from the 64-byte seed||public form used by
// CLI keypair files. The public half must match the seed.
func KeypairFromBytes(b []byte) (*Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	kp, err := KeypairFromSeed(b[:ed25519.SeedSize])
	if err != nil {
		return nil, err
	}
	var claimed Address
	copy(claimed[:], b[ed25519.SeedSize:])
	if claimed != kp.public {
		return nil, fmt.Errorf("keypair public key %s does not match seed", claimed)
	}
	return kp, nil
}

func keypairFromPrivate(priv ed25519.PrivateKey) *Keypair {
	kp := &Keypair{private: priv}
	copy(kp.public[:], priv.Public().(ed25519.PublicKey))
	return kp
}

func (k *Keypair) PublicKey() Address {
	return k.public
}

func (k *Keypair) Sign(message []byte) (Signature, error) {
	var sig Signature
	copy(sig[:], ed25519.Sign(k.private, message))
	return sig, nil
}

// Bytes returns the 64-byte seed||public encoding.
func (k *Keypair) Bytes() []byte {
	out := make([]byte, len(k.private))
	copy(out, k.private)
	return out
}

// Verify checks an ed25519 signature by address over message.
func Verify(addr Address, message []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(addr[:]), message, sig[:])
}
