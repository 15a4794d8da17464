package chain

import (
	"bytes"
	"errors"
	"testing"
)

func seededKeypair(t *testing.T, b byte) *Keypair {
	t.Helper()
	kp, err := KeypairFromSeed(bytes.Repeat([]byte{b}, 32))
	if err != nil {
		t.Fatalf("KeypairFromSeed() error = %v", err)
	}
	return kp
}

func TestSignMessage(t *testing.T) {
	payer, other := seededKeypair(t, 1), seededKeypair(t, 2)
	program := addr(9)
	msg, err := NewMessage(payer.PublicKey(), Hash(addr(3)),
		NewInstruction(program, []byte{1}, Writable(payer.PublicKey(), true), Readonly(other.PublicKey(), true)))
	if err != nil {
		t.Fatal(err)
	}

	t.Run("all signers", func(t *testing.T) {
		tx, err := SignMessage(msg, other, payer)
		if err != nil {
			t.Fatalf("SignMessage() error = %v", err)
		}
		if len(tx.Signatures) != 2 {
			t.Fatalf("signatures = %d, want 2", len(tx.Signatures))
		}
		if err := tx.VerifySignatures(); err != nil {
			t.Errorf("VerifySignatures() error = %v", err)
		}
		if tx.ID() != tx.Signatures[0] {
			t.Error("ID() is not the fee payer signature")
		}
	})

	t.Run("missing signer", func(t *testing.T) {
		if _, err := SignMessage(msg, payer); !errors.Is(err, ErrMissingSigner) {
			t.Errorf("error = %v, want ErrMissingSigner", err)
		}
	})

	t.Run("unexpected signer", func(t *testing.T) {
		if _, err := SignMessage(msg, payer, other, seededKeypair(t, 3)); !errors.Is(err, ErrUnexpectedSigner) {
			t.Errorf("error = %v, want ErrUnexpectedSigner", err)
		}
	})
}

func TestTransaction_RoundTrip(t *testing.T) {
	payer := seededKeypair(t, 4)
	msg, _ := NewMessage(payer.PublicKey(), Hash(addr(5)), NewInstruction(addr(6), []byte("data"), Writable(payer.PublicKey(), true)))
	tx, err := SignMessage(msg, payer)
	if err != nil {
		t.Fatal(err)
	}
	wire, err := tx.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseTransaction(wire)
	if err != nil {
		t.Fatalf("ParseTransaction() error = %v", err)
	}
	if err := parsed.VerifySignatures(); err != nil {
		t.Errorf("parsed VerifySignatures() error = %v", err)
	}
	if _, err := ParseTransaction(append(wire, 0)); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("trailing byte error = %v, want ErrMalformedMessage", err)
	}
}

func TestTransaction_TooLarge(t *testing.T) {
	payer := seededKeypair(t, 7)
	msg, _ := NewMessage(payer.PublicKey(), Hash{}, NewInstruction(addr(6), make([]byte, MaxTransactionSize)))
	tx, err := SignMessage(msg, payer)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.MarshalBinary(); !errors.Is(err, ErrTransactionTooLarge) {
		t.Errorf("error = %v, want ErrTransactionTooLarge", err)
	}
}

func TestKeypairFromBytes(t *testing.T) {
	kp := seededKeypair(t, 8)
	back, err := KeypairFromBytes(kp.Bytes())
	if err != nil {
		t.Fatalf("KeypairFromBytes() error = %v", err)
	}
	if back.PublicKey() != kp.PublicKey() {
		t.Error("public key changed")
	}
	bad := kp.Bytes()
	bad[63] ^= 1
	if _, err := KeypairFromBytes(bad); err == nil {
		t.Error("mismatched public half accepted")
	}
}
