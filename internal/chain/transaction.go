package chain

import (
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrMissingSigner is returned when a required signer was not supplied.
	ErrMissingSigner = errors.New("missing required signer")
	// ErrUnexpectedSigner is returned when a supplied signer is not required by the message.
	ErrUnexpectedSigner = errors.New("signer not required by message")
	// ErrTransactionTooLarge is returned when the serialized transaction exceeds MaxTransactionSize.
	ErrTransactionTooLarge = errors.New("transaction too large")
)

// Transaction is a message plus one signature per required signer.
type Transaction struct {
	Signatures []Signature
	Message    *Message
}

// SignMessage signs msg with every required signer. Each signer must be
// required by the message and each required signer must be present.
func SignMessage(msg *Message, signers ...Signer) (*Transaction, error) {
	if msg == nil {
		return nil, errors.New("nil message")
	}
	payload, err := msg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize message: %w", err)
	}

	required := msg.Signers()
	byKey := make(map[Address]Signer, len(signers))
	for _, s := range signers {
		if s == nil {
			continue
		}
		byKey[s.PublicKey()] = s
	}
	for key := range byKey {
		found := false
		for _, r := range required {
			if r == key {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedSigner, key)
		}
	}

	tx := &Transaction{Message: msg, Signatures: make([]Signature, len(required))}
	for i, key := range required {
		s, ok := byKey[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingSigner, key)
		}
		sig, err := s.Sign(payload)
		if err != nil {
			return nil, fmt.Errorf("sign with %s: %w", key, err)
		}
		tx.Signatures[i] = sig
	}
	return tx, nil
}

// ID returns the first signature, which identifies the transaction on the ledger.
func (tx *Transaction) ID() Signature {
	if len(tx.Signatures) == 0 {
		return Signature{}
	}
	return tx.Signatures[0]
}

// VerifySignatures checks every signature against the message bytes.
func (tx *Transaction) VerifySignatures() error {
	payload, err := tx.Message.MarshalBinary()
	if err != nil {
		return err
	}
	required := tx.Message.Signers()
	if len(tx.Signatures) != len(required) {
		return fmt.Errorf("have %d signatures, need %d", len(tx.Signatures), len(required))
	}
	for i, key := range required {
		if !Verify(key, payload, tx.Signatures[i]) {
			return fmt.Errorf("signature %d does not verify for %s", i, key)
		}
	}
	return nil
}

// MarshalBinary serializes the transaction for submission.
func (tx *Transaction) MarshalBinary() ([]byte, error) {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 1+len(tx.Signatures)*SignatureSize+len(msg))
	buf = appendCompactU16(buf, len(tx.Signatures))
	for _, s := range tx.Signatures {
		buf = append(buf, s[:]...)
	}
	buf = append(buf, msg...)
	if len(buf) > MaxTransactionSize {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrTransactionTooLarge, len(buf), MaxTransactionSize)
	}
	return buf, nil
}

// Base64 returns the wire encoding used by sendTransaction.
func (tx *Transaction) Base64() (string, error) {
	b, err := tx.MarshalBinary()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// ParseTransaction decodes wire bytes produced by MarshalBinary.
func ParseTransaction(b []byte) (*Transaction, error) {
	d := &wireDecoder{buf: b}
	n := d.compactU16()
	tx := &Transaction{}
	for i := 0; i < n && d.err == nil; i++ {
		var s Signature
		copy(s[:], d.next(SignatureSize))
		tx.Signatures = append(tx.Signatures, s)
	}
	if d.err != nil {
		return nil, d.err
	}
	msg, used, err := ParseMessage(b[d.off:])
	if err != nil {
		return nil, err
	}
	if d.off+used != len(b) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedMessage, len(b)-d.off-used)
	}
	tx.Message = msg
	return tx, nil
}
