package chain

import (
	"errors"
	"fmt"
)

const (
	// MaxTransactionSize is the largest serialized transaction the network accepts.
	MaxTransactionSize = 1232

	maxAccountKeys = 256
)

var (
	// ErrNoInstructions is returned when compiling an empty message.
	ErrNoInstructions = errors.New("message has no instructions")
	// ErrTooManyAccounts is returned when a message references more than 256 accounts.
	ErrTooManyAccounts = errors.New("message references too many accounts")
	// ErrMalformedMessage is returned when wire bytes cannot be parsed.
	ErrMalformedMessage = errors.New("malformed message")
)

// MessageHeader counts the signer and read-only sections of the key list.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction references accounts by index into the message key list.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// Message is the signed part of a transaction, bound to a recent blockhash.
type Message struct {
	Header          MessageHeader
	AccountKeys     []Address
	RecentBlockhash Hash
	Instructions    []CompiledInstruction
}

type keyMeta struct {
	addr     Address
	signer   bool
	writable bool
}

// NewMessage compiles instructions into a message. Keys are ordered fee payer
// first, then writable signers, read-only signers, writable non-signers and
// read-only non-signers, each group in order of first appearance. A key used
// more than once carries the union of its flags.
func NewMessage(feePayer Address, blockhash Hash, instructions ...Instruction) (*Message, error) {
	if len(instructions) == 0 {
		return nil, ErrNoInstructions
	}

	metas := []*keyMeta{{addr: feePayer, signer: true, writable: true}}
	index := map[Address]*keyMeta{feePayer: metas[0]}
	add := func(addr Address, signer, writable bool) {
		if m, ok := index[addr]; ok {
			m.signer = m.signer || signer
			m.writable = m.writable || writable
			return
		}
		m := &keyMeta{addr: addr, signer: signer, writable: writable}
		index[addr] = m
		metas = append(metas, m)
	}
	for _, ix := range instructions {
		for _, acc := range ix.Accounts {
			add(acc.Address, acc.IsSigner, acc.IsWritable)
		}
		add(ix.ProgramID, false, false)
	}
	if len(metas) > maxAccountKeys {
		return nil, fmt.Errorf("%w: %d", ErrTooManyAccounts, len(metas))
	}

	ordered := make([]*keyMeta, 0, len(metas))
	ordered = append(ordered, metas[0])
	groups := []func(*keyMeta) bool{
		func(m *keyMeta) bool { return m.signer && m.writable },
		func(m *keyMeta) bool { return m.signer && !m.writable },
		func(m *keyMeta) bool { return !m.signer && m.writable },
		func(m *keyMeta) bool { return !m.signer && !m.writable },
	}
	for _, in := range groups {
		for _, m := range metas[1:] {
			if in(m) {
				ordered = append(ordered, m)
			}
		}
	}

	msg := &Message{RecentBlockhash: blockhash}
	positions := make(map[Address]uint8, len(ordered))
	for i, m := range ordered {
		positions[m.addr] = uint8(i)
		msg.AccountKeys = append(msg.AccountKeys, m.addr)
		switch {
		case m.signer:
			msg.Header.NumRequiredSignatures++
			if !m.writable {
				msg.Header.NumReadonlySignedAccounts++
			}
		case !m.writable:
			msg.Header.NumReadonlyUnsignedAccounts++
		}
	}

	for _, ix := range instructions {
		ci := CompiledInstruction{
			ProgramIDIndex: positions[ix.ProgramID],
			Accounts:       make([]uint8, len(ix.Accounts)),
			Data:           append([]byte(nil), ix.Data...),
		}
		for i, acc := range ix.Accounts {
			ci.Accounts[i] = positions[acc.Address]
		}
		msg.Instructions = append(msg.Instructions, ci)
	}
	return msg, nil
}

// FeePayer returns the first account key.
func (m *Message) FeePayer() Address {
	if len(m.AccountKeys) == 0 {
		return Address{}
	}
	return m.AccountKeys[0]
}

// Signers returns the addresses that must sign, in signature order.
func (m *Message) Signers() []Address {
	n := int(m.Header.NumRequiredSignatures)
	if n > len(m.AccountKeys) {
		n = len(m.AccountKeys)
	}
	return m.AccountKeys[:n]
}

// IsWritable reports whether key i may be modified by the transaction.
func (m *Message) IsWritable(i int) bool {
	n := len(m.AccountKeys)
	signed := int(m.Header.NumRequiredSignatures)
	if i < signed {
		return i < signed-int(m.Header.NumReadonlySignedAccounts)
	}
	return i < n-int(m.Header.NumReadonlyUnsignedAccounts)
}

// ProgramOf returns the program invoked by instruction i.
func (m *Message) ProgramOf(i int) (Address, bool) {
	if i < 0 || i >= len(m.Instructions) {
		return Address{}, false
	}
	idx := int(m.Instructions[i].ProgramIDIndex)
	if idx >= len(m.AccountKeys) {
		return Address{}, false
	}
	return m.AccountKeys[idx], true
}

// MarshalBinary serializes the message in the legacy wire format. These are
// the bytes every signer signs.
func (m *Message) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 256)
	buf = append(buf,
		m.Header.NumRequiredSignatures,
		m.Header.NumReadonlySignedAccounts,
		m.Header.NumReadonlyUnsignedAccounts,
	)
	buf = appendCompactU16(buf, len(m.AccountKeys))
	for _, k := range m.AccountKeys {
		buf = append(buf, k[:]...)
	}
	buf = append(buf, m.RecentBlockhash[:]...)
	buf = appendCompactU16(buf, len(m.Instructions))
	for _, ix := range m.Instructions {
		buf = append(buf, ix.ProgramIDIndex)
		buf = appendCompactU16(buf, len(ix.Accounts))
		buf = append(buf, ix.Accounts...)
		buf = appendCompactU16(buf, len(ix.Data))
		buf = append(buf, ix.Data...)
	}
	return buf, nil
}

// ParseMessage decodes a legacy wire-format message. It returns the message
// and the number of bytes consumed.
func ParseMessage(b []byte) (*Message, int, error) {
	d := &wireDecoder{buf: b}
	m := &Message{}
	hdr := d.next(3)
	if d.err != nil {
		return nil, 0, d.err
	}
	m.Header = MessageHeader{hdr[0], hdr[1], hdr[2]}

	nkeys := d.compactU16()
	for i := 0; i < nkeys && d.err == nil; i++ {
		var a Address
		copy(a[:], d.next(AddressSize))
		m.AccountKeys = append(m.AccountKeys, a)
	}
	copy(m.RecentBlockhash[:], d.next(32))

	nix := d.compactU16()
	for i := 0; i < nix && d.err == nil; i++ {
		var ci CompiledInstruction
		p := d.next(1)
		if d.err != nil {
			break
		}
		ci.ProgramIDIndex = p[0]
		ci.Accounts = append([]uint8(nil), d.next(d.compactU16())...)
		ci.Data = append([]byte(nil), d.next(d.compactU16())...)
		m.Instructions = append(m.Instructions, ci)
	}
	if d.err != nil {
		return nil, 0, d.err
	}
	if int(m.Header.NumRequiredSignatures) > len(m.AccountKeys) {
		return nil, 0, fmt.Errorf("%w: %d signers but %d keys", ErrMalformedMessage, m.Header.NumRequiredSignatures, len(m.AccountKeys))
	}
	for i, ci := range m.Instructions {
		if int(ci.ProgramIDIndex) >= len(m.AccountKeys) {
			return nil, 0, fmt.Errorf("%w: instruction %d program index out of range", ErrMalformedMessage, i)
		}
		for _, a := range ci.Accounts {
			if int(a) >= len(m.AccountKeys) {
				return nil, 0, fmt.Errorf("%w: instruction %d account index out of range", ErrMalformedMessage, i)
			}
		}
	}
	return m, d.off, nil
}

// appendCompactU16 writes n as 7-bit groups, low group first, high bit set on
// all but the last byte.
func appendCompactU16(buf []byte, n int) []byte {
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

type wireDecoder struct {
	buf []byte
	off int
	err error
}

func (d *wireDecoder) next(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.buf) {
		d.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformedMessage, n, d.off, len(d.buf)-d.off)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *wireDecoder) compactU16() int {
	var v int
	for i := 0; i < 3; i++ {
		b := d.next(1)
		if d.err != nil {
			return 0
		}
		v |= int(b[0]&0x7f) << (7 * i)
		if b[0]&0x80 == 0 {
			return v
		}
	}
	d.err = fmt.Errorf("%w: compact-u16 longer than 3 bytes", ErrMalformedMessage)
	return 0
}
