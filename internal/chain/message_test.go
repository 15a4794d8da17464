package chain

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func addr(b byte) Address {
	var a Address
	a[0] = b
	a[31] = b
	return a
}

func TestAppendCompactU16(t *testing.T) {
	tests := []struct {
		n    int
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{255, []byte{0xff, 0x01}},
		{16383, []byte{0xff, 0x7f}},
		{16384, []byte{0x80, 0x80, 0x01}},
		{65535, []byte{0xff, 0xff, 0x03}},
	}
	for _, tt := range tests {
		got := appendCompactU16(nil, tt.n)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("appendCompactU16(%d) = %x, want %x", tt.n, got, tt.want)
		}
		d := &wireDecoder{buf: got}
		if back := d.compactU16(); back != tt.n || d.err != nil {
			t.Errorf("decode(%x) = %d, %v; want %d", got, back, d.err, tt.n)
		}
	}
}

func TestNewMessage_KeyOrderAndHeader(t *testing.T) {
	payer, signer, writable, readonly, program := addr(1), addr(2), addr(3), addr(4), addr(5)
	blockhash := Hash(addr(9))

	msg, err := NewMessage(payer, blockhash,
		NewInstruction(program, []byte{1},
			Writable(writable, false),
			Readonly(signer, true),
			Readonly(readonly, false),
		),
		NewInstruction(program, []byte{2, 3},
			Writable(readonly, false),
			Writable(payer, true),
		),
	)
	if err != nil {
		t.Fatalf("NewMessage() error = %v", err)
	}

	wantKeys := []Address{payer, signer, writable, readonly, program}
	if !reflect.DeepEqual(msg.AccountKeys, wantKeys) {
		t.Errorf("keys = %v, want %v", msg.AccountKeys, wantKeys)
	}
	wantHeader := MessageHeader{NumRequiredSignatures: 2, NumReadonlySignedAccounts: 1, NumReadonlyUnsignedAccounts: 1}
	if msg.Header != wantHeader {
		t.Errorf("header = %+v, want %+v", msg.Header, wantHeader)
	}
	if got := msg.Instructions[0].Accounts; !bytes.Equal(got, []byte{2, 1, 3}) {
		t.Errorf("instruction 0 accounts = %v, want [2 1 3]", got)
	}
	if got := msg.Instructions[1].Accounts; !bytes.Equal(got, []byte{3, 0}) {
		t.Errorf("instruction 1 accounts = %v, want [3 0]", got)
	}
	if msg.Instructions[0].ProgramIDIndex != 4 {
		t.Errorf("program index = %d, want 4", msg.Instructions[0].ProgramIDIndex)
	}

	writableWant := []bool{true, false, true, true, false}
	for i, want := range writableWant {
		if got := msg.IsWritable(i); got != want {
			t.Errorf("IsWritable(%d) = %v, want %v", i, got, want)
		}
	}
	if got := msg.Signers(); !reflect.DeepEqual(got, []Address{payer, signer}) {
		t.Errorf("Signers() = %v", got)
	}
}

func TestMessage_WireFormat(t *testing.T) {
	payer, program := addr(1), addr(7)
	msg, err := NewMessage(payer, Hash(addr(8)), NewInstruction(program, []byte{0xaa, 0xbb}, Writable(payer, true)))
	if err != nil {
		t.Fatal(err)
	}
	b, err := msg.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	want := []byte{1, 0, 1, 2}
	want = append(want, payer[:]...)
	want = append(want, program[:]...)
	bh := addr(8)
	want = append(want, bh[:]...)
	want = append(want, 1, 1, 1, 0, 2, 0xaa, 0xbb)
	if !bytes.Equal(b, want) {
		t.Fatalf("wire = %x\nwant  %x", b, want)
	}

	parsed, n, err := ParseMessage(b)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if n != len(b) {
		t.Errorf("consumed %d bytes, want %d", n, len(b))
	}
	if !reflect.DeepEqual(parsed, msg) {
		t.Errorf("parsed = %+v, want %+v", parsed, msg)
	}
}

func TestNewMessage_Errors(t *testing.T) {
	if _, err := NewMessage(addr(1), Hash{}); !errors.Is(err, ErrNoInstructions) {
		t.Errorf("empty message error = %v, want ErrNoInstructions", err)
	}

	accounts := make([]AccountMeta, 0, 300)
	for i := 0; i < 300; i++ {
		var a Address
		a[0], a[1] = byte(i), byte(i>>8)
		a[2] = 0xff
		accounts = append(accounts, Readonly(a, false))
	}
	if _, err := NewMessage(addr(1), Hash{}, NewInstruction(addr(2), nil, accounts...)); !errors.Is(err, ErrTooManyAccounts) {
		t.Errorf("large message error = %v, want ErrTooManyAccounts", err)
	}
}

func TestParseMessage_Truncated(t *testing.T) {
	msg, _ := NewMessage(addr(1), Hash{}, NewInstruction(addr(2), []byte{1, 2, 3}))
	b, _ := msg.MarshalBinary()
	for _, cut := range []int{0, 2, 10, len(b) - 1} {
		if _, _, err := ParseMessage(b[:cut]); !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("ParseMessage(b[:%d]) error = %v, want ErrMalformedMessage", cut, err)
		}
	}
}
