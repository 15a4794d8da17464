package layout

import (
	"encoding/binary"

	"github.com/R3E-Network/ledger_client/internal/chain"
)

// Writer encodes values in the same binary layout the decoders read.
// Instruction payloads are built as discriminator followed by arguments.
type Writer struct {
	buf []byte
}

// NewWriter creates an empty writer.
func NewWriter() *Writer {
	return &Writer{}
}

// NewInstructionData starts an instruction payload with its 8-byte discriminator.
func NewInstructionData(discriminator [DiscriminatorSize]byte) *Writer {
	w := &Writer{buf: make([]byte, 0, 64)}
	w.buf = append(w.buf, discriminator[:]...)
	return w
}

// Bytes returns the encoded bytes.
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Raw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

func (w *Writer) U8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

func (w *Writer) U32(v uint32) *Writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

func (w *Writer) U64(v uint64) *Writer {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
	return w
}

func (w *Writer) Bool(v bool) *Writer {
	if v {
		return w.U8(1)
	}
	return w.U8(0)
}

func (w *Writer) Address(a chain.Address) *Writer {
	w.buf = append(w.buf, a[:]...)
	return w
}

// String writes a u32 length prefix followed by the UTF-8 bytes.
func (w *Writer) String(s string) *Writer {
	w.U32(uint32(len(s)))
	w.buf = append(w.buf, s...)
	return w
}

// Strings writes a length-prefixed sequence of strings.
func (w *Writer) Strings(ss []string) *Writer {
	w.U32(uint32(len(ss)))
	for _, s := range ss {
		w.String(s)
	}
	return w
}

func (w *Writer) OptionU64(v *uint64) *Writer {
	if v == nil {
		return w.U8(0)
	}
	return w.U8(1).U64(*v)
}

func (w *Writer) OptionAddress(v *chain.Address) *Writer {
	if v == nil {
		return w.U8(0)
	}
	return w.U8(1).Address(*v)
}

// PadTo zero-fills the buffer up to size bytes. Accounts are allocated at their
// maximum size, so stored data usually ends in unused zeros.
func (w *Writer) PadTo(size int) *Writer {
	for len(w.buf) < size {
		w.buf = append(w.buf, 0)
	}
	return w
}

// LE64 returns the little-endian bytes of v, the form used for index seeds.
func LE64(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}
