package binary

import (
	"encoding/binary"
	"math"
)

// Writer accumulates LEB128 and little-endian encoded values.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the encoded bytes. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) Byte(b byte) { w.buf = append(w.buf, b) }

func (w *Writer) WriteBytes(data []byte) { w.buf = append(w.buf, data...) }

func (w *Writer) WriteU32(v uint32) { w.WriteU64(uint64(v)) }

// WriteU64 appends v as unsigned LEB128. Go's uvarint uses the same 7-bit
// little-endian groups.
func (w *Writer) WriteU64(v uint64) { w.buf = binary.AppendUvarint(w.buf, v) }

// WriteS64 appends v as signed LEB128 (two's complement, not zigzag).
func (w *Writer) WriteS64(v int64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := v == 0 && b&0x40 == 0 || v == -1 && b&0x40 != 0
		if !done {
			b |= 0x80
		}
		w.buf = append(w.buf, b)
		if done {
			return
		}
	}
}

// WriteName appends a LEB128 length followed by the bytes of s.
func (w *Writer) WriteName(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) WriteU32LE(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *Writer) WriteF64LE(v float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}

// ReserveU32LE appends four zero bytes and returns their position for a
// later PatchU32LE.
func (w *Writer) ReserveU32LE() int {
	at := len(w.buf)
	w.buf = append(w.buf, 0, 0, 0, 0)
	return at
}

// PatchU32LE overwrites four bytes at a position from ReserveU32LE.
func (w *Writer) PatchU32LE(at int, v uint32) {
	binary.LittleEndian.PutUint32(w.buf[at:at+4], v)
}
