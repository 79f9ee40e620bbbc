// Package tap implements the Avro binary primitives over a cursor buffer.
//
// Integers use zig-zag variable-length encoding: a value v is mapped to
// (v << 1) ^ (v >> 63) and emitted seven bits at a time, least significant
// group first, with the high bit of each byte set when more bytes follow.
// Floats and doubles are fixed-width little-endian IEEE 754.
package tap

import (
	"encoding/binary"
	"math"
)

// maxVarintLen is the longest valid zig-zag varint (a 64-bit value).
const maxVarintLen = 10

// Tap is a cursor over a byte buffer.
//
// Operations never fail individually. A read that runs past the end of the
// buffer (or a write that does not fit) still advances the cursor, leaving
// it beyond len(buf). Callers check Valid once after a batch of operations
// and, if it is false, grow the buffer and retry the whole value from its
// starting position. Values are never resumed midway.
type Tap struct {
	buf     []byte
	pos     int
	corrupt bool
}

// New creates a tap over buf positioned at 0.
func New(buf []byte) *Tap {
	return &Tap{buf: buf}
}

// NewSize creates a tap over a zeroed buffer of size n, for writing.
func NewSize(n int) *Tap {
	return &Tap{buf: make([]byte, n)}
}

// Valid reports whether every operation since the last reset stayed within
// the buffer.
func (t *Tap) Valid() bool {
	return !t.corrupt && t.pos <= len(t.buf)
}

// Need returns how many additional bytes the last batch of operations
// required. It is 0 when the tap is valid.
func (t *Tap) Need() int {
	if t.pos <= len(t.buf) {
		return 0
	}
	return t.pos - len(t.buf)
}

// Corrupt reports whether the input held a malformed varint. Growing the
// buffer cannot fix a corrupt tap.
func (t *Tap) Corrupt() bool { return t.corrupt }

// MarkCorrupt flags the input as malformed (an out of range union branch or
// enum index, for instance) and invalidates the tap.
func (t *Tap) MarkCorrupt() {
	t.corrupt = true
	if t.pos <= len(t.buf) {
		t.pos = len(t.buf) + 1
	}
}

// Pos returns the cursor position.
func (t *Tap) Pos() int { return t.pos }

// Len returns the size of the underlying buffer.
func (t *Tap) Len() int { return len(t.buf) }

// Remaining returns the number of unread bytes, or 0 if the tap overran.
func (t *Tap) Remaining() int {
	if t.pos >= len(t.buf) {
		return 0
	}
	return len(t.buf) - t.pos
}

// Reset moves the cursor to pos and clears the corrupt flag.
func (t *Tap) Reset(pos int) {
	t.pos = pos
	t.corrupt = false
}

// Bytes returns the buffer up to the cursor. It is only meaningful on a
// valid tap.
func (t *Tap) Bytes() []byte {
	if t.pos > len(t.buf) {
		return t.buf
	}
	return t.buf[:t.pos]
}

// Buffer returns the whole underlying buffer.
func (t *Tap) Buffer() []byte { return t.buf }

// Tail returns the unread part of the buffer.
func (t *Tap) Tail() []byte {
	if t.pos >= len(t.buf) {
		return nil
	}
	return t.buf[t.pos:]
}

// Grow enlarges the buffer so that it holds at least min bytes, keeping
// its contents. The buffer at least doubles to amortise repeated retries.
func (t *Tap) Grow(min int) {
	if min <= len(t.buf) {
		return
	}
	n := 2 * len(t.buf)
	if n < min {
		n = min
	}
	buf := make([]byte, n)
	copy(buf, t.buf)
	t.buf = buf
}

// Append adds input bytes to the end of the buffer, for incremental reads.
func (t *Tap) Append(p []byte) {
	t.buf = append(t.buf, p...)
}

// Compact drops the bytes before the cursor and rebases the cursor to 0.
func (t *Tap) Compact() {
	if t.pos == 0 || t.pos > len(t.buf) {
		return
	}
	n := copy(t.buf, t.buf[t.pos:])
	t.buf = t.buf[:n]
	t.pos = 0
}

// ReadBoolean decodes a single byte boolean.
func (t *Tap) ReadBoolean() bool {
	pos := t.pos
	t.pos++
	if t.pos > len(t.buf) {
		return false
	}
	return t.buf[pos] != 0
}

// SkipBoolean skips a boolean.
func (t *Tap) SkipBoolean() { t.pos++ }

// WriteBoolean encodes a boolean.
func (t *Tap) WriteBoolean(b bool) {
	pos := t.pos
	t.pos++
	if t.pos > len(t.buf) {
		return
	}
	if b {
		t.buf[pos] = 1
	} else {
		t.buf[pos] = 0
	}
}

// ReadInt decodes a zig-zag varint as an int32.
// A value outside the int32 range marks the tap corrupt.
func (t *Tap) ReadInt() int32 {
	n := t.ReadLong()
	if n < math.MinInt32 || n > math.MaxInt32 {
		t.MarkCorrupt()
		return 0
	}
	return int32(n)
}

// WriteInt encodes an int32 as a zig-zag varint.
func (t *Tap) WriteInt(n int32) {
	t.WriteLong(int64(n))
}

// ReadLong decodes a zig-zag varint.
func (t *Tap) ReadLong() int64 {
	var u uint64
	var shift uint
	for i := 0; ; i++ {
		if i == maxVarintLen {
			t.corrupt = true
			t.pos = len(t.buf) + 1
			return 0
		}
		if t.pos >= len(t.buf) {
			t.pos++
			return 0
		}
		b := t.buf[t.pos]
		t.pos++
		u |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return int64(u>>1) ^ -int64(u&1)
}

// SkipLong skips a varint.
func (t *Tap) SkipLong() {
	for i := 0; ; i++ {
		if i == maxVarintLen {
			t.corrupt = true
			t.pos = len(t.buf) + 1
			return
		}
		if t.pos >= len(t.buf) {
			t.pos++
			return
		}
		b := t.buf[t.pos]
		t.pos++
		if b&0x80 == 0 {
			return
		}
	}
}

// WriteLong encodes n as a zig-zag varint.
func (t *Tap) WriteLong(n int64) {
	u := uint64((n << 1) ^ (n >> 63))
	for u >= 0x80 {
		t.putByte(byte(u) | 0x80)
		u >>= 7
	}
	t.putByte(byte(u))
}

func (t *Tap) putByte(b byte) {
	if t.pos < len(t.buf) {
		t.buf[t.pos] = b
	}
	t.pos++
}

// ReadFloat decodes a little-endian IEEE 754 single.
func (t *Tap) ReadFloat() float32 {
	pos := t.pos
	t.pos += 4
	if t.pos > len(t.buf) {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(t.buf[pos:]))
}

// SkipFloat skips a float.
func (t *Tap) SkipFloat() { t.pos += 4 }

// WriteFloat encodes a little-endian IEEE 754 single.
func (t *Tap) WriteFloat(f float32) {
	pos := t.pos
	t.pos += 4
	if t.pos > len(t.buf) {
		return
	}
	binary.LittleEndian.PutUint32(t.buf[pos:], math.Float32bits(f))
}

// ReadDouble decodes a little-endian IEEE 754 double.
func (t *Tap) ReadDouble() float64 {
	pos := t.pos
	t.pos += 8
	if t.pos > len(t.buf) {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(t.buf[pos:]))
}

// SkipDouble skips a double.
func (t *Tap) SkipDouble() { t.pos += 8 }

// WriteDouble encodes a little-endian IEEE 754 double.
func (t *Tap) WriteDouble(f float64) {
	pos := t.pos
	t.pos += 8
	if t.pos > len(t.buf) {
		return
	}
	binary.LittleEndian.PutUint64(t.buf[pos:], math.Float64bits(f))
}

// ReadFixed returns a copy of the next n bytes.
func (t *Tap) ReadFixed(n int) []byte {
	if n < 0 {
		t.corrupt = true
		t.pos = len(t.buf) + 1
		return nil
	}
	pos := t.pos
	t.pos += n
	if t.pos > len(t.buf) {
		return nil
	}
	b := make([]byte, n)
	copy(b, t.buf[pos:t.pos])
	return b
}

// SkipFixed skips n bytes.
func (t *Tap) SkipFixed(n int) {
	if n < 0 {
		t.corrupt = true
		t.pos = len(t.buf) + 1
		return
	}
	t.pos += n
}

// WriteFixed writes b without a length prefix.
func (t *Tap) WriteFixed(b []byte) {
	pos := t.pos
	t.pos += len(b)
	if t.pos > len(t.buf) {
		return
	}
	copy(t.buf[pos:], b)
}

// ReadBytes decodes a length-prefixed byte sequence.
func (t *Tap) ReadBytes() []byte {
	n := t.ReadLong()
	if !t.Valid() {
		return nil
	}
	if n > int64(math.MaxInt32) {
		t.corrupt = true
		t.pos = len(t.buf) + 1
		return nil
	}
	return t.ReadFixed(int(n))
}

// SkipBytes skips a length-prefixed byte sequence.
func (t *Tap) SkipBytes() {
	n := t.ReadLong()
	if !t.Valid() {
		return
	}
	if n > int64(math.MaxInt32) {
		t.corrupt = true
		t.pos = len(t.buf) + 1
		return
	}
	t.SkipFixed(int(n))
}

// WriteBytes encodes a length-prefixed byte sequence.
func (t *Tap) WriteBytes(b []byte) {
	t.WriteLong(int64(len(b)))
	t.WriteFixed(b)
}

// ReadString decodes a length-prefixed UTF-8 string.
func (t *Tap) ReadString() string {
	n := t.ReadLong()
	if !t.Valid() {
		return ""
	}
	if n < 0 || n > int64(math.MaxInt32) {
		t.corrupt = true
		t.pos = len(t.buf) + 1
		return ""
	}
	pos := t.pos
	t.pos += int(n)
	if t.pos > len(t.buf) {
		return ""
	}
	return string(t.buf[pos:t.pos])
}

// SkipString skips a string.
func (t *Tap) SkipString() { t.SkipBytes() }

// WriteString encodes a length-prefixed UTF-8 string.
func (t *Tap) WriteString(s string) {
	t.WriteLong(int64(len(s)))
	pos := t.pos
	t.pos += len(s)
	if t.pos > len(t.buf) {
		return
	}
	copy(t.buf[pos:], s)
}

// Encode runs fn against a tap, growing the buffer and rerunning fn from
// scratch until the pass fits. It returns the written bytes.
func Encode(fn func(t *Tap), sizeHint int) []byte {
	if sizeHint <= 0 {
		sizeHint = 64
	}
	t := NewSize(sizeHint)
	for {
		fn(t)
		if t.pos <= len(t.buf) {
			return t.buf[:t.pos]
		}
		need := t.pos
		t.Grow(need)
		t.Reset(0)
	}
}
