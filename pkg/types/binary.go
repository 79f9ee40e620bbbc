package types

import (
	"fmt"
	"math"
	"strconv"

	"github.com/ssargent/avrokit/pkg/tap"
)

// maxPrealloc caps slice and map preallocation driven by untrusted counts.
const maxPrealloc = 1024

// Read decodes one value of type t from the tap. Running out of bytes or
// hitting malformed input invalidates the tap; callers check t.Valid()
// after the read and retry from the value's start once more bytes are in.
func (t *Type) Read(tp *tap.Tap) any {
	switch t.kind {
	case Null:
		return nil
	case Boolean:
		return tp.ReadBoolean()
	case Int:
		return t.fromBase(tp.ReadInt())
	case Long:
		return t.fromBase(tp.ReadLong())
	case Float:
		return tp.ReadFloat()
	case Double:
		return tp.ReadDouble()
	case Bytes:
		b := tp.ReadBytes()
		if !tp.Valid() {
			return nil
		}
		if b == nil {
			b = []byte{}
		}
		return t.fromBase(b)
	case String:
		return tp.ReadString()
	case Record:
		rec := make(map[string]any, len(t.fields))
		for _, f := range t.fields {
			rec[f.Name] = f.Type.Read(tp)
		}
		return rec
	case Enum:
		i := tp.ReadLong()
		if !tp.Valid() {
			return nil
		}
		if i < 0 || i >= int64(len(t.symbols)) {
			tp.MarkCorrupt()
			return nil
		}
		return t.symbols[i]
	case Array:
		items := make([]any, 0)
		readBlocks(tp, func() {
			items = append(items, t.items.Read(tp))
		}, func(n int64) {
			if n < maxPrealloc && cap(items)-len(items) < int(n) {
				grown := make([]any, len(items), len(items)+int(n))
				copy(grown, items)
				items = grown
			}
		})
		return items
	case Map:
		m := make(map[string]any)
		readBlocks(tp, func() {
			k := tp.ReadString()
			m[k] = t.items.Read(tp)
		}, nil)
		return m
	case Union:
		i := tp.ReadLong()
		if !tp.Valid() {
			return nil
		}
		if i < 0 || i >= int64(len(t.branches)) {
			tp.MarkCorrupt()
			return nil
		}
		return t.branches[i].Read(tp)
	case Fixed:
		b := tp.ReadFixed(t.size)
		if !tp.Valid() {
			return nil
		}
		return t.fromBase(b)
	}
	panic("types: unknown kind " + t.kind.String())
}

// readBlocks walks the block framing shared by arrays and maps, calling
// item once per element. grow, if set, is told each block's item count.
func readBlocks(tp *tap.Tap, item func(), grow func(n int64)) {
	guard := newEmptyGuard(tp)
	for {
		n := tp.ReadLong()
		if !tp.Valid() || n == 0 {
			return
		}
		if n < 0 {
			if n == math.MinInt64 {
				tp.MarkCorrupt()
				return
			}
			n = -n
			tp.SkipLong() // block byte size
		}
		if grow != nil {
			grow(n)
		}
		for i := int64(0); i < n; i++ {
			start := tp.Pos()
			item()
			if !tp.Valid() || !guard.step(tp, start) {
				return
			}
		}
	}
}

// maxEmptyItems is how many zero-byte elements (nulls, empty records) a
// collection may hold beyond the number of bytes left in the buffer.
// Nothing else bounds the work a block count of such elements demands.
const maxEmptyItems = 1 << 20

// emptyGuard counts the elements of one collection that consumed no input.
type emptyGuard struct {
	left int64
}

func newEmptyGuard(tp *tap.Tap) emptyGuard {
	return emptyGuard{left: int64(tp.Remaining()) + maxEmptyItems}
}

// step records an element that began at start. It marks the tap corrupt
// and returns false once too many elements have been free.
func (g *emptyGuard) step(tp *tap.Tap, start int) bool {
	if tp.Pos() != start {
		return true
	}
	g.left--
	if g.left < 0 {
		tp.MarkCorrupt()
		return false
	}
	return true
}

// Skip advances the tap past one value of type t without decoding it.
// Array and map blocks that carry a byte size are skipped wholesale.
func (t *Type) Skip(tp *tap.Tap) {
	switch t.kind {
	case Null:
	case Boolean:
		tp.SkipBoolean()
	case Int, Long, Enum:
		tp.SkipLong()
	case Float:
		tp.SkipFloat()
	case Double:
		tp.SkipDouble()
	case Bytes, String:
		tp.SkipBytes()
	case Record:
		for _, f := range t.fields {
			f.Type.Skip(tp)
			if !tp.Valid() {
				return
			}
		}
	case Array, Map:
		guard := newEmptyGuard(tp)
		for {
			n := tp.ReadLong()
			if !tp.Valid() || n == 0 {
				return
			}
			if n < 0 {
				size := tp.ReadLong()
				if !tp.Valid() {
					return
				}
				if size < 0 || size > math.MaxInt32 {
					tp.MarkCorrupt()
					return
				}
				tp.SkipFixed(int(size))
				continue
			}
			for i := int64(0); i < n; i++ {
				if t.kind == Map {
					tp.SkipString()
				}
				start := tp.Pos()
				t.items.Skip(tp)
				if !tp.Valid() || !guard.step(tp, start) {
					return
				}
			}
		}
	case Union:
		i := tp.ReadLong()
		if !tp.Valid() {
			return
		}
		if i < 0 || i >= int64(len(t.branches)) {
			tp.MarkCorrupt()
			return
		}
		t.branches[i].Skip(tp)
	case Fixed:
		tp.SkipFixed(t.size)
	default:
		panic("types: unknown kind " + t.kind.String())
	}
}

// Write encodes v onto the tap. It returns a *ValidationError when v does
// not conform to t; the tap may then hold a partial value and the caller
// must reset it to the value's start. A write that does not fit leaves the
// tap invalid, to be retried after growing the buffer.
func (t *Type) Write(tp *tap.Tap, v any) error {
	switch t.kind {
	case Null:
		if v != nil {
			return invalid(t, v, "")
		}
	case Boolean:
		b, ok := v.(bool)
		if !ok {
			return invalid(t, v, "")
		}
		tp.WriteBoolean(b)
	case Int:
		base, err := t.toBase(v)
		if err != nil {
			return err
		}
		n, ok := asInt32(base)
		if !ok {
			return invalid(t, v, "")
		}
		tp.WriteInt(n)
	case Long:
		base, err := t.toBase(v)
		if err != nil {
			return err
		}
		n, ok := asInt64(base)
		if !ok {
			return invalid(t, v, "")
		}
		tp.WriteLong(n)
	case Float:
		f, ok := v.(float32)
		if !ok {
			return invalid(t, v, "")
		}
		tp.WriteFloat(f)
	case Double:
		f, ok := v.(float64)
		if !ok {
			return invalid(t, v, "")
		}
		tp.WriteDouble(f)
	case Bytes:
		base, err := t.toBase(v)
		if err != nil {
			return err
		}
		b, ok := base.([]byte)
		if !ok {
			return invalid(t, v, "")
		}
		tp.WriteBytes(b)
	case String:
		if _, err := t.toBase(v); err != nil {
			return err
		}
		s, ok := v.(string)
		if !ok {
			return invalid(t, v, "")
		}
		tp.WriteString(s)
	case Record:
		rec, ok := v.(map[string]any)
		if !ok {
			return invalid(t, v, "")
		}
		for _, f := range t.fields {
			fv, present := rec[f.Name]
			if !present && f.hasDefault {
				fv = f.Default()
			}
			if err := f.Type.Write(tp, fv); err != nil {
				return within(err, f.Name)
			}
		}
	case Enum:
		s, ok := v.(string)
		if !ok {
			return invalid(t, v, "")
		}
		i, ok := t.symbolIndex[s]
		if !ok {
			return invalid(t, v, "unknown symbol "+strconv.Quote(s))
		}
		tp.WriteLong(int64(i))
	case Array:
		items, ok := v.([]any)
		if !ok {
			return invalid(t, v, "")
		}
		if len(items) > 0 {
			tp.WriteLong(int64(len(items)))
			for i, item := range items {
				if err := t.items.Write(tp, item); err != nil {
					return within(err, strconv.Itoa(i))
				}
			}
		}
		tp.WriteLong(0)
	case Map:
		m, ok := v.(map[string]any)
		if !ok {
			return invalid(t, v, "")
		}
		if len(m) > 0 {
			tp.WriteLong(int64(len(m)))
			for k, item := range m {
				tp.WriteString(k)
				if err := t.items.Write(tp, item); err != nil {
					return within(err, k)
				}
			}
		}
		tp.WriteLong(0)
	case Union:
		i, err := t.selectBranch(v)
		if err != nil {
			return err
		}
		tp.WriteLong(int64(i))
		return t.branches[i].Write(tp, v)
	case Fixed:
		base, err := t.toBase(v)
		if err != nil {
			return err
		}
		b, ok := base.([]byte)
		if !ok || len(b) != t.size {
			return invalid(t, v, fmt.Sprintf("want %d bytes", t.size))
		}
		tp.WriteFixed(b)
	default:
		panic("types: unknown kind " + t.kind.String())
	}
	return nil
}

// selectBranch picks the union branch for v: the first branch whose Go
// representation fits v, checking candidates deeply only when more than
// one shallow match exists.
func (t *Type) selectBranch(v any) (int, error) {
	first := -1
	ambiguous := false
	for i, b := range t.branches {
		if b.accepts(v) {
			if first >= 0 {
				ambiguous = true
				break
			}
			first = i
		}
	}
	if first < 0 {
		return -1, invalid(t, v, "no matching union branch")
	}
	if !ambiguous {
		return first, nil
	}
	for i, b := range t.branches {
		if b.accepts(v) && b.Validate(v) == nil {
			return i, nil
		}
	}
	return -1, invalid(t, v, "no matching union branch")
}

// accepts is a shallow check of v's Go type against t.
func (t *Type) accepts(v any) bool {
	if t.isLogicalValue(v) {
		return true
	}
	switch t.kind {
	case Null:
		return v == nil
	case Boolean:
		_, ok := v.(bool)
		return ok
	case Int:
		_, ok := asInt32(v)
		return ok
	case Long:
		_, ok := asInt64(v)
		return ok
	case Float:
		_, ok := v.(float32)
		return ok
	case Double:
		_, ok := v.(float64)
		return ok
	case Bytes:
		_, ok := v.([]byte)
		return ok
	case String:
		_, ok := v.(string)
		return ok
	case Record, Map:
		_, ok := v.(map[string]any)
		return ok
	case Enum:
		s, ok := v.(string)
		if !ok {
			return false
		}
		_, ok = t.symbolIndex[s]
		return ok
	case Array:
		_, ok := v.([]any)
		return ok
	case Fixed:
		b, ok := v.([]byte)
		return ok && len(b) == t.size
	}
	return false
}

// Validate checks v against t without encoding anything.
func (t *Type) Validate(v any) error {
	switch t.kind {
	case Record:
		rec, ok := v.(map[string]any)
		if !ok {
			return invalid(t, v, "")
		}
		for _, f := range t.fields {
			fv, present := rec[f.Name]
			if !present && f.hasDefault {
				continue
			}
			if err := f.Type.Validate(fv); err != nil {
				return within(err, f.Name)
			}
		}
		return nil
	case Array:
		items, ok := v.([]any)
		if !ok {
			return invalid(t, v, "")
		}
		for i, item := range items {
			if err := t.items.Validate(item); err != nil {
				return within(err, strconv.Itoa(i))
			}
		}
		return nil
	case Map:
		m, ok := v.(map[string]any)
		if !ok {
			return invalid(t, v, "")
		}
		for k, item := range m {
			if err := t.items.Validate(item); err != nil {
				return within(err, k)
			}
		}
		return nil
	case Union:
		i, err := t.selectBranch(v)
		if err != nil {
			return err
		}
		return t.branches[i].Validate(v)
	}
	// Leaf kinds: run the real writer against a sink that keeps nothing.
	return t.Write(tap.NewSize(0), v)
}

// IsValid reports whether v conforms to t.
func (t *Type) IsValid(v any) bool {
	return t.Validate(v) == nil
}

// Encode returns the binary encoding of v.
func (t *Type) Encode(v any) ([]byte, error) {
	var err error
	b := tap.Encode(func(tp *tap.Tap) {
		err = t.Write(tp, v)
	}, 64)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Decode decodes exactly one value from b.
func (t *Type) Decode(b []byte) (any, error) {
	tp := tap.New(b)
	v := t.Read(tp)
	return v, finishDecode(tp)
}

func finishDecode(tp *tap.Tap) error {
	switch {
	case tp.Corrupt():
		return ErrCorruptData
	case !tp.Valid():
		return fmt.Errorf("%w: need %d more bytes", ErrTruncated, tp.Need())
	case tp.Remaining() > 0:
		return fmt.Errorf("%w: %d bytes", ErrTrailingData, tp.Remaining())
	}
	return nil
}

func asInt32(v any) (int32, bool) {
	switch n := v.(type) {
	case int32:
		return n, true
	case int:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return 0, false
		}
		return int32(n), true
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}
