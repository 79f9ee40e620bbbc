package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FromJSON converts a value decoded from Avro's JSON encoding into the Go
// representation used by Write. Numbers may be float64 or json.Number.
// Union values are either null or a single-entry object keyed by the
// branch name, and bytes and fixed values are strings whose code points
// are the byte values.
func (t *Type) FromJSON(v any) (any, error) {
	return t.fromJSON(v, false)
}

// fromJSON does the conversion. With asDefault set, unions take the value
// of their first branch unwrapped, as field defaults do.
func (t *Type) fromJSON(v any, asDefault bool) (any, error) {
	base, err := t.baseFromJSON(v, asDefault)
	if err != nil {
		return nil, err
	}
	switch t.kind {
	case Record, Enum, Array, Map, Union:
		return base, nil
	}
	return t.fromBase(base), nil
}

func (t *Type) baseFromJSON(v any, asDefault bool) (any, error) {
	switch t.kind {
	case Null:
		if v != nil {
			return nil, invalid(t, v, "")
		}
		return nil, nil
	case Boolean:
		b, ok := v.(bool)
		if !ok {
			return nil, invalid(t, v, "")
		}
		return b, nil
	case Int:
		n, ok := jsonInt(v)
		if !ok || n < math.MinInt32 || n > math.MaxInt32 {
			return nil, invalid(t, v, "")
		}
		return int32(n), nil
	case Long:
		n, ok := jsonInt(v)
		if !ok {
			return nil, invalid(t, v, "")
		}
		return n, nil
	case Float:
		f, ok := jsonFloat(v)
		if !ok {
			return nil, invalid(t, v, "")
		}
		return float32(f), nil
	case Double:
		f, ok := jsonFloat(v)
		if !ok {
			return nil, invalid(t, v, "")
		}
		return f, nil
	case Bytes:
		s, ok := v.(string)
		if !ok {
			return nil, invalid(t, v, "")
		}
		b, err := latin1Bytes(s)
		if err != nil {
			return nil, invalid(t, v, err.Error())
		}
		return b, nil
	case String:
		s, ok := v.(string)
		if !ok {
			return nil, invalid(t, v, "")
		}
		return s, nil
	case Fixed:
		s, ok := v.(string)
		if !ok {
			return nil, invalid(t, v, "")
		}
		b, err := latin1Bytes(s)
		if err != nil || len(b) != t.size {
			return nil, invalid(t, v, fmt.Sprintf("want %d bytes", t.size))
		}
		return b, nil
	case Enum:
		s, ok := v.(string)
		if !ok {
			return nil, invalid(t, v, "")
		}
		if _, ok := t.symbolIndex[s]; !ok {
			return nil, invalid(t, v, "unknown symbol "+strconv.Quote(s))
		}
		return s, nil
	case Record:
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, invalid(t, v, "")
		}
		rec := make(map[string]any, len(t.fields))
		for _, f := range t.fields {
			fv, present := obj[f.Name]
			if !present {
				if !f.hasDefault {
					return nil, within(invalid(f.Type, nil, "missing field"), f.Name)
				}
				rec[f.Name] = f.Default()
				continue
			}
			conv, err := f.Type.fromJSON(fv, asDefault)
			if err != nil {
				return nil, within(err, f.Name)
			}
			rec[f.Name] = conv
		}
		return rec, nil
	case Array:
		list, ok := v.([]any)
		if !ok {
			return nil, invalid(t, v, "")
		}
		items := make([]any, len(list))
		for i, item := range list {
			conv, err := t.items.fromJSON(item, asDefault)
			if err != nil {
				return nil, within(err, strconv.Itoa(i))
			}
			items[i] = conv
		}
		return items, nil
	case Map:
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, invalid(t, v, "")
		}
		m := make(map[string]any, len(obj))
		for k, item := range obj {
			conv, err := t.items.fromJSON(item, asDefault)
			if err != nil {
				return nil, within(err, k)
			}
			m[k] = conv
		}
		return m, nil
	case Union:
		if asDefault {
			return t.branches[0].fromJSON(v, true)
		}
		if v == nil {
			if i, ok := t.BranchIndex("null"); ok {
				return t.branches[i].fromJSON(nil, false)
			}
			return nil, invalid(t, v, "union has no null branch")
		}
		obj, ok := v.(map[string]any)
		if !ok || len(obj) != 1 {
			return nil, invalid(t, v, "union values are single-entry objects")
		}
		for name, inner := range obj {
			i, ok := t.BranchIndex(name)
			if !ok {
				i, ok = t.unqualifiedBranch(name)
			}
			if !ok {
				return nil, invalid(t, v, "unknown branch "+strconv.Quote(name))
			}
			conv, err := t.branches[i].fromJSON(inner, false)
			if err != nil {
				return nil, within(err, name)
			}
			return conv, nil
		}
	}
	panic("types: unknown kind " + t.kind.String())
}

func (t *Type) unqualifiedBranch(name string) (int, bool) {
	if strings.Contains(name, ".") {
		return -1, false
	}
	for i, b := range t.branches {
		if b.kind.IsNamed() && unqualified(b.name) == name {
			return i, true
		}
	}
	return -1, false
}

// ToJSON converts a Go value of type t into a value that encoding/json
// renders as Avro's JSON encoding.
func (t *Type) ToJSON(v any) (any, error) {
	switch t.kind {
	case Record:
		rec, ok := v.(map[string]any)
		if !ok {
			return nil, invalid(t, v, "")
		}
		out := make(map[string]any, len(t.fields))
		for _, f := range t.fields {
			fv, present := rec[f.Name]
			if !present && f.hasDefault {
				fv = f.Default()
			}
			conv, err := f.Type.ToJSON(fv)
			if err != nil {
				return nil, within(err, f.Name)
			}
			out[f.Name] = conv
		}
		return out, nil
	case Array:
		items, ok := v.([]any)
		if !ok {
			return nil, invalid(t, v, "")
		}
		out := make([]any, len(items))
		for i, item := range items {
			conv, err := t.items.ToJSON(item)
			if err != nil {
				return nil, within(err, strconv.Itoa(i))
			}
			out[i] = conv
		}
		return out, nil
	case Map:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, invalid(t, v, "")
		}
		out := make(map[string]any, len(m))
		for k, item := range m {
			conv, err := t.items.ToJSON(item)
			if err != nil {
				return nil, within(err, k)
			}
			out[k] = conv
		}
		return out, nil
	case Union:
		i, err := t.selectBranch(v)
		if err != nil {
			return nil, err
		}
		b := t.branches[i]
		if b.kind == Null {
			return nil, nil
		}
		conv, err := b.ToJSON(v)
		if err != nil {
			return nil, err
		}
		return map[string]any{b.branchName(): conv}, nil
	}

	if err := t.Validate(v); err != nil {
		return nil, err
	}
	base, err := t.toBase(v)
	if err != nil {
		return nil, err
	}
	switch t.kind {
	case Bytes, Fixed:
		return latin1String(base.([]byte)), nil
	case Int:
		n, _ := asInt32(base)
		return n, nil
	case Long:
		n, _ := asInt64(base)
		return n, nil
	case Float:
		f := base.(float32)
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil, invalid(t, v, "not representable in JSON")
		}
	case Double:
		f := base.(float64)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, invalid(t, v, "not representable in JSON")
		}
	}
	return base, nil
}

func jsonFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

func latin1Bytes(s string) ([]byte, error) {
	b := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xff {
			return nil, fmt.Errorf("code point %U is not a byte", r)
		}
		b = append(b, byte(r))
	}
	return b, nil
}

func latin1String(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String()
}
