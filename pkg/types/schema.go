package types

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"strconv"
)

// String returns the schema of t as JSON.
func (t *Type) String() string {
	var buf bytes.Buffer
	t.writeSchema(&buf, "", make(map[string]bool))
	return buf.String()
}

// MarshalJSON returns the schema of t as JSON, including docs, aliases,
// defaults and logical annotations.
func (t *Type) MarshalJSON() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) writeSchema(buf *bytes.Buffer, ns string, seen map[string]bool) {
	if t.kind.IsNamed() {
		if seen[t.name] {
			writeString(buf, relativeName(t.name, ns))
			return
		}
		seen[t.name] = true
	}

	switch t.kind {
	case Null, Boolean, Int, Long, Float, Double, Bytes, String:
		if t.logical == NoLogical {
			writeString(buf, t.kind.String())
			return
		}
		buf.WriteString(`{"type":`)
		writeString(buf, t.kind.String())
		t.writeLogical(buf)
		buf.WriteByte('}')
	case Record:
		buf.WriteString(`{"type":"record"`)
		space := t.writeName(buf, ns)
		buf.WriteString(`,"fields":[`)
		for i, f := range t.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(`{"name":`)
			writeString(buf, f.Name)
			buf.WriteString(`,"type":`)
			f.Type.writeSchema(buf, space, seen)
			if f.hasDefault {
				buf.WriteString(`,"default":`)
				writeValue(buf, f.def)
			}
			if f.Order != "" && f.Order != "ascending" {
				buf.WriteString(`,"order":`)
				writeString(buf, f.Order)
			}
			if len(f.Aliases) > 0 {
				buf.WriteString(`,"aliases":`)
				writeValue(buf, f.Aliases)
			}
			if f.Doc != "" {
				buf.WriteString(`,"doc":`)
				writeString(buf, f.Doc)
			}
			buf.WriteByte('}')
		}
		buf.WriteString("]}")
	case Enum:
		buf.WriteString(`{"type":"enum"`)
		t.writeName(buf, ns)
		buf.WriteString(`,"symbols":`)
		writeValue(buf, t.symbols)
		if t.hasEnumDef {
			buf.WriteString(`,"default":`)
			writeString(buf, t.enumDefault)
		}
		buf.WriteByte('}')
	case Fixed:
		buf.WriteString(`{"type":"fixed"`)
		t.writeName(buf, ns)
		buf.WriteString(`,"size":`)
		buf.WriteString(strconv.Itoa(t.size))
		t.writeLogical(buf)
		buf.WriteByte('}')
	case Array:
		buf.WriteString(`{"type":"array","items":`)
		t.items.writeSchema(buf, ns, seen)
		buf.WriteByte('}')
	case Map:
		buf.WriteString(`{"type":"map","values":`)
		t.items.writeSchema(buf, ns, seen)
		buf.WriteByte('}')
	case Union:
		buf.WriteByte('[')
		for i, b := range t.branches {
			if i > 0 {
				buf.WriteByte(',')
			}
			b.writeSchema(buf, ns, seen)
		}
		buf.WriteByte(']')
	default:
		panic("types: unknown kind " + t.kind.String())
	}
}

// writeName writes name, namespace, aliases and doc and returns the
// namespace in effect for nested definitions.
func (t *Type) writeName(buf *bytes.Buffer, ns string) string {
	space := t.Namespace()
	buf.WriteString(`,"name":`)
	writeString(buf, unqualified(t.name))
	if space != ns {
		buf.WriteString(`,"namespace":`)
		writeString(buf, space)
	}
	if len(t.aliases) > 0 {
		buf.WriteString(`,"aliases":`)
		writeValue(buf, t.aliases)
	}
	if t.doc != "" {
		buf.WriteString(`,"doc":`)
		writeString(buf, t.doc)
	}
	return space
}

func (t *Type) writeLogical(buf *bytes.Buffer) {
	if t.logical == NoLogical {
		return
	}
	buf.WriteString(`,"logicalType":`)
	writeString(buf, t.logical.String())
	if t.logical == Decimal {
		buf.WriteString(`,"precision":`)
		buf.WriteString(strconv.Itoa(t.precision))
		buf.WriteString(`,"scale":`)
		buf.WriteString(strconv.Itoa(t.scale))
	}
}

func relativeName(full, ns string) string {
	if ns != "" && len(full) > len(ns)+1 && full[:len(ns)] == ns && full[len(ns)] == '.' {
		rest := full[len(ns)+1:]
		if _, primitive := primitiveKinds[rest]; !primitive {
			return rest
		}
	}
	return full
}

func writeString(buf *bytes.Buffer, s string) {
	writeValue(buf, s)
}

// writeValue writes v as compact JSON without HTML escaping.
func writeValue(buf *bytes.Buffer, v any) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		buf.WriteString("null")
		return
	}
	// Encode terminates each value with a newline.
	buf.Truncate(buf.Len() - 1)
}

// CanonicalForm returns the Parsing Canonical Form of t: the schema with
// full names, no namespaces, docs, aliases, defaults or annotations, and
// attributes in a fixed order. Two schemas with the same canonical form
// encode data identically.
func (t *Type) CanonicalForm() string {
	var buf bytes.Buffer
	t.writeCanonical(&buf, make(map[string]bool))
	return buf.String()
}

func (t *Type) writeCanonical(buf *bytes.Buffer, seen map[string]bool) {
	if t.kind.IsNamed() {
		if seen[t.name] {
			writeString(buf, t.name)
			return
		}
		seen[t.name] = true
	}
	switch t.kind {
	case Null, Boolean, Int, Long, Float, Double, Bytes, String:
		writeString(buf, t.kind.String())
	case Record:
		buf.WriteString(`{"name":`)
		writeString(buf, t.name)
		buf.WriteString(`,"type":"record","fields":[`)
		for i, f := range t.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(`{"name":`)
			writeString(buf, f.Name)
			buf.WriteString(`,"type":`)
			f.Type.writeCanonical(buf, seen)
			buf.WriteByte('}')
		}
		buf.WriteString("]}")
	case Enum:
		buf.WriteString(`{"name":`)
		writeString(buf, t.name)
		buf.WriteString(`,"type":"enum","symbols":`)
		writeValue(buf, t.symbols)
		buf.WriteByte('}')
	case Fixed:
		buf.WriteString(`{"name":`)
		writeString(buf, t.name)
		buf.WriteString(`,"type":"fixed","size":`)
		buf.WriteString(strconv.Itoa(t.size))
		buf.WriteByte('}')
	case Array:
		buf.WriteString(`{"type":"array","items":`)
		t.items.writeCanonical(buf, seen)
		buf.WriteByte('}')
	case Map:
		buf.WriteString(`{"type":"map","values":`)
		t.items.writeCanonical(buf, seen)
		buf.WriteByte('}')
	case Union:
		buf.WriteByte('[')
		for i, b := range t.branches {
			if i > 0 {
				buf.WriteByte(',')
			}
			b.writeCanonical(buf, seen)
		}
		buf.WriteByte(']')
	default:
		panic("types: unknown kind " + t.kind.String())
	}
}

// fingerprintEmpty is the CRC-64-AVRO seed, the fingerprint of no bytes.
const fingerprintEmpty uint64 = 0xc15d213aa4d7a795

var fingerprintTable = func() [256]uint64 {
	var table [256]uint64
	for i := range table {
		fp := uint64(i)
		for j := 0; j < 8; j++ {
			fp = (fp >> 1) ^ (fingerprintEmpty & -(fp & 1))
		}
		table[i] = fp
	}
	return table
}()

// Fingerprint64 computes the CRC-64-AVRO (Rabin) fingerprint of data.
func Fingerprint64(data []byte) uint64 {
	fp := fingerprintEmpty
	for _, b := range data {
		fp = (fp >> 8) ^ fingerprintTable[byte(fp)^b]
	}
	return fp
}

// Fingerprint returns the CRC-64-AVRO fingerprint of t's canonical form.
func (t *Type) Fingerprint() uint64 {
	return Fingerprint64([]byte(t.CanonicalForm()))
}

// FingerprintBytes returns the fingerprint in the little-endian byte order
// used by single-object encoding.
func (t *Type) FingerprintBytes() [8]byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], t.Fingerprint())
	return b
}
