package types

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"time"
)

// Logical is a logical type annotation layered on a base kind.
type Logical int

// Supported logical types.
const (
	NoLogical Logical = iota
	Decimal
	UUID
	Date
	TimeMillis
	TimeMicros
	TimestampMillis
	TimestampMicros
	LocalTimestampMillis
	LocalTimestampMicros
	DurationLogical
)

var logicalNames = map[string]Logical{
	"decimal":                Decimal,
	"uuid":                   UUID,
	"date":                   Date,
	"time-millis":            TimeMillis,
	"time-micros":            TimeMicros,
	"timestamp-millis":       TimestampMillis,
	"timestamp-micros":       TimestampMicros,
	"local-timestamp-millis": LocalTimestampMillis,
	"local-timestamp-micros": LocalTimestampMicros,
	"duration":               DurationLogical,
}

func (l Logical) String() string {
	for name, v := range logicalNames {
		if v == l {
			return name
		}
	}
	return ""
}

// Duration is the value of the duration logical type.
type Duration struct {
	Months       uint32
	Days         uint32
	Milliseconds uint32
}

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// annotate applies a logicalType attribute to t. Annotations that do not
// fit the base type are dropped and t keeps its base semantics.
func annotate(t *Type, name string, attrs map[string]any) {
	l, ok := logicalNames[name]
	if !ok {
		return
	}
	switch l {
	case Decimal:
		if t.kind != Bytes && t.kind != Fixed {
			return
		}
		precision, ok := intAttr(attrs, "precision")
		if !ok || precision <= 0 {
			return
		}
		scale, ok := intAttr(attrs, "scale")
		if !ok {
			if _, present := attrs["scale"]; present {
				return
			}
			scale = 0
		}
		if scale < 0 || scale > precision {
			return
		}
		if t.kind == Fixed && precision > maxDecimalDigits(t.size) {
			return
		}
		t.precision, t.scale = precision, scale
	case UUID:
		if t.kind != String {
			return
		}
	case Date, TimeMillis:
		if t.kind != Int {
			return
		}
	case TimeMicros, TimestampMillis, TimestampMicros, LocalTimestampMillis, LocalTimestampMicros:
		if t.kind != Long {
			return
		}
	case DurationLogical:
		if t.kind != Fixed || t.size != 12 {
			return
		}
	}
	t.logical = l
}

func intAttr(attrs map[string]any, key string) (int, bool) {
	n, ok := jsonInt(attrs[key])
	if !ok || n < math.MinInt32 || n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}

// maxDecimalDigits is the number of base-10 digits a two's complement
// integer of size bytes can always hold.
func maxDecimalDigits(size int) int {
	if size <= 0 {
		return 0
	}
	return int(math.Floor(math.Log10(2) * float64(8*size-1)))
}

var epoch = time.Unix(0, 0).UTC()

// fromBase converts a decoded base value into its logical form.
func (t *Type) fromBase(v any) any {
	switch t.logical {
	case NoLogical, UUID:
		return v
	case Date:
		return epoch.AddDate(0, 0, int(v.(int32)))
	case TimeMillis:
		return time.Duration(v.(int32)) * time.Millisecond
	case TimeMicros:
		return time.Duration(v.(int64)) * time.Microsecond
	case TimestampMillis, LocalTimestampMillis:
		return time.UnixMilli(v.(int64)).UTC()
	case TimestampMicros, LocalTimestampMicros:
		return time.UnixMicro(v.(int64)).UTC()
	case Decimal:
		unscaled := fromTwosComplement(v.([]byte))
		denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(t.scale)), nil)
		return new(big.Rat).SetFrac(unscaled, denom)
	case DurationLogical:
		b := v.([]byte)
		return Duration{
			Months:       binary.LittleEndian.Uint32(b[0:4]),
			Days:         binary.LittleEndian.Uint32(b[4:8]),
			Milliseconds: binary.LittleEndian.Uint32(b[8:12]),
		}
	}
	return v
}

// toBase converts a logical value to the base representation. Values that
// are already in base form pass through untouched and are checked by the
// base kind.
func (t *Type) toBase(v any) (any, error) {
	switch t.logical {
	case NoLogical:
		return v, nil
	case UUID:
		if s, ok := v.(string); ok && !uuidPattern.MatchString(s) {
			return nil, invalid(t, v, "malformed uuid")
		}
		return v, nil
	case Date:
		if tm, ok := v.(time.Time); ok {
			days := floorDiv(tm.Unix(), 86400)
			if days < math.MinInt32 || days > math.MaxInt32 {
				return nil, invalid(t, v, "date out of range")
			}
			return int32(days), nil
		}
	case TimeMillis:
		if d, ok := v.(time.Duration); ok {
			ms := d.Milliseconds()
			if ms < math.MinInt32 || ms > math.MaxInt32 {
				return nil, invalid(t, v, "time out of range")
			}
			return int32(ms), nil
		}
	case TimeMicros:
		if d, ok := v.(time.Duration); ok {
			return d.Microseconds(), nil
		}
	case TimestampMillis:
		if tm, ok := v.(time.Time); ok {
			return tm.UnixMilli(), nil
		}
	case TimestampMicros:
		if tm, ok := v.(time.Time); ok {
			return tm.UnixMicro(), nil
		}
	case LocalTimestampMillis:
		if tm, ok := v.(time.Time); ok {
			return wallClock(tm).UnixMilli(), nil
		}
	case LocalTimestampMicros:
		if tm, ok := v.(time.Time); ok {
			return wallClock(tm).UnixMicro(), nil
		}
	case Decimal:
		if r, ok := v.(*big.Rat); ok {
			b, err := t.encodeDecimal(r)
			if err != nil {
				return nil, invalid(t, v, err.Error())
			}
			return b, nil
		}
	case DurationLogical:
		if d, ok := v.(Duration); ok {
			b := make([]byte, 12)
			binary.LittleEndian.PutUint32(b[0:4], d.Months)
			binary.LittleEndian.PutUint32(b[4:8], d.Days)
			binary.LittleEndian.PutUint32(b[8:12], d.Milliseconds)
			return b, nil
		}
	}
	return v, nil
}

// isLogicalValue reports whether v is a Go value of t's logical form.
func (t *Type) isLogicalValue(v any) bool {
	switch t.logical {
	case Date, TimestampMillis, TimestampMicros, LocalTimestampMillis, LocalTimestampMicros:
		_, ok := v.(time.Time)
		return ok
	case TimeMillis, TimeMicros:
		_, ok := v.(time.Duration)
		return ok
	case Decimal:
		_, ok := v.(*big.Rat)
		return ok
	case DurationLogical:
		_, ok := v.(Duration)
		return ok
	}
	return false
}

func wallClock(tm time.Time) time.Time {
	y, mo, d := tm.Date()
	h, mi, s := tm.Clock()
	return time.Date(y, mo, d, h, mi, s, tm.Nanosecond(), time.UTC)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func (t *Type) encodeDecimal(r *big.Rat) ([]byte, error) {
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(
		new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(t.scale)), nil)))
	if !scaled.IsInt() {
		return nil, fmt.Errorf("value has more than %d decimal places", t.scale)
	}
	unscaled := scaled.Num()
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(t.precision)), nil)
	if new(big.Int).Abs(unscaled).Cmp(limit) >= 0 {
		return nil, fmt.Errorf("value exceeds precision %d", t.precision)
	}
	b := toTwosComplement(unscaled)
	if t.kind != Fixed {
		return b, nil
	}
	if len(b) > t.size {
		return nil, fmt.Errorf("value does not fit in %d bytes", t.size)
	}
	out := make([]byte, t.size)
	if unscaled.Sign() < 0 {
		for i := range out {
			out[i] = 0xff
		}
	}
	copy(out[t.size-len(b):], b)
	return out, nil
}

// toTwosComplement returns the shortest big-endian two's complement form.
func toTwosComplement(n *big.Int) []byte {
	switch n.Sign() {
	case 0:
		return []byte{0}
	case 1:
		b := n.Bytes()
		if b[0]&0x80 != 0 {
			b = append([]byte{0}, b...)
		}
		return b
	}
	// -n = ^(n-1) for the magnitude; compute 2^(8k) + n.
	size := len(n.Bytes()) + 1
	mod := new(big.Int).Lsh(big.NewInt(1), uint(8*size))
	b := new(big.Int).Add(mod, n).Bytes()
	for len(b) < size {
		b = append([]byte{0xff}, b...)
	}
	for len(b) > 1 && b[0] == 0xff && b[1]&0x80 != 0 {
		b = b[1:]
	}
	return b
}

func fromTwosComplement(b []byte) *big.Int {
	n := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(8*len(b))))
	}
	return n
}
