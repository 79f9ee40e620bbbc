// Package types implements Avro schemas: parsing, binary encoding and
// decoding of values, validation, and schema resolution.
//
// # Values
//
// Values are plain Go data. Each type maps to one Go representation:
//
//	null              nil
//	boolean           bool
//	int               int32 (int accepted on write)
//	long              int64 (int accepted on write)
//	float             float32
//	double            float64
//	bytes, fixed      []byte
//	string, enum      string
//	array             []any
//	map, record       map[string]any
//	union             the value of the selected branch
//
// Logical types decode to richer values: time.Time for dates and
// timestamps, time.Duration for times of day, *big.Rat for decimals and
// Duration for durations. Writers accept either form.
//
// # Usage
//
//	typ, err := types.Parse(`{"type": "record", "name": "Point", "fields": [
//	    {"name": "x", "type": "int"}, {"name": "y", "type": "int"}]}`, nil)
//	if err != nil {
//	    return err
//	}
//	b, err := typ.Encode(map[string]any{"x": int32(1), "y": int32(2)})
//
// # Resolution
//
// Data written with one schema is read with another through a Resolver:
//
//	res, err := readerType.CreateResolver(writerType)
//	if err != nil {
//	    return err // the schemas are incompatible
//	}
//	v, err := res.Decode(b)
//
// # Incremental decoding
//
// Type.Read and Resolver.Read work on a tap.Tap. When the tap runs out of
// bytes the read leaves it invalid; the caller appends more input, resets
// the tap to where the value started and reads again.
//
// # Thread Safety
//
// Types and resolvers are immutable once built and safe for concurrent use.
// A Registry must not be shared by concurrent Parse calls.
package types
