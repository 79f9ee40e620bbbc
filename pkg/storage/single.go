package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ssargent/avrokit/pkg/types"
)

// SingleObjectMagic prefixes every single-object encoded datum.
var SingleObjectMagic = []byte{0xC3, 0x01}

const singleObjectHeaderSize = 10

// EncodeSingleObject encodes v with t and prefixes it with the magic and
// the little-endian CRC-64-AVRO fingerprint of t.
func EncodeSingleObject(t *types.Type, v any) ([]byte, error) {
	datum, err := t.Encode(v)
	if err != nil {
		return nil, err
	}
	return AppendSingleObject(nil, t.FingerprintBytes(), datum), nil
}

// AppendSingleObject appends the single-object form of an encoded datum to
// dst. fp is the little-endian fingerprint of the datum's writer schema.
func AppendSingleObject(dst []byte, fp [8]byte, datum []byte) []byte {
	if dst == nil {
		dst = make([]byte, 0, singleObjectHeaderSize+len(datum))
	}
	dst = append(dst, SingleObjectMagic...)
	dst = append(dst, fp[:]...)
	return append(dst, datum...)
}

// DecodeSingleObject splits b into the writer fingerprint and the datum.
// The datum aliases b.
func DecodeSingleObject(b []byte) (uint64, []byte, error) {
	if len(b) < singleObjectHeaderSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrBadSingleObject, len(b))
	}
	if !bytes.Equal(b[:2], SingleObjectMagic) {
		return 0, nil, fmt.Errorf("%w: marker %x", ErrBadSingleObject, b[:2])
	}
	return binary.LittleEndian.Uint64(b[2:singleObjectHeaderSize]), b[singleObjectHeaderSize:], nil
}
