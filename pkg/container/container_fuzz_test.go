//go:build fuzz
// +build fuzz

package container

import (
	"bytes"
	"testing"

	"github.com/ssargent/avrokit/pkg/types"
)

// FuzzBlockDecoder feeds arbitrary input to a decoder, split at every
// position the fuzzer picks
func FuzzBlockDecoder(f *testing.F) {
	var seed []byte
	{
		var buf bytes.Buffer
		enc, _ := NewBlockEncoder(&buf, types.MustParse(`{"type": "array", "items": "string"}`), EncoderConfig{BlockCount: 2})
		_ = enc.Encode([]any{"a", "b"})
		_ = enc.Encode([]any{})
		_ = enc.Encode([]any{"c"})
		_ = enc.Close()
		seed = buf.Bytes()
	}
	f.Add(seed, uint16(7))
	f.Add([]byte("Obj\x01"), uint16(1))

	f.Fuzz(func(t *testing.T, data []byte, split uint16) {
		at := int(split)
		if at > len(data) {
			at = len(data)
		}
		dec := NewBlockDecoder(DecoderConfig{})
		if _, err := dec.Write(data[:at]); err == nil {
			_, _ = dec.Write(data[at:])
		}
		_ = dec.Close()
		for {
			if _, ok := dec.Next(); !ok {
				break
			}
		}
	})
}
