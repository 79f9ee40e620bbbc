//go:build fuzz
// +build fuzz

package codec

import (
	"bytes"
	"testing"
)

// FuzzCodecs_RoundTrip checks every built-in codec against random payloads
func FuzzCodecs_RoundTrip(f *testing.F) {
	f.Add([]byte(""))
	f.Add([]byte("Obj\x01"))
	f.Add(bytes.Repeat([]byte{0x00, 0xff}, 100))

	reg := NewRegistry()
	f.Fuzz(func(t *testing.T, data []byte) {
		for _, name := range reg.Names() {
			c, _ := reg.Get(name)
			compressed, err := c.Compress(data)
			if err != nil {
				t.Fatalf("%s: Compress failed: %v", name, err)
			}
			out, err := c.Decompress(compressed)
			if err != nil {
				t.Fatalf("%s: Decompress failed: %v", name, err)
			}
			if !bytes.Equal(data, out) {
				t.Fatalf("%s: round trip mismatch", name)
			}
		}
	})
}

// FuzzCodecs_Decompress feeds arbitrary input to every decompressor
func FuzzCodecs_Decompress(f *testing.F) {
	f.Add([]byte{0x01, 0x02, 0x03, 0x04, 0x05})
	f.Add([]byte{0x28, 0xb5, 0x2f, 0xfd})

	reg := NewRegistry()
	f.Fuzz(func(t *testing.T, data []byte) {
		for _, name := range reg.Names() {
			c, _ := reg.Get(name)
			// Errors are fine; panics are not.
			_, _ = c.Decompress(data)
		}
	})
}
