//go:build bench
// +build bench

package codec

import (
	"bytes"
	"testing"
)

func BenchmarkCodecs(b *testing.B) {
	payload := bytes.Repeat([]byte(`{"id": 12345, "name": "avro"}`), 2048)
	reg := NewRegistry()

	for _, name := range reg.Names() {
		c, err := reg.Get(name)
		if err != nil {
			b.Fatal(err)
		}
		compressed, err := c.Compress(payload)
		if err != nil {
			b.Fatal(err)
		}

		b.Run(name+"/compress", func(b *testing.B) {
			b.SetBytes(int64(len(payload)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := c.Compress(payload); err != nil {
					b.Fatalf("Compress failed: %v", err)
				}
			}
		})

		b.Run(name+"/decompress", func(b *testing.B) {
			b.SetBytes(int64(len(payload)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := c.Decompress(compressed); err != nil {
					b.Fatalf("Decompress failed: %v", err)
				}
			}
		})
	}
}
