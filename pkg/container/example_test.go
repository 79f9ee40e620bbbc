package container_test

import (
	"bytes"
	"fmt"
	"log"

	"github.com/ssargent/avrokit/pkg/container"
	"github.com/ssargent/avrokit/pkg/types"
)

// ExampleWriter writes a deflate compressed container and reads it back
func ExampleWriter() {
	typ := types.MustParse(`{"type": "record", "name": "Reading", "fields": [
		{"name": "sensor", "type": "string"},
		{"name": "value", "type": "double"}]}`)

	var buf bytes.Buffer
	w, err := container.NewWriter(&buf, typ, container.WriterConfig{
		EncoderConfig: container.EncoderConfig{Codec: "deflate"},
	})
	if err != nil {
		log.Fatal(err)
	}
	for i, sensor := range []string{"north", "south"} {
		if err := w.Append(map[string]any{"sensor": sensor, "value": float64(i) + 0.5}); err != nil {
			log.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		log.Fatal(err)
	}

	r := container.NewReader(&buf, container.ReaderConfig{})
	for r.Next() {
		rec := r.Record().(map[string]any)
		fmt.Println(rec["sensor"], rec["value"])
	}
	if err := r.Err(); err != nil {
		log.Fatal(err)
	}
	// Output:
	// north 0.5
	// south 1.5
}
