package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/avrokit/pkg/container"
	"github.com/ssargent/avrokit/pkg/types"
)

// maxLineSize bounds a single JSON record read from stdin
const maxLineSize = 64 << 20

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <out>",
	Short: "Write JSON lines from stdin to a container",
	Long: `Read one Avro JSON record per line from stdin and write them to an
object container file. With --append the records are added to an existing
file, reusing its schema, codec and sync marker.

Examples:
  avrokit write events.avro --schema event.avsc --codec deflate < events.jsonl
  avrokit write events.avro --append < more.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaPath, _ := cmd.Flags().GetString("schema")
		appendMode, _ := cmd.Flags().GetBool("append")

		cfg := app.cfg.EncoderConfig()
		if cmd.Flags().Changed("codec") {
			cfg.Codec, _ = cmd.Flags().GetString("codec")
		}
		if cmd.Flags().Changed("block-size") {
			cfg.BlockSize, _ = cmd.Flags().GetInt("block-size")
		}
		if cmd.Flags().Changed("block-count") {
			cfg.BlockCount, _ = cmd.Flags().GetInt("block-count")
		}
		cfg.Observer = app.metrics

		var typ *types.Type
		if schemaPath != "" {
			var err error
			if typ, err = readSchemaFile(schemaPath); err != nil {
				return err
			}
		} else if !appendMode {
			return fmt.Errorf("--schema is required unless appending")
		}

		var (
			out io.WriteCloser
			err error
		)
		if appendMode {
			requested := cfg.Codec
			out, typ, err = openForAppend(args[0], typ, &cfg)
			if err == nil && cmd.Flags().Changed("codec") && requested != cfg.Codec {
				warnf("%s: appending with the file's codec %s instead of %s", args[0], cfg.Codec, requested)
			}
		} else {
			out, err = os.Create(args[0])
		}
		if err != nil {
			return err
		}

		n, err := writeRecords(out, cmd.InOrStdin(), typ, cfg)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		infof("%s: wrote %d records", args[0], n)
		return nil
	},
}

// openForAppend opens an existing container for appending and points cfg
// at its codec and sync marker. A given schema must match the file's.
func openForAppend(path string, typ *types.Type, cfg *container.EncoderConfig) (io.WriteCloser, *types.Type, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	h, err := container.ExtractHeader(f, 0)
	f.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	writer, err := h.Schema(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if typ != nil && typ.Fingerprint() != writer.Fingerprint() {
		return nil, nil, fmt.Errorf("%s: schema does not match the file's writer schema", path)
	}
	sync := h.Sync
	cfg.Codec = h.CodecName()
	cfg.SyncMarker = &sync
	cfg.OmitHeader = true

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return nil, nil, err
	}
	return out, writer, nil
}

// writeRecords encodes the JSON lines of in to out, closing out.
func writeRecords(out io.WriteCloser, in io.Reader, typ *types.Type, cfg container.EncoderConfig) (int, error) {
	w, err := container.NewWriter(out, typ, container.WriterConfig{EncoderConfig: cfg})
	if err != nil {
		out.Close()
		return 0, err
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	n, line := 0, 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(text))
		dec.UseNumber()
		var raw any
		if err := dec.Decode(&raw); err != nil {
			w.Close()
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		v, err := typ.FromJSON(raw)
		if err == nil {
			err = w.Append(v)
		}
		if err != nil {
			w.Close()
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		w.Close()
		return n, err
	}
	return n, w.Close()
}

func init() {
	rootCmd.AddCommand(writeCmd)

	writeCmd.Flags().String("schema", "", "Schema file of the records")
	writeCmd.Flags().String("codec", "null", "Block codec (null, deflate, snappy, zstandard)")
	writeCmd.Flags().Int("block-size", 0, "Uncompressed bytes per block")
	writeCmd.Flags().Int("block-count", 0, "Records per block (0 = no limit)")
	writeCmd.Flags().Bool("append", false, "Append to an existing container")
}
