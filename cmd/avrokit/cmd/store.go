package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"

	"github.com/ssargent/avrokit/pkg/container"
	"github.com/ssargent/avrokit/pkg/storage"
	"github.com/ssargent/avrokit/pkg/types"
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Copy a container's records into the datum store",
	Long: `Copy every record of an object container file into the datum store.
Records keep their writer schema and get a new ksuid each.

Example:
  avrokit import events.avro --store ./data`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		n, err := importContainer(s, f)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		cmd.Printf("imported %d records from %s\n", n, args[0])
		return nil
	},
}

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export <out>",
	Short: "Write the datum store's records to a container",
	Long: `Write every record of the datum store to an object container file,
resolved into the given schema. Records whose writer schema cannot be
resolved into it stop the export.

Example:
  avrokit export events.avro --store ./data --schema event.avsc`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaPath, _ := cmd.Flags().GetString("schema")
		typ, err := readSchemaFile(schemaPath)
		if err != nil {
			return err
		}

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		out, err := os.Create(args[0])
		if err != nil {
			return err
		}
		cfg := app.cfg.EncoderConfig()
		if cmd.Flags().Changed("codec") {
			cfg.Codec, _ = cmd.Flags().GetString("codec")
		}
		cfg.Observer = app.metrics

		n, err := exportStore(s, out, typ, cfg)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		cmd.Printf("exported %d records to %s\n", n, args[0])
		return nil
	},
}

func openStore(cmd *cobra.Command) (*storage.Store, error) {
	dir := app.cfg.Store.Dir
	if cmd.Flags().Changed("store") {
		dir, _ = cmd.Flags().GetString("store")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}
	debugf("opening store in %s", dir)
	return storage.Open(dir, storage.StoreConfig{Sync: app.cfg.Store.Sync})
}

// importContainer stores the records of src without decoding them: each
// raw datum is prefixed with the single-object header of the file's writer
// schema. src is closed.
func importContainer(s *storage.Store, src io.Reader) (int, error) {
	rc := app.cfg.ReaderConfig()
	rc.NoDecode = true
	rc.Observer = app.metrics
	r := container.NewReader(src, rc)
	defer r.Close()

	if _, err := r.Header(); err != nil {
		return 0, err
	}
	writer := r.Decoder().WriterType()
	if _, err := s.RegisterSchema(writer); err != nil {
		return 0, err
	}
	fp := writer.FingerprintBytes()

	n := 0
	for r.Next() {
		obj := storage.AppendSingleObject(nil, fp, r.Record().([]byte))
		if err := s.PutRaw(ksuid.New(), obj); err != nil {
			return n, err
		}
		n++
	}
	return n, r.Err()
}

// exportStore writes every stored record, resolved into typ, to out and
// closes out.
func exportStore(s *storage.Store, out io.WriteCloser, typ *types.Type, cfg container.EncoderConfig) (int, error) {
	w, err := container.NewWriter(out, typ, container.WriterConfig{EncoderConfig: cfg})
	if err != nil {
		out.Close()
		return 0, err
	}

	n := 0
	err = s.Scan(typ, func(id ksuid.KSUID, v any) error {
		if err := w.Append(v); err != nil {
			return fmt.Errorf("record %s: %w", id, err)
		}
		n++
		return nil
	})
	if err != nil {
		w.Close()
		return n, err
	}
	return n, w.Close()
}

func init() {
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)

	for _, c := range []*cobra.Command{importCmd, exportCmd} {
		c.Flags().String("store", "", "Datum store directory (default from config)")
	}
	exportCmd.Flags().String("schema", "", "Schema to resolve records into")
	exportCmd.Flags().String("codec", "null", "Block codec (null, deflate, snappy, zstandard)")
	_ = exportCmd.MarkFlagRequired("schema")
}
