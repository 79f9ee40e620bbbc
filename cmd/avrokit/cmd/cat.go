package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/avrokit/pkg/container"
	"github.com/ssargent/avrokit/pkg/types"
)

// catCmd represents the cat command
var catCmd = &cobra.Command{
	Use:   "cat <file>",
	Short: "Print a container's records as JSON lines",
	Long: `Decode the records of an object container file and print each one as
a line of Avro JSON. With --reader-schema the records are resolved into
that schema first.

Examples:
  avrokit cat events.avro
  avrokit cat events.avro --reader-schema event-v2.avsc --limit 10`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		readerPath, _ := cmd.Flags().GetString("reader-schema")
		limit, _ := cmd.Flags().GetInt("limit")

		var reader *types.Type
		if readerPath != "" {
			var err error
			if reader, err = readSchemaFile(readerPath); err != nil {
				return err
			}
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		n, err := catContainer(cmd.OutOrStdout(), f, reader, limit)
		debugf("%s: printed %d records", args[0], n)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return nil
	},
}

// catContainer writes up to limit records (all when limit <= 0) from src to
// w as JSON lines and closes src.
func catContainer(w io.Writer, src io.Reader, reader *types.Type, limit int) (int, error) {
	rc := app.cfg.ReaderConfig()
	rc.ReaderSchema = reader
	rc.Observer = app.metrics

	r := container.NewReader(src, rc)
	defer r.Close()

	if _, err := r.Header(); err != nil {
		return 0, err
	}
	typ := reader
	if typ == nil {
		typ = r.Decoder().WriterType()
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	n := 0
	for (limit <= 0 || n < limit) && r.Next() {
		v, err := typ.ToJSON(r.Record())
		if err != nil {
			return n, err
		}
		if err := enc.Encode(v); err != nil {
			return n, err
		}
		n++
	}
	return n, r.Err()
}

func init() {
	rootCmd.AddCommand(catCmd)

	catCmd.Flags().String("reader-schema", "", "Schema file to resolve records into")
	catCmd.Flags().Int("limit", 0, "Print at most this many records (0 = all)")
}
