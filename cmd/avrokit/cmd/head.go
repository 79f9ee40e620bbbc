package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ssargent/avrokit/pkg/container"
)

// headCmd represents the head command
var headCmd = &cobra.Command{
	Use:   "head <file>",
	Short: "Print a container's header",
	Long: `Print the writer schema, codec, sync marker and user metadata of an
object container file without reading its blocks.

Example:
  avrokit head events.avro`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		h, err := container.ExtractHeader(f, 0)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return printHeader(cmd.OutOrStdout(), h)
	},
}

func printHeader(w io.Writer, h *container.Header) error {
	fmt.Fprintf(w, "schema: %s\n", h.Meta[container.MetaSchema])
	fmt.Fprintf(w, "codec: %s\n", h.CodecName())
	fmt.Fprintf(w, "sync: %s\n", hex.EncodeToString(h.Sync[:]))

	keys := make([]string, 0, len(h.Meta))
	for k := range h.Meta {
		if k != container.MetaSchema && k != container.MetaCodec {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "meta %s: %q\n", k, h.Meta[k]); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(headCmd)
}
