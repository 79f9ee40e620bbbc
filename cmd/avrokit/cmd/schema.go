package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/avrokit/pkg/types"
)

// schemaCmd represents the schema command
var schemaCmd = &cobra.Command{
	Use:   "schema <file>",
	Short: "Parse a schema file",
	Long: `Parse an Avro schema file and print it back in full form, in Parsing
Canonical Form, or as its CRC-64-AVRO fingerprint.

Examples:
  avrokit schema user.avsc
  avrokit schema user.avsc --canonical
  avrokit schema user.avsc --fingerprint`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		canonical, _ := cmd.Flags().GetBool("canonical")
		fingerprint, _ := cmd.Flags().GetBool("fingerprint")

		typ, err := readSchemaFile(args[0])
		if err != nil {
			return err
		}
		return printSchema(cmd.OutOrStdout(), typ, canonical, fingerprint)
	},
}

func printSchema(w io.Writer, typ *types.Type, canonical, fingerprint bool) error {
	var err error
	switch {
	case fingerprint:
		_, err = fmt.Fprintf(w, "%016x\n", typ.Fingerprint())
	case canonical:
		_, err = fmt.Fprintln(w, typ.CanonicalForm())
	default:
		_, err = fmt.Fprintln(w, typ.String())
	}
	return err
}

// readSchemaFile parses the schema stored in path.
func readSchemaFile(path string) (*types.Type, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	typ, err := types.Parse(string(data), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return typ, nil
}

func init() {
	rootCmd.AddCommand(schemaCmd)

	schemaCmd.Flags().Bool("canonical", false, "Print the Parsing Canonical Form")
	schemaCmd.Flags().Bool("fingerprint", false, "Print the CRC-64-AVRO fingerprint in hex")
}
