package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ssargent/avrokit/pkg/container"
)

// checkResult is the outcome of validating one file
type checkResult struct {
	Path    string
	Records int
	Err     error
}

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check <files...>",
	Short: "Validate container files",
	Long: `Decode every record of each file and report the record count or the
first error. Files are checked concurrently, at most "workers" at a time.

Example:
  avrokit check logs/*.avro`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workers := app.cfg.Workers
		if cmd.Flags().Changed("workers") {
			workers, _ = cmd.Flags().GetInt("workers")
		}

		results, err := checkFiles(cmd.Context(), args, workers)
		if err != nil {
			return err
		}

		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
				cmd.Printf("%s: FAILED after %d records: %v\n", r.Path, r.Records, r.Err)
				continue
			}
			cmd.Printf("%s: ok, %d records\n", r.Path, r.Records)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(results))
		}
		return nil
	},
}

// checkFiles validates paths with up to workers files in flight. Per-file
// failures are reported in the results; the error is only set when ctx is
// cancelled.
func checkFiles(ctx context.Context, paths []string, workers int) ([]checkResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	results := make([]checkResult, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := checkFile(ctx, path)
			results[i] = checkResult{Path: path, Records: n, Err: err}
			debugf("%s: checked %d records", path, n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func checkFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	return countRecords(ctx, f)
}

// countRecords decodes every record of src and closes it.
func countRecords(ctx context.Context, src io.Reader) (int, error) {
	rc := app.cfg.ReaderConfig()
	rc.Observer = app.metrics
	r := container.NewReader(src, rc)
	defer r.Close()

	n := 0
	for r.Next() {
		n++
		if n%4096 == 0 && ctx.Err() != nil {
			return n, ctx.Err()
		}
	}
	return n, r.Err()
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().Int("workers", 0, "Files checked concurrently (default from config)")
}
