package cmd

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ssargent/avrokit/pkg/config"
	"github.com/ssargent/avrokit/pkg/metrics"
)

// app holds what PersistentPreRunE sets up for the subcommands
var app struct {
	cfg      *config.Config
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "avrokit",
	Short: "avrokit - Avro object container tools",
	Long: `avrokit inspects, reads, writes and validates Avro object container
files, and moves records between container files and a datum store.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if textfile, _ := cmd.Flags().GetString("metrics-textfile"); textfile != "" {
			cfg.Metrics.Textfile = textfile
		}
		if err := cfg.Validate(nil); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		setLogLevel(cfg.Logging.Level)

		app.cfg = cfg
		app.registry = prometheus.NewRegistry()
		app.metrics = metrics.NewMetrics(app.registry)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app.cfg == nil || app.cfg.Metrics.Textfile == "" {
			return nil
		}
		if err := metrics.WriteTextfile(app.cfg.Metrics.Textfile, app.registry); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
		debugf("metrics written to %s", app.cfg.Metrics.Textfile)
		return nil
	},
}

// loadConfig reads configPath, or the default config file when it exists,
// or falls back to the defaults.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
		if !config.ConfigExists(configPath) {
			return config.DefaultConfig(), nil
		}
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	debugf("loaded configuration from %s", configPath)
	return cfg, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: OS-specific location)")
	rootCmd.PersistentFlags().String("metrics-textfile", "", "Write Prometheus metrics to this file on exit")
}
