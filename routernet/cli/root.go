// Package cli implements the routernet command line.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/config"
	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/engine"
)

// options holds the persistent flags shared by every subcommand.
type options struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCommand builds the command tree. name and version are shown by
// the version subcommand.
func NewRootCommand(name, version string) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "routernet",
		Short: "Build and run aggregator/disgregator routing networks",
		Long: `routernet deploys layered networks of routing units onto an in-memory
ledger. Aggregator units forward everything they receive to one output;
disgregator units split it equally across many.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override the configured log format (text, json)")

	root.AddCommand(
		newBuildCommand(opts),
		newSimulateCommand(opts),
		newExportCommand(opts),
		newServeCommand(opts),
		newConfigCommand(opts),
		newVersionCommand(name, version),
	)
	return root
}

// Execute runs the command tree against os.Args.
func Execute(name, version string) error {
	root := NewRootCommand(name, version)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// load reads the config and builds a logger writing to the command's
// error stream.
func (o *options) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}

	logger, err := config.NewLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// deployed loads the config, creates an engine and deploys its topology.
func (o *options) deployed(cmd *cobra.Command) (*engine.Engine, error) {
	cfg, logger, err := o.load(cmd)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if _, err := eng.Deploy(); err != nil {
		return nil, err
	}
	return eng, nil
}
