package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/0xmhha/contractforge/internal/config"
)

// globalOpts are the persistent flags shared by every subcommand
type globalOpts struct {
	configFile string
	storePath  string
	backend    string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{}

	root := &cobra.Command{
		Use:   "contractforge",
		Short: "Draft, deploy and settle payment contracts on a development chain",
		Long: `contractforge turns a plain-language goal into a contract draft, records a
deployment against a development chain and tracks settlement of the
contract's payment functions.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetVersionTemplate("contractforge {{.Version}}\n")

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to configuration file (YAML)")
	root.PersistentFlags().StringVar(&opts.storePath, "store", "", "contract store path")
	root.PersistentFlags().StringVar(&opts.backend, "backend", "", "contract store backend (json, pebble, postgres)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (json, console)")

	root.AddCommand(
		newServeCmd(opts),
		newContractsCmd(opts),
		newVersionCmd(),
	)
	return root
}

// load reads .env, the config file and the environment, then applies the
// persistent flags on top
func (o *globalOpts) load() (*config.Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}

	if o.storePath != "" {
		cfg.Store.Path = o.storePath
	}
	if o.backend != "" {
		cfg.Store.Backend = o.backend
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads environment variables from a .env file if it exists.
// Variables already set in the environment win.
func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(".env exists but is a directory")
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}
