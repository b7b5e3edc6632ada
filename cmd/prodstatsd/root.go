package main

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/xtxerr/prodstats/internal/config"
	"github.com/xtxerr/prodstats/internal/logging"
)

var (
	cfgFile   string
	envFile   string
	listen    string
	logLevel  string
	logFormat string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "prodstatsd",
	Short:         "Product rating statistics service",
	Long:          `prodstatsd downloads the Amazon UK products dataset, loads it into an in-memory DuckDB and answers per-category rating statistics over HTTP or from the command line.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (YAML)")
	f.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	f.StringVar(&listen, "listen", "", "listen address (overrides config)")
	f.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	f.StringVar(&logFormat, "log-format", "", "log format: auto, text, json (overrides config)")

	rootCmd.AddCommand(serveCmd, infoCmd, clearCmd, statsCmd, configCmd)
}

// loadConfig reads .env, the config file and the environment, then applies
// flag overrides and initializes logging.
func loadConfig(cmd *cobra.Command) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("listen") {
		c.Server.Listen = listen
	}
	if f.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if f.Changed("log-format") {
		c.Log.Format = logFormat
	}
	cfg = c

	logging.Init(logging.ParseLevel(cfg.Log.Level), logging.ParseFormat(cfg.Log.Format))
	slog.Debug("configuration loaded", "file", cfgFile, "version", Version)
	return nil
}
