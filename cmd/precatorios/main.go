// Package main is the precatorios command line
// @title TJRJ Precatórios Extraction API
// @version 1.0.0
// @description Runs and monitors extractions of the TJRJ precatórios chronological lists
// @contact.name API Support
// @contact.email support@nexconsult.com
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @host localhost:8080
// @BasePath /
// @schemes http https
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nexconsult/precatorios/internal/config"
	"github.com/nexconsult/precatorios/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	_ "github.com/nexconsult/precatorios/docs"
)

var (
	envFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "precatorios",
	Short: "Extract the TJRJ precatórios chronological lists",
	Long: `precatorios extracts the chronological payment lists of the TJRJ precatórios
portal, one debtor entity at a time, with a bounded browser pool.

Available subcommands:
  run        - Run one extraction and export it
  serve      - Start the HTTP API
  gaps       - Detect gaps in the journaled outcomes of a run
  partitions - List the debtor entities of a regime`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd, serveCmd, gapsCmd, partitionsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// setup loads the environment and configuration, applies the flags of cmd and
// builds the logger. The returned closer flushes the log file, if any.
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, io.Closer, error) {
	if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
		return nil, nil, nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	closer, err := logger.TeeToFile(log, cfg.Log.File)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, closer, nil
}
