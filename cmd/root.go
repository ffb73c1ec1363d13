// File: /cmd/root.go

// Package cmd holds the command line entry points.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chyrp-api/config"
	"chyrp-api/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "chyrp-api",
	Short:         "REST backend for the Chyrp blogging platform",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file (default ./config.yaml if present)")
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
}

// Execute runs the CLI. With no subcommand it serves the API.
func Execute() {
	rootCmd.RunE = serveCmd.RunE
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, log, nil
}
