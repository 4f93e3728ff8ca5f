package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"FinRange/pkg/config"
)

var configPath string

// rootCmd is the base command of the expected-move service.
var rootCmd = &cobra.Command{
	Use:           "app",
	Short:         "Futures expected-move engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
