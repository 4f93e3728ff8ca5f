package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"FinRange/internal/di"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, operator API and settlement consumer",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	return app.Run(cmd.Context())
}
