package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"FinRange/internal/di"
	"FinRange/internal/usecase"
)

var runCmd = &cobra.Command{
	Use:   "run [daily|weekly]",
	Short: "Run one job now, bypassing the trigger window",
	Long: `Run the daily or weekly job once and print its report as JSON.

Examples:
  app run daily
  app run weekly --config config/config.yaml`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{usecase.JobDaily, usecase.JobWeekly},
	RunE:      runJob,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runJob(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	defer func() { _ = app.Close() }()

	ctx := cmd.Context()
	var report interface{}
	switch args[0] {
	case usecase.JobDaily:
		report, err = app.Scheduler().RunDailyJob(ctx)
	case usecase.JobWeekly:
		report, err = app.Scheduler().RunWeeklyJob(ctx)
	}
	if err != nil {
		return fmt.Errorf("%s job: %w", args[0], err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
