package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"FinRange/internal/di"
	"FinRange/pkg/util"
)

var expirationDate string

var expirationCmd = &cobra.Command{
	Use:   "expiration SYMBOL",
	Short: "Print the front contract's expiration and trading days remaining",
	Long: `Derive expiration information from the exchange calendar.

Examples:
  app expiration ES
  app expiration CL --date 2025-11-03`,
	Args: cobra.ExactArgs(1),
	RunE: runExpiration,
}

func init() {
	rootCmd.AddCommand(expirationCmd)
	expirationCmd.Flags().StringVar(&expirationDate, "date", "", "as-of date YYYY-MM-DD (default: now)")
}

func runExpiration(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cal, err := di.ProvideCalendar(cfg)
	if err != nil {
		return err
	}
	asOf := time.Now()
	if expirationDate != "" {
		d, ok := util.ParseDate(expirationDate)
		if !ok {
			return fmt.Errorf("--date %q: want YYYY-MM-DD", expirationDate)
		}
		asOf = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, cal.Location())
	}
	info, err := cal.ExpirationInfo(args[0], asOf)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}
