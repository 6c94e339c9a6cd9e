// Command weekly-planner regenerates the plans of one week and prints the run report.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/app"
	"github.com/noah-isme/study-planner-api/internal/timegrid"
	"github.com/noah-isme/study-planner-api/pkg/config"
	"github.com/noah-isme/study-planner-api/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	flags := pflag.NewFlagSet("weekly-planner", pflag.ContinueOnError)
	week := flags.StringP("week", "w", "", "week start (YYYY-MM-DD); defaults to the week after the current one")
	noOracle := flags.Bool("no-oracle", false, "use only the deterministic placement")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		return 1
	}
	if *noOracle {
		cfg.Oracle.Enabled = false
	}

	logr, err := logger.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: init logger: %v\n", err)
		return 1
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	planner, err := app.New(cfg, logr)
	if err != nil {
		logr.Error("startup failed", zap.Error(err))
		return 1
	}
	defer planner.Close()
	planner.Start(ctx)

	target := *week
	if target == "" {
		target = timegrid.FormatWeek(planner.Planner.NextWeek())
	}
	report, err := planner.Planner.Generate(ctx, target)
	if err != nil {
		logr.Error("weekly generation failed", zap.String("week_start", target), zap.Error(err))
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(os.Stderr, "error: write report: %v\n", err)
		return 1
	}
	if len(report.Failures) > 0 {
		return 3
	}
	return 0
}
