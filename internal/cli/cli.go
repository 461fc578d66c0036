// Package cli drives a headless run: header, single-line progress, diagnostic
// snapshots when verbose, and the final summary plus optional exports.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"wsramp/internal/analysis"
	"wsramp/internal/diag"
	"wsramp/internal/report"
	"wsramp/internal/runner"
)

// Run executes one test run to completion and renders it. outPrefix, when
// non-empty, also writes <prefix>.csv and <prefix>.json.
func Run(cfg runner.Config, log *slog.Logger, outPrefix string) error {
	fmt.Println(report.Header(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cfg.Verbose {
		printDiagnostics(ctx)
	}

	updates := make(runner.SnapshotChan, 100)
	ctrl, err := runner.NewController(cfg, log, updates)
	if err != nil {
		return err
	}

	type outcome struct {
		rep *runner.RunReport
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		rep, err := ctrl.Run(ctx)
		done <- outcome{rep, err}
	}()

	var res outcome
loop:
	for {
		select {
		case s := <-updates:
			fmt.Printf("\r%-100s", statusLine(s))
		case res = <-done:
			break loop
		}
	}
	fmt.Println()

	if cfg.Verbose {
		printDiagnostics(context.Background())
	}

	effective := ctrl.Config()
	verdict := analysis.Classify(res.rep.History, effective.StabilityThreshold, effective.Increment)
	fmt.Println(report.Summary(res.rep, verdict))

	if outPrefix != "" {
		if err := report.ExportCSV(res.rep, outPrefix+".csv"); err != nil {
			return fmt.Errorf("csv export: %w", err)
		}
		if err := report.ExportJSON(res.rep, verdict, outPrefix+".json"); err != nil {
			return fmt.Errorf("json export: %w", err)
		}
		fmt.Printf("Reports saved to %s.{csv,json}\n", outPrefix)
	}

	// An interrupted run still produced a valid partial report.
	if res.err != nil && !errors.Is(res.err, context.Canceled) {
		return res.err
	}
	return nil
}

func statusLine(s runner.Snapshot) string {
	line := fmt.Sprintf("[batch %d] %-10s | target %d", s.Batch, s.Phase, s.Target)
	if s.Total > 0 && s.Total != s.Target {
		line += fmt.Sprintf(" | open %d", s.Total)
	}
	line += fmt.Sprintf(" | ok %d err %d", s.Successful, s.Failed)
	if s.P90ResponseMs > 0 {
		line += fmt.Sprintf(" | p90 %.1fms", s.P90ResponseMs)
	}
	line += fmt.Sprintf(" | %s", s.Elapsed.Round(time.Second))
	return line
}

func printDiagnostics(ctx context.Context) {
	if si, err := diag.CollectSystem(ctx); err == nil {
		fmt.Printf("System: %s\n", si)
	}
	if nc, err := diag.CollectNet(ctx); err == nil {
		fmt.Printf("Network: %s\n", nc)
	}
}
