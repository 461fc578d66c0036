// Package report renders a finished run for the terminal and exports it to
// files. It consumes the runner's report and the analyzer's verdict; it
// never feeds anything back into the core.
package report

import (
	"fmt"
	"strings"
	"time"

	"wsramp/internal/analysis"
	"wsramp/internal/runner"
	"wsramp/internal/tui/styles"
)

// Header describes the test plan before the first batch starts.
func Header(cfg runner.Config) string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("PROGRESSIVE WEBSOCKET CONNECTION TEST"))
	b.WriteString("\n")

	mode := "independent batches"
	if cfg.Cumulative {
		mode = "cumulative (prior connections stay open)"
	}
	plan := fmt.Sprintf(
		"Target    : %s\nPlan      : %d -> %d connections, increment %d\nMode      : %s\nHold      : %s per batch\nThreshold : %.1f%% success rate",
		cfg.URL(),
		cfg.StartConnections, cfg.MaxConnections, cfg.Increment,
		mode,
		cfg.HoldDuration,
		cfg.StabilityThreshold,
	)
	if cfg.ConnectionDelay > 0 {
		plan += fmt.Sprintf("\nStagger   : %s between launches", cfg.ConnectionDelay)
	}
	b.WriteString(styles.Box.Render(plan))
	return b.String()
}

// Summary renders the final results: overview, latency, the per-batch
// stability table, and the analyzer's verdict.
func Summary(rep *runner.RunReport, verdict analysis.Report) string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("RUN RESULTS"))
	b.WriteString("\n\n")

	overview := fmt.Sprintf(
		"Run       : %s\nTarget    : %s\nDuration  : %s\nBatches   : %d\nAttempted : %d\nSuccessful: %d\nFailed    : %d",
		rep.RunID,
		rep.URL,
		rep.Duration.Round(time.Millisecond),
		len(rep.History),
		rep.Latency.Attempted,
		rep.Latency.Successful,
		rep.Latency.Failed,
	)
	b.WriteString(styles.Box.Render(overview))
	b.WriteString("\n\n")

	if rep.Latency.Samples > 0 {
		latency := fmt.Sprintf(
			"Avg: %.2f ms\nP50: %.2f ms\nP90: %.2f ms\nP99: %.2f ms\nMax: %.2f ms\nConnect avg: %.2f ms",
			rep.Latency.AvgMs,
			rep.Latency.P50Ms,
			rep.Latency.P90Ms,
			rep.Latency.P99Ms,
			rep.Latency.MaxMs,
			rep.Latency.ConnectMs,
		)
		b.WriteString(styles.Active.Render("Echo Round Trips"))
		b.WriteString("\n")
		b.WriteString(styles.Box.Render(latency))
		b.WriteString("\n\n")
	}

	b.WriteString(styles.Active.Render("Stability by Batch"))
	b.WriteString("\n")
	b.WriteString(StabilityTable(rep.History, rep.Config.StabilityThreshold, rep.Config.Cumulative))
	b.WriteString("\n")

	b.WriteString(renderVerdict(verdict))
	return b.String()
}

// StabilityTable lists every batch with its success rate and stability mark.
func StabilityTable(history []runner.BatchResult, threshold float64, cumulative bool) string {
	var b strings.Builder

	if cumulative {
		b.WriteString(fmt.Sprintf("%-7s %-6s %-7s %-13s %-8s\n",
			"Batch", "New", "Total", "Success Rate", "Status"))
	} else {
		b.WriteString(fmt.Sprintf("%-7s %-7s %-13s %-14s %-15s %-9s\n",
			"Batch", "Conns", "Success Rate", "Avg Response", "Min/Max (ms)", "Duration"))
	}
	b.WriteString(strings.Repeat("-", 70))
	b.WriteString("\n")

	for _, r := range history {
		mark := styles.Success.Render("ok")
		if !r.Stable(threshold) {
			mark = styles.Error.Render("unstable")
		}
		if cumulative {
			b.WriteString(fmt.Sprintf("%-7d %-6d %-7d %-13s %s\n",
				r.Batch, r.Connections, r.TotalConnections,
				fmt.Sprintf("%.1f%%", r.SuccessRate), mark))
		} else {
			b.WriteString(fmt.Sprintf("%-7d %-7d %-13s %-14s %-15s %-9s %s\n",
				r.Batch, r.Connections,
				fmt.Sprintf("%.1f%%", r.SuccessRate),
				fmt.Sprintf("%.2f ms", float64(r.AvgResponse.Microseconds())/1000),
				fmt.Sprintf("%.1f/%.1f", float64(r.MinResponse.Microseconds())/1000, float64(r.MaxResponse.Microseconds())/1000),
				r.Duration.Round(100*time.Millisecond), mark))
		}
	}
	return b.String()
}

func renderVerdict(v analysis.Report) string {
	style := styles.Success
	switch v.Verdict {
	case analysis.VerdictAllUnstable:
		style = styles.Error
	case analysis.VerdictOpenRange, analysis.VerdictNoData:
		style = styles.Warn
	}
	label := style.Render(fmt.Sprintf("Verdict: %s", v.Verdict))
	return label + "\n" + styles.Text.Render(v.Summary()) + "\n"
}
