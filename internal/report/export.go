package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"wsramp/internal/analysis"
	"wsramp/internal/runner"
)

// ExportCSV writes one row per batch.
func ExportCSV(rep *runner.RunReport, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"batch", "connections", "total_connections", "successful", "failed",
		"success_rate", "avg_response_ms", "min_response_ms", "max_response_ms",
		"duration_s",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range rep.History {
		record := []string{
			strconv.Itoa(r.Batch),
			strconv.Itoa(r.Connections),
			strconv.Itoa(r.TotalConnections),
			strconv.Itoa(r.Successful),
			strconv.Itoa(r.Failed),
			fmt.Sprintf("%.1f", r.SuccessRate),
			fmt.Sprintf("%.2f", float64(r.AvgResponse.Microseconds())/1000),
			fmt.Sprintf("%.2f", float64(r.MinResponse.Microseconds())/1000),
			fmt.Sprintf("%.2f", float64(r.MaxResponse.Microseconds())/1000),
			fmt.Sprintf("%.2f", r.Duration.Seconds()),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// exportedReport bundles the run with its verdict for the JSON export.
type exportedReport struct {
	*runner.RunReport
	Analysis analysis.Report `json:"analysis"`
}

// ExportJSON writes the full report, per-connection results included.
func ExportJSON(rep *runner.RunReport, verdict analysis.Report, filename string) error {
	data, err := json.MarshalIndent(exportedReport{rep, verdict}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
