package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wsramp/internal/analysis"
	"wsramp/internal/runner"
)

func sampleReport() *runner.RunReport {
	return &runner.RunReport{
		RunID: "run-1",
		URL:   "ws://127.0.0.1:7070/",
		History: []runner.BatchResult{
			{
				Batch: 1, Connections: 2, TotalConnections: 2,
				Successful: 2, SuccessRate: 100,
				AvgResponse: 3 * time.Millisecond,
				MinResponse: 2 * time.Millisecond,
				MaxResponse: 4 * time.Millisecond,
				Duration:    5 * time.Second,
			},
			{
				Batch: 2, Connections: 4, TotalConnections: 4,
				Successful: 2, Failed: 2, SuccessRate: 50,
				Duration: 5 * time.Second,
			},
		},
	}
}

func TestExportCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.csv")
	require.NoError(t, ExportCSV(sampleReport(), path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one row per batch")
	require.Equal(t, "batch", rows[0][0])
	require.Equal(t, []string{"1", "2", "2", "2", "0", "100.0", "3.00", "2.00", "4.00", "5.00"}, rows[1])
	require.Equal(t, "50.0", rows[2][5])
}

func TestExportJSON(t *testing.T) {
	rep := sampleReport()
	verdict := analysis.Classify(rep.History, 90, 2)
	path := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, ExportJSON(rep, verdict, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded struct {
		RunID    string               `json:"run_id"`
		History  []runner.BatchResult `json:"history"`
		Analysis analysis.Report      `json:"analysis"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "run-1", decoded.RunID)
	require.Len(t, decoded.History, 2)
	require.Equal(t, analysis.VerdictCeiling, decoded.Analysis.Verdict)
	require.Equal(t, 2, decoded.Analysis.Ceiling)
}
