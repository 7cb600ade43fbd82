package report

import (
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/datastore"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/model"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/posterior"
)

var rankings = []posterior.Ranking{
	{Model: "time", DIC: 100, DeltaDIC: 0, PD: 6, MaxRhat: 1.02, Converged: true},
	{Model: "null", DIC: 112.5, DeltaDIC: 12.5, PD: 4, MaxRhat: math.NaN()},
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{" CSV ", FormatCSV, false},
		{"json", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNum(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "NA", num(math.NaN(), 2))
	assert.Equal(t, "Inf", num(math.Inf(1), 2))
	assert.Equal(t, "1.50", num(1.5, 2))
	assert.Equal(t, "1 3", ints([]int{0, 2}))
}

func TestWriteRankingsCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteRankings(&buf, FormatCSV, rankings))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"model", "DIC", "delta DIC", "pD", "max rhat", "converged"}, records[0])
	assert.Equal(t, []string{"time", "100.00", "0.00", "6.00", "1.020", "true"}, records[1])
	assert.Equal(t, "NA", records[2][4])
}

func TestWriteRankingsTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteRankings(&buf, FormatTable, rankings))
	out := buf.String()
	assert.Contains(t, out, "Model comparison")
	assert.Contains(t, out, "time")
	assert.Contains(t, out, "112.50")
	assert.Less(t, strings.Index(out, "time"), strings.Index(out, "null"))
}

func TestWriteRunCSV(t *testing.T) {
	t.Parallel()

	rhat := 1.01
	run := &datastore.FitRun{
		RunID:          "run-1",
		Model:          "null",
		SelectedChains: "0,1",
		CreatedAt:      time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
		Summaries:      []datastore.SummaryRow{{Name: "lambda", Mean: 4, SD: 1, Lower: 2, Upper: 6}},
		Rhats:          []datastore.RhatRow{{Name: "lambda", Rhat: &rhat}},
		Abundances:     []datastore.AbundanceRow{{Season: 1, Mean: 4, Lower: 3, Upper: 5}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteRun(&buf, FormatCSV, run))

	r := csv.NewReader(&buf)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)
	// the blank separator lines between blocks are skipped by the reader
	require.Len(t, records, 6)
	assert.Equal(t, "lambda", records[1][0])
	assert.Equal(t, []string{"lambda", "1.010", "NA", "NA"}, records[3])
	assert.Equal(t, "1", records[5][0])

	buf.Reset()
	require.NoError(t, WriteRuns(&buf, FormatTable, []datastore.FitRun{*run}))
	assert.Contains(t, buf.String(), "2026-05-01 08:00:00")
}

func TestWritePrediction(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sweep := posterior.Sweep{Process: model.Detection, Covariate: model.CovHour, Grid: []float64{0, 1}}
	points := []posterior.Point{{X: 0, Mean: 0.4, Lower: 0.3, Upper: 0.5}, {X: 1, Mean: 0.45, Lower: 0.3, Upper: 0.6}}
	require.NoError(t, WritePrediction(&buf, FormatCSV, sweep, points))
	assert.Equal(t, "hour,mean,2.5%,97.5%\n0.000,0.4000,0.3000,0.5000\n1.000,0.4500,0.3000,0.6000\n", buf.String())
}

func TestOutput(t *testing.T) {
	t.Parallel()

	w, closeFn, err := Output("")
	require.NoError(t, err)
	assert.Equal(t, os.Stdout, w)
	require.NoError(t, closeFn())

	path := filepath.Join(t.TempDir(), "out", "rank.csv")
	w, closeFn, err = Output(path)
	require.NoError(t, err)
	require.NoError(t, WriteRankings(w, FormatCSV, rankings))
	require.NoError(t, closeFn())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "model,DIC"))
}
