// Package report renders fit results as terminal tables or CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
)

// Format selects the output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
)

// ParseFormat accepts "table" and "csv"; empty means table.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", errors.Newf("unsupported output format %q: expected table or csv", s).
		Component("report").
		Category(errors.CategoryValidation).
		Build()
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F4D03F"))
)

// grid is one titled block of output.
type grid struct {
	title   string
	headers []string
	rows    [][]string
}

func render(w io.Writer, format Format, grids ...grid) error {
	if format == FormatCSV {
		return renderCSV(w, grids)
	}
	for i, g := range grids {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if g.title != "" {
			if _, err := fmt.Fprintln(w, titleStyle.Render(g.title)); err != nil {
				return err
			}
		}
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers(g.headers...).
			Rows(g.rows...).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})
		if _, err := fmt.Fprintln(w, t.Render()); err != nil {
			return err
		}
	}
	return nil
}

// renderCSV writes each grid as a header line followed by its rows. Grids
// after the first are separated by a blank line.
func renderCSV(w io.Writer, grids []grid) error {
	cw := csv.NewWriter(w)
	for i, g := range grids {
		if i > 0 {
			if err := cw.Write([]string{""}); err != nil {
				return err
			}
		}
		if err := cw.Write(g.headers); err != nil {
			return err
		}
		if err := cw.WriteAll(g.rows); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Output returns stdout for an empty path, otherwise a created file. The
// returned close function is always safe to call.
func Output(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, errors.FileError(fmt.Errorf("failed to create output directory: %w", err), path)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.FileError(fmt.Errorf("failed to create file: %w", err), path)
	}
	return file, file.Close, nil
}

// num formats a float for display. NaN renders as "NA".
func num(x float64, prec int) string {
	switch {
	case math.IsNaN(x):
		return "NA"
	case math.IsInf(x, 1):
		return "Inf"
	case math.IsInf(x, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(x, 'f', prec, 64)
}

func ints(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x + 1)
	}
	return strings.Join(parts, " ")
}
