package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/CraigKelly/stgibbs/sampler"
)

// traceWriter writes one CSV row per kept record: iteration, field status,
// the tracked scalars (coefficients then precision) and the field.
type traceWriter struct {
	w      *csv.Writer
	nField int
	row    []string
}

func newTraceWriter(w io.Writer, names []string, nField int) (*traceWriter, error) {
	tw := &traceWriter{
		w:      csv.NewWriter(w),
		nField: nField,
		row:    make([]string, 0, 2+len(names)+nField),
	}

	header := append([]string{"iteration", "status"}, names...)
	for i := 0; i < nField; i++ {
		header = append(header, fmt.Sprintf("f%d", i))
	}
	if err := tw.w.Write(header); err != nil {
		return nil, errors.Wrap(err, "Could not write trace header")
	}
	return tw, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (tw *traceWriter) Write(rec *sampler.Record) error {
	if len(rec.Field) != tw.nField {
		return errors.Errorf("Trace expects %d field values, got %d", tw.nField, len(rec.Field))
	}

	row := tw.row[:0]
	row = append(row, strconv.FormatInt(rec.Iteration, 10), rec.FieldStatus.String())
	for _, b := range rec.Coefficients {
		row = append(row, formatFloat(b))
	}
	row = append(row, formatFloat(rec.Precision))
	for _, f := range rec.Field {
		row = append(row, formatFloat(f))
	}
	tw.row = row

	return tw.w.Write(row)
}

func (tw *traceWriter) Flush() error {
	tw.w.Flush()
	return tw.w.Error()
}

// summary keeps every kept draw of the tracked scalars for the final report.
type summary struct {
	names []string
	draws [][]float64
}

func newSummary(names []string) *summary {
	return &summary{
		names: names,
		draws: make([][]float64, len(names)),
	}
}

func (s *summary) Add(rec *sampler.Record) {
	for i, b := range rec.Coefficients {
		s.draws[i] = append(s.draws[i], b)
	}
	last := len(s.draws) - 1
	s.draws[last] = append(s.draws[last], rec.Precision)
}

// Render writes posterior mean, standard deviation and convergence score for
// each tracked scalar.
func (s *summary) Render(w io.Writer, convergence []float64) {
	tab := table.NewWriter()
	tab.SetOutputMirror(w)
	tab.SetStyle(table.StyleLight)
	tab.AppendHeader(table.Row{"NAME", "MEAN", "STD", "SPLIT-HALF", "DRAWS"})

	for i, name := range s.names {
		mean, std := math.NaN(), math.NaN()
		if len(s.draws[i]) > 1 {
			mean, std = stat.MeanStdDev(s.draws[i], nil)
		}
		score := math.NaN()
		if i < len(convergence) {
			score = convergence[i]
		}
		tab.AppendRow(table.Row{
			name,
			fmt.Sprintf("%.5g", mean),
			fmt.Sprintf("%.5g", std),
			fmt.Sprintf("%.3f", score),
			len(s.draws[i]),
		})
	}

	tab.Render()
}
