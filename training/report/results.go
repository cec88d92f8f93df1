package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Columns of results.csv that we read
const (
	ColEpoch        = "epoch"
	ColMAP50        = "metrics/mAP50(B)"
	ColMAP50_95     = "metrics/mAP50-95(B)"
	ColPrecision    = "metrics/precision(B)"
	ColRecall       = "metrics/recall(B)"
	ColTrainBoxLoss = "train/box_loss"
	ColValBoxLoss   = "val/box_loss"
)

// Results is the per-epoch table that the trainer writes to results.csv
type Results struct {
	Columns []string
	Rows    [][]float64 // Rows[epoch][column]. Cells that aren't numbers are NaN.
}

// ReadResults parses results.csv. The trainer pads its header names with spaces, which we trim.
func ReadResults(r io.Reader) (*Results, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("results.csv is empty")
	}
	res := &Results{}
	for _, h := range records[0] {
		res.Columns = append(res.Columns, strings.TrimSpace(h))
	}
	for _, rec := range records[1:] {
		row := make([]float64, len(res.Columns))
		for i := range row {
			row[i] = nan()
			if i < len(rec) {
				if f, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64); err == nil {
					row[i] = f
				}
			}
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

// ReadResultsFile parses results.csv from disk
func ReadResultsFile(filename string) (*Results, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadResults(f)
}

// Index returns the index of a column, or -1
func (r *Results) Index(column string) int {
	for i, c := range r.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Column returns all the values of a column, or nil if the column doesn't exist
func (r *Results) Column(column string) []float64 {
	idx := r.Index(column)
	if idx == -1 {
		return nil
	}
	v := make([]float64, len(r.Rows))
	for i, row := range r.Rows {
		v[i] = row[idx]
	}
	return v
}
