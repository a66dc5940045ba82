package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/san-kum/phokimo/internal/trajectory"
)

// WriteCSV writes one row per sample: time, then one column per trajectory.
func WriteCSV(w io.Writer, times []float64, series []*trajectory.Trajectory) error {
	cw := csv.NewWriter(w)

	header := []string{"time"}
	for _, tr := range series {
		header = append(header, tr.Label)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(series)+1)
	for k, t := range times {
		row[0] = strconv.FormatFloat(t, 'g', -1, 64)
		for i, tr := range series {
			row[i+1] = strconv.FormatFloat(tr.Values[k], 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCSV writes a CSV file, gzip-compressed when path ends in .gz.
func ExportCSV(path string, times []float64, series []*trajectory.Trajectory) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if !strings.HasSuffix(path, ".gz") {
		if err := WriteCSV(f, times, series); err != nil {
			return err
		}
		return f.Close()
	}

	zw := gzip.NewWriter(f)
	if err := WriteCSV(zw, times, series); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}

// ReadCSV parses the output of WriteCSV.
func ReadCSV(r io.Reader, kind trajectory.Kind) ([]float64, []*trajectory.Trajectory, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 || len(records[0]) == 0 || records[0][0] != "time" {
		return nil, nil, fmt.Errorf("storage: missing time header")
	}

	header := records[0]
	times := make([]float64, 0, len(records)-1)
	columns := make([][]float64, len(header)-1)
	for line, rec := range records[1:] {
		t, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("storage: line %d: %w", line+2, err)
		}
		times = append(times, t)
		for i := range columns {
			v, err := strconv.ParseFloat(rec[i+1], 64)
			if err != nil {
				return nil, nil, fmt.Errorf("storage: line %d, column %s: %w", line+2, header[i+1], err)
			}
			columns[i] = append(columns[i], v)
		}
	}

	series := make([]*trajectory.Trajectory, len(columns))
	for i, col := range columns {
		series[i] = &trajectory.Trajectory{Label: header[i+1], Kind: kind, Times: times, Values: col}
	}
	return times, series, nil
}

func ImportCSV(path string, kind trajectory.Kind) ([]float64, []*trajectory.Trajectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, err
		}
		defer zr.Close()
		r = zr
	}
	return ReadCSV(r, kind)
}
