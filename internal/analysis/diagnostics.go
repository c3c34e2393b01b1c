package analysis

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// CSVDiagnostics writes intermediate reducer tables as CSV files into a
// directory, one file per table, mirroring how the calculation can be
// inspected step by step.
type CSVDiagnostics struct {
	dir string
}

func NewCSVDiagnostics(dir string) (*CSVDiagnostics, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create diagnostics directory: %w", err)
	}
	return &CSVDiagnostics{dir: dir}, nil
}

func (d *CSVDiagnostics) Table(name string, header []string, rows [][]string) error {
	path := filepath.Join(d.dir, "intermediate_"+name+".csv")

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	wr := csv.NewWriter(f)
	if err := wr.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := wr.Write(row); err != nil {
			return err
		}
	}
	wr.Flush()
	return wr.Error()
}
