package loader

import (
	"context"
	"encoding/csv"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const zensusYear = 2022

// columnKind tells how a fact column is typed in the target table.
type columnKind int

const (
	kindInteger columnKind = iota
	kindNumeric
)

// ZensusDataset is one parsed CSV file, ready for insertion.
type ZensusDataset struct {
	Table    string
	GridSize string
	Columns  []string
	Kinds    []columnKind
	Rows     []zensusRow
}

type zensusRow struct {
	gridID string
	values []interface{}
}

var gridSuffix = regexp.MustCompile(`_(100m|1km|10km)[-_]Gitter\.csv$`)

// DetectTableMapping derives the target table and grid size from a CSV
// path, Zensus2022_Bevoelkerungszahl_10km-Gitter.csv maps to
// fact_zensus_10km_bevoelkerungszahl.
func DetectTableMapping(path string) (table, gridSize, dataset string, err error) {
	filename := filepath.Base(path)

	m := gridSuffix.FindStringSubmatch(filename)
	if m == nil {
		return "", "", "", fmt.Errorf("cannot determine grid size from filename %s", filename)
	}
	gridSize = m[1]

	dataset = strings.TrimPrefix(filename, "Zensus2022_")
	dataset = gridSuffix.ReplaceAllString(dataset, "")
	dataset = strings.Trim(dataset, "_")
	if dataset == "" {
		return "", "", "", fmt.Errorf("cannot extract dataset name from filename %s", filename)
	}

	table = fmt.Sprintf("fact_zensus_%s_%s", gridSize, SanitizeTableName(dataset))
	return table, gridSize, dataset, nil
}

// ZensusLoader loads Zensus CSV fact files into dynamically created tables.
type ZensusLoader struct {
	pool      *pgxpool.Pool
	logger    *logrus.Logger
	chunkSize int
}

func NewZensusLoader(pool *pgxpool.Pool, logger *logrus.Logger) *ZensusLoader {
	return &ZensusLoader{pool: pool, logger: logger, chunkSize: 5000}
}

// LoadDir loads every CSV file found under dir.
func (l *ZensusLoader) LoadDir(ctx context.Context, dir string) error {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".csv") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no CSV files found in %s", dir)
	}

	l.logger.WithField("files", len(files)).Info("Loading Zensus CSV files")

	failed := 0
	for _, f := range files {
		if err := l.LoadFile(ctx, f); err != nil {
			failed++
			l.logger.WithError(err).WithField("file", f).Error("Failed to load Zensus file")
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to load", failed, len(files))
	}
	return nil
}

// LoadFile parses one CSV file and upserts it into its fact table.
func (l *ZensusLoader) LoadFile(ctx context.Context, path string) error {
	ds, err := ParseZensusCSV(path)
	if err != nil {
		return err
	}

	l.logger.WithFields(logrus.Fields{
		"file":  filepath.Base(path),
		"table": ds.Table,
		"rows":  len(ds.Rows),
	}).Info("Parsed Zensus CSV")

	if err := l.ensureTable(ctx, ds); err != nil {
		return err
	}
	return l.insert(ctx, ds)
}

// ParseZensusCSV reads a semicolon-delimited Zensus CSV, reconstructs the
// grid id from the cell center coordinates and normalizes German number
// formats.
func ParseZensusCSV(path string) (*ZensusDataset, error) {
	table, gridSize, _, err := DetectTableMapping(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%s has no data rows", path)
	}

	header := records[0]
	xIdx, yIdx := -1, -1
	gitterIdx := -1
	var factIdx []int
	var factCols []string
	for i, col := range header {
		col = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
		switch {
		case col == "x_mp_"+gridSize:
			xIdx = i
		case col == "y_mp_"+gridSize:
			yIdx = i
		case strings.EqualFold(col, "GITTER_ID_"+gridSize):
			gitterIdx = i
		case strings.EqualFold(col, "werterlaeuternde_Zeichen"):
			// metadata column, dropped
		default:
			factIdx = append(factIdx, i)
			factCols = append(factCols, SanitizeColumnName(col))
		}
	}
	if xIdx < 0 || yIdx < 0 {
		if gitterIdx < 0 {
			return nil, fmt.Errorf("%s lacks x_mp/y_mp and GITTER_ID columns", path)
		}
	}
	if len(factCols) == 0 {
		return nil, fmt.Errorf("%s has no fact columns", path)
	}

	// A column whose values carry decimal commas is numeric, the rest
	// are integers.
	kinds := make([]columnKind, len(factIdx))
	for k, idx := range factIdx {
		for _, rec := range records[1:] {
			if idx < len(rec) && hasDecimalComma(rec[idx]) {
				kinds[k] = kindNumeric
				break
			}
		}
	}

	ds := &ZensusDataset{
		Table:    table,
		GridSize: gridSize,
		Columns:  factCols,
		Kinds:    kinds,
	}

	for _, rec := range records[1:] {
		var gridID string
		if xIdx >= 0 && yIdx >= 0 && xIdx < len(rec) && yIdx < len(rec) {
			x, errX := strconv.ParseFloat(strings.Replace(rec[xIdx], ",", ".", 1), 64)
			y, errY := strconv.ParseFloat(strings.Replace(rec[yIdx], ",", ".", 1), 64)
			if errX != nil || errY != nil {
				continue
			}
			gridID = GridID(gridSize, int(y), int(x))
		} else if gitterIdx >= 0 && gitterIdx < len(rec) {
			gridID = strings.TrimSpace(rec[gitterIdx])
		}
		if gridID == "" {
			continue
		}

		values := make([]interface{}, len(factIdx))
		for k, idx := range factIdx {
			if idx >= len(rec) {
				continue
			}
			if kinds[k] == kindNumeric {
				if v := NormalizeDecimal(rec[idx]); v != nil {
					values[k] = *v
				}
			} else {
				if v := NormalizeInteger(rec[idx]); v != nil {
					values[k] = *v
				}
			}
		}
		ds.Rows = append(ds.Rows, zensusRow{gridID: gridID, values: values})
	}

	return ds, nil
}

func (l *ZensusLoader) ensureTable(ctx context.Context, ds *ZensusDataset) error {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS zensus.%s (\n", ds.Table)
	b.WriteString("\tgrid_id TEXT PRIMARY KEY,\n")
	b.WriteString("\tyear INTEGER NOT NULL,\n")
	for i, col := range ds.Columns {
		colType := "BIGINT"
		if ds.Kinds[i] == kindNumeric {
			colType = "DOUBLE PRECISION"
		}
		fmt.Fprintf(&b, "\t%s %s", col, colType)
		if i < len(ds.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")

	if _, err := l.pool.Exec(ctx, b.String()); err != nil {
		return fmt.Errorf("failed to create table zensus.%s: %w", ds.Table, err)
	}
	return nil
}

func (l *ZensusLoader) insert(ctx context.Context, ds *ZensusDataset) error {
	cols := append([]string{"grid_id", "year"}, ds.Columns...)
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	updates := make([]string, 0, len(ds.Columns)+1)
	updates = append(updates, "year = EXCLUDED.year")
	for _, col := range ds.Columns {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}

	query := fmt.Sprintf(`
		INSERT INTO zensus.%s (%s)
		VALUES (%s)
		ON CONFLICT (grid_id) DO UPDATE SET %s`,
		ds.Table, strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "))

	inserted := 0
	for start := 0; start < len(ds.Rows); start += l.chunkSize {
		end := start + l.chunkSize
		if end > len(ds.Rows) {
			end = len(ds.Rows)
		}

		tx, err := l.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		for _, row := range ds.Rows[start:end] {
			args := make([]interface{}, 0, len(cols))
			args = append(args, row.gridID, zensusYear)
			args = append(args, row.values...)
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				tx.Rollback(ctx)
				return fmt.Errorf("failed to insert grid_id %s: %w", row.gridID, err)
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit chunk: %w", err)
		}

		inserted = end
		l.logger.WithFields(logrus.Fields{
			"table":    ds.Table,
			"inserted": inserted,
			"total":    len(ds.Rows),
		}).Info("Inserted Zensus chunk")
	}
	return nil
}
