package loader

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/sirupsen/logrus"
)

// GridCell is one reference grid cell with its square polygon.
type GridCell struct {
	GridID  string
	Polygon orb.Polygon
}

// CellPolygon builds the square cell polygon around a center point. The
// coordinates are EPSG:3035 meters, so the edges are axis-aligned.
func CellPolygon(xCenter, yCenter float64, sizeMeters int) orb.Polygon {
	half := float64(sizeMeters) / 2
	minX, minY := xCenter-half, yCenter-half
	maxX, maxY := xCenter+half, yCenter+half
	return orb.Polygon{orb.Ring{
		{minX, minY},
		{maxX, minY},
		{maxX, maxY},
		{minX, maxY},
		{minX, minY},
	}}
}

// ParseGridCSV reads a semicolon-delimited GeoGitter CSV with x_mp/y_mp
// cell center columns and produces cells with reconstructed ids and square
// polygons.
func ParseGridCSV(path, size string) ([]GridCell, error) {
	sizeMeters, ok := CellSizeMeters[size]
	if !ok {
		return nil, fmt.Errorf("unknown grid size %q", size)
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

	xIdx, yIdx := -1, -1
	for i, col := range records[0] {
		col = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
		switch {
		case col == "x_mp" || strings.HasPrefix(col, "x_mp_"):
			xIdx = i
		case col == "y_mp" || strings.HasPrefix(col, "y_mp_"):
			yIdx = i
		}
	}
	if xIdx < 0 || yIdx < 0 {
		return nil, fmt.Errorf("%s lacks x_mp/y_mp columns", path)
	}

	var cells []GridCell
	for _, rec := range records[1:] {
		if xIdx >= len(rec) || yIdx >= len(rec) {
			continue
		}
		x, errX := strconv.ParseFloat(strings.Replace(rec[xIdx], ",", ".", 1), 64)
		y, errY := strconv.ParseFloat(strings.Replace(rec[yIdx], ",", ".", 1), 64)
		if errX != nil || errY != nil {
			continue
		}
		cells = append(cells, GridCell{
			GridID:  GridID(size, int(y), int(x)),
			Polygon: CellPolygon(x, y, sizeMeters),
		})
	}
	return cells, nil
}

// GridLoader loads reference grid cells into zensus.ref_grid_{size}.
type GridLoader struct {
	pool      *pgxpool.Pool
	logger    *logrus.Logger
	chunkSize int
}

func NewGridLoader(pool *pgxpool.Pool, logger *logrus.Logger) *GridLoader {
	return &GridLoader{pool: pool, logger: logger, chunkSize: 10000}
}

// Load parses the CSV and inserts the cells, skipping ids already present.
func (l *GridLoader) Load(ctx context.Context, path, size string) error {
	cells, err := ParseGridCSV(path, size)
	if err != nil {
		return err
	}

	table := "ref_grid_" + size
	l.logger.WithFields(logrus.Fields{
		"table": table,
		"cells": len(cells),
		"crs":   "EPSG:3035",
	}).Info("Loading reference grid")

	query := fmt.Sprintf(`
		INSERT INTO zensus.%s (grid_id, geom)
		VALUES ($1, ST_GeomFromText($2, 3035))
		ON CONFLICT (grid_id) DO NOTHING`, table)

	inserted := 0
	for start := 0; start < len(cells); start += l.chunkSize {
		end := start + l.chunkSize
		if end > len(cells) {
			end = len(cells)
		}

		tx, err := l.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		for _, cell := range cells[start:end] {
			if _, err := tx.Exec(ctx, query, cell.GridID, wkt.MarshalString(cell.Polygon)); err != nil {
				tx.Rollback(ctx)
				return fmt.Errorf("failed to insert grid cell %s: %w", cell.GridID, err)
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit chunk: %w", err)
		}

		inserted = end
		l.logger.WithFields(logrus.Fields{
			"table":    table,
			"inserted": inserted,
			"total":    len(cells),
		}).Info("Inserted grid chunk")
	}
	return nil
}
