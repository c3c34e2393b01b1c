package analysis

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"reddata/warehouse/internal/database"
	"reddata/warehouse/internal/models"
	"reddata/warehouse/internal/stats"
)

// Calculator runs the full weighted statistics pipeline: load overlaps and
// facts from the warehouse, reduce, complete against the property universe,
// validate. It holds no computation state between runs; all intermediates
// go to the optional diagnostic sink.
type Calculator struct {
	db        *database.Warehouse
	logger    *logrus.Logger
	tolerance stats.Tolerance
	sink      stats.DiagnosticSink
}

// NewCalculator creates a calculator. sink may be nil to skip intermediate
// table emission.
func NewCalculator(db *database.Warehouse, logger *logrus.Logger, tolerance stats.Tolerance, sink stats.DiagnosticSink) *Calculator {
	return &Calculator{
		db:        db,
		logger:    logger,
		tolerance: tolerance,
		sink:      sink,
	}
}

// Run executes the pipeline once and returns the completed result rows
// along with the validation report. Validation never fails the run; the
// caller decides what to do with a poor report before committing results.
func (c *Calculator) Run(ctx context.Context) ([]models.PropertyStats, stats.Report, error) {
	c.logger.Info("Starting weighted statistics calculation")

	overlaps, err := c.db.LoadOverlaps(ctx)
	if err != nil {
		return nil, stats.Report{}, err
	}

	clean, findings := stats.ScreenOverlaps(overlaps)
	for _, finding := range findings {
		c.logger.WithFields(logrus.Fields{
			"property_id": finding.PropertyID,
			"grid_id":     finding.GridID,
		}).Warn("Degenerate overlap record excluded: " + finding.Reason)
	}

	gridIDs := uniqueGridIDs(clean)
	c.logger.WithFields(logrus.Fields{
		"overlaps":   len(clean),
		"grid_cells": len(gridIDs),
	}).Info("Screened spatial intersections")

	rentFacts, err := c.db.LoadRentFacts(ctx, gridIDs)
	if err != nil {
		return nil, stats.Report{}, err
	}
	rent, err := stats.WeightedRent(clean, rentFacts, c.sink)
	if err != nil {
		return nil, stats.Report{}, err
	}

	proportions := make(map[string]map[string]stats.ProportionResult)
	for _, family := range models.CategoryFamilies() {
		facts, err := c.db.LoadCategoryFacts(ctx, family, gridIDs)
		if err != nil {
			return nil, stats.Report{}, err
		}
		result, err := stats.WeightedProportions(clean, facts, family, c.sink)
		if err != nil {
			return nil, stats.Report{}, err
		}
		proportions[family.Prefix] = result
	}

	universe, err := c.db.LoadPropertyUniverse(ctx)
	if err != nil {
		return nil, stats.Report{}, err
	}

	rows := stats.CompleteUniverse(universe, rent, proportions, time.Now())
	c.logger.WithField("properties", len(rows)).Info("Completed result set against property universe")

	report := stats.Validate(rows, c.tolerance, findings)
	report.Log(c.logger)

	return rows, report, nil
}

// Persist writes the result rows into the analytics table, creating it if
// needed. Safe to re-run: rows replace on property_id.
func (c *Calculator) Persist(ctx context.Context, rows []models.PropertyStats) error {
	if err := c.db.EnsureStatsTable(ctx); err != nil {
		return err
	}
	return c.db.UpsertStats(ctx, rows)
}

func uniqueGridIDs(overlaps []models.Overlap) []string {
	seen := make(map[string]struct{}, len(overlaps))
	var ids []string
	for _, ov := range overlaps {
		if _, ok := seen[ov.GridID]; ok {
			continue
		}
		seen[ov.GridID] = struct{}{}
		ids = append(ids, ov.GridID)
	}
	return ids
}
