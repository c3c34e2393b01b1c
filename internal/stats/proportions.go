package stats

import (
	"fmt"

	"reddata/warehouse/internal/models"
)

// ProportionResult is one family's weighted category breakdown for a single
// property. Percentages follows the family's category order; entries are
// nil when TotalBuildings is zero.
type ProportionResult struct {
	TotalBuildings float64
	Percentages    []*float64
}

// WeightedProportions computes area- and density-weighted category
// proportions for one family (heating, energy or construction year):
//
//	category_pct = Σ(overlap_ratio × category_count) / Σ(overlap_ratio × cell_total)
//
// The per-category numerator is scaled by the overlap ratio alone, not by
// the record's weight; that is what makes the result collapse to the true
// count/total proportion when a property sits entirely inside one cell.
// Cells without a fact row or with a nil total contribute zero weight. The
// reducer is stateless with respect to the family and is invoked once per
// family with a different column list and prefix.
func WeightedProportions(overlaps []models.Overlap, facts map[string]models.CategoryFact, family models.CategoryFamily, sink DiagnosticSink) (map[string]ProportionResult, error) {
	n := len(family.Categories)

	type accumulator struct {
		weight     float64
		numerators []float64
	}

	acc := make(map[string]*accumulator)
	var rows [][]string

	for _, ov := range overlaps {
		fact, hasFact := facts[ov.GridID]
		if hasFact && len(fact.Counts) != n {
			return nil, fmt.Errorf("grid cell %s: %s fact has %d categories, want %d",
				ov.GridID, family.Prefix, len(fact.Counts), n)
		}

		a, ok := acc[ov.PropertyID]
		if !ok {
			a = &accumulator{numerators: make([]float64, n)}
			acc[ov.PropertyID] = a
		}

		var total float64
		if hasFact && fact.Total != nil {
			total = float64(*fact.Total)
		}

		weight := ov.OverlapRatio * total
		a.weight += weight

		for i := 0; i < n; i++ {
			var count float64
			if hasFact && fact.Counts[i] != nil {
				count = float64(*fact.Counts[i])
			}
			a.numerators[i] += ov.OverlapRatio * count
		}

		if sink != nil {
			row := []string{ov.PropertyID, ov.GridID, formatFloat(ov.OverlapRatio), formatFloat(weight)}
			for i := 0; i < n; i++ {
				if hasFact {
					row = append(row, formatIntPtr(fact.Counts[i]))
				} else {
					row = append(row, "")
				}
			}
			rows = append(rows, row)
		}
	}

	if sink != nil {
		header := []string{"property_id", "grid_id", "overlap_ratio", "weight"}
		header = append(header, family.Categories...)
		if err := sink.Table(family.Prefix+"_merged", header, rows); err != nil {
			return nil, err
		}
	}

	results := make(map[string]ProportionResult, len(acc))
	for propertyID, a := range acc {
		r := ProportionResult{
			TotalBuildings: a.weight,
			Percentages:    make([]*float64, n),
		}
		if a.weight > 0 {
			for i := 0; i < n; i++ {
				pct := a.numerators[i] / a.weight
				r.Percentages[i] = &pct
			}
		}
		results[propertyID] = r
	}
	return results, nil
}
