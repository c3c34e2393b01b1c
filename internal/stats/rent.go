package stats

import (
	"reddata/warehouse/internal/models"
)

// RentResult is the weighted rent aggregate for a single property.
// WeightedAvg is nil when the property has no usable rent coverage;
// TotalFlats carries the accumulated weight either way so consumers can
// judge how much data backs the average.
type RentResult struct {
	WeightedAvg *float64
	TotalFlats  float64
}

// WeightedRent combines the rent figures of every grid cell a property
// overlaps into one average per property:
//
//	weighted_avg = Σ(overlap_ratio × units × rent) / Σ(overlap_ratio × units)
//
// A cell contributes proportionally to how much of the property it covers
// and to how many dwelling units it holds. Cells without a rent fact, or
// with suppressed rent or unit values, contribute zero weight rather than
// excluding the property. A zero total weight yields a nil average, never a
// fabricated zero rent.
func WeightedRent(overlaps []models.Overlap, facts map[string]models.RentFact, sink DiagnosticSink) (map[string]RentResult, error) {
	type accumulator struct {
		weightedRent float64
		weight       float64
	}

	acc := make(map[string]*accumulator)
	var rows [][]string

	for _, ov := range overlaps {
		a, ok := acc[ov.PropertyID]
		if !ok {
			a = &accumulator{}
			acc[ov.PropertyID] = a
		}

		var units, rent float64
		fact, hasFact := facts[ov.GridID]
		if hasFact {
			if fact.DwellingUnits != nil {
				units = float64(*fact.DwellingUnits)
			}
			if fact.AvgRentPerSqm != nil {
				rent = *fact.AvgRentPerSqm
			}
		}

		weight := ov.OverlapRatio * units
		a.weight += weight
		a.weightedRent += weight * rent

		if sink != nil {
			rows = append(rows, []string{
				ov.PropertyID, ov.GridID,
				formatFloat(ov.OverlapRatio),
				formatFloatPtr(factRent(fact, hasFact)),
				formatIntPtr(factUnits(fact, hasFact)),
				formatFloat(weight),
				formatFloat(weight * rent),
			})
		}
	}

	if sink != nil {
		header := []string{"property_id", "grid_id", "overlap_ratio", "avg_rent_per_sqm", "dwelling_units", "weight", "weighted_rent"}
		if err := sink.Table("rent_merged", header, rows); err != nil {
			return nil, err
		}
	}

	results := make(map[string]RentResult, len(acc))
	for propertyID, a := range acc {
		r := RentResult{TotalFlats: a.weight}
		if a.weight > 0 {
			avg := a.weightedRent / a.weight
			r.WeightedAvg = &avg
		}
		results[propertyID] = r
	}
	return results, nil
}

func factRent(fact models.RentFact, ok bool) *float64 {
	if !ok {
		return nil
	}
	return fact.AvgRentPerSqm
}

func factUnits(fact models.RentFact, ok bool) *int64 {
	if !ok {
		return nil
	}
	return fact.DwellingUnits
}
