package stats

import (
	"github.com/sirupsen/logrus"

	"reddata/warehouse/internal/models"
)

// Tolerance is the acceptance band for per-property proportion sums. The
// band is configuration, not a constant: how far sums fall below 1 depends
// on the statistical agency's privacy-suppression policy.
type Tolerance struct {
	Low  float64
	High float64
}

// FamilySummary aggregates the validation checks for one category family.
type FamilySummary struct {
	Prefix     string
	Covered    int
	WithinBand int
	MeanSum    float64
	// OverBand counts properties whose single-category percentage exceeds
	// the upper bound, keyed by category name.
	OverBand map[string]int
}

// Samples are representative properties picked for manual spot-checking.
type Samples struct {
	FullCoverage    string
	PartialCoverage string
	NoCoverage      string
}

// Report is the outcome of the validation pass. It is purely diagnostic:
// producing it never mutates or rejects the result set.
type Report struct {
	Total        int
	RentCovered  int
	NegativeRent []string
	Families     []FamilySummary
	Integrity    []Finding
	Samples      Samples
}

// Validate inspects the completed result set and reports coverage,
// proportion-sum conformance, impossible values and sample properties.
func Validate(rows []models.PropertyStats, tol Tolerance, integrity []Finding) Report {
	report := Report{
		Total:     len(rows),
		Integrity: integrity,
	}

	for _, row := range rows {
		if row.WeightedAvgRentPerSqm != nil {
			report.RentCovered++
			if *row.WeightedAvgRentPerSqm < 0 {
				report.NegativeRent = append(report.NegativeRent, row.PropertyID)
			}
		}
	}

	for _, family := range models.CategoryFamilies() {
		summary := FamilySummary{
			Prefix:   family.Prefix,
			OverBand: make(map[string]int),
		}

		var sumOfSums float64
		for _, row := range rows {
			fs, ok := row.Families[family.Prefix]
			if !ok || fs.TotalBuildings == nil || *fs.TotalBuildings <= 0 {
				continue
			}
			summary.Covered++

			var sum float64
			for i, pct := range fs.Percentages {
				if pct == nil {
					continue
				}
				sum += *pct
				if *pct > tol.High {
					summary.OverBand[family.Categories[i]]++
				}
			}
			sumOfSums += sum
			if sum >= tol.Low && sum <= tol.High {
				summary.WithinBand++
			}
		}

		if summary.Covered > 0 {
			summary.MeanSum = sumOfSums / float64(summary.Covered)
		}
		report.Families = append(report.Families, summary)
	}

	report.Samples = pickSamples(rows)
	return report
}

// pickSamples selects up to three properties with distinct coverage
// patterns, in universe order so repeated runs pick the same ones.
func pickSamples(rows []models.PropertyStats) Samples {
	var samples Samples

	covered := func(row models.PropertyStats) (families int, total int) {
		for _, fs := range row.Families {
			total++
			if fs.TotalBuildings != nil && *fs.TotalBuildings > 0 {
				families++
			}
		}
		return families, total
	}

	for _, row := range rows {
		families, total := covered(row)
		hasRent := row.WeightedAvgRentPerSqm != nil

		switch {
		case hasRent && families == total && total > 0:
			if samples.FullCoverage == "" {
				samples.FullCoverage = row.PropertyID
			}
		case hasRent || families > 0:
			if samples.PartialCoverage == "" {
				samples.PartialCoverage = row.PropertyID
			}
		default:
			if samples.NoCoverage == "" {
				samples.NoCoverage = row.PropertyID
			}
		}

		if samples.FullCoverage != "" && samples.PartialCoverage != "" && samples.NoCoverage != "" {
			break
		}
	}
	return samples
}

// Log writes the report through the given logger. Problems surface as
// warnings; the run itself is never failed by validation.
func (r Report) Log(logger *logrus.Logger) {
	logger.WithFields(logrus.Fields{
		"properties":   r.Total,
		"rent_covered": r.RentCovered,
	}).Info("Validation: coverage")

	for _, fam := range r.Families {
		logger.WithFields(logrus.Fields{
			"family":      fam.Prefix,
			"covered":     fam.Covered,
			"within_band": fam.WithinBand,
			"mean_sum":    fam.MeanSum,
		}).Info("Validation: proportion sums")

		for category, count := range fam.OverBand {
			logger.WithFields(logrus.Fields{
				"family":     fam.Prefix,
				"category":   category,
				"properties": count,
			}).Warn("Validation: category percentage above upper bound")
		}
	}

	if len(r.NegativeRent) > 0 {
		logger.WithField("properties", r.NegativeRent).Warn("Validation: negative weighted rent")
	}

	for _, finding := range r.Integrity {
		logger.WithFields(logrus.Fields{
			"property_id": finding.PropertyID,
			"grid_id":     finding.GridID,
		}).Warn("Validation: " + finding.Reason)
	}

	if r.Samples.FullCoverage != "" {
		logger.WithField("property_id", r.Samples.FullCoverage).Info("Sample property with full coverage")
	}
	if r.Samples.PartialCoverage != "" {
		logger.WithField("property_id", r.Samples.PartialCoverage).Info("Sample property with partial coverage")
	}
	if r.Samples.NoCoverage != "" {
		logger.WithField("property_id", r.Samples.NoCoverage).Info("Sample property with no coverage")
	}
}
