package stats

import (
	"time"

	"reddata/warehouse/internal/models"
)

// CompleteUniverse left-joins every reducer output onto the authoritative
// property universe. Each known property appears exactly once in the result
// in universe order. A property missing from a reducer's output never
// reached it (no overlap records) and gets nil for that family's every
// statistic; a property the reducer saw but could not cover keeps its zero
// weight, so "not covered" and "covered with weight zero" stay distinct.
func CompleteUniverse(universe []string, rent map[string]RentResult, proportions map[string]map[string]ProportionResult, createdAt time.Time) []models.PropertyStats {
	out := make([]models.PropertyStats, 0, len(universe))

	for _, propertyID := range universe {
		row := models.PropertyStats{
			PropertyID: propertyID,
			Families:   make(map[string]models.FamilyStats, len(proportions)),
			CreatedAt:  createdAt,
		}

		if r, ok := rent[propertyID]; ok {
			total := r.TotalFlats
			row.RentTotalFlats = &total
			row.WeightedAvgRentPerSqm = r.WeightedAvg
		}

		for _, family := range models.CategoryFamilies() {
			familyResults, ok := proportions[family.Prefix]
			if !ok {
				continue
			}

			fs := models.FamilyStats{
				Percentages: make([]*float64, len(family.Categories)),
			}
			if r, ok := familyResults[propertyID]; ok {
				total := r.TotalBuildings
				fs.TotalBuildings = &total
				copy(fs.Percentages, r.Percentages)
			}
			row.Families[family.Prefix] = fs
		}

		out = append(out, row)
	}
	return out
}
