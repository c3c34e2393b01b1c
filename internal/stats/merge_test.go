package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reddata/warehouse/internal/models"
)

func TestCompleteUniverse_EveryPropertyAppearsOnce(t *testing.T) {
	universe := []string{"P1", "P2", "P3"}
	rent := map[string]RentResult{
		"P1": {WeightedAvg: fptr(12.5), TotalFlats: 80},
	}
	proportions := map[string]map[string]ProportionResult{
		models.HeatingFamily.Prefix: {
			"P1": {TotalBuildings: 120, Percentages: make([]*float64, 6)},
		},
		models.EnergyFamily.Prefix:  {},
		models.BaujahrFamily.Prefix: {},
	}

	rows := CompleteUniverse(universe, rent, proportions, time.Unix(0, 0))
	require.Len(t, rows, 3)

	seen := make(map[string]int)
	for _, row := range rows {
		seen[row.PropertyID]++
	}
	for _, id := range universe {
		assert.Equal(t, 1, seen[id], id)
	}
}

func TestCompleteUniverse_UncoveredPropertyIsNullNotZero(t *testing.T) {
	universe := []string{"P9"}

	rows := CompleteUniverse(universe, map[string]RentResult{}, map[string]map[string]ProportionResult{
		models.HeatingFamily.Prefix: {},
		models.EnergyFamily.Prefix:  {},
		models.BaujahrFamily.Prefix: {},
	}, time.Unix(0, 0))
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Nil(t, row.WeightedAvgRentPerSqm)
	assert.Nil(t, row.RentTotalFlats)
	for _, family := range models.CategoryFamilies() {
		fs, ok := row.Families[family.Prefix]
		require.True(t, ok, family.Prefix)
		assert.Nil(t, fs.TotalBuildings, family.Prefix)
		for _, pct := range fs.Percentages {
			assert.Nil(t, pct)
		}
	}
}

func TestCompleteUniverse_ZeroWeightStaysZero(t *testing.T) {
	// A property the reducer saw but could not cover keeps its zero total:
	// distinct from the nil of a property with no overlap records at all.
	universe := []string{"P2"}
	proportions := map[string]map[string]ProportionResult{
		models.HeatingFamily.Prefix: {
			"P2": {TotalBuildings: 0, Percentages: make([]*float64, 6)},
		},
	}

	rows := CompleteUniverse(universe, map[string]RentResult{}, proportions, time.Unix(0, 0))
	fs := rows[0].Families[models.HeatingFamily.Prefix]
	require.NotNil(t, fs.TotalBuildings)
	assert.Equal(t, 0.0, *fs.TotalBuildings)
}

func TestPipeline_Idempotence(t *testing.T) {
	// Identical inputs must produce identical output rows, run to run.
	overlaps := []models.Overlap{
		{PropertyID: "P1", GridID: "A", GridArea: 10000, OverlapRatio: 0.6},
		{PropertyID: "P1", GridID: "B", GridArea: 10000, OverlapRatio: 0.4},
		{PropertyID: "P2", GridID: "C", GridArea: 10000, OverlapRatio: 1.0},
	}
	rentFacts := map[string]models.RentFact{
		"A": {GridID: "A", AvgRentPerSqm: fptr(10.0), DwellingUnits: iptr(100)},
		"B": {GridID: "B", AvgRentPerSqm: fptr(20.0), DwellingUnits: iptr(50)},
	}
	heatingFacts := map[string]models.CategoryFact{
		"A": heatingFact("A", iptr(5), iptr(5), iptr(0), iptr(0), iptr(0), iptr(0)),
	}
	universe := []string{"P1", "P2", "P3"}
	createdAt := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	run := func() []models.PropertyStats {
		clean, _ := ScreenOverlaps(overlaps)
		rent, err := WeightedRent(clean, rentFacts, nil)
		require.NoError(t, err)
		heating, err := WeightedProportions(clean, heatingFacts, models.HeatingFamily, nil)
		require.NoError(t, err)
		return CompleteUniverse(universe, rent, map[string]map[string]ProportionResult{
			models.HeatingFamily.Prefix: heating,
		}, createdAt)
	}

	assert.Equal(t, run(), run())
}

func TestScreenOverlaps_DegenerateRecords(t *testing.T) {
	overlaps := []models.Overlap{
		{PropertyID: "P1", GridID: "A", GridArea: 10000, OverlapRatio: 0.5},
		{PropertyID: "P1", GridID: "B", GridArea: 0, OverlapRatio: 0.5},
		{PropertyID: "P2", GridID: "C", GridArea: 10000, OverlapRatio: 1.7},
	}

	clean, findings := ScreenOverlaps(overlaps)
	require.Len(t, clean, 1)
	assert.Equal(t, "A", clean[0].GridID)

	require.Len(t, findings, 2)
	assert.Equal(t, "B", findings[0].GridID)
	assert.Contains(t, findings[0].Reason, "not positive")
	assert.Equal(t, "C", findings[1].GridID)
	assert.Contains(t, findings[1].Reason, "outside (0, 1]")
}
