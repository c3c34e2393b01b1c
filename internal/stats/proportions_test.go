package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reddata/warehouse/internal/models"
)

// heatingFact builds a heating fact with the family's six categories and a
// total computed the way the loader does: nil iff every count is nil.
func heatingFact(gridID string, counts ...*int64) models.CategoryFact {
	fact := models.CategoryFact{GridID: gridID, Counts: counts}
	var total int64
	any := false
	for _, c := range counts {
		if c != nil {
			total += *c
			any = true
		}
	}
	if any {
		fact.Total = &total
	}
	return fact
}

func TestWeightedProportions_SingleCellIdentity(t *testing.T) {
	// A property entirely inside one cell must reproduce the cell's raw
	// count/total proportions exactly.
	overlaps := []models.Overlap{
		{PropertyID: "P1", GridID: "A", OverlapRatio: 1.0},
	}
	facts := map[string]models.CategoryFact{
		"A": heatingFact("A", iptr(62), iptr(44), iptr(0), iptr(14), nil, nil),
	}

	results, err := WeightedProportions(overlaps, facts, models.HeatingFamily, nil)
	require.NoError(t, err)

	r := results["P1"]
	assert.InDelta(t, 120.0, r.TotalBuildings, 1e-12)
	require.NotNil(t, r.Percentages[0])
	assert.Equal(t, 62.0/120.0, *r.Percentages[0])
	assert.Equal(t, 44.0/120.0, *r.Percentages[1])
	assert.Equal(t, 0.0, *r.Percentages[2])
	assert.Equal(t, 14.0/120.0, *r.Percentages[3])
	// Suppressed categories scale to zero contribution, not to nil output,
	// once the property has any weight in the family.
	require.NotNil(t, r.Percentages[4])
	assert.Equal(t, 0.0, *r.Percentages[4])
}

func TestWeightedProportions_ClosureOverCompleteCells(t *testing.T) {
	// Fully covered property over cells with complete category data:
	// the percentages must close to 1 within float error.
	overlaps := []models.Overlap{
		{PropertyID: "P1", GridID: "A", OverlapRatio: 0.37},
		{PropertyID: "P1", GridID: "B", OverlapRatio: 0.63},
	}
	facts := map[string]models.CategoryFact{
		"A": heatingFact("A", iptr(10), iptr(20), iptr(5), iptr(30), iptr(7), iptr(3)),
		"B": heatingFact("B", iptr(1), iptr(2), iptr(3), iptr(4), iptr(5), iptr(6)),
	}

	results, err := WeightedProportions(overlaps, facts, models.HeatingFamily, nil)
	require.NoError(t, err)

	var sum float64
	for _, pct := range results["P1"].Percentages {
		require.NotNil(t, pct)
		sum += *pct
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestWeightedProportions_NilTotalContributesZeroWeight(t *testing.T) {
	// P2 overlaps only a cell whose every heating category is suppressed:
	// the family total is 0 (the reducer saw the property) and every
	// percentage is nil, never zero.
	overlaps := []models.Overlap{
		{PropertyID: "P2", GridID: "C", OverlapRatio: 1.0},
	}
	facts := map[string]models.CategoryFact{
		"C": heatingFact("C", nil, nil, nil, nil, nil, nil),
	}

	results, err := WeightedProportions(overlaps, facts, models.HeatingFamily, nil)
	require.NoError(t, err)

	r, ok := results["P2"]
	require.True(t, ok)
	assert.Equal(t, 0.0, r.TotalBuildings)
	for _, pct := range r.Percentages {
		assert.Nil(t, pct)
	}
}

func TestWeightedProportions_AllNullDistinctFromAllZero(t *testing.T) {
	// A cell counting zero in every category carries a real zero total and
	// must behave like the suppressed cell numerically while remaining a
	// different statement about the data.
	zero := heatingFact("Z", iptr(0), iptr(0), iptr(0), iptr(0), iptr(0), iptr(0))
	require.NotNil(t, zero.Total)
	assert.Equal(t, int64(0), *zero.Total)

	suppressed := heatingFact("S", nil, nil, nil, nil, nil, nil)
	assert.Nil(t, suppressed.Total)
}

func TestWeightedProportions_MissingFactRows(t *testing.T) {
	overlaps := []models.Overlap{
		{PropertyID: "P1", GridID: "A", OverlapRatio: 0.5},
		{PropertyID: "P1", GridID: "missing", OverlapRatio: 0.5},
	}
	facts := map[string]models.CategoryFact{
		"A": heatingFact("A", iptr(8), iptr(2), iptr(0), iptr(0), iptr(0), iptr(0)),
	}

	results, err := WeightedProportions(overlaps, facts, models.HeatingFamily, nil)
	require.NoError(t, err)

	r := results["P1"]
	assert.InDelta(t, 5.0, r.TotalBuildings, 1e-12)
	require.NotNil(t, r.Percentages[0])
	assert.InDelta(t, 0.8, *r.Percentages[0], 1e-12)
}

func TestWeightedProportions_CategoryCountMismatch(t *testing.T) {
	overlaps := []models.Overlap{
		{PropertyID: "P1", GridID: "A", OverlapRatio: 1.0},
	}
	facts := map[string]models.CategoryFact{
		"A": {GridID: "A", Counts: []*int64{iptr(1), iptr(2)}, Total: iptr(3)},
	}

	_, err := WeightedProportions(overlaps, facts, models.HeatingFamily, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grid cell A")
}

func TestWeightedProportions_ReusableAcrossFamilies(t *testing.T) {
	// The same reducer serves every family; only the column list and
	// prefix change.
	overlaps := []models.Overlap{
		{PropertyID: "P1", GridID: "A", OverlapRatio: 1.0},
	}

	for _, family := range models.CategoryFamilies() {
		counts := make([]*int64, len(family.Categories))
		var total int64
		for i := range counts {
			counts[i] = iptr(int64(i + 1))
			total += int64(i + 1)
		}
		facts := map[string]models.CategoryFact{
			"A": {GridID: "A", Counts: counts, Total: &total},
		}

		results, err := WeightedProportions(overlaps, facts, family, nil)
		require.NoError(t, err, family.Prefix)
		assert.Len(t, results["P1"].Percentages, len(family.Categories), family.Prefix)
	}
}
