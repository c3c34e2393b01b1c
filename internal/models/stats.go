package models

import "time"

// Overlap is one property/grid-cell intersection produced by the spatial
// overlap query. OverlapRatio is OverlapArea / GridArea and lies in (0, 1]
// for well-formed input; a non-positive GridArea makes the ratio undefined
// and is reported as a data-integrity finding, never coerced.
type Overlap struct {
	PropertyID   string  `json:"property_id"`
	GridID       string  `json:"grid_id"`
	OverlapArea  float64 `json:"overlap_area"`
	GridArea     float64 `json:"grid_area"`
	OverlapRatio float64 `json:"overlap_ratio"`
}

// RentFact holds the rent figures published for a single grid cell.
// Nil values mean the cell was privacy-suppressed, not zero.
type RentFact struct {
	GridID        string   `json:"grid_id"`
	AvgRentPerSqm *float64 `json:"avg_rent_per_sqm"`
	DwellingUnits *int64   `json:"dwelling_units"`
}

// CategoryFact holds per-category counts for one grid cell of one category
// family. Counts is aligned with the family's ordered category list. Total
// is the sum over non-nil counts and is nil iff every count is nil: a cell
// with no data at all must not be confused with a cell whose every category
// counts zero.
type CategoryFact struct {
	GridID string  `json:"grid_id"`
	Counts []*int64 `json:"counts"`
	Total  *int64   `json:"total"`
}

// CategoryFamily is one fixed family of mutually exclusive classification
// counts published per grid cell. The category list is ordered; output
// columns and CategoryFact.Counts follow it.
type CategoryFamily struct {
	Prefix     string
	Table      string
	Categories []string
}

var (
	HeatingFamily = CategoryFamily{
		Prefix: "heating",
		Table:  "zensus.fact_zensus_100m_heizungsart",
		Categories: []string{
			"fernheizung", "etagenheizung", "blockheizung",
			"zentralheizung", "einzel_mehrraumoefen", "keine_heizung",
		},
	}

	EnergyFamily = CategoryFamily{
		Prefix: "energy",
		Table:  "zensus.fact_zensus_100m_energietraeger",
		Categories: []string{
			"gas", "heizoel", "holz_holzpellets", "biomasse_biogas",
			"solar_geothermie_waermepumpen", "strom", "kohle",
			"fernwaerme", "kein_energietraeger",
		},
	}

	BaujahrFamily = CategoryFamily{
		Prefix: "baujahr",
		Table:  "zensus.fact_zensus_100m_gebaeude_nach_baujahr_in_mikrozensus_klassen",
		Categories: []string{
			"vor1919", "a1919bis1948", "a1949bis1978", "a1979bis1990",
			"a1991bis2000", "a2001bis2010", "a2011bis2019", "a2020undspaeter",
		},
	}
)

// CategoryFamilies returns all families in output column order.
func CategoryFamilies() []CategoryFamily {
	return []CategoryFamily{HeatingFamily, EnergyFamily, BaujahrFamily}
}

// FamilyStats is one family's aggregate for one property. TotalBuildings is
// nil when the property never reached the family's reducer (no overlap rows)
// and zero when it did but no covered cell carried data. Percentages is
// aligned with the family's category list; entries are nil whenever
// TotalBuildings is nil or zero.
type FamilyStats struct {
	TotalBuildings *float64
	Percentages    []*float64
}

// PropertyStats is the final output row for one property. Every property in
// the reference universe appears exactly once; nil fields mean "not
// covered", which downstream consumers must keep distinct from zero.
type PropertyStats struct {
	PropertyID            string
	WeightedAvgRentPerSqm *float64
	RentTotalFlats        *float64
	Families              map[string]FamilyStats
	CreatedAt             time.Time
}

// StatsColumns returns the output column names in their stable order,
// excluding property_id and created_at. CSV export and the upsert target
// share this ordering.
func StatsColumns() []string {
	cols := []string{"weighted_avg_rent_per_sqm", "rent_total_flats"}
	for _, family := range CategoryFamilies() {
		for _, category := range family.Categories {
			cols = append(cols, family.Prefix+"_"+category+"_pct")
		}
		cols = append(cols, family.Prefix+"_total_buildings")
	}
	return cols
}

// NumericValues returns the row's values aligned with StatsColumns. Nil
// entries are SQL nulls / empty CSV cells.
func (p PropertyStats) NumericValues() []*float64 {
	vals := []*float64{p.WeightedAvgRentPerSqm, p.RentTotalFlats}
	for _, family := range CategoryFamilies() {
		fs, ok := p.Families[family.Prefix]
		if !ok || len(fs.Percentages) != len(family.Categories) {
			fs = FamilyStats{Percentages: make([]*float64, len(family.Categories))}
		}
		vals = append(vals, fs.Percentages...)
		vals = append(vals, fs.TotalBuildings)
	}
	return vals
}
