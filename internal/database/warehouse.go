package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"reddata/warehouse/internal/models"
)

// Warehouse wraps the PostGIS connection pool with the queries the
// aggregation pipeline and the loaders need.
type Warehouse struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

func NewWarehouse(pool *pgxpool.Pool, logger *logrus.Logger) *Warehouse {
	return &Warehouse{pool: pool, logger: logger}
}

func (w *Warehouse) Pool() *pgxpool.Pool {
	return w.pool
}

// LoadOverlaps computes the property/grid-cell intersection table. The
// geometry work happens in PostGIS; the pipeline only consumes the
// precomputed areas and ratios.
func (w *Warehouse) LoadOverlaps(ctx context.Context) ([]models.Overlap, error) {
	query := `
		WITH property_grid_intersections AS (
			SELECT
				p.property_id,
				g.grid_id,
				ST_Area(ST_Intersection(p.geom, g.geom)) AS overlap_area,
				ST_Area(g.geom) AS grid_area
			FROM zensus.ref_lwu_properties p
			INNER JOIN zensus.ref_grid_100m g
				ON ST_Intersects(p.geom, g.geom)
		)
		SELECT
			property_id,
			grid_id,
			overlap_area,
			grid_area,
			CASE WHEN grid_area > 0 THEN overlap_area / grid_area ELSE 0 END AS overlap_ratio
		FROM property_grid_intersections
		ORDER BY property_id, grid_id`

	rows, err := w.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query spatial intersections: %w", err)
	}
	defer rows.Close()

	var overlaps []models.Overlap
	for rows.Next() {
		var ov models.Overlap
		if err := rows.Scan(&ov.PropertyID, &ov.GridID, &ov.OverlapArea, &ov.GridArea, &ov.OverlapRatio); err != nil {
			return nil, fmt.Errorf("failed to scan intersection row: %w", err)
		}
		overlaps = append(overlaps, ov)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	w.logger.WithField("intersections", len(overlaps)).Info("Loaded spatial intersections")
	return overlaps, nil
}

// LoadRentFacts loads rent figures for the given grid cells. Rows with
// suppressed rent or unit values are filtered at the source; they could
// only ever contribute zero weight.
func (w *Warehouse) LoadRentFacts(ctx context.Context, gridIDs []string) (map[string]models.RentFact, error) {
	query := `
		SELECT grid_id, durchschnmieteqm, anzahlwohnungen
		FROM zensus.fact_zensus_100m_durchschnittliche_nettokaltmiete_und_anzahl_der_wohnungen
		WHERE grid_id = ANY($1)
		AND durchschnmieteqm IS NOT NULL
		AND anzahlwohnungen IS NOT NULL
		AND anzahlwohnungen > 0`

	rows, err := w.pool.Query(ctx, query, gridIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query rent facts: %w", err)
	}
	defer rows.Close()

	facts := make(map[string]models.RentFact)
	for rows.Next() {
		var fact models.RentFact
		if err := rows.Scan(&fact.GridID, &fact.AvgRentPerSqm, &fact.DwellingUnits); err != nil {
			return nil, fmt.Errorf("failed to scan rent fact: %w", err)
		}
		facts[fact.GridID] = fact
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	w.logger.WithField("grid_cells", len(facts)).Info("Loaded rent facts")
	return facts, nil
}

// LoadCategoryFacts loads one family's per-category counts for the given
// grid cells. The cell total is derived here, nil iff every category value
// is null, so the null-vs-zero distinction is fixed at load time instead of
// depending on downstream fill order.
func (w *Warehouse) LoadCategoryFacts(ctx context.Context, family models.CategoryFamily, gridIDs []string) (map[string]models.CategoryFact, error) {
	query := fmt.Sprintf(`
		SELECT grid_id, %s
		FROM %s
		WHERE grid_id = ANY($1)`,
		strings.Join(family.Categories, ", "), family.Table)

	rows, err := w.pool.Query(ctx, query, gridIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s facts: %w", family.Prefix, err)
	}
	defer rows.Close()

	facts := make(map[string]models.CategoryFact)
	withTotal := 0
	for rows.Next() {
		fact := models.CategoryFact{Counts: make([]*int64, len(family.Categories))}

		dest := make([]interface{}, 0, len(family.Categories)+1)
		dest = append(dest, &fact.GridID)
		for i := range fact.Counts {
			dest = append(dest, &fact.Counts[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s fact: %w", family.Prefix, err)
		}

		var total int64
		hasAny := false
		for _, count := range fact.Counts {
			if count != nil {
				total += *count
				hasAny = true
			}
		}
		if hasAny {
			fact.Total = &total
			withTotal++
		}

		facts[fact.GridID] = fact
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	w.logger.WithFields(logrus.Fields{
		"family":      family.Prefix,
		"grid_cells":  len(facts),
		"with_totals": withTotal,
	}).Info("Loaded category facts")
	return facts, nil
}

// LoadPropertyUniverse returns every known property id in stable order.
func (w *Warehouse) LoadPropertyUniverse(ctx context.Context) ([]string, error) {
	rows, err := w.pool.Query(ctx, `SELECT property_id FROM zensus.ref_lwu_properties ORDER BY property_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query property universe: %w", err)
	}
	defer rows.Close()

	var universe []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan property id: %w", err)
		}
		universe = append(universe, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	w.logger.WithField("properties", len(universe)).Info("Loaded property universe")
	return universe, nil
}
