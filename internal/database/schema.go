package database

import (
	"context"
	"fmt"
	"strings"

	"reddata/warehouse/internal/models"
)

// EnsureSchemas creates the warehouse schemas and the static reference and
// housing tables. Zensus fact tables are created dynamically by the loader
// from the dataset folder structure.
func (w *Warehouse) EnsureSchemas(ctx context.Context) error {
	ddl := `
		CREATE EXTENSION IF NOT EXISTS postgis;

		CREATE SCHEMA IF NOT EXISTS zensus;
		CREATE SCHEMA IF NOT EXISTS housing;
		CREATE SCHEMA IF NOT EXISTS analytics;

		CREATE TABLE IF NOT EXISTS zensus.ref_grid_100m (
			grid_id TEXT PRIMARY KEY,
			geom geometry(Polygon, 3035)
		);
		CREATE INDEX IF NOT EXISTS idx_ref_grid_100m_geom ON zensus.ref_grid_100m USING gist (geom);

		CREATE TABLE IF NOT EXISTS zensus.ref_grid_1km (
			grid_id TEXT PRIMARY KEY,
			geom geometry(Polygon, 3035)
		);
		CREATE INDEX IF NOT EXISTS idx_ref_grid_1km_geom ON zensus.ref_grid_1km USING gist (geom);

		CREATE TABLE IF NOT EXISTS zensus.ref_grid_10km (
			grid_id TEXT PRIMARY KEY,
			geom geometry(Polygon, 3035)
		);
		CREATE INDEX IF NOT EXISTS idx_ref_grid_10km_geom ON zensus.ref_grid_10km USING gist (geom);

		CREATE TABLE IF NOT EXISTS zensus.ref_lwu_properties (
			property_id TEXT PRIMARY KEY,
			original_id TEXT,
			geom geometry(Geometry, 3035)
		);
		CREATE INDEX IF NOT EXISTS idx_ref_lwu_properties_geom ON zensus.ref_lwu_properties USING gist (geom);

		CREATE TABLE IF NOT EXISTS zensus.ref_vg250 (
			ags TEXT,
			gen TEXT,
			bez TEXT,
			level TEXT,
			geom geometry(Geometry, 3035),
			PRIMARY KEY (ags, level)
		);
		CREATE INDEX IF NOT EXISTS idx_ref_vg250_geom ON zensus.ref_vg250 USING gist (geom);

		CREATE TABLE IF NOT EXISTS zensus.fact_elections (
			ags TEXT NOT NULL,
			election TEXT NOT NULL,
			party TEXT NOT NULL,
			votes BIGINT,
			PRIMARY KEY (ags, election, party)
		);

		CREATE TABLE IF NOT EXISTS housing.properties (
			internal_id TEXT PRIMARY KEY,
			url TEXT,
			immo_type_scraped TEXT,
			strasse_normalized TEXT,
			hausnummer TEXT,
			plz TEXT,
			ort TEXT,
			price_eur DOUBLE PRECISION,
			living_area_sqm DOUBLE PRECISION,
			num_rooms DOUBLE PRECISION,
			date_scraped TIMESTAMP,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			geocoding_status TEXT NOT NULL DEFAULT 'pending',
			geocoded_address TEXT,
			last_geocoded_at TIMESTAMP,
			synced_at TIMESTAMP,
			geom geometry(Point, 4326)
		);
		CREATE INDEX IF NOT EXISTS idx_housing_properties_geom ON housing.properties USING gist (geom);
		CREATE INDEX IF NOT EXISTS idx_housing_properties_status ON housing.properties (geocoding_status);
	`

	if _, err := w.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create schemas: %w", err)
	}

	if err := w.EnsureStatsTable(ctx); err != nil {
		return err
	}

	w.logger.Info("Warehouse schemas ensured")
	return nil
}

// EnsureStatsTable creates the aggregation result table with one column per
// statistic, in the order models.StatsColumns defines.
func (w *Warehouse) EnsureStatsTable(ctx context.Context) error {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS analytics.fact_lwu_weighted_stats (\n")
	b.WriteString("\tproperty_id TEXT PRIMARY KEY,\n")
	for _, col := range models.StatsColumns() {
		fmt.Fprintf(&b, "\t%s DOUBLE PRECISION,\n", col)
	}
	b.WriteString("\tcreated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP\n)")

	if _, err := w.pool.Exec(ctx, b.String()); err != nil {
		return fmt.Errorf("failed to create stats table: %w", err)
	}
	return nil
}
