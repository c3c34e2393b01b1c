package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"reddata/warehouse/internal/models"
)

// UpsertStats writes the aggregation results with replace-on-conflict
// semantics on property_id, making a rerun safe.
func (w *Warehouse) UpsertStats(ctx context.Context, rows []models.PropertyStats) error {
	cols := models.StatsColumns()

	placeholders := make([]string, 0, len(cols)+2)
	updates := make([]string, 0, len(cols)+1)
	for i := 0; i < len(cols)+2; i++ {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
	}
	for _, col := range cols {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	updates = append(updates, "created_at = EXCLUDED.created_at")

	query := fmt.Sprintf(`
		INSERT INTO analytics.fact_lwu_weighted_stats (property_id, %s, created_at)
		VALUES (%s)
		ON CONFLICT (property_id) DO UPDATE SET %s`,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "))

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, row := range rows {
		args := make([]interface{}, 0, len(cols)+2)
		args = append(args, row.PropertyID)
		for _, v := range row.NumericValues() {
			args = append(args, v)
		}
		args = append(args, row.CreatedAt)

		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to upsert stats for property %s: %w", row.PropertyID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit stats upsert: %w", err)
	}

	w.logger.WithField("rows", len(rows)).Info("Upserted weighted stats")
	return nil
}

var listingColumns = []string{
	"internal_id", "url", "immo_type_scraped", "strasse_normalized",
	"hausnummer", "plz", "ort", "price_eur", "living_area_sqm", "num_rooms",
	"date_scraped", "latitude", "longitude", "geocoding_status",
	"geocoded_address", "last_geocoded_at", "synced_at",
}

// UpsertListings writes one batch of housing listings inside the given
// transaction, replacing on internal_id.
func UpsertListings(ctx context.Context, tx pgx.Tx, listings []*models.Listing) error {
	placeholders := make([]string, len(listingColumns))
	updates := make([]string, 0, len(listingColumns)-1)
	for i, col := range listingColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if col != "internal_id" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO housing.properties (%s)
		VALUES (%s)
		ON CONFLICT (internal_id) DO UPDATE SET %s`,
		strings.Join(listingColumns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "))

	for _, l := range listings {
		_, err := tx.Exec(ctx, query,
			l.InternalID, l.URL, l.ImmoType, l.Street, l.HouseNumber, l.PostalCode,
			l.City, l.PriceEUR, l.LivingArea, l.NumRooms, l.DateScraped,
			l.Latitude, l.Longitude, l.GeocodingStatus, l.GeocodedAddress,
			l.LastGeocodedAt, l.SyncedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert listing %s: %w", l.InternalID, err)
		}
	}
	return nil
}

// UpsertListingBatch runs one listing batch in its own transaction.
func (w *Warehouse) UpsertListingBatch(ctx context.Context, batch []*models.Listing) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := UpsertListings(ctx, tx, batch); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// BackfillListingGeometry materializes point geometries for listings that
// have coordinates but no geom yet.
func (w *Warehouse) BackfillListingGeometry(ctx context.Context) (int64, error) {
	tag, err := w.pool.Exec(ctx, `
		UPDATE housing.properties
		SET geom = ST_SetSRID(ST_MakePoint(longitude, latitude), 4326)
		WHERE latitude IS NOT NULL
		AND longitude IS NOT NULL
		AND geom IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to backfill listing geometry: %w", err)
	}
	return tag.RowsAffected(), nil
}

// LoadUngeocodedListings returns listings whose geocoding failed, never
// ran, or left no coordinates behind.
func (w *Warehouse) LoadUngeocodedListings(ctx context.Context) ([]*models.Listing, error) {
	rows, err := w.pool.Query(ctx, `
		SELECT internal_id, strasse_normalized, hausnummer, plz, ort
		FROM housing.properties
		WHERE geocoding_status IN ('failed', 'pending')
		   OR geocoding_status IS NULL
		   OR (latitude IS NULL AND longitude IS NULL)
		ORDER BY internal_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load ungeocoded listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l := &models.Listing{GeocodingStatus: models.GeocodingPending}
		if err := rows.Scan(&l.InternalID, &l.Street, &l.HouseNumber, &l.PostalCode, &l.City); err != nil {
			return nil, fmt.Errorf("failed to scan ungeocoded listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ungeocoded listings: %w", err)
	}
	return listings, nil
}

// UpdateGeocodingResults writes fresh geocoding outcomes back onto
// existing rows, including the point geometry.
func (w *Warehouse) UpdateGeocodingResults(ctx context.Context, listings []*models.Listing) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, l := range listings {
		_, err := tx.Exec(ctx, `
			UPDATE housing.properties
			SET latitude = $2,
			    longitude = $3,
			    geocoding_status = $4,
			    geocoded_address = $5,
			    last_geocoded_at = $6,
			    geom = CASE
			        WHEN $2::float8 IS NOT NULL AND $3::float8 IS NOT NULL
			        THEN ST_SetSRID(ST_MakePoint($3, $2), 4326)
			        ELSE NULL
			    END
			WHERE internal_id = $1`,
			l.InternalID, l.Latitude, l.Longitude, l.GeocodingStatus,
			l.GeocodedAddress, l.LastGeocodedAt)
		if err != nil {
			return fmt.Errorf("failed to update geocoding for %s: %w", l.InternalID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit geocoding update: %w", err)
	}

	w.logger.WithField("rows", len(listings)).Info("Updated geocoding results")
	return nil
}

// LastSyncTime returns the most recent date_scraped in housing.properties,
// or nil when the table is empty (first sync).
func (w *Warehouse) LastSyncTime(ctx context.Context) (*time.Time, error) {
	var last *time.Time
	err := w.pool.QueryRow(ctx, `SELECT MAX(date_scraped) FROM housing.properties`).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to determine last sync timestamp: %w", err)
	}
	return last, nil
}
