package loader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
)

// LWUProperty is one parcel owned by a state housing company.
type LWUProperty struct {
	PropertyID string
	OriginalID string
	WKT        string
}

// CleanPropertyID strips the trailing underscore padding the source export
// carries, lwu_fls.11058003400457______ becomes lwu_fls.11058003400457.
func CleanPropertyID(id string) string {
	return strings.TrimRight(id, "_")
}

// ParseLWUGeoJSON reads the parcel FeatureCollection, cleans the ids and
// drops duplicates, keeping the first occurrence. The second return is the
// number of duplicates dropped.
func ParseLWUGeoJSON(path string) ([]LWUProperty, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse GeoJSON %s: %w", path, err)
	}

	seen := make(map[string]bool)
	var properties []LWUProperty
	duplicates := 0
	for _, feature := range fc.Features {
		originalID := featureID(feature)
		if originalID == "" {
			continue
		}
		propertyID := CleanPropertyID(originalID)
		if seen[propertyID] {
			duplicates++
			continue
		}
		seen[propertyID] = true

		properties = append(properties, LWUProperty{
			PropertyID: propertyID,
			OriginalID: originalID,
			WKT:        wkt.MarshalString(feature.Geometry),
		})
	}

	return properties, duplicates, nil
}

func featureID(feature *geojson.Feature) string {
	if id, ok := feature.ID.(string); ok && id != "" {
		return id
	}
	if id, ok := feature.Properties["id"].(string); ok {
		return id
	}
	return ""
}

// PropertyLoader loads LWU parcels into zensus.ref_lwu_properties.
type PropertyLoader struct {
	pool      *pgxpool.Pool
	logger    *logrus.Logger
	chunkSize int
}

func NewPropertyLoader(pool *pgxpool.Pool, logger *logrus.Logger) *PropertyLoader {
	return &PropertyLoader{pool: pool, logger: logger, chunkSize: 1000}
}

func (l *PropertyLoader) Load(ctx context.Context, path string) error {
	properties, duplicates, err := ParseLWUGeoJSON(path)
	if err != nil {
		return err
	}
	if duplicates > 0 {
		l.logger.WithField("duplicates", duplicates).Warn("Duplicate property ids in GeoJSON, keeping first occurrences")
	}

	l.logger.WithFields(logrus.Fields{
		"properties": len(properties),
		"crs":        "EPSG:3035",
	}).Info("Loading LWU properties")

	query := `
		INSERT INTO zensus.ref_lwu_properties (property_id, original_id, geom)
		VALUES ($1, $2, ST_GeomFromText($3, 3035))
		ON CONFLICT (property_id) DO NOTHING`

	inserted := 0
	for start := 0; start < len(properties); start += l.chunkSize {
		end := start + l.chunkSize
		if end > len(properties) {
			end = len(properties)
		}

		tx, err := l.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		for _, p := range properties[start:end] {
			if _, err := tx.Exec(ctx, query, p.PropertyID, p.OriginalID, p.WKT); err != nil {
				tx.Rollback(ctx)
				return fmt.Errorf("failed to insert property %s: %w", p.PropertyID, err)
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit chunk: %w", err)
		}

		inserted = end
		l.logger.WithFields(logrus.Fields{
			"inserted": inserted,
			"total":    len(properties),
		}).Info("Inserted property chunk")
	}
	return nil
}
