package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"reddata/warehouse/internal/models"
)

// Parking spaces and garages are listed alongside flats in the scraper
// database but are useless for rent statistics.
const listingTypeFilter = `
	(immo_type_scraped IS NULL
	 OR (LOWER(immo_type_scraped) NOT LIKE '%stellplatz%'
	     AND LOWER(immo_type_scraped) NOT LIKE '%stellplaetz%'
	     AND LOWER(immo_type_scraped) NOT LIKE '%garage%'
	     AND LOWER(immo_type_scraped) NOT LIKE '%tiefgarage%'
	     AND LOWER(immo_type_scraped) NOT LIKE '%parkplatz%'))`

// Scraper reads listings from the external housing scraper database.
type Scraper struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

func NewScraper(pool *pgxpool.Pool, logger *logrus.Logger) *Scraper {
	return &Scraper{pool: pool, logger: logger}
}

func (s *Scraper) Close() {
	s.pool.Close()
}

// FetchSince returns listings scraped after the given timestamp, oldest
// first. A nil timestamp fetches everything; limit <= 0 means no limit.
func (s *Scraper) FetchSince(ctx context.Context, since *time.Time, limit int) ([]*models.Listing, error) {
	query := `
		SELECT internal_id, url, immo_type_scraped, strasse_normalized,
		       hausnummer, plz, ort, price_eur, living_area_sqm, num_rooms,
		       date_scraped
		FROM all_properties
		WHERE ` + listingTypeFilter

	args := []interface{}{}
	if since != nil {
		args = append(args, *since)
		query += fmt.Sprintf(" AND date_scraped > $%d", len(args))
	}
	query += " ORDER BY date_scraped"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l := &models.Listing{GeocodingStatus: models.GeocodingPending}
		if err := rows.Scan(&l.InternalID, &l.URL, &l.ImmoType, &l.Street,
			&l.HouseNumber, &l.PostalCode, &l.City, &l.PriceEUR,
			&l.LivingArea, &l.NumRooms, &l.DateScraped); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read listings: %w", err)
	}

	s.logger.WithField("count", len(listings)).Info("Fetched listings from scraper database")
	return listings, nil
}
