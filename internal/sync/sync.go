package sync

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"reddata/warehouse/config"
	"reddata/warehouse/internal/database"
	"reddata/warehouse/internal/geocoding"
	"reddata/warehouse/internal/models"
	"reddata/warehouse/internal/processor"
	"reddata/warehouse/internal/queue"
)

// Geocoder resolves address components to coordinates.
type Geocoder interface {
	GeocodeComponents(ctx context.Context, street, houseNumber, postalCode, city string) (geocoding.Result, error)
}

// Source fetches listings from the external scraper database.
type Source interface {
	FetchSince(ctx context.Context, since *time.Time, limit int) ([]*models.Listing, error)
}

// Options control a single sync run.
type Options struct {
	// Full ignores the last sync timestamp and fetches everything
	Full bool

	// Limit caps the number of listings fetched (0 = no limit)
	Limit int

	// GeocodeLimit caps the number of listings geocoded; the rest are
	// marked skipped (0 = no limit)
	GeocodeLimit int
}

// Syncer pulls listings from the scraper database, geocodes them and
// upserts them into housing.properties.
type Syncer struct {
	warehouse *database.Warehouse
	source    Source
	geocoder  Geocoder
	config    *config.Config
	logger    *logrus.Logger
}

func NewSyncer(warehouse *database.Warehouse, source Source, geocoder Geocoder, cfg *config.Config, logger *logrus.Logger) *Syncer {
	return &Syncer{
		warehouse: warehouse,
		source:    source,
		geocoder:  geocoder,
		config:    cfg,
		logger:    logger,
	}
}

// Run executes one sync: fetch, geocode, batch-upsert, geometry backfill.
func (s *Syncer) Run(ctx context.Context, opts Options) error {
	start := time.Now()
	s.logger.Info("Housing data sync started")

	var since *time.Time
	if !opts.Full {
		last, err := s.warehouse.LastSyncTime(ctx)
		if err != nil {
			return err
		}
		if last == nil {
			s.logger.Info("No previous sync found, doing a full sync")
		} else {
			s.logger.WithField("last_sync", last.Format(time.RFC3339)).Info("Running incremental sync")
		}
		since = last
	}

	listings, err := s.source.FetchSince(ctx, since, opts.Limit)
	if err != nil {
		return err
	}
	if len(listings) == 0 {
		s.logger.Info("No new listings to sync")
		return nil
	}

	counts := s.geocodeListings(ctx, listings, opts.GeocodeLimit)

	if err := s.upsertListings(ctx, listings); err != nil {
		return err
	}

	backfilled, err := s.warehouse.BackfillListingGeometry(ctx)
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"total":           len(listings),
		"geocoded":        counts.success,
		"failed":          counts.failed,
		"cached":          counts.cached,
		"geom_backfilled": backfilled,
		"elapsed":         time.Since(start).String(),
	}).Info("Housing data sync complete")
	return nil
}

// RetryFailed re-geocodes listings whose previous geocoding failed and
// writes the new outcomes back in place.
func (s *Syncer) RetryFailed(ctx context.Context) error {
	listings, err := s.warehouse.LoadUngeocodedListings(ctx)
	if err != nil {
		return err
	}
	if len(listings) == 0 {
		s.logger.Info("No failed listings to retry")
		return nil
	}
	s.logger.WithField("count", len(listings)).Info("Retrying failed geocoding")

	counts := s.geocodeListings(ctx, listings, 0)

	if err := s.warehouse.UpdateGeocodingResults(ctx, listings); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"retried":      len(listings),
		"success":      counts.success,
		"still_failed": counts.failed,
		"cached":       counts.cached,
	}).Info("Geocoding retry complete")
	return nil
}

type geocodeCounts struct {
	success int
	failed  int
	cached  int
}

func (s *Syncer) geocodeListings(ctx context.Context, listings []*models.Listing, limit int) geocodeCounts {
	total := len(listings)
	if limit > 0 && limit < total {
		total = limit
	}

	var counts geocodeCounts
	for i, l := range listings {
		if limit > 0 && i >= limit {
			l.GeocodingStatus = models.GeocodingSkipped
			continue
		}
		if ctx.Err() != nil {
			l.GeocodingStatus = models.GeocodingSkipped
			continue
		}

		s.geocodeListing(ctx, l, &counts)

		if (i+1)%10 == 0 {
			s.logger.WithFields(logrus.Fields{
				"done":    i + 1,
				"total":   total,
				"success": counts.success,
				"failed":  counts.failed,
				"cached":  counts.cached,
			}).Info("Geocoding progress")
		}
	}

	if limit > 0 && len(listings) > limit {
		s.logger.WithField("skipped", len(listings)-limit).Info("Skipped geocoding, limit reached")
	}
	return counts
}

func (s *Syncer) geocodeListing(ctx context.Context, l *models.Listing, counts *geocodeCounts) {
	street := strval(l.Street)
	houseNumber := strval(l.HouseNumber)
	postalCode := strval(l.PostalCode)
	city := CleanCity(strval(l.City))

	if !HasUsableAddress(street, postalCode, city) {
		s.logger.WithField("internal_id", l.InternalID).Warn("Skipping listing, insufficient address components")
		markFailed(l, "NO_ADDRESS")
		counts.failed++
		return
	}

	result, err := s.geocoder.GeocodeComponents(ctx, street, houseNumber, postalCode, city)
	if err != nil {
		markFailed(l, err.Error())
		counts.failed++
		return
	}

	// German postal codes are specific enough that a bad city name is
	// often the only reason a lookup misses.
	if !result.Success && postalCode != "" && street != "" {
		result, err = s.geocoder.GeocodeComponents(ctx, street, houseNumber, postalCode, "")
		if err != nil {
			markFailed(l, err.Error())
			counts.failed++
			return
		}
	}

	if result.Success {
		now := time.Now()
		l.Latitude = &result.Latitude
		l.Longitude = &result.Longitude
		l.GeocodingStatus = models.GeocodingSuccess
		l.GeocodedAddress = &result.DisplayName
		l.LastGeocodedAt = &now
		counts.success++
		if result.Cached {
			counts.cached++
		}
		return
	}

	markFailed(l, result.ErrorMessage)
	counts.failed++
}

// upsertListings pushes fixed-size batches through the queue and waits for
// the processors to drain it.
func (s *Syncer) upsertListings(ctx context.Context, listings []*models.Listing) error {
	now := time.Now()
	for _, l := range listings {
		l.SyncedAt = now
	}

	batchSize := s.config.BatchProcessing.MaxBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	q := queue.NewListingQueue(len(listings)/batchSize+1, s.logger)
	p := processor.NewBatchProcessor(s.warehouse, q, s.config, s.logger)
	p.Start()

	for start := 0; start < len(listings); start += batchSize {
		end := start + batchSize
		if end > len(listings) {
			end = len(listings)
		}
		if err := q.Push(listings[start:end]); err != nil {
			q.Close()
			p.Wait()
			return err
		}
	}

	q.Close()
	p.Wait()
	return nil
}

// CleanCity strips the Ortsteil suffix scrapers leave in city names,
// "Leipzig OT Gohlis" becomes "Leipzig".
func CleanCity(city string) string {
	if idx := strings.Index(city, " OT "); idx >= 0 {
		return strings.TrimSpace(city[:idx])
	}
	return city
}

// HasUsableAddress reports whether the components can be geocoded at all:
// a postal code alone is enough, otherwise street plus city is required.
func HasUsableAddress(street, postalCode, city string) bool {
	if postalCode != "" {
		return true
	}
	return street != "" && city != ""
}

func markFailed(l *models.Listing, message string) {
	l.GeocodingStatus = models.GeocodingFailed
	l.GeocodedAddress = &message
	l.Latitude = nil
	l.Longitude = nil
}

func strval(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}
