package geocoding

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Cache stores geocoding results, successes and failures alike, in a local
// SQLite database so a re-run never repeats an API call for a known
// address.
type Cache struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewCache(path string, logger *logrus.Logger) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geocoding cache: %w", err)
	}

	ddl := `
		CREATE TABLE IF NOT EXISTS geocoding_cache (
			address_hash TEXT PRIMARY KEY,
			address TEXT NOT NULL,
			latitude REAL,
			longitude REAL,
			display_name TEXT,
			quality REAL,
			provider TEXT,
			success INTEGER NOT NULL,
			error_message TEXT,
			cached_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			hit_count INTEGER DEFAULT 1
		);
		CREATE INDEX IF NOT EXISTS idx_geocoding_cache_success ON geocoding_cache (success);
	`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create geocoding cache table: %w", err)
	}

	return &Cache{db: db, logger: logger}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func hashAddress(address string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(address))))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached result for an address, or nil on a miss. Hits bump
// the hit counter.
func (c *Cache) Get(address string) (*Result, error) {
	hash := hashAddress(address)

	row := c.db.QueryRow(`
		SELECT latitude, longitude, display_name, quality, provider, success, error_message
		FROM geocoding_cache WHERE address_hash = ?`, hash)

	var lat, lon, quality sql.NullFloat64
	var displayName, provider, errorMessage sql.NullString
	var success bool

	err := row.Scan(&lat, &lon, &displayName, &quality, &provider, &success, &errorMessage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache lookup failed: %w", err)
	}

	if _, err := c.db.Exec(`UPDATE geocoding_cache SET hit_count = hit_count + 1 WHERE address_hash = ?`, hash); err != nil {
		c.logger.WithError(err).Warn("Failed to bump cache hit counter")
	}

	result := &Result{
		Success:      success,
		Latitude:     lat.Float64,
		Longitude:    lon.Float64,
		DisplayName:  displayName.String,
		Quality:      quality.Float64,
		Provider:     provider.String,
		ErrorMessage: errorMessage.String,
		Cached:       true,
	}
	return result, nil
}

// Put stores a result under the address, replacing any previous entry.
func (c *Cache) Put(address string, result Result) error {
	_, err := c.db.Exec(`
		INSERT INTO geocoding_cache
			(address_hash, address, latitude, longitude, display_name, quality, provider, success, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address_hash) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			display_name = excluded.display_name,
			quality = excluded.quality,
			provider = excluded.provider,
			success = excluded.success,
			error_message = excluded.error_message,
			cached_at = CURRENT_TIMESTAMP,
			hit_count = geocoding_cache.hit_count + 1`,
		hashAddress(address), address,
		result.Latitude, result.Longitude, result.DisplayName,
		result.Quality, result.Provider, result.Success, result.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to cache geocoding result: %w", err)
	}
	return nil
}
