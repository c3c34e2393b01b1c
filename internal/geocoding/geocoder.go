package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Result is the outcome of a geocoding attempt. Failed lookups are results
// too; they get cached so known-bad addresses are not retried every run.
type Result struct {
	Success      bool
	Latitude     float64
	Longitude    float64
	DisplayName  string
	Quality      float64
	Provider     string
	ErrorMessage string
	Cached       bool
}

// RateLimiter spaces requests out to at most maxPerSecond, Nominatim's
// usage policy allows a single request per second.
type RateLimiter struct {
	minInterval time.Duration
	mu          sync.Mutex
	last        time.Time
}

func NewRateLimiter(maxPerSecond float64) *RateLimiter {
	if maxPerSecond <= 0 {
		maxPerSecond = 1.0
	}
	return &RateLimiter{
		minInterval: time.Duration(float64(time.Second) / maxPerSecond),
	}
}

// Wait blocks until the next request is allowed or the context is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	now := time.Now()
	wait := r.minInterval - now.Sub(r.last)
	if wait < 0 {
		wait = 0
	}
	r.last = now.Add(wait)
	r.mu.Unlock()

	if wait == 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Geocoder resolves German addresses to coordinates via the Nominatim
// search API, with rate limiting, a circuit breaker and cached results.
type Geocoder struct {
	logger     *logrus.Logger
	cache      *Cache
	client     *http.Client
	circuit    *gobreaker.CircuitBreaker
	limiter    *RateLimiter
	baseURL    string
	maxRetries int
	userAgent  string
}

// NewGeocoder creates a geocoder. cache may be nil to disable caching.
func NewGeocoder(logger *logrus.Logger, cache *Cache, baseURL string, rateLimit float64, maxRetries int) *Geocoder {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "nominatim",
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	if maxRetries < 1 {
		maxRetries = 1
	}

	return &Geocoder{
		logger:     logger,
		cache:      cache,
		client:     &http.Client{Timeout: 10 * time.Second},
		circuit:    cb,
		limiter:    NewRateLimiter(rateLimit),
		baseURL:    baseURL,
		maxRetries: maxRetries,
		userAgent:  "RedDataHousingWarehouse/1.0",
	}
}

// NormalizeAddress joins address components into the query string sent to
// the API, appending the country for better matches.
func NormalizeAddress(street, houseNumber, postalCode, city string) string {
	var parts []string

	street = strings.TrimSpace(street)
	houseNumber = strings.TrimSpace(houseNumber)
	if street != "" && houseNumber != "" {
		parts = append(parts, street+" "+houseNumber)
	} else if street != "" {
		parts = append(parts, street)
	}
	if postalCode = strings.TrimSpace(postalCode); postalCode != "" {
		parts = append(parts, postalCode)
	}
	if city = strings.TrimSpace(city); city != "" {
		parts = append(parts, city)
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ", ") + ", Germany"
}

type nominatimResult struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
}

// Geocode resolves a single address string. The returned Result reports
// failure in-band; the error return is reserved for cancellation and cache
// breakage.
func (g *Geocoder) Geocode(ctx context.Context, address string) (Result, error) {
	if g.cache != nil {
		cached, err := g.cache.Get(address)
		if err != nil {
			g.logger.WithError(err).Warn("Geocoding cache lookup failed")
		} else if cached != nil {
			g.logger.WithFields(logrus.Fields{
				"address": address,
				"source":  "cache",
			}).Debug("Found geocoding result in cache")
			return *cached, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff between attempts
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Result{}, ctx.Err()
			case <-timer.C:
			}
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return Result{}, err
		}

		results, err := g.search(ctx, address)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			lastErr = err
			g.logger.WithError(err).WithFields(logrus.Fields{
				"address": address,
				"attempt": attempt + 1,
			}).Warn("Geocoding request failed")
			continue
		}

		result := g.toResult(address, results)
		g.store(address, result)
		return result, nil
	}

	result := Result{
		Success:      false,
		Provider:     "nominatim",
		ErrorMessage: fmt.Sprintf("request failed after %d attempts: %v", g.maxRetries, lastErr),
	}
	g.store(address, result)
	return result, nil
}

// GeocodeComponents normalizes the components and geocodes the result.
func (g *Geocoder) GeocodeComponents(ctx context.Context, street, houseNumber, postalCode, city string) (Result, error) {
	address := NormalizeAddress(street, houseNumber, postalCode, city)
	if address == "" {
		return Result{Success: false, ErrorMessage: "no address components"}, nil
	}
	return g.Geocode(ctx, address)
}

func (g *Geocoder) search(ctx context.Context, address string) ([]nominatimResult, error) {
	params := url.Values{
		"q":              []string{address},
		"format":         []string{"json"},
		"limit":          []string{"1"},
		"countrycodes":   []string{"de"},
		"addressdetails": []string{"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("User-Agent", g.userAgent)

	body, err := g.circuit.Execute(func() (interface{}, error) {
		resp, err := g.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}

	var results []nominatimResult
	if err := json.Unmarshal(body.([]byte), &results); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return results, nil
}

func (g *Geocoder) toResult(address string, results []nominatimResult) Result {
	if len(results) == 0 {
		g.logger.WithField("address", address).Warn("No geocoding results found")
		return Result{
			Success:      false,
			Provider:     "nominatim",
			ErrorMessage: "No results found",
		}
	}

	lat, latErr := strconv.ParseFloat(results[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(results[0].Lon, 64)
	if latErr != nil || lonErr != nil {
		return Result{
			Success:      false,
			Provider:     "nominatim",
			ErrorMessage: "unparseable coordinates in response",
		}
	}

	g.logger.WithFields(logrus.Fields{
		"address":   address,
		"latitude":  lat,
		"longitude": lon,
	}).Info("Successfully geocoded address")

	return Result{
		Success:     true,
		Latitude:    lat,
		Longitude:   lon,
		DisplayName: results[0].DisplayName,
		Quality:     results[0].Importance,
		Provider:    "nominatim",
	}
}

func (g *Geocoder) store(address string, result Result) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Put(address, result); err != nil {
		g.logger.WithError(err).Warn("Failed to cache geocoding result")
	}
}
