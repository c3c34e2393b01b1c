package geocoding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := NewCache(filepath.Join(t.TempDir(), "cache.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "Musterstraße 12, 10115, Berlin, Germany",
		NormalizeAddress("Musterstraße", "12", "10115", "Berlin"))
	assert.Equal(t, "Musterstraße, Berlin, Germany",
		NormalizeAddress("Musterstraße", "", "", "Berlin"))
	assert.Equal(t, "10115, Germany",
		NormalizeAddress("", "", "10115", ""))
	assert.Equal(t, "", NormalizeAddress("", "", "", ""))
}

func TestGeocoder_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "de", r.URL.Query().Get("countrycodes"))
		w.Write([]byte(`[{"lat":"52.52","lon":"13.405","display_name":"Berlin","importance":0.8}]`))
	}))
	defer server.Close()

	g := NewGeocoder(testLogger(), nil, server.URL, 1000, 3)

	result, err := g.Geocode(context.Background(), "Musterstraße 12, 10115, Berlin, Germany")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.InDelta(t, 52.52, result.Latitude, 1e-9)
	assert.InDelta(t, 13.405, result.Longitude, 1e-9)
	assert.Equal(t, "nominatim", result.Provider)
}

func TestGeocoder_NoResultsIsFailureNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	g := NewGeocoder(testLogger(), nil, server.URL, 1000, 3)

	result, err := g.Geocode(context.Background(), "Nowhere 1, Germany")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "No results found", result.ErrorMessage)
}

func TestGeocoder_RetriesThenRecordsFailure(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cache := testCache(t)
	g := NewGeocoder(testLogger(), cache, server.URL, 1000, 2)

	result, err := g.Geocode(context.Background(), "Somewhere 5, Germany")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 2, attempts)

	// The failure is cached so the address is not retried next run.
	cached, err := cache.Get("Somewhere 5, Germany")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.False(t, cached.Success)
}

func TestGeocoder_CacheHitSkipsAPI(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`[{"lat":"48.13","lon":"11.58","display_name":"München","importance":0.7}]`))
	}))
	defer server.Close()

	g := NewGeocoder(testLogger(), testCache(t), server.URL, 1000, 3)

	first, err := g.Geocode(context.Background(), "Marienplatz 1, 80331, München, Germany")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := g.Geocode(context.Background(), "Marienplatz 1, 80331, München, Germany")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Latitude, second.Latitude)
	assert.Equal(t, 1, calls)
}

func TestCache_HashIgnoresCaseAndSpace(t *testing.T) {
	assert.Equal(t, hashAddress(" Hauptstraße 1, Berlin "), hashAddress("hauptstraße 1, berlin"))
	assert.NotEqual(t, hashAddress("Hauptstraße 1"), hashAddress("Hauptstraße 2"))
}

func TestGeocoder_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	g := NewGeocoder(testLogger(), nil, server.URL, 1000, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Geocode(ctx, "Musterstraße 12, Germany")
	assert.ErrorIs(t, err, context.Canceled)
}
