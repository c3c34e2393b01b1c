package models

import "time"

// Geocoding status values stored on housing.properties rows.
const (
	GeocodingPending = "pending"
	GeocodingSuccess = "success"
	GeocodingFailed  = "failed"
	GeocodingSkipped = "skipped"
)

// Listing is one scraped housing listing as synced from the external
// scraper database into housing.properties.
type Listing struct {
	InternalID      string     `json:"internal_id"`
	URL             *string    `json:"url"`
	ImmoType        *string    `json:"immo_type_scraped"`
	Street          *string    `json:"strasse_normalized"`
	HouseNumber     *string    `json:"hausnummer"`
	PostalCode      *string    `json:"plz"`
	City            *string    `json:"ort"`
	PriceEUR        *float64   `json:"price_eur"`
	LivingArea      *float64   `json:"living_area_sqm"`
	NumRooms        *float64   `json:"num_rooms"`
	DateScraped     time.Time  `json:"date_scraped"`
	Latitude        *float64   `json:"latitude"`
	Longitude       *float64   `json:"longitude"`
	GeocodingStatus string     `json:"geocoding_status"`
	GeocodedAddress *string    `json:"geocoded_address"`
	LastGeocodedAt  *time.Time `json:"last_geocoded_at"`
	SyncedAt        time.Time  `json:"synced_at"`
}
