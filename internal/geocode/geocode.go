// Package geocode converts addresses to coordinates and back.
//
// Providers report the outcome of a lookup through [Status]; the
// [Resolver] walks a list of locations one request at a time and decides
// from the status whether to emit, retry or move on.
package geocode

import (
	"context"
	"errors"
)

// Status is the provider outcome of one lookup.
type Status string

const (
	StatusOK             Status = "OK"
	StatusOverQueryLimit Status = "OVER_QUERY_LIMIT"
	StatusInvalidRequest Status = "INVALID_REQUEST"
	StatusRequestDenied  Status = "REQUEST_DENIED"
	StatusUnknownError   Status = "UNKNOWN_ERROR"
	StatusError          Status = "ERROR"
	StatusZeroResults    Status = "ZERO_RESULTS"
)

// Transient reports whether the lookup may succeed if retried unchanged.
func (s Status) Transient() bool {
	return s == StatusUnknownError || s == StatusError
}

// ErrMapKeyMissing is returned by providers that need an API key when none
// is configured.
var ErrMapKeyMissing = errors.New("map API key missing")

// Result is the outcome of one address lookup. Lat and Lng are only set
// when Status is OK.
type Result struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
	Status  Status  `json:"status"`
}

// Geocoder resolves an address to coordinates. Provider rejections are
// reported through Result.Status; the error is reserved for failures the
// provider could not classify, which callers treat as StatusError.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Result, error)
}

// ReverseGeocoder resolves coordinates to a formatted address.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (string, error)
}

// Provider is a geocoder that also reverse geocodes.
type Provider interface {
	Geocoder
	ReverseGeocoder
}
