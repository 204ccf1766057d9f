package geocode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/muesli/gominatim"
)

// DefaultNominatimServer is the public OpenStreetMap Nominatim instance.
const DefaultNominatimServer = "https://nominatim.openstreetmap.org"

// gominatim keeps its server URL in package state, so requests from every
// Nominatim value take turns on this slot.
var nominatimSlot = make(chan struct{}, 1)

// Nominatim geocodes through an OSM Nominatim server. Nominatim has no
// status enum: failed requests map to ERROR and empty answers to
// ZERO_RESULTS.
type Nominatim struct {
	Server string
	// MinInterval throttles requests; the public server allows one per second.
	MinInterval time.Duration

	last time.Time // guarded by nominatimSlot
}

// NewNominatim creates a Nominatim provider.
func NewNominatim(server string) *Nominatim {
	if strings.TrimSpace(server) == "" {
		server = DefaultNominatimServer
	}
	return &Nominatim{Server: server, MinInterval: time.Second}
}

// Geocode looks up address and returns the best match.
func (n *Nominatim) Geocode(ctx context.Context, address string) (Result, error) {
	var res []gominatim.SearchResult
	err := n.do(ctx, func() (err error) {
		q := gominatim.SearchQuery{Q: address, Limit: 1}
		res, err = q.Get()
		return err
	})
	if isContextErr(err) {
		return Result{}, err
	}
	if err != nil {
		return Result{Status: StatusError}, fmt.Errorf("nominatim search: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(res) == 0 {
		return Result{Status: StatusZeroResults}, nil
	}

	lat, errLat := strconv.ParseFloat(res[0].Lat, 64)
	lng, errLng := strconv.ParseFloat(res[0].Lon, 64)
	if errLat != nil || errLng != nil {
		return Result{Status: StatusInvalidRequest}, nil
	}
	return Result{Lat: lat, Lng: lng, Address: res[0].DisplayName, Status: StatusOK}, nil
}

// Reverse returns the display name of the place at lat, lng.
func (n *Nominatim) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	var res *gominatim.ReverseResult
	err := n.do(ctx, func() (err error) {
		q := gominatim.ReverseQuery{
			Lat: strconv.FormatFloat(lat, 'f', -1, 64),
			Lon: strconv.FormatFloat(lng, 'f', -1, 64),
		}
		res, err = q.Get()
		return err
	})
	if isContextErr(err) {
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("nominatim reverse: %w", err)
	}
	if res == nil {
		return "", nil
	}
	return res.DisplayName, nil
}

// do runs one request while holding the slot. Requests are spaced by
// MinInterval, measured from the end of the previous request.
func (n *Nominatim) do(ctx context.Context, request func() error) error {
	select {
	case nominatimSlot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-nominatimSlot }()

	if wait := n.MinInterval - time.Since(n.last); wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	gominatim.SetServer(n.Server)
	err := request()
	n.last = time.Now()
	return err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
