package geocode

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultGoogleEndpoint is the Google geocoding JSON endpoint.
const DefaultGoogleEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"

// Google talks to the Google geocoding web service, whose status values
// are the ones [Status] models.
type Google struct {
	Key      string
	Endpoint string
	Language string
	Client   *http.Client
}

// NewGoogle creates a Google provider.
func NewGoogle(key, language string) *Google {
	return &Google{
		Key:      key,
		Endpoint: DefaultGoogleEndpoint,
		Language: language,
		Client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Geocode looks up address.
func (g *Google) Geocode(ctx context.Context, address string) (Result, error) {
	q := url.Values{"address": {address}}
	res, err := g.get(ctx, q)
	if err != nil {
		return Result{Status: StatusError}, err
	}

	status := Status(res.Get("status").String())
	if status == "" {
		status = StatusUnknownError
	}
	if status != StatusOK {
		return Result{Status: status}, nil
	}

	first := res.Get("results.0")
	if !first.Exists() {
		return Result{Status: StatusZeroResults}, nil
	}
	return Result{
		Lat:     first.Get("geometry.location.lat").Float(),
		Lng:     first.Get("geometry.location.lng").Float(),
		Address: first.Get("formatted_address").String(),
		Status:  StatusOK,
	}, nil
}

// Reverse returns the formatted address of the first result at lat, lng.
func (g *Google) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{"latlng": {
		strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64),
	}}
	res, err := g.get(ctx, q)
	if err != nil {
		return "", err
	}
	if status := Status(res.Get("status").String()); status != StatusOK {
		return "", fmt.Errorf("reverse geocode: %s", status)
	}
	return res.Get("results.0.formatted_address").String(), nil
}

func (g *Google) get(ctx context.Context, q url.Values) (gjson.Result, error) {
	if g.Key == "" {
		return gjson.Result{}, ErrMapKeyMissing
	}
	q.Set("key", g.Key)
	if g.Language != "" {
		q.Set("language", g.Language)
	}

	endpoint := g.Endpoint
	if endpoint == "" {
		endpoint = DefaultGoogleEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to create request: %w", err)
	}

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read geocode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("geocode request: HTTP %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("geocode response is not JSON")
	}
	return gjson.ParseBytes(body), nil
}
