package geocode

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/joeblew999/plat-tablemap/internal/location"
)

// Placement is a location with the coordinates it was geocoded to.
type Placement struct {
	Location location.Location
	Lat      float64
	Lng      float64
	Address  string
}

// Stats summarizes one Resolve run.
type Stats struct {
	Resolved int `json:"resolved"`
	Skipped  int `json:"skipped"`
	Stale    int `json:"stale"`
	Requests int `json:"requests"`
}

// Resolver geocodes locations strictly one after another so only one
// provider request is ever in flight.
type Resolver struct {
	geocoder  Geocoder
	rateLimit RetryPolicy
	transient RetryPolicy
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithRateLimitPolicy sets the policy applied to OVER_QUERY_LIMIT.
func WithRateLimitPolicy(p RetryPolicy) ResolverOption {
	return func(r *Resolver) { r.rateLimit = p }
}

// WithTransientPolicy sets the policy applied to UNKNOWN_ERROR and ERROR.
func WithTransientPolicy(p RetryPolicy) ResolverOption {
	return func(r *Resolver) { r.transient = p }
}

// WithSleep replaces the backoff wait, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) ResolverOption {
	return func(r *Resolver) { r.sleep = fn }
}

// NewResolver creates a resolver over g.
func NewResolver(g Geocoder, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		geocoder:  g,
		rateLimit: RateLimitPolicy(time.Second),
		transient: TransientPolicy(time.Second, 0),
		sleep:     Sleep,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve geocodes locs in order and calls emit for each resolved one.
// activeColumn returns the geo column currently configured; results for a
// location of another column are dropped as stale. Resolve stops early
// only when ctx ends or the provider has no API key.
func (r *Resolver) Resolve(ctx context.Context, locs []location.Location, activeColumn func() string, emit func(index int, p Placement)) (Stats, error) {
	var stats Stats
	for i := range locs {
		loc := locs[i]
		p, err := r.resolveOne(ctx, loc, &stats)
		if err != nil {
			return stats, err
		}
		if p == nil {
			stats.Skipped++
			continue
		}
		if activeColumn != nil && loc.ColumnName != activeColumn() {
			stats.Stale++
			continue
		}
		stats.Resolved++
		if emit != nil {
			emit(i, *p)
		}
	}
	return stats, nil
}

// resolveOne runs the retry state machine for one location. A nil
// placement means the location was given up on.
func (r *Resolver) resolveOne(ctx context.Context, loc location.Location, stats *Stats) (*Placement, error) {
	address := loc.Address()
	limited, failed := 1, 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := r.geocoder.Geocode(ctx, address)
		stats.Requests++
		if err != nil {
			if errors.Is(err, ErrMapKeyMissing) || ctx.Err() != nil {
				return nil, err
			}
			r.logger.Debug("geocode request failed", "row", loc.RowID, "address", address, "error", err)
			res.Status = StatusError
		}

		switch {
		case res.Status == StatusOK:
			return &Placement{Location: loc, Lat: res.Lat, Lng: res.Lng, Address: address}, nil

		case res.Status == StatusOverQueryLimit:
			if !r.rateLimit.Allows(limited) {
				r.logger.Warn("geocode rate limited, skipping location", "row", loc.RowID, "address", address, "attempts", limited)
				return nil, nil
			}
			if err := r.sleep(ctx, r.rateLimit.Delay(limited)); err != nil {
				return nil, err
			}
			limited++

		case res.Status.Transient():
			failed++
			if !r.transient.Allows(failed) {
				r.logger.Warn("geocode keeps failing, skipping location", "row", loc.RowID, "address", address, "attempts", failed)
				return nil, nil
			}
			if err := r.sleep(ctx, r.transient.Delay(failed)); err != nil {
				return nil, err
			}
			limited = 1

		case res.Status == StatusInvalidRequest, res.Status == StatusRequestDenied:
			r.logger.Debug("geocode rejected", "row", loc.RowID, "address", address, "status", res.Status)
			return nil, nil

		default:
			r.logger.Info("address not found", "row", loc.RowID, "address", address, "status", res.Status)
			return nil, nil
		}
	}
}
