// Package mapview runs the map render pipeline: it extracts locations
// from the selected view setting, places coordinates directly or resolves
// addresses through the geocoder, and keeps the marker and cluster layers
// that the API serves.
package mapview

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/joeblew999/plat-tablemap/internal/geocode"
	"github.com/joeblew999/plat-tablemap/internal/host"
	"github.com/joeblew999/plat-tablemap/internal/location"
	"github.com/joeblew999/plat-tablemap/internal/marker"
	"github.com/joeblew999/plat-tablemap/internal/service"
	"github.com/joeblew999/plat-tablemap/internal/settings"
	"github.com/joeblew999/plat-tablemap/internal/templates"
)

// BannerMapKeyMissing is shown when the geocoder has no API key.
const BannerMapKeyMissing = "The map API key is missing. Addresses cannot be placed on the map."

// Progress reports the state of the current render.
type Progress struct {
	Total   int    `json:"total" doc:"Locations extracted"`
	Done    int    `json:"done" doc:"Locations processed"`
	Markers int    `json:"markers" doc:"Visible markers"`
	Skipped int    `json:"skipped" doc:"Locations that could not be placed"`
	Running bool   `json:"running" doc:"Whether a render is in flight"`
	Error   string `json:"error,omitempty" doc:"Last render error"`
}

// Deps are the collaborators of a Service.
type Deps struct {
	Host      host.Context
	Settings  *service.SettingsService
	Viewports *service.ViewportStore
	Extractor *location.Extractor
	Geocoder  geocode.Provider
	Resolver  *geocode.Resolver
	Renderer  *templates.Renderer
	Logger    *slog.Logger
}

// Options tune the map presentation.
type Options struct {
	Touch         bool
	ClusterRadius float64
	ClusterZoom   int
	DefaultZoom   int
	CenterSample  int
	TileURL       func(locale string) string
}

// Service owns the marker and cluster layers of one dataset. Render calls
// never overlap: a new render cancels and waits for the previous one
// before clearing the layers. Renders are numbered when requested, so a
// render that is still queued when a newer one is requested never runs.
type Service struct {
	hc        host.Context
	settings  *service.SettingsService
	viewports *service.ViewportStore
	extractor *location.Extractor
	geocoder  geocode.Provider
	resolver  *geocode.Resolver
	builder   *marker.ClusterBuilder
	markers   *marker.Layer
	clusters  *marker.ClusterLayer
	opts      Options
	logger    *slog.Logger

	runMu   sync.Mutex // serializes Render
	mu      sync.RWMutex
	cancel  context.CancelFunc
	gen     uint64     // last requested render
	settled uint64     // last render that finished or was superseded
	cond    *sync.Cond // broadcast when settled moves

	items     settings.Items
	locations []location.Location
	progress  Progress
	banner    string
	user      *UserLocation
	toast     string
}

// New creates a map service.
func New(d Deps, opts Options) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	resolver := d.Resolver
	if resolver == nil && d.Geocoder != nil {
		resolver = geocode.NewResolver(d.Geocoder, logger)
	}
	if opts.DefaultZoom <= 0 {
		opts.DefaultZoom = 10
	}
	s := &Service{
		hc:        d.Host,
		settings:  d.Settings,
		viewports: d.Viewports,
		extractor: d.Extractor,
		geocoder:  d.Geocoder,
		resolver:  resolver,
		builder:   marker.NewClusterBuilder(d.Renderer, opts.ClusterRadius, opts.ClusterZoom),
		markers:   marker.NewLayer(d.Renderer, d.Host, opts.Touch),
		clusters:  &marker.ClusterLayer{},
		opts:      opts,
		logger:    logger,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start renders the selected view setting in the background.
func (s *Service) Start(ctx context.Context) error {
	_, items, err := s.settings.Selected(ctx)
	if err != nil {
		return err
	}
	s.StartItems(items)
	return nil
}

// StartItems renders items in the background. The request is numbered
// before the goroutine starts, so of two back-to-back calls the second
// one wins.
func (s *Service) StartItems(items settings.Items) {
	gen := s.request()
	go func() {
		if _, err := s.render(context.Background(), gen, items); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("render failed", "error", err)
		}
	}()
}

// request numbers a new render and cancels the one in flight.
func (s *Service) request() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.cancel != nil {
		s.cancel()
	}
	return s.gen
}

// settle marks gen and every older render as done.
func (s *Service) settle(gen uint64) {
	s.mu.Lock()
	if gen > s.settled {
		s.settled = gen
	}
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Wait blocks until every render requested so far has finished or been
// superseded.
func (s *Service) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for gen := s.gen; s.settled < gen; {
		s.cond.Wait()
	}
}

// Stop cancels the in-flight render, drops queued ones and waits.
func (s *Service) Stop() {
	gen := s.request()
	s.runMu.Lock()
	s.runMu.Unlock()
	s.settle(gen)
}

// begin installs render gen and resets the layers. The caller holds
// runMu, so the previous render has already exited. A render superseded
// while it was queued gets context.Canceled.
func (s *Service) begin(parent context.Context, gen uint64, items settings.Items) (context.Context, error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return nil, context.Canceled
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.items = items
	s.locations = nil
	s.banner = ""
	s.progress = Progress{Running: true}
	s.mu.Unlock()

	s.markers.Clear()
	s.clusters.Clear()
	return ctx, nil
}

// Render rebuilds the layers for items. Lat/lng locations are placed
// directly; address locations go through the resolver one at a time. In
// image mode all placed points are clustered at the end.
func (s *Service) Render(ctx context.Context, items settings.Items) (Progress, error) {
	return s.render(ctx, s.request(), items)
}

func (s *Service) render(ctx context.Context, gen uint64, items settings.Items) (Progress, error) {
	defer s.settle(gen)
	s.runMu.Lock()
	defer s.runMu.Unlock()

	ctx, err := s.begin(ctx, gen, items)
	if err != nil {
		return s.Progress(), err
	}
	defer s.finish()

	locs, err := s.extractor.GetLocations(ctx, items)
	if err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	s.locations = locs
	s.progress.Total = len(locs)
	s.mu.Unlock()
	s.publishProgress()

	imageMode := items.MapMode() == settings.MapModeImage
	var points []marker.Point
	place := func(loc location.Location, lat, lng float64, address string) {
		if imageMode {
			points = append(points, marker.Point{Location: loc, Lat: lat, Lng: lng})
		} else {
			s.markers.AddMarker(loc, lat, lng, address)
		}
		s.advance(false)
	}

	var pending []location.Location
	for _, loc := range locs {
		if loc.Type.NeedsGeocoding() {
			pending = append(pending, loc)
			continue
		}
		if !loc.Value.HasCoords {
			s.advance(true)
			continue
		}
		place(loc, loc.Value.Lat, loc.Value.Lng, loc.Address())
	}

	if len(pending) > 0 {
		if s.resolver == nil {
			s.setBanner(BannerMapKeyMissing)
			s.skip(len(pending))
		} else {
			stats, err := s.resolver.Resolve(ctx, pending, s.activeColumn, func(_ int, p geocode.Placement) {
				if ctx.Err() != nil {
					return
				}
				place(p.Location, p.Lat, p.Lng, p.Address)
			})
			switch {
			case errors.Is(err, geocode.ErrMapKeyMissing):
				s.setBanner(BannerMapKeyMissing)
				s.skip(len(pending) - stats.Resolved)
			case err != nil:
				return s.fail(err)
			default:
				s.skip(stats.Skipped + stats.Stale)
			}
		}
	}

	if imageMode {
		s.clusters.Set(s.builder.Build(points))
	}

	s.mu.Lock()
	s.progress.Running = false
	s.progress.Markers = s.markers.Len()
	p := s.progress
	s.mu.Unlock()
	s.publishProgress()

	s.logger.Info("Rendered map", "locations", p.Total, "markers", p.Markers, "skipped", p.Skipped, "image_mode", imageMode)
	return p, nil
}

// finish releases the context of the running render.
func (s *Service) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Service) fail(err error) (Progress, error) {
	s.mu.Lock()
	s.progress.Running = false
	if !errors.Is(err, context.Canceled) {
		s.progress.Error = err.Error()
	}
	p := s.progress
	s.mu.Unlock()
	s.publishProgress()
	return p, err
}

func (s *Service) advance(skipped bool) {
	s.mu.Lock()
	s.progress.Done++
	if skipped {
		s.progress.Skipped++
	}
	s.progress.Markers = s.markers.Len()
	s.mu.Unlock()
	s.publishProgress()
}

func (s *Service) skip(n int) {
	for range n {
		s.advance(true)
	}
}

func (s *Service) setBanner(b string) {
	s.mu.Lock()
	s.banner = b
	s.mu.Unlock()
}

// activeColumn returns the geo column of the settings being rendered.
func (s *Service) activeColumn() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items.Active(settings.TypeColumn)
}

// SetItems updates the settings being rendered without restarting. A
// changed geo column turns in-flight geocode answers stale.
func (s *Service) SetItems(items settings.Items) {
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
}

func (s *Service) publishProgress() {
	p := s.Progress()
	s.hc.Publish(host.Event{Name: host.EventRenderProgress, Payload: map[string]any{
		"total":   p.Total,
		"done":    p.Done,
		"markers": p.Markers,
		"skipped": p.Skipped,
		"running": p.Running,
	}})
}

// Progress returns the current render progress.
func (s *Service) Progress() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// Items returns the settings of the last render.
func (s *Service) Items() settings.Items {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items.Clone()
}

// Locations returns the locations of the last render.
func (s *Service) Locations() []location.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]location.Location, len(s.locations))
	copy(out, s.locations)
	return out
}

// Markers returns the marker layer.
func (s *Service) Markers() *marker.Layer { return s.markers }

// Clusters returns the clusters of the last image-mode render.
func (s *Service) Clusters() []marker.Cluster { return s.clusters.Clusters() }

// Banner returns the map banner text, if any.
func (s *Service) Banner() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.banner
}
