package mapview

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-tablemap/internal/config"
	"github.com/joeblew999/plat-tablemap/internal/geocode"
	"github.com/joeblew999/plat-tablemap/internal/host"
	"github.com/joeblew999/plat-tablemap/internal/location"
	"github.com/joeblew999/plat-tablemap/internal/service"
	"github.com/joeblew999/plat-tablemap/internal/settings"
	"github.com/joeblew999/plat-tablemap/internal/templates"
)

// fakeGeocoder answers from a table; unknown addresses have no result.
type fakeGeocoder struct {
	mu      sync.Mutex
	answers map[string]geocode.Result
	err     error
	calls   int
	block   chan struct{}
	started chan struct{}
}

func newFakeGeocoder() *fakeGeocoder {
	return &fakeGeocoder{answers: map[string]geocode.Result{}}
}

func (f *fakeGeocoder) set(address string, lat, lng float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[address] = geocode.Result{Lat: lat, Lng: lng, Address: address, Status: geocode.StatusOK}
}

func (f *fakeGeocoder) Geocode(ctx context.Context, address string) (geocode.Result, error) {
	f.mu.Lock()
	f.calls++
	block, started, err := f.block, f.started, f.err
	res, ok := f.answers[address]
	f.mu.Unlock()

	if block != nil {
		if started != nil {
			select {
			case started <- struct{}{}:
			default:
			}
		}
		select {
		case <-block:
		case <-ctx.Done():
			return geocode.Result{}, ctx.Err()
		}
	}
	if err != nil {
		return geocode.Result{}, err
	}
	if !ok {
		return geocode.Result{Status: geocode.StatusZeroResults}, nil
	}
	return res, nil
}

func (f *fakeGeocoder) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	return "Nishi-Shinjuku, Tokyo", nil
}

type fixture struct {
	hc       *host.Memory
	svc      *Service
	geo      *fakeGeocoder
	settings *service.SettingsService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	r, err := templates.NewEmbedded()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hc := host.NewMemory(host.SampleDataset(), nil)
	dir := t.TempDir()
	geo := newFakeGeocoder()
	ss := service.NewSettingsService(hc, "map-test", service.NewSelectionStore(dir), logger)
	resolver := geocode.NewResolver(geo, logger, geocode.WithSleep(func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	}))

	svc := New(Deps{
		Host:      hc,
		Settings:  ss,
		Viewports: service.NewViewportStore(dir),
		Extractor: location.NewExtractor(hc, location.NewRegistry(r), logger),
		Geocoder:  geo,
		Resolver:  resolver,
		Renderer:  r,
		Logger:    logger,
	}, Options{
		ClusterRadius: 80,
		ClusterZoom:   10,
		DefaultZoom:   10,
		CenterSample:  3,
		TileURL:       config.DefaultConfig().Map.TileURL,
	})
	return &fixture{hc: hc, svc: svc, geo: geo, settings: ss}
}

func (f *fixture) items(vs settings.ViewSetting) settings.Items {
	if vs.TableName == "" {
		vs.TableName = "Trips"
	}
	if vs.ViewName == "" {
		vs.ViewName = "All"
	}
	return settings.InitSelectedSettings(f.hc, vs)
}

func TestRender_LatLng(t *testing.T) {
	f := newFixture(t)

	var events []map[string]any
	var mu sync.Mutex
	f.hc.Subscribe(host.EventRenderProgress, func(e host.Event) {
		mu.Lock()
		events = append(events, e.Payload)
		mu.Unlock()
	})

	p, err := f.svc.Render(context.Background(), f.items(settings.ViewSetting{ColumnName: "Location"}))
	require.NoError(t, err)

	assert.Equal(t, Progress{Total: 4, Done: 4, Markers: 3}, p)
	assert.Zero(t, f.geo.calls, "coordinates need no geocoding")
	assert.Len(t, f.svc.Markers().SameLocation(35.6895, 139.6917), 2)
	assert.Len(t, f.svc.Locations(), 4)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, false, last["running"])
	assert.Equal(t, 3, last["markers"])
	assert.Equal(t, true, events[0]["running"])
}

func TestRender_Geocoded(t *testing.T) {
	f := newFixture(t)
	f.geo.set("Kyoto Station, Kyoto", 34.9858, 135.7588)

	p, err := f.svc.Render(context.Background(), f.items(settings.ViewSetting{ColumnName: "Address"}))
	require.NoError(t, err)

	assert.Equal(t, 3, p.Total)
	assert.Equal(t, 3, p.Done)
	assert.Equal(t, 1, p.Markers)
	assert.Equal(t, 2, p.Skipped)
	assert.Empty(t, f.svc.Banner())

	ms := f.svc.Markers().Markers()
	require.Len(t, ms, 1)
	assert.Equal(t, "row-kyoto", ms[0].RowID)
	assert.Equal(t, "Kyoto Station, Kyoto", ms[0].Address)
}

func TestRender_MapKeyMissing(t *testing.T) {
	f := newFixture(t)
	f.geo.err = geocode.ErrMapKeyMissing

	p, err := f.svc.Render(context.Background(), f.items(settings.ViewSetting{ColumnName: "Address"}))
	require.NoError(t, err)

	assert.Equal(t, BannerMapKeyMissing, f.svc.Banner())
	assert.Equal(t, 1, f.geo.calls, "the run stops at the first missing key")
	assert.Equal(t, 3, p.Skipped)
	assert.Zero(t, p.Markers)

	st := f.svc.State(context.Background(), "en")
	assert.Equal(t, BannerMapKeyMissing, st.Banner)
}

func TestRender_ImageMode(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.Render(context.Background(), f.items(settings.ViewSetting{
		MapMode:         settings.MapModeImage,
		ColumnName:      "Location",
		ImageColumnName: "Photos",
	}))
	require.NoError(t, err)

	assert.Zero(t, p.Markers, "image mode places no plain markers")
	clusters := f.svc.Clusters()
	require.Len(t, clusters, 3)
	assert.Equal(t, 3, clusters[0].Icon.Count, "tokyo and shinjuku share a point")
	assert.Equal(t, "https://img.example.com/tokyo-1.jpg", clusters[0].Icon.Thumbnail)
}

func TestRender_ClearsPreviousLayers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Render(ctx, f.items(settings.ViewSetting{
		MapMode: settings.MapModeImage, ColumnName: "Location", ImageColumnName: "Photos",
	}))
	require.NoError(t, err)
	require.NotEmpty(t, f.svc.Clusters())

	_, err = f.svc.Render(ctx, f.items(settings.ViewSetting{ColumnName: "Location"}))
	require.NoError(t, err)
	assert.Empty(t, f.svc.Clusters())
	assert.Equal(t, 3, f.svc.Markers().Len())
}

func TestRender_CancelsInFlight(t *testing.T) {
	f := newFixture(t)
	f.geo.block = make(chan struct{})
	f.geo.started = make(chan struct{}, 1)

	f.svc.StartItems(f.items(settings.ViewSetting{ColumnName: "Address"}))
	select {
	case <-f.geo.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first render never reached the geocoder")
	}

	p, err := f.svc.Render(context.Background(), f.items(settings.ViewSetting{ColumnName: "Location"}))
	require.NoError(t, err)
	assert.Equal(t, 3, p.Markers)
	assert.Equal(t, 1, f.geo.calls, "the address render stopped at its first request")

	for _, m := range f.svc.Markers().Markers() {
		assert.NotEqual(t, "Kyoto Station, Kyoto", m.Address)
	}
}

func TestStartItems_LastRequestWins(t *testing.T) {
	f := newFixture(t)
	older := f.items(settings.ViewSetting{ColumnName: "Address"})
	newer := f.items(settings.ViewSetting{ColumnName: "Location"})

	for range 50 {
		f.svc.StartItems(older)
		f.svc.StartItems(newer)
		f.svc.Wait()

		require.Equal(t, "Location", f.svc.Items().Active(settings.TypeColumn))
		require.Equal(t, 3, f.svc.Markers().Len())
		require.False(t, f.svc.Progress().Running)
	}
}

func TestRender_StaleColumn(t *testing.T) {
	f := newFixture(t)
	f.geo.set("Kyoto Station, Kyoto", 34.9858, 135.7588)
	f.geo.set("Champ de Mars, Paris", 48.8556, 2.2986)

	items := f.items(settings.ViewSetting{ColumnName: "Address"})
	switched := f.items(settings.ViewSetting{ColumnName: "Country"})

	var once sync.Once
	f.hc.Subscribe(host.EventRenderProgress, func(e host.Event) {
		if e.Payload["markers"] == 1 {
			once.Do(func() { f.svc.SetItems(switched) })
		}
	})

	p, err := f.svc.Render(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Markers, "answers for the old column are dropped")
}

func TestState_Center(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st := f.svc.State(ctx, "en")
	assert.Equal(t, "default", st.CenterSource)
	assert.Equal(t, 10, st.Zoom)
	assert.Contains(t, st.TileURL, "openstreetmap")
	assert.Contains(t, f.svc.State(ctx, "zh-CN").TileURL, "autonavi")

	_, err := f.svc.Render(ctx, f.items(settings.ViewSetting{ColumnName: "Address"}))
	require.NoError(t, err)
	f.geo.set("Champ de Mars, Paris", 48.8556, 2.2986)
	st = f.svc.State(ctx, "en")
	assert.Equal(t, "geocode", st.CenterSource)
	assert.Equal(t, Center{Lat: 48.8556, Lng: 2.2986}, st.Center)

	_, err = f.svc.Render(ctx, f.items(settings.ViewSetting{ColumnName: "Location"}))
	require.NoError(t, err)
	st = f.svc.State(ctx, "en")
	assert.Equal(t, "markers", st.CenterSource)
	assert.InDelta(t, (35.0116+48.8566)/2, st.Center.Lat, 1e-9)

	require.NoError(t, f.svc.SaveViewport(service.Viewport{Lat: 1, Lng: 2, Zoom: 7}))
	st = f.svc.State(ctx, "en")
	assert.Equal(t, "viewport", st.CenterSource)
	assert.Equal(t, Center{Lat: 1, Lng: 2}, st.Center)
	assert.Equal(t, 7, st.Zoom)
}

func TestUserLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ul := f.svc.SetUserLocation(ctx, 35.69, 139.69, false)
	assert.Equal(t, "Nishi-Shinjuku, Tokyo", ul.Address)
	st := f.svc.State(ctx, "en")
	require.NotNil(t, st.UserLocation)
	assert.Equal(t, 35.69, st.UserLocation.Lat)

	f.svc.SetUserLocation(ctx, 0, 0, true)
	st = f.svc.State(ctx, "en")
	assert.Nil(t, st.UserLocation)
	assert.Equal(t, ToastGeolocationDenied, st.Toast)
	assert.Empty(t, f.svc.State(ctx, "en").Toast, "toasts are shown once")
}
