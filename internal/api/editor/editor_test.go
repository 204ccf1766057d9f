package editor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-tablemap/internal/host"
	"github.com/joeblew999/plat-tablemap/internal/location"
	"github.com/joeblew999/plat-tablemap/internal/logging"
	"github.com/joeblew999/plat-tablemap/internal/mapview"
	"github.com/joeblew999/plat-tablemap/internal/service"
	"github.com/joeblew999/plat-tablemap/internal/settings"
	"github.com/joeblew999/plat-tablemap/internal/templates"
)

type editorEnv struct {
	mux      *http.ServeMux
	hc       *host.Memory
	settings *service.SettingsService
	mapSvc   *mapview.Service
}

func newEditorEnv(t *testing.T) *editorEnv {
	t.Helper()
	r := templates.Must(templates.NewEmbedded())
	hc := host.NewMemory(host.SampleDataset(), nil)
	logger := logging.Discard()
	ss := service.NewSettingsService(hc, "map", service.NewSelectionStore(t.TempDir()), logger)
	m := mapview.New(mapview.Deps{
		Host:      hc,
		Settings:  ss,
		Extractor: location.NewExtractor(hc, location.NewRegistry(r), logger),
		Renderer:  r,
		Logger:    logger,
	}, mapview.Options{})
	t.Cleanup(m.Stop)

	mux := http.NewServeMux()
	cfg := huma.DefaultConfig("Test API", "1.0.0")
	api := humago.New(mux, cfg)
	NewEventHandler(hc.Bus(), m, ss, r).RegisterRoutes(api)
	NewViewHandler(ss, m, r).RegisterRoutes(api)

	return &editorEnv{mux: mux, hc: hc, settings: ss, mapSvc: m}
}

// flushRecorder reports the first flush, after which the stream is live.
type flushRecorder struct {
	*httptest.ResponseRecorder
	once    sync.Once
	flushed chan struct{}
}

func newFlushRecorder() *flushRecorder {
	return &flushRecorder{ResponseRecorder: httptest.NewRecorder(), flushed: make(chan struct{})}
}

func (f *flushRecorder) Flush() {
	f.ResponseRecorder.Flush()
	f.once.Do(func() { close(f.flushed) })
}

func (e *editorEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func TestEvents_StreamsProgressAndHostEvents(t *testing.T) {
	env := newEditorEnv(t)
	_, items, err := env.settings.Selected(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/editor/events", nil).WithContext(ctx)
	rec := newFlushRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.mux.ServeHTTP(rec, req)
	}()

	select {
	case <-rec.flushed:
	case <-time.After(time.Second):
		t.Fatal("stream did not start")
	}

	_, err = env.mapSvc.Render(context.Background(), items)
	require.NoError(t, err)
	env.hc.Publish(host.Event{Name: host.EventExpandRow, Payload: map[string]any{"table": "Trips", "row_id": "row-paris"}})
	env.hc.Publish(host.Event{Name: host.EventDatasetChanged})
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "datastar-patch-elements")
	assert.Contains(t, body, "#render-progress")
	assert.Contains(t, body, "#view-list")
	assert.Contains(t, body, settings.DefaultViewName)
	assert.Contains(t, body, "expand-row")
	assert.Contains(t, body, "row-paris")
	assert.Contains(t, body, "datasetChanged")
}

func TestEvents_StopsWhenClientLeaves(t *testing.T) {
	env := newEditorEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/editor/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.mux.ServeHTTP(rec, req)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream kept running after the client left")
	}
}

func TestViews_ListAndCreate(t *testing.T) {
	env := newEditorEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/editor/views", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "#view-list")
	assert.Contains(t, rec.Body.String(), settings.DefaultViewName)

	rec = env.do(t, http.MethodPost, "/api/v1/editor/views", `{"newviewname":"Japan"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "View 'Japan' created")
	assert.Contains(t, body, "Japan")

	state, err := env.settings.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, state.Views, 2)
	assert.Equal(t, "Japan", state.Views[1].Name)

	rec = env.do(t, http.MethodPost, "/api/v1/editor/views", `{"newviewname":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/editor/views", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestViews_Select(t *testing.T) {
	env := newEditorEnv(t)
	vs, err := env.settings.Add(context.Background(), "Second")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/v1/editor/views/select", `{"viewid":"`+vs.ID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "#view-list")

	selected, _, err := env.settings.Selected(context.Background())
	require.NoError(t, err)
	assert.Equal(t, vs.ID, selected.ID)

	rec = env.do(t, http.MethodPost, "/api/v1/editor/views/select", `{"viewid":"missing"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestColumnOptions(t *testing.T) {
	env := newEditorEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/editor/columns", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "#column-select")
	for _, col := range []string{"Location", "Address", "Country"} {
		assert.Contains(t, body, `value="`+col+`"`)
	}
	assert.NotContains(t, body, `value="Notes"`)
}
