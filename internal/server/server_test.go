package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-tablemap/internal/api"
	"github.com/joeblew999/plat-tablemap/internal/config"
	"github.com/joeblew999/plat-tablemap/internal/logging"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.DuckDB.InMemory = true

	srv, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, srv.Close()) })
	return srv
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Routes(t *testing.T) {
	srv := newTestServer(t)

	rec := get(t, srv, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"service":"plat-tablemap","status":"running","dataset":"sample"}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/nope").Code)

	rec = get(t, srv, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), Version)

	rec = get(t, srv, "/api/v1/info")
	require.Equal(t, http.StatusOK, rec.Code)
	var info api.InfoBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "sample", info.Dataset)
	assert.Equal(t, "nominatim", info.Provider)
	links := strings.Join(rec.Header().Values("Link"), "\n")
	assert.Contains(t, links, `</api/v1/views>; rel="views"`)
	assert.NotContains(t, links, "/api/v1/editor/")

	if info.DB {
		rec = get(t, srv, "/api/v1/tables")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "datasets")
	}

	rec = get(t, srv, "/api/v1/views")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"table_name":"Trips"`)
}

func TestServer_OpenAPI(t *testing.T) {
	srv := newTestServer(t)

	oapi := srv.OpenAPI()
	require.NotNil(t, oapi)
	assert.Equal(t, "plat-tablemap API", oapi.Info.Title)
	for _, p := range []string{"/api/v1/views/{id}/items", "/api/v1/markers", "/api/v1/editor/events", "/api/v1/editor/views"} {
		assert.Contains(t, oapi.Paths, p)
	}

	op := oapi.Paths["/api/v1/views/{id}"].Get
	require.NotNil(t, op)
	assert.Contains(t, op.Responses["200"].Links, "collection")
}

func TestServer_NoCache(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.DuckDB.InMemory = true
	cfg.Geocode.Cache.Enabled = false
	cfg.Geocode.Provider = "google"

	srv, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer srv.Close()
	assert.Nil(t, srv.cache)
	assert.Equal(t, "google", srv.services.Provider)
}

func TestServer_BadFragmentsDir(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Server.FragmentsDir = t.TempDir()

	_, err := New(context.Background(), cfg, logging.Discard())
	assert.Error(t, err)
}

func TestServer_DocsOnly(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	srv, err := New(context.Background(), cfg, logging.Discard(), DocsOnly())
	require.NoError(t, err)
	defer srv.Close()

	assert.Contains(t, srv.OpenAPI().Paths, "/api/v1/markers")
	assert.Contains(t, srv.OpenAPI().Paths, "/api/v1/tables")
	assert.Nil(t, srv.db)
	assert.Nil(t, srv.cache)
	assert.Nil(t, srv.services.Plugin)

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, srv.services.Map.Progress(), "no render was started")

	entries, err := os.ReadDir(cfg.DataDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is written to the data dir")
}
