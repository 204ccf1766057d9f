// Package server wires the tablemap services into one HTTP handler.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/plat-tablemap/internal/api"
	"github.com/joeblew999/plat-tablemap/internal/api/editor"
	"github.com/joeblew999/plat-tablemap/internal/config"
	"github.com/joeblew999/plat-tablemap/internal/db"
	"github.com/joeblew999/plat-tablemap/internal/geocode"
	"github.com/joeblew999/plat-tablemap/internal/host"
	"github.com/joeblew999/plat-tablemap/internal/humastar"
	"github.com/joeblew999/plat-tablemap/internal/location"
	"github.com/joeblew999/plat-tablemap/internal/mapview"
	"github.com/joeblew999/plat-tablemap/internal/service"
	"github.com/joeblew999/plat-tablemap/internal/templates"
)

// Version is reported by /health and /api/v1/info.
const Version = "0.1.0"

// Server is the tablemap HTTP server.
type Server struct {
	config   *config.Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	cache    *geocode.Cache
	bus      *host.Bus
	services *api.Services
	renderer *templates.Renderer
	logger   *slog.Logger
}

// Option adjusts how New assembles the server.
type Option func(*options)

type options struct {
	docsOnly bool
}

// DocsOnly registers every route over the in-memory sample dataset without
// opening DuckDB, building a geocoder or registering the plugin. Nothing
// renders, so the server is only good for its OpenAPI document.
func DocsOnly() Option {
	return func(o *options) { o.docsOnly = true }
}

// New builds the host, geocoder and map services from cfg and registers
// every route. The first render starts in the background.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	mux := http.NewServeMux()

	links := humastar.NewLinks("/api/v1/info", "editor", "health")

	humaConfig := huma.DefaultConfig("plat-tablemap API", Version)
	humaConfig.Info.Description = "Map view of table rows: view settings, geocoded markers, image clusters and a live editor stream."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, links.Transformer(), api.LinkTransformer())

	s := &Server{
		config:  cfg,
		mux:     mux,
		humaAPI: humago.New(mux, humaConfig),
		bus:     host.NewBus(),
		logger:  logger,
	}

	renderer, err := s.newRenderer()
	if err != nil {
		return nil, err
	}
	s.renderer = renderer

	var (
		hc       host.Context
		provider geocode.Provider
		resolver *geocode.Resolver
	)
	if o.docsOnly {
		hc = host.NewMemory(host.SampleDataset(), s.bus)
	} else {
		if hc, err = s.newHost(ctx); err != nil {
			return nil, err
		}
		if provider, err = s.newGeocoder(ctx); err != nil {
			s.Close()
			return nil, err
		}
		resolver = geocode.NewResolver(provider, logger,
			geocode.WithRateLimitPolicy(retryPolicy(cfg.Geocode.RateLimit, geocode.RateLimitPolicy)),
			geocode.WithTransientPolicy(geocode.TransientPolicy(cfg.Geocode.Transient.Delay.Std(), cfg.Geocode.Transient.MaxAttempts)),
		)
	}

	sel := service.NewSelectionStore(cfg.DataDir)
	settingsSvc := service.NewSettingsService(hc, cfg.Plugin, sel, logger)
	extractor := location.NewExtractor(hc, location.NewRegistry(renderer), logger)
	mapSvc := mapview.New(mapview.Deps{
		Host:      hc,
		Settings:  settingsSvc,
		Viewports: service.NewViewportStore(cfg.DataDir),
		Extractor: extractor,
		Geocoder:  provider,
		Resolver:  resolver,
		Renderer:  renderer,
		Logger:    logger,
	}, mapview.Options{
		Touch:         cfg.Map.Touch,
		ClusterRadius: cfg.Map.ClusterRadius,
		ClusterZoom:   cfg.Map.ClusterZoom,
		DefaultZoom:   cfg.Map.DefaultZoom,
		CenterSample:  cfg.Map.CenterSample,
		TileURL:       cfg.Map.TileURL,
	})

	var plugin *mapview.Plugin
	if !o.docsOnly {
		if plugin, err = mapview.Register(ctx, hc, mapSvc, cfg.Plugin); err != nil {
			s.Close()
			return nil, fmt.Errorf("register plugin: %w", err)
		}
	}

	s.services = &api.Services{
		Host:     hc,
		Settings: settingsSvc,
		Map:      mapSvc,
		Plugin:   plugin,
		DB:       s.db,
		Logger:   logger,
		Name:     "plat-tablemap",
		Version:  Version,
		DataDir:  cfg.DataDir,
		Provider: cfg.Geocode.Provider,
	}

	s.routes()
	links.Build(s.humaAPI)
	return s, nil
}

func (s *Server) newRenderer() (*templates.Renderer, error) {
	if dir := s.config.Server.FragmentsDir; dir != "" {
		r, err := templates.New(dir)
		if err != nil {
			return nil, fmt.Errorf("load fragments from %s: %w", dir, err)
		}
		s.logger.Info("Loaded fragment templates", "dir", dir)
		return r, nil
	}
	return templates.NewEmbedded()
}

// newHost opens the DuckDB dataset store, seeding the sample dataset into
// an empty store. Without DuckDB the sample dataset is served from memory.
func (s *Server) newHost(ctx context.Context) (host.Context, error) {
	conn, err := db.Open(db.Config{
		DataDir:    s.config.DataDir,
		DBName:     s.config.DuckDB.Name,
		InMemory:   s.config.DuckDB.InMemory,
		Extensions: s.config.DuckDB.Extensions,
	})
	if err != nil {
		s.logger.Warn("DuckDB unavailable, serving the sample dataset from memory", "error", err)
		return host.NewMemory(host.SampleDataset(), s.bus), nil
	}
	s.db = conn

	duck, err := host.NewDuck(ctx, conn, s.config.Dataset, s.bus)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	if len(duck.Tables()) == 0 {
		if err := duck.Save(ctx, host.SampleDataset()); err != nil {
			s.Close()
			return nil, fmt.Errorf("seed dataset: %w", err)
		}
		s.logger.Info("Seeded sample dataset", "dataset", s.config.Dataset)
	}
	return duck, nil
}

// newGeocoder builds the configured provider, wrapped by the sqlite cache
// when enabled.
func (s *Server) newGeocoder(ctx context.Context) (geocode.Provider, error) {
	gc := s.config.Geocode
	var provider geocode.Provider
	switch gc.Provider {
	case "google":
		g := geocode.NewGoogle(gc.Key, gc.Language)
		if gc.Endpoint != "" {
			g.Endpoint = gc.Endpoint
		}
		provider = g
	default:
		provider = geocode.NewNominatim(gc.Nominatim)
	}

	if !gc.Cache.Enabled {
		return provider, nil
	}
	cache, err := geocode.OpenCache(s.config.CachePath())
	if err != nil {
		return nil, fmt.Errorf("open geocode cache: %w", err)
	}
	s.cache = cache
	if maxAge := gc.Cache.MaxAge.Std(); maxAge > 0 {
		if n, err := cache.Prune(ctx, maxAge); err != nil {
			s.logger.Warn("failed to prune geocode cache", "error", err)
		} else if n > 0 {
			s.logger.Info("Pruned geocode cache", "entries", n)
		}
	}
	return geocode.NewCached(provider, cache, s.logger), nil
}

func retryPolicy(rc config.RetryConfig, base func(time.Duration) geocode.RetryPolicy) geocode.RetryPolicy {
	p := base(rc.Delay.Std())
	if rc.MaxAttempts > 0 {
		p.MaxAttempts = rc.MaxAttempts
	}
	return p
}

// OpenAPI returns the OpenAPI document of the registered routes.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// API returns the Huma API.
func (s *Server) API() huma.API {
	return s.humaAPI
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close stops the map plugin and closes the stores.
func (s *Server) Close() error {
	var errs []error
	if s.services != nil && s.services.Plugin != nil {
		s.services.Plugin.Close()
	}
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
		s.cache = nil
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
		s.db = nil
	}
	return errors.Join(errs...)
}

func (s *Server) routes() {
	// REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, s.services)

	// Editor SSE routes using Huma + Datastar SDK
	editor.NewEventHandler(s.bus, s.services.Map, s.services.Settings, s.renderer).RegisterRoutes(s.humaAPI)
	editor.NewViewHandler(s.services.Settings, s.services.Map, s.renderer).RegisterRoutes(s.humaAPI)

	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-tablemap",
		"status":  "running",
		"dataset": s.services.Host.DatasetID(),
	})
}
