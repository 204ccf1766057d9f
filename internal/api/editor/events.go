// Package editor contains Datastar SSE handlers for the map editor UI.
package editor

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-tablemap/internal/host"
	"github.com/joeblew999/plat-tablemap/internal/humastar"
	"github.com/joeblew999/plat-tablemap/internal/mapview"
	"github.com/joeblew999/plat-tablemap/internal/service"
	"github.com/joeblew999/plat-tablemap/internal/templates"
)

// EventHandler streams host events to the Datastar UI via SSE.
type EventHandler struct {
	humastar.Handler
	bus      *host.Bus
	mapSvc   *mapview.Service
	settings *service.SettingsService
}

// NewEventHandler creates a new event handler.
func NewEventHandler(bus *host.Bus, mapSvc *mapview.Service, settings *service.SettingsService, renderer *templates.Renderer) *EventHandler {
	return &EventHandler{
		Handler:  humastar.Handler{Renderer: renderer},
		bus:      bus,
		mapSvc:   mapSvc,
		settings: settings,
	}
}

func (h *EventHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/editor/events", h.Events,
		huma.OperationTags("editor"),
	)
}

// Events sends the current progress and view list, then follows the bus:
// render progress patches the progress bar and banner, settings changes
// patch the view list, and location clicks become browser events.
func (h *EventHandler) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		sub := h.bus.SubscribeChan()
		defer h.bus.Unsubscribe(sub)

		h.patchProgress(sse)
		sse.Patch(renderViewList(ctx, &h.Handler, h.settings), "#view-list")

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.Progress:
				if !ok {
					return
				}
				h.patchProgress(sse)
			case ev, ok := <-sub.Events:
				if !ok {
					return
				}
				switch ev.Name {
				case host.EventSettingsChanged:
					sse.Patch(renderViewList(ctx, &h.Handler, h.settings), "#view-list")
				case host.EventShowLocationDetails, host.EventExpandRow:
					sse.DispatchCustomEvent(ev.Name, ev.Payload)
				case host.EventDatasetChanged:
					sse.Signals(map[string]any{"datasetChanged": true})
				}
			}
		}
	}), nil
}

func (h *EventHandler) patchProgress(sse humastar.SSE) {
	if h.mapSvc == nil {
		return
	}
	sse.Replace(h.Fragment("render-progress", h.mapSvc.Progress()), "#render-progress")
	if banner := h.mapSvc.Banner(); banner != "" {
		sse.Replace(h.Fragment("map-banner", banner), "#map-banner")
	}
}
