package editor

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-tablemap/internal/humastar"
	"github.com/joeblew999/plat-tablemap/internal/mapview"
	"github.com/joeblew999/plat-tablemap/internal/service"
	"github.com/joeblew999/plat-tablemap/internal/settings"
	"github.com/joeblew999/plat-tablemap/internal/templates"
)

// ViewHandler serves the view list and settings selects of the editor.
type ViewHandler struct {
	humastar.Handler
	settings *service.SettingsService
	mapSvc   *mapview.Service
}

// NewViewHandler creates a new view handler.
func NewViewHandler(settings *service.SettingsService, mapSvc *mapview.Service, renderer *templates.Renderer) *ViewHandler {
	return &ViewHandler{
		Handler:  humastar.Handler{Renderer: renderer},
		settings: settings,
		mapSvc:   mapSvc,
	}
}

func (h *ViewHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/editor/views", h.ListViews, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/views", h.CreateView, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/views/select", h.SelectView, huma.OperationTags("editor"))
	huma.Get(api, "/api/v1/editor/columns", h.ColumnOptions, huma.OperationTags("editor"))
}

// viewCard is the data of one view-card fragment.
type viewCard struct {
	settings.ViewSetting
	Selected bool
}

func renderViewList(ctx context.Context, h *humastar.Handler, ss *service.SettingsService) string {
	state, err := ss.Load(ctx)
	if err != nil {
		return h.RenderList("view-card", nil, "Settings unavailable", err.Error())
	}
	cards := make([]any, len(state.Views))
	for i, vs := range state.Views {
		cards[i] = viewCard{ViewSetting: vs, Selected: i == state.Selected}
	}
	return h.RenderList("view-card", cards, "No views", "Add a view to start mapping")
}

func (h *ViewHandler) ListViews(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		sse.Patch(renderViewList(ctx, &h.Handler, h.settings), "#view-list")
	}), nil
}

// CreateView adds a view named by the newviewname signal.
func (h *ViewHandler) CreateView(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	name := signals.String("newviewname")
	if name == "" {
		return nil, huma.Error400BadRequest("View name is required")
	}

	return h.Stream(func(sse humastar.SSE) {
		vs, err := h.settings.Add(ctx, name)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		sse.Signals(map[string]any{"newviewname": ""})
		sse.Success(fmt.Sprintf("View '%s' created", vs.Name))
		sse.Patch(renderViewList(ctx, &h.Handler, h.settings), "#view-list")
	}), nil
}

// SelectView switches the map to the view in the viewid signal.
func (h *ViewHandler) SelectView(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	id := signals.String("viewid")
	if id == "" {
		return nil, huma.Error400BadRequest("View id is required")
	}

	return h.Stream(func(sse humastar.SSE) {
		if _, err := h.settings.Select(ctx, id); err != nil {
			sse.Error(err.Error())
			return
		}
		if h.mapSvc != nil {
			if err := h.mapSvc.Start(ctx); err != nil {
				sse.Error(err.Error())
				return
			}
		}
		sse.Patch(renderViewList(ctx, &h.Handler, h.settings), "#view-list")
	}), nil
}

// ColumnOptions renders the geolocation columns of the selected view.
func (h *ViewHandler) ColumnOptions(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	_, items, err := h.settings.Selected(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load settings", err)
	}
	var options []humastar.SelectOptionData
	if it, ok := items.Get(settings.TypeColumn); ok {
		for _, o := range it.Settings {
			options = append(options, humastar.SelectOptionData{Value: o.ID, Label: o.Name})
		}
	}
	return h.Stream(func(sse humastar.SSE) {
		sse.Patch(h.RenderSelect("Choose a location column", options), "#column-select")
	}), nil
}
