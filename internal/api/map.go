package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-tablemap/internal/humastar"
	"github.com/joeblew999/plat-tablemap/internal/location"
	"github.com/joeblew999/plat-tablemap/internal/mapview"
	"github.com/joeblew999/plat-tablemap/internal/marker"
	"github.com/joeblew999/plat-tablemap/internal/service"
)

type LocationsInput struct {
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Items to skip"`
	Limit  int `query:"limit" minimum:"1" maximum:"500" default:"50" doc:"Page size"`
}

type RenderInput struct {
	Body struct {
		Wait bool `json:"wait,omitempty" doc:"Block until the render finishes"`
	}
}

type PointInput struct {
	Lat float64 `query:"lat" minimum:"-90" maximum:"90" doc:"Latitude"`
	Lng float64 `query:"lng" minimum:"-180" maximum:"180" doc:"Longitude"`
}

type ClickInput struct {
	Body struct {
		Lat float64 `json:"lat" minimum:"-90" maximum:"90" doc:"Marker latitude"`
		Lng float64 `json:"lng" minimum:"-180" maximum:"180" doc:"Marker longitude"`
	}
}

type MapInput struct {
	Locale string `query:"locale" default:"en" doc:"UI locale, selects the tile server" example:"zh-cn"`
}

type UserLocationInput struct {
	Body struct {
		Lat    float64 `json:"lat,omitempty" minimum:"-90" maximum:"90" doc:"Latitude"`
		Lng    float64 `json:"lng,omitempty" minimum:"-180" maximum:"180" doc:"Longitude"`
		Denied bool    `json:"denied,omitempty" doc:"The browser refused the position"`
	}
}

type RowInput struct {
	RowID string `path:"row" doc:"Row ID" example:"row-tokyo"`
}

// RegisterMap registers map rendering routes.
func (h *APIHandler) RegisterMap(api huma.API) {
	huma.Get(api, "/api/v1/locations", h.ListLocations, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/render", h.Render, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/render", h.GetProgress, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/markers", h.GetMarkers, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/markers/same-location", h.SameLocation, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/markers/click", h.ClickMarker, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/clusters", h.GetClusters, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/map", h.GetMap, huma.OperationTags("map"))
	huma.Put(api, "/api/v1/map/viewport", h.PutViewport, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/user-location", h.PostUserLocation, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/rows/{row}/expand", h.ExpandRow, huma.OperationTags("map"))
}

func (h *APIHandler) mapService() (*mapview.Service, error) {
	if h.svc.Map == nil {
		return nil, huma.Error503ServiceUnavailable("map not available")
	}
	return h.svc.Map, nil
}

func (h *APIHandler) ListLocations(ctx context.Context, input *LocationsInput) (*struct {
	Body humastar.PageBody[location.Location]
}, error) {
	m, err := h.mapService()
	if err != nil {
		return nil, err
	}
	all := m.Locations()
	start := min(input.Offset, len(all))
	end := min(start+input.Limit, len(all))
	return &struct {
		Body humastar.PageBody[location.Location]
	}{Body: humastar.PageBody[location.Location]{
		Total:  len(all),
		Offset: input.Offset,
		Limit:  input.Limit,
		Data:   all[start:end],
	}}, nil
}

// Render re-renders the selected view. Without wait the render runs in
// the background and progress is streamed on the editor event stream.
func (h *APIHandler) Render(ctx context.Context, input *RenderInput) (*struct{ Body mapview.Progress }, error) {
	m, err := h.mapService()
	if err != nil {
		return nil, err
	}
	if !input.Body.Wait {
		if err := m.Start(ctx); err != nil {
			return nil, apiError(err)
		}
		return &struct{ Body mapview.Progress }{Body: m.Progress()}, nil
	}

	_, items, err := h.svc.Settings.Selected(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	p, err := m.Render(ctx, items)
	if err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body mapview.Progress }{Body: p}, nil
}

func (h *APIHandler) GetProgress(ctx context.Context, input *struct{}) (*struct{ Body mapview.Progress }, error) {
	m, err := h.mapService()
	if err != nil {
		return nil, err
	}
	return &struct{ Body mapview.Progress }{Body: m.Progress()}, nil
}

func (h *APIHandler) GetMarkers(ctx context.Context, input *struct{}) (*struct {
	Body *geojson.FeatureCollection
}, error) {
	m, err := h.mapService()
	if err != nil {
		return nil, err
	}
	return &struct {
		Body *geojson.FeatureCollection
	}{Body: m.Markers().FeatureCollection()}, nil
}

func (h *APIHandler) SameLocation(ctx context.Context, input *PointInput) (*struct {
	Body []location.Location
}, error) {
	m, err := h.mapService()
	if err != nil {
		return nil, err
	}
	locs := m.Markers().SameLocation(input.Lat, input.Lng)
	if locs == nil {
		locs = []location.Location{}
	}
	return &struct {
		Body []location.Location
	}{Body: locs}, nil
}

// ClickMarker opens the details of every location sharing the clicked
// marker's position.
func (h *APIHandler) ClickMarker(ctx context.Context, input *ClickInput) (*struct {
	Body []location.Location
}, error) {
	m, err := h.mapService()
	if err != nil {
		return nil, err
	}
	locs, ok := m.Markers().Click(input.Body.Lat, input.Body.Lng)
	if !ok {
		return nil, huma.Error404NotFound("no marker at this position")
	}
	return &struct {
		Body []location.Location
	}{Body: locs}, nil
}

func (h *APIHandler) GetClusters(ctx context.Context, input *struct{}) (*struct {
	Body []marker.Cluster
}, error) {
	m, err := h.mapService()
	if err != nil {
		return nil, err
	}
	clusters := m.Clusters()
	if clusters == nil {
		clusters = []marker.Cluster{}
	}
	return &struct {
		Body []marker.Cluster
	}{Body: clusters}, nil
}

func (h *APIHandler) GetMap(ctx context.Context, input *MapInput) (*struct{ Body mapview.State }, error) {
	m, err := h.mapService()
	if err != nil {
		return nil, err
	}
	return &struct{ Body mapview.State }{Body: m.State(ctx, input.Locale)}, nil
}

func (h *APIHandler) PutViewport(ctx context.Context, input *struct {
	Body service.Viewport
}) (*struct{ Body service.Viewport }, error) {
	m, err := h.mapService()
	if err != nil {
		return nil, err
	}
	if err := m.SaveViewport(input.Body); err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body service.Viewport }{Body: input.Body}, nil
}

func (h *APIHandler) PostUserLocation(ctx context.Context, input *UserLocationInput) (*struct {
	Body mapview.UserLocation
}, error) {
	m, err := h.mapService()
	if err != nil {
		return nil, err
	}
	ul := m.SetUserLocation(ctx, input.Body.Lat, input.Body.Lng, input.Body.Denied)
	return &struct {
		Body mapview.UserLocation
	}{Body: ul}, nil
}

func (h *APIHandler) ExpandRow(ctx context.Context, input *RowInput) (*struct{ Body MessageBody }, error) {
	if h.svc.Plugin == nil || !h.svc.Plugin.ExpandRow(input.RowID) {
		return nil, huma.Error404NotFound("row not found")
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Row expanded"}}, nil
}
