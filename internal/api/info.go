package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	Dataset  string   `json:"dataset" doc:"Dataset ID the map is bound to"`
	DataDir  string   `json:"data_dir" doc:"Data directory path"`
	DB       bool     `json:"db" doc:"Whether database is available"`
	Provider string   `json:"provider" doc:"Geocoding provider"`
	Features []string `json:"features" doc:"Available features"`
}

// RegisterInfo registers the service info route.
func (h *APIHandler) RegisterInfo(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

func (h *APIHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	body := InfoBody{
		Name:     h.svc.Name,
		Version:  h.svc.Version,
		DataDir:  h.svc.DataDir,
		DB:       h.svc.DB != nil,
		Provider: h.svc.Provider,
		Features: []string{"markers", "image-clusters", "geocode-cache", "datastar"},
	}
	if h.svc.Host != nil {
		body.Dataset = h.svc.Host.DatasetID()
	}
	if h.svc.DB != nil {
		body.Features = append(body.Features, "duckdb")
	}
	return &struct{ Body InfoBody }{Body: body}, nil
}
