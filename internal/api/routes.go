// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-playground/validator/v10"

	"github.com/joeblew999/plat-tablemap/internal/host"
	"github.com/joeblew999/plat-tablemap/internal/mapview"
	"github.com/joeblew999/plat-tablemap/internal/service"
	"github.com/joeblew999/plat-tablemap/internal/settings"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Host     host.Context
	Settings *service.SettingsService
	Map      *mapview.Service
	Plugin   *mapview.Plugin
	DB       *sql.DB
	Logger   *slog.Logger

	Name     string
	Version  string
	DataDir  string
	Provider string
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"View setting ID" example:"0b6f6c3e-8a0c-4f57-9d0e-4c3f0f5e6a11"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterRoutes registers every REST route on api.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: h.svc.Version}}, nil
}

// publish notifies the host bus, which feeds the editor event stream.
func (h *APIHandler) publish(name string, payload map[string]any) {
	if h.svc.Host != nil {
		h.svc.Host.Publish(host.Event{Name: name, Payload: payload})
	}
}

func (h *APIHandler) logger() *slog.Logger {
	if h.svc.Logger != nil {
		return h.svc.Logger
	}
	return slog.Default()
}

// apiError maps service errors to Huma status errors.
func apiError(err error) error {
	var verrs validator.ValidationErrors
	switch {
	case err == nil:
		return nil
	case errors.Is(err, settings.ErrViewNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, settings.ErrLastView):
		return huma.Error409Conflict(err.Error())
	case errors.As(err, &verrs):
		details := make([]error, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, &huma.ErrorDetail{
				Message:  fe.Error(),
				Location: "body." + fe.Field(),
				Value:    fe.Value(),
			})
		}
		return huma.Error422UnprocessableEntity("invalid view setting", details...)
	case errors.Is(err, context.Canceled):
		return huma.Error503ServiceUnavailable("request cancelled")
	default:
		return huma.Error500InternalServerError("internal error", err)
	}
}
