package api

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-tablemap/internal/host"
	"github.com/joeblew999/plat-tablemap/internal/humastar"
	"github.com/joeblew999/plat-tablemap/internal/settings"
)

// viewActions are the actions every view setting offers.
var viewActions = []humastar.ActionDef{
	{Rel: "items", Pattern: "/api/v1/views/%s/items", Method: "GET", Title: "Settings panel items"},
	{Rel: "change", Pattern: "/api/v1/views/%s/items", Method: "POST", Title: "Change a setting"},
	{Rel: "rename", Pattern: "/api/v1/views/%s/rename", Method: "POST", Title: "Rename view"},
	{Rel: "move", Pattern: "/api/v1/views/%s/move", Method: "POST", Title: "Reorder view"},
}

// ViewBody is a view setting with its state-dependent actions.
type ViewBody struct {
	settings.ViewSetting
	Selected  bool `json:"selected" doc:"Whether the map shows this view"`
	deletable bool
}

// Actions implements humastar.Actor. Selecting is offered for unselected
// views; deleting when another view would remain.
func (v ViewBody) Actions() []humastar.Action {
	actions := humastar.ActionsFor(v.ID, viewActions)
	if !v.Selected {
		actions = append(actions, humastar.Action{
			Rel: "select", Href: fmt.Sprintf("/api/v1/views/%s/select", v.ID), Method: "POST", Title: "Show on map",
		})
	}
	if v.deletable {
		actions = append(actions, humastar.Action{
			Rel: "delete", Href: fmt.Sprintf("/api/v1/views/%s", v.ID), Method: "DELETE", Title: "Delete view",
		})
	}
	return actions
}

type ViewsBody struct {
	Views    []ViewBody `json:"views" doc:"View settings in display order"`
	Selected int        `json:"selected" doc:"Index of the selected view"`
}

type ViewOutput struct {
	Body ViewBody
}

type ItemsBody struct {
	ViewID string         `json:"view_id" doc:"View setting ID"`
	Items  settings.Items `json:"items" doc:"Settings panel items"`
}

type ItemsOutput struct {
	Body ItemsBody
}

type CreateViewInput struct {
	Body struct {
		Name string `json:"name" minLength:"1" maxLength:"100" doc:"Display name" example:"Trips in Japan"`
	}
}

type RenameViewInput struct {
	IDInput
	Body struct {
		Name string `json:"name" minLength:"1" maxLength:"100" doc:"New display name"`
	}
}

type MoveViewInput struct {
	IDInput
	Body struct {
		Target string `json:"target" doc:"ID of the view whose position this view takes"`
	}
}

type ChangeItemsInput struct {
	IDInput
	Body settings.ChangeRequest
}

// RegisterViews registers view setting routes.
func (h *APIHandler) RegisterViews(api huma.API) {
	huma.Get(api, "/api/v1/views", h.ListViews, huma.OperationTags("views"))
	huma.Post(api, "/api/v1/views", h.CreateView, huma.OperationTags("views"))
	huma.Get(api, "/api/v1/views/{id}", h.GetView, huma.OperationTags("views"))
	huma.Put(api, "/api/v1/views/{id}", h.PutView, huma.OperationTags("views"))
	huma.Delete(api, "/api/v1/views/{id}", h.DeleteView, huma.OperationTags("views"))
	huma.Post(api, "/api/v1/views/{id}/rename", h.RenameView, huma.OperationTags("views"))
	huma.Post(api, "/api/v1/views/{id}/move", h.MoveView, huma.OperationTags("views"))
	huma.Post(api, "/api/v1/views/{id}/select", h.SelectView, huma.OperationTags("views"))
	huma.Post(api, "/api/v1/views/{id}/user-location", h.ToggleUserLocation, huma.OperationTags("views"))
	huma.Get(api, "/api/v1/views/{id}/items", h.GetItems, huma.OperationTags("views"))
	huma.Post(api, "/api/v1/views/{id}/items", h.ChangeItems, huma.OperationTags("views"))
}

func (h *APIHandler) ListViews(ctx context.Context, input *struct{}) (*struct{ Body ViewsBody }, error) {
	state, err := h.svc.Settings.Load(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	body := ViewsBody{Views: make([]ViewBody, len(state.Views)), Selected: state.Selected}
	for i, vs := range state.Views {
		body.Views[i] = ViewBody{ViewSetting: vs, Selected: i == state.Selected, deletable: len(state.Views) > 1}
	}
	return &struct{ Body ViewsBody }{Body: body}, nil
}

func (h *APIHandler) CreateView(ctx context.Context, input *CreateViewInput) (*ViewOutput, error) {
	vs, err := h.svc.Settings.Add(ctx, input.Body.Name)
	if err != nil {
		return nil, apiError(err)
	}
	h.settingsChanged("created", vs.ID)
	return h.viewOutput(ctx, vs)
}

func (h *APIHandler) GetView(ctx context.Context, input *IDInput) (*ViewOutput, error) {
	vs, err := h.svc.Settings.Get(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return h.viewOutput(ctx, vs)
}

func (h *APIHandler) PutView(ctx context.Context, input *struct {
	IDInput
	Body settings.ViewSetting
}) (*ViewOutput, error) {
	vs, err := h.svc.Settings.Update(ctx, input.ID, input.Body)
	if err != nil {
		return nil, apiError(err)
	}
	h.settingsChanged("updated", vs.ID)
	h.rerenderIfSelected(ctx, vs.ID)
	return h.viewOutput(ctx, vs)
}

func (h *APIHandler) DeleteView(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	wasSelected := h.isSelected(ctx, input.ID)
	if err := h.svc.Settings.Delete(ctx, input.ID); err != nil {
		return nil, apiError(err)
	}
	h.settingsChanged("deleted", input.ID)
	if wasSelected {
		h.startMap(ctx)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "View deleted"}}, nil
}

func (h *APIHandler) RenameView(ctx context.Context, input *RenameViewInput) (*ViewOutput, error) {
	vs, err := h.svc.Settings.Rename(ctx, input.ID, input.Body.Name)
	if err != nil {
		return nil, apiError(err)
	}
	h.settingsChanged("renamed", vs.ID)
	return h.viewOutput(ctx, vs)
}

func (h *APIHandler) MoveView(ctx context.Context, input *MoveViewInput) (*struct{ Body ViewsBody }, error) {
	if _, err := h.svc.Settings.Move(ctx, input.ID, input.Body.Target); err != nil {
		return nil, apiError(err)
	}
	h.settingsChanged("moved", input.ID)
	return h.ListViews(ctx, nil)
}

func (h *APIHandler) SelectView(ctx context.Context, input *IDInput) (*ViewOutput, error) {
	if _, err := h.svc.Settings.Select(ctx, input.ID); err != nil {
		return nil, apiError(err)
	}
	h.settingsChanged("selected", input.ID)
	h.startMap(ctx)
	return h.GetView(ctx, input)
}

func (h *APIHandler) ToggleUserLocation(ctx context.Context, input *IDInput) (*ViewOutput, error) {
	vs, err := h.svc.Settings.ToggleUserLocation(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	if !vs.ShowUserLocation && h.svc.Map != nil {
		h.svc.Map.ClearUserLocation()
	}
	h.settingsChanged("updated", vs.ID)
	return h.viewOutput(ctx, vs)
}

func (h *APIHandler) GetItems(ctx context.Context, input *IDInput) (*ItemsOutput, error) {
	items, err := h.svc.Settings.Items(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &ItemsOutput{Body: ItemsBody{ViewID: input.ID, Items: items}}, nil
}

// ChangeItems applies one settings panel change, persists the result and
// re-renders the map when the view is on screen.
func (h *APIHandler) ChangeItems(ctx context.Context, input *ChangeItemsInput) (*ItemsOutput, error) {
	ev, err := input.Body.Event()
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	vs, items, err := h.svc.Settings.ApplyChange(ctx, input.ID, ev)
	if err != nil {
		return nil, apiError(err)
	}
	h.settingsChanged("changed", vs.ID)
	if h.svc.Map != nil && h.isSelected(ctx, vs.ID) {
		h.svc.Map.StartItems(items)
	}
	return &ItemsOutput{Body: ItemsBody{ViewID: vs.ID, Items: items}}, nil
}

func (h *APIHandler) viewOutput(ctx context.Context, vs settings.ViewSetting) (*ViewOutput, error) {
	state, err := h.svc.Settings.Load(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	selected := state.Selected < len(state.Views) && state.Views[state.Selected].ID == vs.ID
	return &ViewOutput{Body: ViewBody{ViewSetting: vs, Selected: selected, deletable: len(state.Views) > 1}}, nil
}

func (h *APIHandler) isSelected(ctx context.Context, id string) bool {
	vs, _, err := h.svc.Settings.Selected(ctx)
	return err == nil && vs.ID == id
}

func (h *APIHandler) rerenderIfSelected(ctx context.Context, id string) {
	if h.isSelected(ctx, id) {
		h.startMap(ctx)
	}
}

func (h *APIHandler) startMap(ctx context.Context) {
	if h.svc.Map == nil {
		return
	}
	if err := h.svc.Map.Start(ctx); err != nil {
		h.logger().Error("failed to start render", "error", err)
	}
}

func (h *APIHandler) settingsChanged(action, id string) {
	h.publish(host.EventSettingsChanged, map[string]any{"action": action, "id": id})
}
