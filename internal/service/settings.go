package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/joeblew999/plat-tablemap/internal/host"
	"github.com/joeblew999/plat-tablemap/internal/settings"
)

// SettingsService manages the list of view settings of one dataset. The
// list lives in the host's plugin settings; the selected index lives in
// the selection store.
type SettingsService struct {
	hc     host.Context
	plugin string
	sel    *SelectionStore
	logger *slog.Logger
	mu     sync.Mutex
}

// NewSettingsService creates a settings service for the given plugin name.
func NewSettingsService(hc host.Context, plugin string, sel *SelectionStore, logger *slog.Logger) *SettingsService {
	if sel == nil {
		sel = NewSelectionStore("")
	}
	return &SettingsService{hc: hc, plugin: plugin, sel: sel, logger: logger}
}

// Load returns the validated view settings and the selected index. A
// synthesized default or dropped stale entries are written back.
func (s *SettingsService) Load(ctx context.Context) (settings.PluginState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *SettingsService) load(ctx context.Context) (settings.PluginState, error) {
	state, err := settings.InitPluginSettings(ctx, s.hc, s.plugin, s.sel, s.logger)
	if err != nil {
		return settings.PluginState{}, err
	}
	if state.ShowSetup || state.Dropped > 0 {
		if err := s.save(ctx, state.Views); err != nil {
			return settings.PluginState{}, err
		}
	}
	return state, nil
}

func (s *SettingsService) save(ctx context.Context, views []settings.ViewSetting) error {
	data, err := json.Marshal(settings.Document{Views: views})
	if err != nil {
		return fmt.Errorf("encode view settings: %w", err)
	}
	if err := s.hc.UpdatePluginSettings(ctx, s.plugin, data); err != nil {
		return fmt.Errorf("save view settings: %w", err)
	}
	return nil
}

func (s *SettingsService) selectIndex(idx int) error {
	return s.sel.Set(s.hc.DatasetID(), idx)
}

func indexOf(views []settings.ViewSetting, id string) int {
	for i, v := range views {
		if v.ID == id {
			return i
		}
	}
	return -1
}

// Get returns one view setting.
func (s *SettingsService) Get(ctx context.Context, id string) (settings.ViewSetting, error) {
	state, err := s.Load(ctx)
	if err != nil {
		return settings.ViewSetting{}, err
	}
	i := indexOf(state.Views, id)
	if i < 0 {
		return settings.ViewSetting{}, fmt.Errorf("%s: %w", id, settings.ErrViewNotFound)
	}
	return state.Views[i], nil
}

// Selected returns the selected view setting and its item list.
func (s *SettingsService) Selected(ctx context.Context) (settings.ViewSetting, settings.Items, error) {
	state, err := s.Load(ctx)
	if err != nil {
		return settings.ViewSetting{}, nil, err
	}
	vs := state.Views[state.Selected]
	return vs, settings.InitSelectedSettings(s.hc, vs), nil
}

// Items returns the item list of one view setting.
func (s *SettingsService) Items(ctx context.Context, id string) (settings.Items, error) {
	vs, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return settings.InitSelectedSettings(s.hc, vs), nil
}

// Add appends a new view setting built from the active table and view and
// selects it.
func (s *SettingsService) Add(ctx context.Context, name string) (settings.ViewSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return settings.ViewSetting{}, fmt.Errorf("view setting name is required")
	}
	state, err := s.load(ctx)
	if err != nil {
		return settings.ViewSetting{}, err
	}

	vs := settings.DefaultViewSetting(s.hc, name)
	views := append(state.Views, vs)
	if err := s.save(ctx, views); err != nil {
		return settings.ViewSetting{}, err
	}
	if err := s.selectIndex(len(views) - 1); err != nil {
		return settings.ViewSetting{}, err
	}
	s.logger.Info("View setting added", "id", vs.ID, "name", vs.Name)
	return vs, nil
}

// Update replaces a view setting, keeping its id.
func (s *SettingsService) Update(ctx context.Context, id string, vs settings.ViewSetting) (settings.ViewSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs.ID = id
	if err := settings.Validate(vs); err != nil {
		return settings.ViewSetting{}, err
	}
	state, err := s.load(ctx)
	if err != nil {
		return settings.ViewSetting{}, err
	}
	i := indexOf(state.Views, id)
	if i < 0 {
		return settings.ViewSetting{}, fmt.Errorf("%s: %w", id, settings.ErrViewNotFound)
	}
	// normalize against the live schema before storing
	vs = settings.ToViewSetting(settings.InitSelectedSettings(s.hc, vs), vs)
	state.Views[i] = vs
	if err := s.save(ctx, state.Views); err != nil {
		return settings.ViewSetting{}, err
	}
	return vs, nil
}

// Rename changes the display name of a view setting.
func (s *SettingsService) Rename(ctx context.Context, id, name string) (settings.ViewSetting, error) {
	return s.modify(ctx, id, func(vs *settings.ViewSetting) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("view setting name is required")
		}
		vs.Name = name
		return nil
	})
}

// ToggleUserLocation flips whether the user's position is shown.
func (s *SettingsService) ToggleUserLocation(ctx context.Context, id string) (settings.ViewSetting, error) {
	return s.modify(ctx, id, func(vs *settings.ViewSetting) error {
		vs.ShowUserLocation = !vs.ShowUserLocation
		return nil
	})
}

// ApplyChange runs one settings panel change through the reducer and
// stores the result.
func (s *SettingsService) ApplyChange(ctx context.Context, id string, ev settings.ConfigChangeEvent) (settings.ViewSetting, settings.Items, error) {
	var items settings.Items
	vs, err := s.modify(ctx, id, func(vs *settings.ViewSetting) error {
		items = settings.UpdateSelectedSettings(s.hc, settings.InitSelectedSettings(s.hc, *vs), ev)
		*vs = settings.ToViewSetting(items, *vs)
		return nil
	})
	if err != nil {
		return settings.ViewSetting{}, nil, err
	}
	return vs, items, nil
}

func (s *SettingsService) modify(ctx context.Context, id string, fn func(*settings.ViewSetting) error) (settings.ViewSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load(ctx)
	if err != nil {
		return settings.ViewSetting{}, err
	}
	i := indexOf(state.Views, id)
	if i < 0 {
		return settings.ViewSetting{}, fmt.Errorf("%s: %w", id, settings.ErrViewNotFound)
	}
	if err := fn(&state.Views[i]); err != nil {
		return settings.ViewSetting{}, err
	}
	if err := s.save(ctx, state.Views); err != nil {
		return settings.ViewSetting{}, err
	}
	return state.Views[i], nil
}

// Delete removes a view setting. The last one cannot be deleted.
func (s *SettingsService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load(ctx)
	if err != nil {
		return err
	}
	i := indexOf(state.Views, id)
	if i < 0 {
		return fmt.Errorf("%s: %w", id, settings.ErrViewNotFound)
	}
	if len(state.Views) == 1 {
		return settings.ErrLastView
	}

	views := append(state.Views[:i:i], state.Views[i+1:]...)
	if err := s.save(ctx, views); err != nil {
		return err
	}

	selected := state.Selected
	if selected > i || selected == len(views) {
		selected--
	}
	return s.selectIndex(settings.Clamp(selected, len(views)))
}

// Move places the view setting id at the current position of target. The
// selection follows the selected view setting.
func (s *SettingsService) Move(ctx context.Context, id, target string) ([]settings.ViewSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	from := indexOf(state.Views, id)
	to := indexOf(state.Views, target)
	if from < 0 {
		return nil, fmt.Errorf("%s: %w", id, settings.ErrViewNotFound)
	}
	if to < 0 {
		return nil, fmt.Errorf("%s: %w", target, settings.ErrViewNotFound)
	}
	if from == to {
		return state.Views, nil
	}

	selectedID := state.Views[state.Selected].ID
	moved := state.Views[from]
	views := append(state.Views[:from:from], state.Views[from+1:]...)
	views = append(views[:to], append([]settings.ViewSetting{moved}, views[to:]...)...)

	if err := s.save(ctx, views); err != nil {
		return nil, err
	}
	if err := s.selectIndex(indexOf(views, selectedID)); err != nil {
		return nil, err
	}
	return views, nil
}

// Select marks a view setting as selected and returns its index.
func (s *SettingsService) Select(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	i := indexOf(state.Views, id)
	if i < 0 {
		return 0, fmt.Errorf("%s: %w", id, settings.ErrViewNotFound)
	}
	return i, s.selectIndex(i)
}
