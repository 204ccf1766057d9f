package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joeblew999/plat-tablemap/internal/host"
)

// DefaultViewName names the view setting synthesized on first run.
const DefaultViewName = "Default map"

// Selection remembers the selected view setting index per dataset.
type Selection interface {
	Selected(datasetID string) (int, bool)
}

// PluginState is the result of loading the plugin settings.
type PluginState struct {
	Views    []ViewSetting `json:"views"`
	Selected int           `json:"selected"`
	// ShowSetup is set when no stored view setting was usable and a
	// default had to be synthesized.
	ShowSetup bool `json:"show_setup"`
	// Dropped counts stored view settings that no longer match the schema.
	Dropped int `json:"dropped"`
}

// IsValidSettingItem reports whether the table, view and column a view
// setting references all still exist.
func IsValidSettingItem(hc host.Context, vs ViewSetting) bool {
	t := hc.TableByName(vs.TableName)
	if t == nil {
		return false
	}
	if hc.ViewByName(t, vs.ViewName) == nil {
		return false
	}
	if vs.ColumnName != "" && hc.ColumnByName(t, vs.ColumnName) == nil {
		return false
	}
	return true
}

// DefaultViewSetting builds a view setting from the host's active table
// and view.
func DefaultViewSetting(hc host.Context, name string) ViewSetting {
	vs := ViewSetting{
		ID:             uuid.NewString(),
		Name:           name,
		MapMode:        MapModeDefault,
		MarkDependence: NotUsed,
	}
	items := InitSelectedSettings(hc, vs)
	return ToViewSetting(items, vs)
}

// DecodeDocument parses a stored settings blob. An empty blob is an empty
// document.
func DecodeDocument(raw []byte) (Document, error) {
	var doc Document
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("decode plugin settings: %w", err)
	}
	return doc, nil
}

// InitPluginSettings loads the stored view settings, drops the ones the
// schema no longer supports, and synthesizes a default when none remain.
// The selected index is read from sel and clamped to the list.
func InitPluginSettings(ctx context.Context, hc host.Context, plugin string, sel Selection, logger *slog.Logger) (PluginState, error) {
	raw, err := hc.PluginSettings(ctx, plugin)
	if err != nil {
		return PluginState{}, fmt.Errorf("read plugin settings: %w", err)
	}
	doc, err := DecodeDocument(raw)
	if err != nil {
		// a corrupt blob is treated like schema drift
		logger.Warn("Discarding unreadable plugin settings", "plugin", plugin, "error", err)
	}

	var state PluginState
	for _, vs := range doc.Views {
		if IsValidSettingItem(hc, vs) {
			state.Views = append(state.Views, vs)
		} else {
			state.Dropped++
		}
	}
	if state.Dropped > 0 {
		logger.Info("Dropped stale view settings", "count", state.Dropped)
	}

	if len(state.Views) == 0 {
		state.Views = []ViewSetting{DefaultViewSetting(hc, DefaultViewName)}
		state.ShowSetup = true
	}

	if sel != nil {
		if idx, ok := sel.Selected(hc.DatasetID()); ok {
			state.Selected = Clamp(idx, len(state.Views))
		}
	}
	return state, nil
}

// Clamp bounds a selected index to a list of n view settings.
func Clamp(idx, n int) int {
	if idx < 0 || n == 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}
