// Package settings holds the map view configuration model: the persisted
// view settings and the ordered ConfigItem list the settings panel edits.
//
// Every function here reads the host schema through a host.Context and
// returns fresh values; nothing is mutated in place.
package settings

import (
	"errors"
	"slices"
)

var (
	// ErrViewNotFound is returned for an unknown view setting id.
	ErrViewNotFound = errors.New("view setting not found")
	// ErrLastView is returned when deleting the only remaining view setting.
	ErrLastView = errors.New("cannot delete the last view setting")
)

// ConfigType tags one facet of the settings panel.
type ConfigType string

const (
	TypeMapMode           ConfigType = "map_mode"
	TypeTable             ConfigType = "table"
	TypeView              ConfigType = "view"
	TypeColumn            ConfigType = "column"
	TypeMarkDependence    ConfigType = "mark_dependence"
	TypeDirectShownColumn ConfigType = "direct_shown_column"
	TypeImageColumn       ConfigType = "image_column"
	TypeShownColumns      ConfigType = "shown_columns"
)

// MapMode selects between plain markers and image clusters.
type MapMode string

const (
	MapModeDefault MapMode = "default"
	MapModeImage   MapMode = "image"
)

// Sentinel option ids.
const (
	NotUsed  = "not_used"
	RowColor = "row_color"
)

// Option is one selectable entry of a ConfigItem. Active is only used by
// the shown_columns item, where every column is toggled independently.
type Option struct {
	ID     string `json:"id" doc:"Option identifier"`
	Name   string `json:"name" doc:"Display label"`
	Active bool   `json:"active,omitempty" doc:"Whether the column is shown on hover"`
}

// ConfigItem is one facet of the settings panel.
type ConfigItem struct {
	Type     ConfigType `json:"type" doc:"Facet type" enum:"map_mode,table,view,column,mark_dependence,direct_shown_column,image_column,shown_columns"`
	Name     string     `json:"name" doc:"Display label"`
	Active   string     `json:"active" doc:"Selected option id, empty when there is nothing to select"`
	Settings []Option   `json:"settings" doc:"Selectable options in display order"`
}

// Has reports whether id is one of the item's options.
func (c ConfigItem) Has(id string) bool {
	return slices.ContainsFunc(c.Settings, func(o Option) bool { return o.ID == id })
}

// Valid reports whether Active references an option, or is empty for an
// item without options. shown_columns carries per-option flags instead.
func (c ConfigItem) Valid() bool {
	if c.Type == TypeShownColumns {
		return c.Active == ""
	}
	if len(c.Settings) == 0 {
		return c.Active == ""
	}
	return c.Has(c.Active)
}

func (c ConfigItem) clone() ConfigItem {
	c.Settings = slices.Clone(c.Settings)
	return c
}

// Items is the ordered ConfigItem list of one view setting.
type Items []ConfigItem

// Get returns the item of the given type.
func (items Items) Get(t ConfigType) (ConfigItem, bool) {
	for _, it := range items {
		if it.Type == t {
			return it, true
		}
	}
	return ConfigItem{}, false
}

// Active returns the active option id of the given item, or "".
func (items Items) Active(t ConfigType) string {
	it, _ := items.Get(t)
	return it.Active
}

// MapMode returns the selected map mode.
func (items Items) MapMode() MapMode {
	if m := MapMode(items.Active(TypeMapMode)); m == MapModeImage {
		return m
	}
	return MapModeDefault
}

// ShownColumns returns the active hover columns in display order.
func (items Items) ShownColumns() []Option {
	it, _ := items.Get(TypeShownColumns)
	var out []Option
	for _, o := range it.Settings {
		if o.Active {
			out = append(out, o)
		}
	}
	return out
}

// Types returns the item types in order.
func (items Items) Types() []ConfigType {
	out := make([]ConfigType, len(items))
	for i, it := range items {
		out[i] = it.Type
	}
	return out
}

// Clone returns a deep copy.
func (items Items) Clone() Items {
	out := make(Items, len(items))
	for i, it := range items {
		out[i] = it.clone()
	}
	return out
}

// ShownColumn is one hover column of a view setting.
type ShownColumn struct {
	Key    string `json:"key" doc:"Column key"`
	Name   string `json:"name,omitempty" doc:"Column name when saved"`
	Active bool   `json:"shown" doc:"Whether the column is shown"`
}

// ViewSetting is one named, persisted map view.
type ViewSetting struct {
	ID                    string        `json:"_id" validate:"required" doc:"View setting id"`
	Name                  string        `json:"name" validate:"required,max=100" minLength:"1" maxLength:"100" doc:"Display name" example:"Trips in Japan"`
	MapMode               MapMode       `json:"map_mode,omitempty" validate:"omitempty,mapmode" enum:"default,image" doc:"Map mode"`
	TableName             string        `json:"table_name,omitempty" doc:"Table name"`
	ViewName              string        `json:"view_name,omitempty" doc:"View name"`
	ColumnName            string        `json:"column_name,omitempty" doc:"Geolocation column name"`
	MarkDependence        string        `json:"mark_dependence,omitempty" doc:"Column coloring the markers, or not_used / row_color"`
	DirectShownColumnName string        `json:"direct_shown_column_name,omitempty" doc:"Column shown next to each marker"`
	ImageColumnName       string        `json:"image_column_name,omitempty" doc:"Image column for image mode"`
	ShownColumns          []ShownColumn `json:"shown_columns,omitempty" validate:"dive" doc:"Columns shown on hover"`
	ShowUserLocation      bool          `json:"show_user_location" doc:"Whether to show the user's position"`
}

// Document is the plugin settings blob stored by the host.
type Document struct {
	Views []ViewSetting `json:"views"`
}
