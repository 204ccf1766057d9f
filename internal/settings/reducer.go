package settings

import (
	"fmt"
	"slices"

	"github.com/joeblew999/plat-tablemap/internal/host"
)

// ConfigChangeEvent is one settings panel interaction. The concrete types
// below are the only implementations.
type ConfigChangeEvent interface {
	ConfigType() ConfigType
}

type (
	MapModeChanged struct{ Mode MapMode }
	TableChanged   struct{ Table string }
	ViewChanged    struct{ View string }
	// OptionSelected selects an option of the column, mark_dependence,
	// direct_shown_column or image_column item.
	OptionSelected struct {
		Type   ConfigType
		Option string
	}
	ShownColumnToggled struct {
		Key    string
		Active bool
	}
	ShownColumnsReordered struct{ Keys []string }
)

func (MapModeChanged) ConfigType() ConfigType        { return TypeMapMode }
func (TableChanged) ConfigType() ConfigType          { return TypeTable }
func (ViewChanged) ConfigType() ConfigType           { return TypeView }
func (e OptionSelected) ConfigType() ConfigType      { return e.Type }
func (ShownColumnToggled) ConfigType() ConfigType    { return TypeShownColumns }
func (ShownColumnsReordered) ConfigType() ConfigType { return TypeShownColumns }

// ChangeRequest is the wire form of a ConfigChangeEvent.
type ChangeRequest struct {
	Type   ConfigType `json:"type" required:"true" enum:"map_mode,table,view,column,mark_dependence,direct_shown_column,image_column,shown_columns" doc:"Facet being changed"`
	Option string     `json:"option,omitempty" doc:"Selected option id, or the toggled column key"`
	Active *bool      `json:"active,omitempty" doc:"New shown flag for a shown_columns toggle"`
	Order  []string   `json:"order,omitempty" doc:"New shown_columns key order"`
}

// Event converts the request into a typed change event.
func (r ChangeRequest) Event() (ConfigChangeEvent, error) {
	switch r.Type {
	case TypeMapMode:
		if r.Option != string(MapModeDefault) && r.Option != string(MapModeImage) {
			return nil, fmt.Errorf("unknown map mode %q", r.Option)
		}
		return MapModeChanged{Mode: MapMode(r.Option)}, nil
	case TypeTable:
		return TableChanged{Table: r.Option}, nil
	case TypeView:
		return ViewChanged{View: r.Option}, nil
	case TypeColumn, TypeMarkDependence, TypeDirectShownColumn, TypeImageColumn:
		return OptionSelected{Type: r.Type, Option: r.Option}, nil
	case TypeShownColumns:
		if r.Order != nil {
			return ShownColumnsReordered{Keys: r.Order}, nil
		}
		if r.Active == nil {
			return nil, fmt.Errorf("shown_columns change needs active or order")
		}
		return ShownColumnToggled{Key: r.Option, Active: *r.Active}, nil
	default:
		return nil, fmt.Errorf("unknown config type %q", r.Type)
	}
}

// UpdateSelectedSettings applies one change and returns a new item list.
// The input list is never modified.
func UpdateSelectedSettings(hc host.Context, items Items, ev ConfigChangeEvent) Items {
	out := items.Clone()

	switch e := ev.(type) {
	case MapModeChanged:
		return switchMapMode(hc, out, e.Mode)

	case TableChanged:
		if e.Table == out.Active(TypeTable) || hc.TableByName(e.Table) == nil {
			return out
		}
		vs := ToViewSetting(out, ViewSetting{})
		return InitSelectedSettings(hc, ViewSetting{
			MapMode:          vs.MapMode,
			TableName:        e.Table,
			ShowUserLocation: vs.ShowUserLocation,
		})

	case ViewChanged:
		if e.View == out.Active(TypeView) {
			return out
		}
		out = setActive(out, TypeView, e.View)
		table := hc.TableByName(out.Active(TypeTable))
		view := resolveView(hc, table, out.Active(TypeView))
		saved := ToViewSetting(out, ViewSetting{}).ShownColumns
		for i := range out {
			if out[i].Type == TypeShownColumns {
				out[i] = shownColumnsItem(hc, table, view, saved)
			}
		}
		return out

	case OptionSelected:
		return setActive(out, e.Type, e.Option)

	case ShownColumnToggled:
		for i := range out {
			if out[i].Type != TypeShownColumns {
				continue
			}
			for j := range out[i].Settings {
				if out[i].Settings[j].ID == e.Key {
					out[i].Settings[j].Active = e.Active
				}
			}
		}
		return out

	case ShownColumnsReordered:
		for i := range out {
			if out[i].Type == TypeShownColumns {
				out[i].Settings = reorder(out[i].Settings, e.Keys)
			}
		}
		return out
	}
	return out
}

func setActive(items Items, t ConfigType, id string) Items {
	for i := range items {
		if items[i].Type == t && items[i].Has(id) {
			items[i].Active = id
		}
	}
	return items
}

func switchMapMode(hc host.Context, items Items, mode MapMode) Items {
	if mode == items.MapMode() {
		return items
	}
	table := hc.TableByName(items.Active(TypeTable))

	out := make(Items, 0, len(items)+1)
	for _, it := range items {
		switch it.Type {
		case TypeMarkDependence, TypeDirectShownColumn, TypeImageColumn:
			continue
		case TypeMapMode:
			it.Active = string(mode)
		}
		out = append(out, it)
		if it.Type != TypeColumn {
			continue
		}
		if mode == MapModeImage {
			out = append(out, imageColumnItem(table, ""))
		} else {
			out = append(out, markDependenceItem(table, ""), directShownItem(table, ""))
		}
	}
	return out
}

// reorder sorts options by keys; options not named keep their relative
// order after the named ones.
func reorder(opts []Option, keys []string) []Option {
	rank := make(map[string]int, len(keys))
	for i, k := range keys {
		if _, dup := rank[k]; !dup {
			rank[k] = i
		}
	}
	out := slices.Clone(opts)
	slices.SortStableFunc(out, func(a, b Option) int {
		ra, oka := rank[a.ID]
		rb, okb := rank[b.ID]
		switch {
		case oka && okb:
			return ra - rb
		case oka:
			return -1
		case okb:
			return 1
		default:
			return 0
		}
	})
	return out
}

// ToViewSetting folds an item list back into base for persistence.
func ToViewSetting(items Items, base ViewSetting) ViewSetting {
	vs := base
	vs.MapMode = items.MapMode()
	vs.TableName = items.Active(TypeTable)
	vs.ViewName = items.Active(TypeView)
	vs.ColumnName = items.Active(TypeColumn)
	if it, ok := items.Get(TypeMarkDependence); ok {
		vs.MarkDependence = it.Active
	}
	if it, ok := items.Get(TypeDirectShownColumn); ok {
		vs.DirectShownColumnName = it.Active
	}
	if it, ok := items.Get(TypeImageColumn); ok {
		vs.ImageColumnName = it.Active
	}
	if it, ok := items.Get(TypeShownColumns); ok {
		vs.ShownColumns = make([]ShownColumn, len(it.Settings))
		for i, o := range it.Settings {
			vs.ShownColumns[i] = ShownColumn{Key: o.ID, Name: o.Name, Active: o.Active}
		}
	}
	return vs
}
