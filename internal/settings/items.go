package settings

import (
	"github.com/joeblew999/plat-tablemap/internal/host"
)

// Display labels of the config items.
const (
	labelMapMode     = "Map mode"
	labelTable       = "Table"
	labelView        = "View"
	labelColumn      = "Address field"
	labelMark        = "Marker colored by"
	labelDirectShown = "Directly shown field"
	labelImage       = "Image field"
	labelShown       = "Fields shown on hover"
)

// InitSelectedSettings expands a view setting into its ordered item list.
// Missing tables and views fall back to the host's active ones.
func InitSelectedSettings(hc host.Context, vs ViewSetting) Items {
	table := resolveTable(hc, vs.TableName)
	view := resolveView(hc, table, vs.ViewName)
	mode := vs.MapMode
	if mode != MapModeImage {
		mode = MapModeDefault
	}

	items := Items{
		mapModeItem(mode),
		tableItem(hc, table),
		viewItem(hc, table, view),
		columnItem(table, vs.ColumnName),
	}
	if mode == MapModeImage {
		items = append(items, imageColumnItem(table, vs.ImageColumnName))
	} else {
		items = append(items,
			markDependenceItem(table, vs.MarkDependence),
			directShownItem(table, vs.DirectShownColumnName),
		)
	}
	return append(items, shownColumnsItem(hc, table, view, vs.ShownColumns))
}

func resolveTable(hc host.Context, name string) *host.Table {
	if t := hc.TableByName(name); t != nil {
		return t
	}
	return hc.ActiveTable()
}

func resolveView(hc host.Context, t *host.Table, name string) *host.View {
	views := hc.NonArchiveViews(t)
	for _, v := range views {
		if v.Name == name {
			return v
		}
	}
	if active := hc.ActiveView(); active != nil && hc.ActiveTable() == t {
		for _, v := range views {
			if v == active {
				return v
			}
		}
	}
	if len(views) > 0 {
		return views[0]
	}
	return nil
}

func mapModeItem(mode MapMode) ConfigItem {
	return ConfigItem{
		Type:   TypeMapMode,
		Name:   labelMapMode,
		Active: string(mode),
		Settings: []Option{
			{ID: string(MapModeDefault), Name: "Default"},
			{ID: string(MapModeImage), Name: "Image"},
		},
	}
}

func tableItem(hc host.Context, t *host.Table) ConfigItem {
	it := ConfigItem{Type: TypeTable, Name: labelTable}
	for _, tb := range hc.Tables() {
		it.Settings = append(it.Settings, Option{ID: tb.Name, Name: tb.Name})
	}
	if t != nil {
		it.Active = t.Name
	}
	return it
}

func viewItem(hc host.Context, t *host.Table, v *host.View) ConfigItem {
	it := ConfigItem{Type: TypeView, Name: labelView}
	for _, vw := range hc.NonArchiveViews(t) {
		it.Settings = append(it.Settings, Option{ID: vw.Name, Name: vw.Name})
	}
	if v != nil {
		it.Active = v.Name
	}
	return it
}

// selectFirst sets Active to want when it is an option, else to the
// first option, else "".
func selectFirst(it ConfigItem, want string) ConfigItem {
	switch {
	case want != "" && it.Has(want):
		it.Active = want
	case len(it.Settings) > 0:
		it.Active = it.Settings[0].ID
	default:
		it.Active = ""
	}
	return it
}

func columnsOf(t *host.Table, types ...host.ColumnType) []Option {
	if t == nil {
		return nil
	}
	var opts []Option
	for _, c := range t.Columns {
		for _, ty := range types {
			if c.Type == ty {
				opts = append(opts, Option{ID: c.Name, Name: c.Name})
				break
			}
		}
	}
	return opts
}

func columnItem(t *host.Table, want string) ConfigItem {
	it := ConfigItem{Type: TypeColumn, Name: labelColumn, Settings: columnsOf(t, host.ColumnGeolocation)}
	return selectFirst(it, want)
}

func markDependenceItem(t *host.Table, want string) ConfigItem {
	opts := []Option{{ID: NotUsed, Name: "Not used"}, {ID: RowColor, Name: "Row color"}}
	it := ConfigItem{
		Type:     TypeMarkDependence,
		Name:     labelMark,
		Settings: append(opts, columnsOf(t, host.ColumnSingleSelect)...),
	}
	return selectFirst(it, want)
}

func directShownItem(t *host.Table, want string) ConfigItem {
	opts := []Option{{ID: NotUsed, Name: "Not used"}}
	it := ConfigItem{
		Type:     TypeDirectShownColumn,
		Name:     labelDirectShown,
		Settings: append(opts, columnsOf(t, host.ColumnText, host.ColumnSingleSelect)...),
	}
	return selectFirst(it, want)
}

func imageColumnItem(t *host.Table, want string) ConfigItem {
	it := ConfigItem{Type: TypeImageColumn, Name: labelImage, Settings: columnsOf(t, host.ColumnImage)}
	return selectFirst(it, want)
}

// shownColumnsItem lists the view's shown columns, saved order first.
func shownColumnsItem(hc host.Context, t *host.Table, v *host.View, saved []ShownColumn) ConfigItem {
	it := ConfigItem{Type: TypeShownColumns, Name: labelShown}
	cols := hc.ViewShownColumns(t, v)

	byKey := make(map[string]*host.Column, len(cols))
	for _, c := range cols {
		byKey[c.Key] = c
	}
	seen := make(map[string]bool, len(cols))
	for _, sc := range saved {
		c, ok := byKey[sc.Key]
		if !ok || seen[sc.Key] {
			continue
		}
		seen[sc.Key] = true
		it.Settings = append(it.Settings, Option{ID: c.Key, Name: c.Name, Active: sc.Active})
	}
	for _, c := range cols {
		if !seen[c.Key] {
			it.Settings = append(it.Settings, Option{ID: c.Key, Name: c.Name})
		}
	}
	return it
}
