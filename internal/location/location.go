// Package location turns table rows into map locations: one Location per
// row with a non-empty geo value, with its marker color, the label shown
// next to the marker and the hover labels.
package location

import (
	"context"
	"html/template"
	"log/slog"

	"github.com/joeblew999/plat-tablemap/internal/host"
	"github.com/joeblew999/plat-tablemap/internal/settings"
)

// DefaultColor is the marker color used when no color dependency applies.
const DefaultColor = "#E83A3A"

// Label is one rendered hover column.
type Label struct {
	ColumnKey  string        `json:"column_key"`
	ColumnName string        `json:"column_name"`
	HTML       template.HTML `json:"html"`
}

// Location is one point of interest derived from a row.
type Location struct {
	Type             Type             `json:"type"`
	Value            GeoValue         `json:"location"`
	Name             string           `json:"name"`
	Color            string           `json:"color"`
	Labels           []*Label         `json:"labels"`
	RowID            string           `json:"row_id"`
	ColumnName       string           `json:"column_name"`
	DirectShownLabel template.HTML    `json:"direct_shown_label,omitempty"`
	ImageColumnName  string           `json:"image_column_name,omitempty"`
	Images           []string         `json:"images,omitempty"`
	MapMode          settings.MapMode `json:"map_mode"`
}

// Address returns the one-line address of the location.
func (l Location) Address() string {
	return l.Value.FormattedAddress(l.Type)
}

// Extractor builds locations from the host tables.
type Extractor struct {
	hc     host.Context
	reg    *Registry
	logger *slog.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(hc host.Context, reg *Registry, logger *slog.Logger) *Extractor {
	return &Extractor{hc: hc, reg: reg, logger: logger}
}

// Registry returns the cell formatter registry.
func (e *Extractor) Registry() *Registry { return e.reg }

// GetLocations returns one location per row with a geo value, in row
// order. A missing table or geo column yields no locations.
func (e *Extractor) GetLocations(ctx context.Context, items settings.Items) ([]Location, error) {
	table := e.hc.TableByName(items.Active(settings.TypeTable))
	if table == nil {
		return nil, nil
	}
	geoCol := e.hc.ColumnByName(table, items.Active(settings.TypeColumn))
	if geoCol == nil {
		return nil, nil
	}
	view := e.hc.ViewByName(table, items.Active(settings.TypeView))

	rows := table.Rows
	if view != nil && !view.IsDefault() {
		var err error
		rows, err = e.hc.ViewRows(ctx, table, view)
		if err != nil {
			return nil, err
		}
	}

	addrType := TypeOf(geoCol)
	mode := items.MapMode()
	mark := items.Active(settings.TypeMarkDependence)

	var rowColors map[string]string
	if mark == settings.RowColor {
		rowColors = e.hc.RowColors(table, view, rows)
	}
	var markCol *host.Column
	if mark != "" && mark != settings.NotUsed && mark != settings.RowColor {
		markCol = e.hc.ColumnByName(table, mark)
	}
	var directCol *host.Column
	if d := items.Active(settings.TypeDirectShownColumn); d != "" && d != settings.NotUsed {
		directCol = e.hc.ColumnByName(table, d)
	}
	var imageCol *host.Column
	if mode == settings.MapModeImage {
		imageCol = e.hc.ColumnByName(table, items.Active(settings.TypeImageColumn))
	}

	shown := e.shownColumns(table, items)
	fc := &FormatContext{
		Formulas: e.hc.FormulaResults(table, rows),
		User: func(email string) (host.Collaborator, bool) {
			c, err := e.hc.UserInfo(ctx, email)
			return c, err == nil
		},
	}

	var nameCol *host.Column
	if len(table.Columns) > 0 {
		nameCol = table.Columns[0]
	}

	seen := make(map[string]bool, len(rows))
	locations := make([]Location, 0, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if seen[row.ID] {
			continue
		}
		value := ParseGeoValue(row.Cell(geoCol.Key))
		if value.Empty(addrType) {
			continue
		}
		seen[row.ID] = true
		fc.RowID = row.ID

		loc := Location{
			Type:       addrType,
			Value:      value,
			Color:      e.markerColor(row, markCol, rowColors),
			RowID:      row.ID,
			ColumnName: geoCol.Name,
			MapMode:    mode,
		}
		if nameCol != nil {
			loc.Name = host.CellString(row.Cell(nameCol.Key))
		}
		if directCol != nil {
			loc.DirectShownLabel = e.directShownLabel(row, directCol)
		}
		if imageCol != nil {
			loc.ImageColumnName = imageCol.Name
			loc.Images = Images(row.Cell(imageCol.Key))
		}
		loc.Labels = e.labels(row, shown, fc)
		locations = append(locations, loc)
	}

	e.logger.Debug("Extracted locations", "table", table.Name, "column", geoCol.Name, "rows", len(rows), "locations", len(locations))
	return locations, nil
}

func (e *Extractor) markerColor(row *host.Row, markCol *host.Column, rowColors map[string]string) string {
	if rowColors != nil {
		if c, ok := rowColors[row.ID]; ok && c != "" {
			return c
		}
		return DefaultColor
	}
	if markCol != nil && markCol.Type == host.ColumnSingleSelect {
		id, _ := row.Cell(markCol.Key).(string)
		if opt, ok := markCol.Data.Option(id); ok && opt.Color != "" {
			return opt.Color
		}
	}
	return DefaultColor
}

func (e *Extractor) directShownLabel(row *host.Row, col *host.Column) template.HTML {
	var inner template.HTML
	var ok bool
	switch col.Type {
	case host.ColumnText, host.ColumnSingleSelect:
		inner, ok = e.reg.Format(row.Cell(col.Key), col, nil)
	}
	if !ok {
		return ""
	}
	h, err := e.reg.Renderer().HTML("direct-label", inner)
	if err != nil {
		return ""
	}
	return h
}

// shownColumns resolves the active hover columns; a column deleted since
// the settings were saved stays as a nil slot.
func (e *Extractor) shownColumns(t *host.Table, items settings.Items) []*host.Column {
	byKey := make(map[string]*host.Column, len(t.Columns))
	for _, c := range t.Columns {
		byKey[c.Key] = c
	}
	opts := items.ShownColumns()
	cols := make([]*host.Column, len(opts))
	for i, o := range opts {
		cols[i] = byKey[o.ID]
	}
	return cols
}

func (e *Extractor) labels(row *host.Row, cols []*host.Column, fc *FormatContext) []*Label {
	labels := make([]*Label, len(cols))
	for i, c := range cols {
		if c == nil {
			continue
		}
		h, ok := e.reg.Format(row.Cell(c.Key), c, fc)
		if !ok {
			continue
		}
		labels[i] = &Label{ColumnKey: c.Key, ColumnName: c.Name, HTML: h}
	}
	return labels
}
