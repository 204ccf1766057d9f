// Package host models the table platform that loads the map plugin: its
// tables, views, columns and rows, the collaborator directory, opaque
// plugin settings storage and the host event bus.
//
// Components never reach for host state directly; they receive a [Context].
package host

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned by lookups that address a missing table, view,
// row or collaborator.
var ErrNotFound = errors.New("not found")

// ColumnType is the type tag of a table column.
type ColumnType string

const (
	ColumnText           ColumnType = "text"
	ColumnLongText       ColumnType = "long-text"
	ColumnNumber         ColumnType = "number"
	ColumnDate           ColumnType = "date"
	ColumnSingleSelect   ColumnType = "single-select"
	ColumnMultipleSelect ColumnType = "multiple-select"
	ColumnCollaborator   ColumnType = "collaborator"
	ColumnCreator        ColumnType = "creator"
	ColumnLastModifier   ColumnType = "last-modifier"
	ColumnFormula        ColumnType = "formula"
	ColumnLinkFormula    ColumnType = "link-formula"
	ColumnLink           ColumnType = "link"
	ColumnGeolocation    ColumnType = "geolocation"
	ColumnImage          ColumnType = "image"
	ColumnCheckbox       ColumnType = "checkbox"
	ColumnURL            ColumnType = "url"
	ColumnEmail          ColumnType = "email"
	ColumnCTime          ColumnType = "ctime"
	ColumnMTime          ColumnType = "mtime"
	ColumnAutoNumber     ColumnType = "auto-number"
	ColumnRate           ColumnType = "rate"
	ColumnDuration       ColumnType = "duration"
)

// Geo formats stored in ColumnData.GeoFormat of geolocation columns.
const (
	GeoFormatLatLng        = "lng_lat"
	GeoFormatAddress       = "geolocation"
	GeoFormatCountryRegion = "country_region"
	GeoFormatProvince      = "province"
	GeoFormatProvinceCity  = "province_city"
)

// View types.
const (
	ViewTypeTable   = "table"
	ViewTypeArchive = "archive"
)

// SelectOption is one choice of a single- or multiple-select column.
type SelectOption struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	TextColor string `json:"textColor,omitempty"`
}

// ColumnData carries type-specific column metadata.
type ColumnData struct {
	GeoFormat  string         `json:"geo_format,omitempty"`
	Options    []SelectOption `json:"options,omitempty"`
	Format     string         `json:"format,omitempty"`
	ResultType string         `json:"result_type,omitempty"`
	ArrayType  string         `json:"array_type,omitempty"`
	ArrayData  *ColumnData    `json:"array_data,omitempty"`
}

// Option returns the select option with the given id.
func (d ColumnData) Option(id string) (SelectOption, bool) {
	for _, o := range d.Options {
		if o.ID == id {
			return o, true
		}
	}
	return SelectOption{}, false
}

// Column describes one table column. Cells are keyed by Column.Key.
type Column struct {
	Key  string     `json:"key"`
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
	Data ColumnData `json:"data"`
}

// Filter restricts the rows shown by a view.
type Filter struct {
	ColumnKey string `json:"column_key"`
	Predicate string `json:"filter_predicate"`
	Term      string `json:"filter_term,omitempty"`
}

// Filter predicates understood by [ViewRows].
const (
	PredicateIs         = "is"
	PredicateIsNot      = "is_not"
	PredicateContains   = "contains"
	PredicateIsEmpty    = "is_empty"
	PredicateIsNotEmpty = "is_not_empty"
)

// View is a named projection of a table.
type View struct {
	ID                string   `json:"_id"`
	Name              string   `json:"name"`
	Type              string   `json:"type,omitempty"`
	Filters           []Filter `json:"filters,omitempty"`
	FilterConjunction string   `json:"filter_conjunction,omitempty"`
	HiddenColumns     []string `json:"hidden_columns,omitempty"`
	// ColorBy names a single-select column whose option colors color rows.
	ColorBy string `json:"color_by,omitempty"`
}

// IsDefault reports whether the view shows every row of its table.
func (v *View) IsDefault() bool {
	return len(v.Filters) == 0
}

// Row is one table row.
type Row struct {
	ID    string         `json:"_id"`
	Cells map[string]any `json:"cells"`
}

// Cell returns the value stored under a column key.
func (r *Row) Cell(key string) any {
	if r == nil || r.Cells == nil {
		return nil
	}
	return r.Cells[key]
}

// Table is a host table with its schema, rows and views.
type Table struct {
	ID      string    `json:"_id"`
	Name    string    `json:"name"`
	Columns []*Column `json:"columns"`
	Rows    []*Row    `json:"rows"`
	Views   []*View   `json:"views"`
	// Formulas holds precomputed formula results keyed by row id and column key.
	Formulas map[string]map[string]any `json:"formulas,omitempty"`
}

// Collaborator is an entry of the host user directory.
type Collaborator struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Dataset is the full host document the plugin works on.
type Dataset struct {
	ID            string         `json:"dataset_id"`
	Tables        []*Table       `json:"tables"`
	Collaborators []Collaborator `json:"collaborators,omitempty"`
	ActiveTable   string         `json:"active_table,omitempty"`
	ActiveView    string         `json:"active_view,omitempty"`
	// Plugins holds opaque plugin settings blobs keyed by plugin name.
	Plugins map[string]json.RawMessage `json:"plugins,omitempty"`
}

// Context is everything the map pipeline may ask of the host.
type Context interface {
	DatasetID() string

	Tables() []*Table
	TableByName(name string) *Table
	ViewByName(t *Table, name string) *View
	ColumnByName(t *Table, name string) *Column
	ViewShownColumns(t *Table, v *View) []*Column
	NonArchiveViews(t *Table) []*View
	RowByID(t *Table, id string) *Row

	ActiveTable() *Table
	ActiveView() *View

	ViewRows(ctx context.Context, t *Table, v *View) ([]*Row, error)
	FormulaResults(t *Table, rows []*Row) map[string]map[string]any
	RowColors(t *Table, v *View, rows []*Row) map[string]string

	Collaborators() []Collaborator
	UserInfo(ctx context.Context, email string) (Collaborator, error)

	PluginSettings(ctx context.Context, plugin string) ([]byte, error)
	UpdatePluginSettings(ctx context.Context, plugin string, settings []byte) error

	Subscribe(event string, handler func(Event)) (unsubscribe func())
	Publish(e Event)
}
