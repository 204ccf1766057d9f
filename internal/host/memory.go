package host

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Memory is a Context backed by an in-memory Dataset snapshot. The
// snapshot is replaced wholesale by SetDataset and never mutated in place,
// so returned tables stay consistent for the caller.
type Memory struct {
	mu      sync.RWMutex
	dataset *Dataset
	bus     *Bus

	usersMu sync.Mutex
	users   map[string]Collaborator
}

// NewMemory creates a host over the given dataset. A nil bus gets a
// private one.
func NewMemory(ds *Dataset, bus *Bus) *Memory {
	if ds == nil {
		ds = &Dataset{}
	}
	if bus == nil {
		bus = NewBus()
	}
	if ds.Plugins == nil {
		ds.Plugins = make(map[string]json.RawMessage)
	}
	return &Memory{dataset: ds, bus: bus, users: make(map[string]Collaborator)}
}

// Dataset returns the current snapshot.
func (m *Memory) Dataset() *Dataset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dataset
}

// SetDataset replaces the snapshot and announces the change.
func (m *Memory) SetDataset(ds *Dataset) {
	if ds.Plugins == nil {
		ds.Plugins = make(map[string]json.RawMessage)
	}
	m.mu.Lock()
	// plugin settings survive table reloads
	for k, v := range m.dataset.Plugins {
		if _, ok := ds.Plugins[k]; !ok {
			ds.Plugins[k] = v
		}
	}
	m.dataset = ds
	m.mu.Unlock()

	m.usersMu.Lock()
	m.users = make(map[string]Collaborator)
	m.usersMu.Unlock()

	m.bus.Publish(Event{Name: EventDatasetChanged, Payload: map[string]any{"dataset_id": ds.ID}})
}

// Bus returns the event bus.
func (m *Memory) Bus() *Bus { return m.bus }

func (m *Memory) DatasetID() string { return m.Dataset().ID }

func (m *Memory) Tables() []*Table { return m.Dataset().Tables }

func (m *Memory) TableByName(name string) *Table {
	for _, t := range m.Tables() {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func (m *Memory) ViewByName(t *Table, name string) *View {
	if t == nil {
		return nil
	}
	for _, v := range t.Views {
		if v.Name == name {
			return v
		}
	}
	return nil
}

func (m *Memory) ColumnByName(t *Table, name string) *Column {
	if t == nil {
		return nil
	}
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (m *Memory) ViewShownColumns(t *Table, v *View) []*Column {
	if t == nil {
		return nil
	}
	if v == nil || len(v.HiddenColumns) == 0 {
		return t.Columns
	}
	hidden := make(map[string]bool, len(v.HiddenColumns))
	for _, k := range v.HiddenColumns {
		hidden[k] = true
	}
	var cols []*Column
	for _, c := range t.Columns {
		if !hidden[c.Key] {
			cols = append(cols, c)
		}
	}
	return cols
}

func (m *Memory) NonArchiveViews(t *Table) []*View {
	if t == nil {
		return nil
	}
	var views []*View
	for _, v := range t.Views {
		if v.Type != ViewTypeArchive {
			views = append(views, v)
		}
	}
	return views
}

func (m *Memory) RowByID(t *Table, id string) *Row {
	if t == nil {
		return nil
	}
	for _, r := range t.Rows {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (m *Memory) ActiveTable() *Table {
	ds := m.Dataset()
	if t := m.TableByName(ds.ActiveTable); t != nil {
		return t
	}
	if len(ds.Tables) > 0 {
		return ds.Tables[0]
	}
	return nil
}

func (m *Memory) ActiveView() *View {
	t := m.ActiveTable()
	if v := m.ViewByName(t, m.Dataset().ActiveView); v != nil {
		return v
	}
	if views := m.NonArchiveViews(t); len(views) > 0 {
		return views[0]
	}
	return nil
}

// ViewRows returns the table rows passing the view filters, in table order.
func (m *Memory) ViewRows(ctx context.Context, t *Table, v *View) ([]*Row, error) {
	if t == nil {
		return nil, fmt.Errorf("view rows: table: %w", ErrNotFound)
	}
	if v == nil || v.IsDefault() {
		return t.Rows, nil
	}

	cols := make(map[string]*Column, len(t.Columns))
	for _, c := range t.Columns {
		cols[c.Key] = c
	}

	var rows []*Row
	for _, r := range t.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if matchFilters(r, v, cols) {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

func matchFilters(r *Row, v *View, cols map[string]*Column) bool {
	or := strings.EqualFold(v.FilterConjunction, "or")
	for _, f := range v.Filters {
		ok := matchFilter(r, f, cols[f.ColumnKey])
		if or && ok {
			return true
		}
		if !or && !ok {
			return false
		}
	}
	return !or
}

func matchFilter(r *Row, f Filter, col *Column) bool {
	if col == nil {
		// filters on deleted columns do not restrict
		return true
	}
	s := CellString(r.Cell(col.Key))
	switch f.Predicate {
	case PredicateIs:
		return s == f.Term
	case PredicateIsNot:
		return s != f.Term
	case PredicateContains:
		return strings.Contains(strings.ToLower(s), strings.ToLower(f.Term))
	case PredicateIsEmpty:
		return s == ""
	case PredicateIsNotEmpty:
		return s != ""
	default:
		return true
	}
}

// CellString flattens a raw cell value into comparable text.
func CellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		if x {
			return "true"
		}
		return ""
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			if s := CellString(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(x, ",")
	default:
		b, err := json.Marshal(x)
		if err != nil || string(b) == "{}" || string(b) == "null" {
			return ""
		}
		return string(b)
	}
}

func (m *Memory) FormulaResults(t *Table, rows []*Row) map[string]map[string]any {
	out := make(map[string]map[string]any, len(rows))
	if t == nil || t.Formulas == nil {
		return out
	}
	for _, r := range rows {
		if res, ok := t.Formulas[r.ID]; ok {
			out[r.ID] = res
		}
	}
	return out
}

// RowColors colors each row by the option color of the view's ColorBy column.
func (m *Memory) RowColors(t *Table, v *View, rows []*Row) map[string]string {
	out := make(map[string]string)
	if t == nil || v == nil || v.ColorBy == "" {
		return out
	}
	var col *Column
	for _, c := range t.Columns {
		if c.Key == v.ColorBy {
			col = c
			break
		}
	}
	if col == nil || col.Type != ColumnSingleSelect {
		return out
	}
	for _, r := range rows {
		id, _ := r.Cell(col.Key).(string)
		if opt, ok := col.Data.Option(id); ok && opt.Color != "" {
			out[r.ID] = opt.Color
		}
	}
	return out
}

func (m *Memory) Collaborators() []Collaborator { return m.Dataset().Collaborators }

// UserInfo looks up a collaborator by email, caching hits.
func (m *Memory) UserInfo(ctx context.Context, email string) (Collaborator, error) {
	m.usersMu.Lock()
	defer m.usersMu.Unlock()

	if u, ok := m.users[email]; ok {
		return u, nil
	}
	for _, c := range m.Collaborators() {
		if c.Email == email {
			m.users[email] = c
			return c, nil
		}
	}
	return Collaborator{}, fmt.Errorf("user %q: %w", email, ErrNotFound)
}

func (m *Memory) PluginSettings(ctx context.Context, plugin string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.dataset.Plugins[plugin]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), raw...), nil
}

func (m *Memory) UpdatePluginSettings(ctx context.Context, plugin string, settings []byte) error {
	if !json.Valid(settings) {
		return fmt.Errorf("plugin %q settings: invalid json", plugin)
	}
	m.mu.Lock()
	m.dataset.Plugins[plugin] = append(json.RawMessage(nil), settings...)
	m.mu.Unlock()

	m.bus.Publish(Event{Name: EventSettingsChanged, Payload: map[string]any{"plugin": plugin}})
	return nil
}

func (m *Memory) Subscribe(event string, handler func(Event)) func() {
	return m.bus.Subscribe(event, handler)
}

func (m *Memory) Publish(e Event) { m.bus.Publish(e) }
