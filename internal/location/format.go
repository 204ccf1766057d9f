package location

import (
	"encoding/json"
	"html/template"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/tidwall/gjson"

	"github.com/joeblew999/plat-tablemap/internal/host"
	"github.com/joeblew999/plat-tablemap/internal/templates"
)

// Formatter renders one cell value of a column type. It reports false when
// the value has nothing to show.
type Formatter func(value any, col *host.Column, fc *FormatContext) (template.HTML, bool)

// FormatContext carries what formatters may look up beyond the cell.
type FormatContext struct {
	RowID    string
	Formulas map[string]map[string]any
	// User resolves a collaborator email. Nil leaves emails as they are.
	User func(email string) (host.Collaborator, bool)
}

// Registry maps column types to formatters.
type Registry struct {
	renderer   *templates.Renderer
	formatters map[host.ColumnType]Formatter
}

// NewRegistry creates a registry with the built-in formatters.
func NewRegistry(r *templates.Renderer) *Registry {
	reg := &Registry{renderer: r, formatters: make(map[host.ColumnType]Formatter)}

	for _, t := range []host.ColumnType{
		host.ColumnText, host.ColumnLongText, host.ColumnURL, host.ColumnEmail,
		host.ColumnAutoNumber, host.ColumnNumber, host.ColumnRate, host.ColumnDuration,
	} {
		reg.Register(t, reg.formatText)
	}
	for _, t := range []host.ColumnType{host.ColumnDate, host.ColumnCTime, host.ColumnMTime} {
		reg.Register(t, reg.formatDate)
	}
	reg.Register(host.ColumnSingleSelect, reg.formatSingleSelect)
	reg.Register(host.ColumnMultipleSelect, reg.formatMultipleSelect)
	reg.Register(host.ColumnCollaborator, reg.formatCollaborators)
	reg.Register(host.ColumnCreator, reg.formatCollaborators)
	reg.Register(host.ColumnLastModifier, reg.formatCollaborators)
	reg.Register(host.ColumnFormula, reg.formatFormula)
	reg.Register(host.ColumnLinkFormula, reg.formatFormula)
	reg.Register(host.ColumnLink, reg.formatLink)
	reg.Register(host.ColumnCheckbox, reg.formatCheckbox)
	reg.Register(host.ColumnGeolocation, reg.formatGeolocation)
	reg.Register(host.ColumnImage, reg.formatImage)
	return reg
}

// Register sets the formatter for a column type.
func (r *Registry) Register(t host.ColumnType, f Formatter) {
	r.formatters[t] = f
}

// Renderer returns the fragment renderer.
func (r *Registry) Renderer() *templates.Renderer { return r.renderer }

// Format renders value with the formatter of col's type.
func (r *Registry) Format(value any, col *host.Column, fc *FormatContext) (template.HTML, bool) {
	if col == nil {
		return "", false
	}
	if fc == nil {
		fc = &FormatContext{}
	}
	f, ok := r.formatters[col.Type]
	if !ok {
		return "", false
	}
	return f(value, col, fc)
}

func (r *Registry) fragment(name string, data any) (template.HTML, bool) {
	h, err := r.renderer.HTML(name, data)
	if err != nil {
		return "", false
	}
	return h, true
}

func (r *Registry) formatText(value any, col *host.Column, fc *FormatContext) (template.HTML, bool) {
	s := host.CellString(value)
	if s == "" {
		return "", false
	}
	return r.fragment("cell-text", s)
}

// dateLayouts maps host date formats to Go layouts.
var dateLayouts = map[string]string{
	"YYYY-MM-DD":       "2006-01-02",
	"YYYY-MM-DD HH:mm": "2006-01-02 15:04",
	"M/D/YYYY":         "1/2/2006",
	"M/D/YYYY HH:mm":   "1/2/2006 15:04",
	"DD/MM/YYYY":       "02/01/2006",
	"DD/MM/YYYY HH:mm": "02/01/2006 15:04",
	"DD.MM.YYYY":       "02.01.2006",
	"DD.MM.YYYY HH:mm": "02.01.2006 15:04",
}

func (r *Registry) formatDate(value any, col *host.Column, fc *FormatContext) (template.HTML, bool) {
	s := host.CellString(value)
	if s == "" {
		return "", false
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return r.fragment("cell-text", s)
	}
	layout, ok := dateLayouts[col.Data.Format]
	if !ok {
		layout = "2006-01-02"
		if col.Type == host.ColumnCTime || col.Type == host.ColumnMTime {
			layout = "2006-01-02 15:04"
		}
	}
	return r.fragment("cell-text", t.Format(layout))
}

func (r *Registry) formatSingleSelect(value any, col *host.Column, fc *FormatContext) (template.HTML, bool) {
	id, _ := value.(string)
	opt, ok := col.Data.Option(id)
	if !ok {
		return "", false
	}
	return r.fragment("cell-pill", opt)
}

func (r *Registry) formatMultipleSelect(value any, col *host.Column, fc *FormatContext) (template.HTML, bool) {
	ids, _ := value.([]any)
	var opts []host.SelectOption
	for _, v := range ids {
		id, _ := v.(string)
		if opt, ok := col.Data.Option(id); ok {
			opts = append(opts, opt)
		}
	}
	if len(opts) == 0 {
		return "", false
	}
	return r.fragment("cell-pills", opts)
}

func (r *Registry) formatCollaborators(value any, col *host.Column, fc *FormatContext) (template.HTML, bool) {
	var emails []string
	switch v := value.(type) {
	case string:
		emails = []string{v}
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok {
				emails = append(emails, s)
			}
		}
	}
	var names []string
	for _, e := range emails {
		if e == "" {
			continue
		}
		if fc.User == nil {
			names = append(names, e)
			continue
		}
		if c, ok := fc.User(e); ok && c.Name != "" {
			names = append(names, c.Name)
		} else {
			names = append(names, e)
		}
	}
	if len(names) == 0 {
		return "", false
	}
	return r.fragment("cell-text", strings.Join(names, " "))
}

// formatFormula renders a formula result through the formatter of its
// result type. Array results are rendered element by element.
func (r *Registry) formatFormula(value any, col *host.Column, fc *FormatContext) (template.HTML, bool) {
	if value == nil && fc.Formulas != nil {
		value = fc.Formulas[fc.RowID][col.Key]
	}
	if value == nil {
		return "", false
	}

	switch col.Data.ResultType {
	case "number":
		return r.Format(value, &host.Column{Key: col.Key, Type: host.ColumnNumber, Data: col.Data}, fc)
	case "date":
		return r.Format(value, &host.Column{Key: col.Key, Type: host.ColumnDate, Data: col.Data}, fc)
	case "bool":
		return r.Format(value, &host.Column{Key: col.Key, Type: host.ColumnCheckbox}, fc)
	case "array":
		return r.formatArray(value, col, fc)
	default:
		return r.formatText(value, col, fc)
	}
}

func (r *Registry) formatArray(value any, col *host.Column, fc *FormatContext) (template.HTML, bool) {
	elems, ok := value.([]any)
	if !ok {
		elems = []any{value}
	}
	inner := &host.Column{Key: col.Key, Type: host.ColumnType(col.Data.ArrayType)}
	if col.Data.ArrayData != nil {
		inner.Data = *col.Data.ArrayData
	}
	if inner.Type == "" || inner.Type == host.ColumnFormula || inner.Type == host.ColumnLinkFormula {
		inner.Type = host.ColumnText
	}

	var parts []string
	for _, e := range elems {
		if h, ok := r.Format(e, inner, fc); ok {
			parts = append(parts, string(h))
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return template.HTML(strings.Join(parts, " ")), true
}

func (r *Registry) formatLink(value any, col *host.Column, fc *FormatContext) (template.HTML, bool) {
	res := gjson.Parse(jsonString(value))
	var names []string
	res.ForEach(func(_, v gjson.Result) bool {
		if d := v.Get("display_value").String(); d != "" {
			names = append(names, d)
		}
		return true
	})
	if len(names) == 0 {
		return "", false
	}
	return r.fragment("cell-text", strings.Join(names, ", "))
}

func (r *Registry) formatCheckbox(value any, col *host.Column, fc *FormatContext) (template.HTML, bool) {
	b, ok := value.(bool)
	if !ok {
		return "", false
	}
	return r.fragment("cell-checkbox", b)
}

func (r *Registry) formatGeolocation(value any, col *host.Column, fc *FormatContext) (template.HTML, bool) {
	addr := ParseGeoValue(value).FormattedAddress(TypeOf(col))
	if addr == "" {
		return "", false
	}
	return r.fragment("cell-text", addr)
}

func (r *Registry) formatImage(value any, col *host.Column, fc *FormatContext) (template.HTML, bool) {
	images := Images(value)
	if len(images) == 0 {
		return "", false
	}
	return r.fragment("cell-image", images[0])
}

// Images returns the image URLs of an image cell.
func Images(value any) []string {
	var out []string
	gjson.Parse(jsonString(value)).ForEach(func(_, v gjson.Result) bool {
		if s := v.String(); s != "" {
			out = append(out, s)
		}
		return true
	})
	return out
}

func jsonString(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
