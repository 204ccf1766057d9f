// Package templates handles HTML fragment rendering for cell labels, map
// popups and Datastar SSE responses.
package templates

import (
	"bytes"
	"embed"
	"html/template"
	"path/filepath"
	"strings"
)

//go:embed fragments/*.html
var embedded embed.FS

// funcMap provides common template functions.
var funcMap = template.FuncMap{
	// dict creates a map from key-value pairs, useful for passing multiple values to nested templates
	"dict": func(values ...any) map[string]any {
		if len(values)%2 != 0 {
			return nil
		}
		m := make(map[string]any, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				continue
			}
			m[key] = values[i+1]
		}
		return m
	},
	"join": strings.Join,
}

// Renderer manages HTML fragment templates.
type Renderer struct {
	templates *template.Template
}

// New creates a renderer from fragmentsDir/*.html. Use it to override the
// built-in fragments during UI development.
func New(fragmentsDir string) (*Renderer, error) {
	pattern := filepath.Join(fragmentsDir, "*.html")
	tmpl, err := template.New("").Funcs(funcMap).ParseGlob(pattern)
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl}, nil
}

// NewEmbedded creates a renderer from the fragments compiled into the binary.
func NewEmbedded() (*Renderer, error) {
	tmpl, err := template.New("").Funcs(funcMap).ParseFS(embedded, "fragments/*.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl}, nil
}

// Must panics if err is non-nil. Use only with NewEmbedded, whose
// templates are checked by tests.
func Must(r *Renderer, err error) *Renderer {
	if err != nil {
		panic(err)
	}
	return r
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToBuffer(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// HTML renders a named template as trusted HTML.
func (r *Renderer) HTML(name string, data any) (template.HTML, error) {
	s, err := r.Render(name, data)
	return template.HTML(s), err
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	return r.templates.ExecuteTemplate(buf, name, data)
}
