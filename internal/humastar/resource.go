// resource.go: reusable action definitions.
//
// ActionDef is a URL pattern for an action (e.g. "/api/v1/views/%s/items").
// ActionsFor turns the definitions into concrete Actions for one resource.
package humastar

import "fmt"

// ActionDef is a reusable action template. Pattern uses a single %s verb
// for the resource ID.
type ActionDef struct {
	Rel     string
	Pattern string
	Method  string
	Title   string
	Schema  string
}

// ActionsFor generates concrete Action values from ActionDefs for a given resource ID.
func ActionsFor(id string, defs []ActionDef) []Action {
	actions := make([]Action, 0, len(defs))
	for _, d := range defs {
		actions = append(actions, Action{
			Rel:    d.Rel,
			Href:   fmt.Sprintf(d.Pattern, id),
			Method: d.Method,
			Title:  d.Title,
			Schema: d.Schema,
		})
	}
	return actions
}
