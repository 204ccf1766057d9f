package api

import (
	"github.com/danielgtaylor/huma/v2"
)

// links maps operation paths to RFC 8288 Link header values that the
// OpenAPI path structure cannot express.
var links = map[string][]string{
	"/api/v1/map": {
		`</api/v1/markers>; rel="markers"`,
		`</api/v1/clusters>; rel="clusters"`,
		`</api/v1/render>; rel="progress"`,
		`</api/v1/editor/events>; rel="events"`,
	},
	"/api/v1/markers": {
		`</api/v1/markers/same-location>; rel="same-location"`,
		`</api/v1/locations>; rel="locations"`,
	},
	"/api/v1/locations": {
		`</api/v1/views>; rel="views"`,
	},
	"/api/v1/views/{id}": {
		`</api/v1/map>; rel="map"`,
	},
	"/api/v1/views/{id}/items": {
		`</api/v1/views/{id}>; rel="view"`,
	},
	"/api/v1/tables": {
		`</api/v1/query>; rel="query"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects the static
// links above.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}
		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", link)
		}
		return v, nil
	}
}
