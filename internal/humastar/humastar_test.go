package humastar

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-tablemap/internal/templates"
)

func TestPageBody_PaginationLinks(t *testing.T) {
	tests := []struct {
		name   string
		page   PageBody[int]
		expect []string
	}{
		{
			name: "first page",
			page: PageBody[int]{Total: 5, Offset: 0, Limit: 2},
			expect: []string{
				`</items?offset=0&limit=2>; rel="first"`,
				`</items?offset=2&limit=2>; rel="next"`,
				`</items?offset=4&limit=2>; rel="last"`,
			},
		},
		{
			name: "middle page",
			page: PageBody[int]{Total: 5, Offset: 2, Limit: 2},
			expect: []string{
				`</items?offset=0&limit=2>; rel="first"`,
				`</items?offset=0&limit=2>; rel="prev"`,
				`</items?offset=4&limit=2>; rel="next"`,
				`</items?offset=4&limit=2>; rel="last"`,
			},
		},
		{
			name: "empty",
			page: PageBody[int]{Total: 0, Offset: 0, Limit: 10},
			expect: []string{
				`</items?offset=0&limit=10>; rel="first"`,
				`</items?offset=0&limit=10>; rel="last"`,
			},
		},
		{
			name: "no limit",
			page: PageBody[int]{Total: 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.page.PaginationLinks("/items"))
		})
	}
}

func TestAction_LinkHeader(t *testing.T) {
	a := Action{Rel: "select", Href: "/api/v1/views/42/select", Method: "POST", Title: "Show on map"}
	assert.Equal(t, `</api/v1/views/42/select>; rel="select"; method="POST"; title="Show on map"`, a.LinkHeader())

	bare := Action{Rel: "items", Href: "/api/v1/views/42/items"}
	assert.Equal(t, `</api/v1/views/42/items>; rel="items"`, bare.LinkHeader())
}

func TestActionsFor(t *testing.T) {
	defs := []ActionDef{
		{Rel: "items", Pattern: "/api/v1/views/%s/items", Method: "GET"},
		{Rel: "rename", Pattern: "/api/v1/views/%s/rename", Method: "POST", Title: "Rename"},
	}
	actions := ActionsFor("abc", defs)
	require.Len(t, actions, 2)
	assert.Equal(t, "/api/v1/views/abc/items", actions[0].Href)
	assert.Equal(t, "Rename", actions[1].Title)
}

func TestSignals(t *testing.T) {
	s, err := ParseSignals([]byte(`{"name":"Japan","count":3}`))
	require.NoError(t, err)
	assert.Equal(t, "Japan", s.String("name"))
	assert.Empty(t, s.String("count"))
	assert.Empty(t, s.String("missing"))

	in := &SignalsInput{RawBody: []byte("{")}
	_, err = in.MustParse()
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.GetStatus())
}

func TestRenderHelpers(t *testing.T) {
	r := templates.Must(templates.NewEmbedded())

	empty := RenderList(r, "select-option", nil, "No views", "Add one")
	assert.Contains(t, empty, "No views")

	opts := RenderSelect(r, "Choose", []SelectOptionData{{Value: "Address", Label: "Address"}})
	assert.Contains(t, opts, "Choose")
	assert.Contains(t, opts, `value="Address"`)
}

type Thing struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type thingBody struct {
	Thing
	deletable bool
}

func (b thingBody) Actions() []Action {
	if !b.deletable {
		return nil
	}
	return []Action{{Rel: "delete", Href: "/things/" + b.ID, Method: "DELETE"}}
}

func newLinkedAPI(t *testing.T) (humatest.TestAPI, *Links) {
	t.Helper()
	links := NewLinks("/info", "hidden")
	cfg := huma.DefaultConfig("Test API", "1.0.0")
	cfg.CreateHooks = []func(huma.Config) huma.Config{}
	cfg.Transformers = append(cfg.Transformers, links.Transformer())
	_, api := humatest.New(t, cfg)

	huma.Get(api, "/info", func(ctx context.Context, _ *struct{}) (*struct{ Body Thing }, error) {
		return &struct{ Body Thing }{Body: Thing{ID: "info"}}, nil
	}, huma.OperationTags("meta"))
	huma.Get(api, "/things", func(ctx context.Context, _ *struct{}) (*struct{ Body PageBody[Thing] }, error) {
		return &struct{ Body PageBody[Thing] }{Body: PageBody[Thing]{Total: 3, Limit: 1, Data: []Thing{{ID: "a"}}}}, nil
	}, huma.OperationTags("things"))
	huma.Post(api, "/things", func(ctx context.Context, _ *struct{}) (*struct{ Body Thing }, error) {
		return &struct{ Body Thing }{Body: Thing{ID: "b"}}, nil
	}, huma.OperationTags("things"))
	huma.Get(api, "/things/{id}", func(ctx context.Context, in *struct {
		ID string `path:"id"`
	}) (*struct{ Body thingBody }, error) {
		return &struct{ Body thingBody }{Body: thingBody{Thing: Thing{ID: in.ID}, deletable: in.ID != "keep"}}, nil
	}, huma.OperationTags("things"))
	huma.Put(api, "/things/{id}", func(ctx context.Context, in *struct {
		ID string `path:"id"`
	}) (*struct{ Body Thing }, error) {
		return &struct{ Body Thing }{Body: Thing{ID: in.ID}}, nil
	}, huma.OperationTags("things"))
	huma.Get(api, "/stuff", func(ctx context.Context, _ *struct{}) (*struct{ Body []Thing }, error) {
		return &struct{ Body []Thing }{Body: []Thing{}}, nil
	}, huma.OperationTags("things"))
	huma.Get(api, "/secret", func(ctx context.Context, _ *struct{}) (*struct{ Body Thing }, error) {
		return &struct{ Body Thing }{}, nil
	}, huma.OperationTags("hidden"))

	links.Build(api)
	return api, links
}

func TestLinks_Build(t *testing.T) {
	_, links := newLinkedAPI(t)

	item := links.For("/things/{id}")
	assert.Contains(t, item, `</things>; rel="collection"`)
	assert.Contains(t, item, `</things>; rel="up"`)
	assert.Contains(t, item, `</things/{id}>; rel="edit"`)

	coll := links.For("/things")
	assert.Contains(t, coll, `</things/{id}>; rel="item"`)
	assert.Contains(t, coll, `</info>; rel="up"`)
	assert.Contains(t, coll, `</things>; rel="create-form"`)
	assert.Contains(t, coll, `</stuff>; rel="stuff"`, "collections sharing a tag link to each other")

	entry := links.For("/info")
	assert.Contains(t, entry, `</things>; rel="things"`)
	assert.Contains(t, entry, `</openapi.json>; rel="service-desc"`)
	assert.NotContains(t, strings.Join(entry, ","), "/secret")

	assert.Empty(t, links.For("/secret"))
}

func TestLinks_Transformer(t *testing.T) {
	api, _ := newLinkedAPI(t)

	resp := api.Get("/things")
	require.Equal(t, http.StatusOK, resp.Code)
	headers := strings.Join(resp.Header().Values("Link"), "\n")
	assert.Contains(t, headers, `</things/{id}>; rel="item"`)
	assert.Contains(t, headers, `</things?offset=1&limit=1>; rel="next"`)

	resp = api.Get("/things/x")
	require.Equal(t, http.StatusOK, resp.Code)
	headers = strings.Join(resp.Header().Values("Link"), "\n")
	assert.Contains(t, headers, `</things/x>; rel="self"`)
	assert.Contains(t, headers, `</things/x>; rel="delete"; method="DELETE"`)

	resp = api.Get("/things/keep")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.NotContains(t, strings.Join(resp.Header().Values("Link"), "\n"), `rel="delete"`)
}
