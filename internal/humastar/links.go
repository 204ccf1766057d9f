package humastar

import (
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
)

// Links holds RFC 8288 Link headers derived from the registered OpenAPI
// paths. Create it before the API so its transformer can go into the Huma
// config, then call Build once every route is registered.
type Links struct {
	// Entry is the discovery path that links to every collection.
	Entry string
	// Skip names tags whose operations get no derived links.
	Skip []string

	mu     sync.RWMutex
	byPath map[string][]string
}

// NewLinks creates an empty link set rooted at entry.
func NewLinks(entry string, skipTags ...string) *Links {
	return &Links{Entry: entry, Skip: skipTags, byPath: map[string][]string{}}
}

// Build walks the OpenAPI paths and derives the links:
//   - item paths link to their collection (collection, up)
//   - collections link to their item templates (item) and the entry (up)
//   - collections sharing a tag link to each other by last path segment
//   - POST collections get create-form, PUT/PATCH items edit and edit-form
//   - the entry links to every collection and the OpenAPI documents
//   - GET operations link to their response schema (describedby)
//
// Build also records the links on the operations' success responses.
func (l *Links) Build(api huma.API) {
	oapi := api.OpenAPI()
	byPath := map[string][]string{}
	add := func(from, to, rel string) {
		val := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
		if !slices.Contains(byPath[from], val) {
			byPath[from] = append(byPath[from], val)
		}
	}

	type pathInfo struct {
		path string
		tags []string
	}
	var collections, items []pathInfo
	for p, pi := range oapi.Paths {
		tags := primaryTags(pi)
		if slices.ContainsFunc(tags, func(t string) bool { return slices.Contains(l.Skip, t) }) {
			continue
		}
		info := pathInfo{path: p, tags: tags}
		if strings.Contains(p, "{") {
			items = append(items, info)
		} else {
			collections = append(collections, info)
		}
	}
	// map iteration order is random; keep headers stable
	byName := func(a, b pathInfo) int { return strings.Compare(a.path, b.path) }
	slices.SortFunc(collections, byName)
	slices.SortFunc(items, byName)

	for _, item := range items {
		parent := path.Dir(item.path)
		if _, ok := oapi.Paths[parent]; ok {
			add(item.path, parent, "collection")
			add(item.path, parent, "up")
		}
		pi := oapi.Paths[item.path]
		if pi.Put != nil || pi.Patch != nil {
			add(item.path, item.path, "edit")
			add(item.path, item.path, "edit-form")
		}
	}

	for _, coll := range collections {
		for _, item := range items {
			if path.Dir(item.path) == coll.path {
				add(coll.path, item.path, "item")
			}
		}
		if coll.path != l.Entry {
			add(coll.path, l.Entry, "up")
		}
		if oapi.Paths[coll.path].Post != nil {
			add(coll.path, coll.path, "create-form")
		}
		for _, other := range collections {
			if other.path != coll.path && sharedTag(coll.tags, other.tags) {
				add(coll.path, other.path, lastSegment(other.path))
			}
		}
	}

	for _, coll := range collections {
		if coll.path != l.Entry {
			add(l.Entry, coll.path, lastSegment(coll.path))
		}
	}
	add(l.Entry, "/openapi.json", "describedby")
	add(l.Entry, "/openapi.json", "service-desc")
	add(l.Entry, "/docs", "service-doc")

	for _, all := range [][]pathInfo{collections, items} {
		for _, pi := range all {
			if ref := responseSchemaRef(oapi.Paths[pi.path]); ref != "" {
				add(pi.path, "/openapi.json#/components/schemas/"+ref, "describedby")
			}
		}
	}

	for p, pi := range oapi.Paths {
		headers, ok := byPath[p]
		if !ok {
			continue
		}
		for _, op := range operationsOf(pi) {
			if op != nil {
				injectResponseLinks(op, headers)
			}
		}
	}

	l.mu.Lock()
	l.byPath = byPath
	l.mu.Unlock()
}

// For returns the derived links of an operation path.
func (l *Links) For(p string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.byPath[p]
}

// Transformer returns a Huma Transformer that sets the derived links, a
// self link on item paths, pagination links from [Pager] bodies and
// action links from [Actor] bodies.
func (l *Links) Transformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range l.For(op.Path) {
			ctx.AppendHeader("Link", link)
		}
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}
		if p, ok := v.(Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}
		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}
		return v, nil
	}
}

// --- helpers ---

func primaryTags(pi *huma.PathItem) []string {
	for _, op := range operationsOf(pi) {
		if op != nil && len(op.Tags) > 0 {
			return op.Tags
		}
	}
	return nil
}

func operationsOf(pi *huma.PathItem) []*huma.Operation {
	return []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete}
}

func sharedTag(a, b []string) bool {
	return slices.ContainsFunc(a, func(t string) bool { return slices.Contains(b, t) })
}

func lastSegment(p string) string {
	parts := strings.Split(strings.TrimRight(p, "/"), "/")
	return parts[len(parts)-1]
}

// injectResponseLinks adds OpenAPI Link objects to the operation's success
// response so the document carries the relationships too.
func injectResponseLinks(op *huma.Operation, headers []string) {
	var resp *huma.Response
	for code, r := range op.Responses {
		if strings.HasPrefix(code, "2") {
			resp = r
			break
		}
	}
	if resp == nil {
		return
	}
	if resp.Links == nil {
		resp.Links = map[string]*huma.Link{}
	}
	for _, h := range headers {
		rel, href := parseLinkHeader(h)
		if rel == "" {
			continue
		}
		resp.Links[rel] = &huma.Link{
			OperationRef: href,
			Description:  "Related: " + rel,
		}
	}
}

func responseSchemaRef(pi *huma.PathItem) string {
	if pi.Get == nil {
		return ""
	}
	for code, resp := range pi.Get.Responses {
		if !strings.HasPrefix(code, "2") {
			continue
		}
		for _, mt := range resp.Content {
			if mt.Schema != nil && mt.Schema.Ref != "" {
				return path.Base(mt.Schema.Ref)
			}
		}
	}
	return ""
}

// parseLinkHeader splits `<url>; rel="name"`.
func parseLinkHeader(h string) (rel, href string) {
	target, params, ok := strings.Cut(h, ";")
	if !ok {
		return "", ""
	}
	href = strings.Trim(strings.TrimSpace(target), "<>")
	params = strings.TrimSpace(params)
	if r, ok := strings.CutPrefix(params, "rel="); ok {
		rel = strings.Trim(r, `"`)
	}
	return rel, href
}
