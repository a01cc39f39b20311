// Package route implements the gateway's static resource routing table.
//
// A table maps the first path segment after /api/ to exactly one backend.
// It is built once at startup and is safe for concurrent reads without locking.
package route

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"api-gateway-go/internal/config"
)

// APIPrefix is the path prefix shared by every proxied resource.
const APIPrefix = "/api/"

// ErrRouteNotFound is returned when a path does not address a configured resource.
var ErrRouteNotFound = errors.New("route not found")

// Shape distinguishes collection paths (/api/users) from entity paths (/api/users/42).
type Shape int

const (
	Collection Shape = iota
	Entity
)

func (s Shape) String() string {
	if s == Entity {
		return "entity"
	}
	return "collection"
}

// methodOrder is the canonical ordering used when listing allowed methods.
var methodOrder = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}

// Route binds a resource prefix to a backend base URL and the verbs it accepts.
type Route struct {
	Resource string
	Service  string
	BaseURL  string

	collection map[string]bool
	entity     map[string]bool
}

// Allows reports whether method may be proxied for the given path shape.
func (r *Route) Allows(shape Shape, method string) bool {
	if shape == Entity {
		return r.entity[method]
	}
	return r.collection[method]
}

// AllowedMethods lists the verbs accepted for the given path shape in canonical order.
func (r *Route) AllowedMethods(shape Shape) []string {
	out := make([]string, 0, len(methodOrder))
	for _, m := range methodOrder {
		if r.Allows(shape, m) {
			out = append(out, m)
		}
	}
	return out
}

// CollectionURL returns the backend URL of the resource collection.
func (r *Route) CollectionURL() string {
	return r.BaseURL + APIPrefix + r.Resource
}

// TargetURL builds the outbound URL. entityID is appended verbatim, so it must
// already be in escaped form; rawQuery is appended unchanged when non-empty.
func (r *Route) TargetURL(entityID, rawQuery string) string {
	var b strings.Builder
	b.WriteString(r.CollectionURL())
	if entityID != "" {
		b.WriteByte('/')
		b.WriteString(entityID)
	}
	if rawQuery != "" {
		b.WriteByte('?')
		b.WriteString(rawQuery)
	}
	return b.String()
}

// Match is the result of resolving an inbound path.
type Match struct {
	Route    *Route
	EntityID string
	Shape    Shape
}

// Table is an immutable prefix → Route mapping.
type Table struct {
	byResource map[string]*Route
	ordered    []*Route
}

// NewTable builds a Table from route configs. Empty or duplicate resources,
// resources containing '/', and invalid base URLs are rejected.
func NewTable(cfgs []config.RouteConfig) (*Table, error) {
	t := &Table{byResource: make(map[string]*Route, len(cfgs))}

	for i, rc := range cfgs {
		resource := strings.TrimSpace(rc.Resource)
		if resource == "" {
			return nil, fmt.Errorf("route %d: resource is required", i)
		}
		if strings.ContainsAny(resource, "/?#") {
			return nil, fmt.Errorf("route %q: resource must be a single path segment", resource)
		}
		if _, dup := t.byResource[resource]; dup {
			return nil, fmt.Errorf("route %q: duplicate resource prefix", resource)
		}

		u, err := url.Parse(rc.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("route %q: parse base_url: %w", resource, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("route %q: base_url must be an absolute http(s) URL; got %q", resource, rc.BaseURL)
		}

		service := rc.Service
		if service == "" {
			service = ServiceName(resource)
		}

		r := &Route{
			Resource:   resource,
			Service:    service,
			BaseURL:    strings.TrimRight(rc.BaseURL, "/"),
			collection: methodSet(rc.CollectionMethods, http.MethodGet, http.MethodPost),
			entity:     methodSet(rc.EntityMethods, http.MethodGet, http.MethodPut, http.MethodDelete),
		}
		t.byResource[resource] = r
		t.ordered = append(t.ordered, r)
	}

	return t, nil
}

func methodSet(methods []string, defaults ...string) map[string]bool {
	if len(methods) == 0 {
		methods = defaults
	}
	set := make(map[string]bool, len(methods))
	for _, m := range methods {
		set[strings.ToUpper(m)] = true
	}
	return set
}

// Resolve maps an escaped request path to a route. Accepted shapes are
// /api/<resource>, /api/<resource>/ and /api/<resource>/<id>; anything deeper,
// or an unknown resource, yields ErrRouteNotFound.
func (t *Table) Resolve(escapedPath string) (Match, error) {
	rest, ok := strings.CutPrefix(escapedPath, APIPrefix)
	if !ok {
		return Match{}, ErrRouteNotFound
	}

	resource, id, _ := strings.Cut(rest, "/")
	r, ok := t.byResource[resource]
	if !ok {
		return Match{}, ErrRouteNotFound
	}

	if id == "" {
		return Match{Route: r, Shape: Collection}, nil
	}
	if strings.Contains(id, "/") {
		return Match{}, ErrRouteNotFound
	}
	return Match{Route: r, EntityID: id, Shape: Entity}, nil
}

// Lookup returns the route for a resource name.
func (t *Table) Lookup(resource string) (*Route, bool) {
	r, ok := t.byResource[resource]
	return r, ok
}

// Routes returns the routes in configuration order.
func (t *Table) Routes() []*Route {
	return t.ordered
}

// ServiceName derives the display name used in error messages from a resource
// prefix: "users" → "User", "categories" → "Category".
func ServiceName(resource string) string {
	singular := resource
	switch {
	case strings.HasSuffix(resource, "ies"):
		singular = strings.TrimSuffix(resource, "ies") + "y"
	case strings.HasSuffix(resource, "s") && !strings.HasSuffix(resource, "ss"):
		singular = strings.TrimSuffix(resource, "s")
	}
	return cases.Title(language.English).String(singular)
}
