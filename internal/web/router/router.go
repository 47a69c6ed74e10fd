// Package router is the HTTP adapter: a chi route table that serves path
// resolution and the admin API, and doubles as the named-route URL
// generator wrapped by the link generator.
package router

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/conduit-lang/hierroutes/internal/linkgen"
	"github.com/conduit-lang/hierroutes/internal/web/middleware"
)

// Router manages HTTP routing using chi
type Router struct {
	mux    chi.Router
	routes []*Route
}

// Route is one registered route. Link-only routes have no handler and are
// used for URL generation alone.
type Route struct {
	Pattern string
	Method  string
	Name    string
	Handler http.Handler
}

// RouteInfo describes a route for listings
type RouteInfo struct {
	Name    string `json:"name,omitempty"`
	Method  string `json:"method,omitempty"`
	Pattern string `json:"pattern"`
}

// NewRouter creates a new Router
func NewRouter() *Router {
	return &Router{mux: chi.NewRouter()}
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Use adds middleware to every route. Must be called before any route is
// registered.
func (r *Router) Use(middlewares ...middleware.Middleware) {
	for _, m := range middlewares {
		r.mux.Use(m)
	}
}

// Get registers a GET route
func (r *Router) Get(pattern string, handler http.HandlerFunc, mws ...middleware.Middleware) *Route {
	return r.Handle(http.MethodGet, pattern, handler, mws...)
}

// Post registers a POST route
func (r *Router) Post(pattern string, handler http.HandlerFunc, mws ...middleware.Middleware) *Route {
	return r.Handle(http.MethodPost, pattern, handler, mws...)
}

// Delete registers a DELETE route
func (r *Router) Delete(pattern string, handler http.HandlerFunc, mws ...middleware.Middleware) *Route {
	return r.Handle(http.MethodDelete, pattern, handler, mws...)
}

// Handle registers handler for method and pattern, wrapped by mws
func (r *Router) Handle(method, pattern string, handler http.Handler, mws ...middleware.Middleware) *Route {
	h := middleware.NewChain(mws...).Then(handler)
	r.mux.Method(method, pattern, h)

	route := &Route{Pattern: pattern, Method: method, Handler: h}
	r.routes = append(r.routes, route)
	return route
}

// Mount attaches a sub-handler under pattern for every method. The
// sub-handler sees paths relative to pattern in its chi route context.
func (r *Router) Mount(pattern string, handler http.Handler, mws ...middleware.Middleware) *Route {
	h := middleware.NewChain(mws...).Then(handler)
	r.mux.Mount(pattern, h)

	route := &Route{Pattern: strings.TrimSuffix(pattern, "/") + "/*", Handler: h}
	r.routes = append(r.routes, route)
	return route
}

// Link registers a named pattern that is only used to generate URLs
func (r *Router) Link(name, pattern string) *Route {
	route := &Route{Pattern: pattern, Name: name}
	r.routes = append(r.routes, route)
	return route
}

// Named sets a name for the route (for URL generation)
func (route *Route) Named(name string) *Route {
	route.Name = name
	return route
}

// GetRoute returns a route by name
func (r *Router) GetRoute(name string) (*Route, error) {
	for _, route := range r.routes {
		if route.Name == name {
			return route, nil
		}
	}
	// every shard of the exact record route shares its pattern
	if strings.HasPrefix(name, linkgen.RouteRecordExact+"_") {
		return r.GetRoute(linkgen.RouteRecordExact)
	}
	return nil, fmt.Errorf("%w: %s", linkgen.ErrNoRoute, name)
}

// URL generates a URL for a named route, filling its {placeholders} from
// params. Values are inserted verbatim so a route may span several segments.
func (r *Router) URL(name string, params map[string]string) (string, error) {
	route, err := r.GetRoute(name)
	if err != nil {
		return "", err
	}

	url := route.Pattern
	for key, value := range params {
		url = strings.ReplaceAll(url, "{"+key+"}", value)
	}
	if strings.Contains(url, "{") && strings.Contains(url, "}") {
		return "", fmt.Errorf("missing parameter values for route: %s", name)
	}
	return url, nil
}

// Routes returns every registered route ordered by pattern and method
func (r *Router) Routes() []RouteInfo {
	out := make([]RouteInfo, 0, len(r.routes))
	for _, route := range r.routes {
		out = append(out, RouteInfo{Name: route.Name, Method: route.Method, Pattern: route.Pattern})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pattern != out[j].Pattern {
			return out[i].Pattern < out[j].Pattern
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// NotFound sets the handler for 404 Not Found
func (r *Router) NotFound(handler http.HandlerFunc) {
	r.mux.NotFound(handler)
}

// MethodNotAllowed sets the handler for 405 Method Not Allowed
func (r *Router) MethodNotAllowed(handler http.HandlerFunc) {
	r.mux.MethodNotAllowed(handler)
}
