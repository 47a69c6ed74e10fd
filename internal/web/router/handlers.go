package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/conduit-lang/hierroutes/internal/content"
	"github.com/conduit-lang/hierroutes/internal/hierarchy"
	"github.com/conduit-lang/hierroutes/internal/linkgen"
	"github.com/conduit-lang/hierroutes/internal/relations"
	"github.com/conduit-lang/hierroutes/internal/resolver"
	"github.com/conduit-lang/hierroutes/internal/service"
	"github.com/conduit-lang/hierroutes/internal/web/auth"
	"github.com/conduit-lang/hierroutes/internal/web/middleware"
	"github.com/conduit-lang/hierroutes/internal/web/profiling"
	"github.com/conduit-lang/hierroutes/internal/web/ratelimit"
	"github.com/conduit-lang/hierroutes/internal/web/response"
)

// Route names served by the resolution handler
const (
	RouteResolve = "hierarchicalroutes.resolve"
	AdminPrefix  = "/_hierarchy"
)

// Frontend renders resolved pages. Record receives record and fuzzy
// matches, Listing receives listing matches.
type Frontend interface {
	Record(w http.ResponseWriter, r *http.Request, m resolver.Match)
	Listing(w http.ResponseWriter, r *http.Request, m resolver.Match)
}

// Page is the JSON body written by JSONFrontend
type Page struct {
	Kind        string          `json:"kind"`
	Key         hierarchy.Key   `json:"key"`
	Path        string          `json:"path"`
	ContentType string          `json:"contenttype,omitempty"`
	Slug        string          `json:"slug,omitempty"`
	Record      *content.Record `json:"record,omitempty"`
	Parent      *hierarchy.Key  `json:"parent,omitempty"`
}

// JSONFrontend renders matches as JSON
type JSONFrontend struct{}

// Record implements Frontend
func (JSONFrontend) Record(w http.ResponseWriter, r *http.Request, m resolver.Match) {
	response.JSON(w, http.StatusOK, pageOf(m))
}

// Listing implements Frontend
func (JSONFrontend) Listing(w http.ResponseWriter, r *http.Request, m resolver.Match) {
	response.JSON(w, http.StatusOK, pageOf(m))
}

func pageOf(m resolver.Match) Page {
	p := Page{
		Kind:        m.Kind.String(),
		Key:         m.Key,
		Path:        "/" + m.Path,
		ContentType: m.ContentType(),
		Slug:        m.Slug(),
		Record:      m.Record,
	}
	if !m.Parent.IsZero() {
		parent := m.Parent
		p.Parent = &parent
	}
	return p
}

// Handlers serves path resolution and the admin API from a Service
type Handlers struct {
	svc         *service.Service
	catalog     content.Catalog
	frontend    Frontend
	logger      *zap.Logger
	showDetails bool
	limiter     ratelimit.Limiter
	pprof       *profiling.Config
	users       auth.Users
	events      http.Handler
}

// NewHandlers creates Handlers. A nil frontend renders JSON.
func NewHandlers(svc *service.Service, catalog content.Catalog, frontend Frontend, logger *zap.Logger) *Handlers {
	if frontend == nil {
		frontend = JSONFrontend{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		svc:      svc,
		catalog:  catalog,
		frontend: frontend,
		logger:   logger.Named("router"),
	}
}

// ShowDetails includes internal error text in 500 responses
func (h *Handlers) ShowDetails(show bool) *Handlers {
	h.showDetails = show
	return h
}

// RateLimit throttles rebuild and cache clear requests per caller
func (h *Handlers) RateLimit(limiter ratelimit.Limiter) *Handlers {
	h.limiter = limiter
	return h
}

// Users enables the token endpoint for the given accounts
func (h *Handlers) Users(users auth.Users) *Handlers {
	h.users = users
	return h
}

// Events serves the publish event stream to callers allowed to view the
// hierarchy
func (h *Handlers) Events(stream http.Handler) *Handlers {
	h.events = stream
	return h
}

// Profiling mounts pprof and runtime stats under the admin prefix for
// callers with the profile permission
func (h *Handlers) Profiling(config profiling.Config) *Handlers {
	h.pprof = &config
	return h
}

// Register mounts the link patterns, the resolution catch-all and, when
// tokens is non-nil, the admin API
func (h *Handlers) Register(r *Router, tokens *auth.TokenService) {
	slug := "{" + linkgen.ParamSlug + "}"
	r.Link(linkgen.RouteContentLink, "/{"+linkgen.ParamContentType+"}/"+slug)
	r.Link(linkgen.RouteRecordExact, "/"+slug)
	r.Link(linkgen.RouteListingExact, "/"+slug)
	r.Link(linkgen.RouteRecordRuled, "/{"+linkgen.ParamParents+"}/"+slug)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) { response.NotFound(w, req, "") })
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		response.Error(w, req, http.StatusMethodNotAllowed, response.CodeMethodNotAllowed,
			"Method "+req.Method+" is not allowed for this resource")
	})

	if tokens != nil {
		authn := auth.Authenticate(tokens)
		view := []middleware.Middleware{authn, auth.RequirePermission(auth.PermViewHierarchy)}
		r.Get(AdminPrefix+"/tree", h.Tree, view...)
		r.Get(AdminPrefix+"/node", h.Node, view...)
		r.Get(AdminPrefix+"/link", h.Link, view...)
		if h.events != nil {
			r.Get(AdminPrefix+"/events", h.events.ServeHTTP, view...)
		}
		rebuild := []middleware.Middleware{authn, auth.RequirePermission(auth.PermRebuild)}
		clearCache := []middleware.Middleware{authn, auth.RequirePermission(auth.PermClearCache)}
		var login []middleware.Middleware
		if h.limiter != nil {
			limit := ratelimit.Middleware(h.limiter, ratelimit.SubjectKey, h.logger)
			rebuild = append(rebuild, limit)
			clearCache = append(clearCache, limit)
			login = append(login, limit)
		}
		r.Post(AdminPrefix+"/rebuild", h.Rebuild, rebuild...)
		r.Post(AdminPrefix+"/content", h.ContentChanged, rebuild...)
		r.Delete(AdminPrefix+"/cache", h.ClearCache, clearCache...)
		if len(h.users) > 0 {
			r.Post(AdminPrefix+"/token", auth.Login(h.users, tokens), login...)
		}

		if h.pprof != nil {
			r.Mount(AdminPrefix+profiling.Path, profiling.Handler(*h.pprof),
				authn, auth.RequirePermission(auth.PermProfile))
		}
	}

	r.Get("/*", h.Resolve).Named(RouteResolve)
}

// Resolve resolves the request path and hands the match to the frontend
func (h *Handlers) Resolve(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(chi.URLParam(r, "*"), "/")

	m, err := h.svc.Resolve(r.Context(), path)
	switch {
	case err == nil:
	case errors.Is(err, resolver.ErrNotFound):
		response.NotFound(w, r, "")
		return
	default:
		h.fail(w, r, err)
		return
	}

	if m.Kind == resolver.MatchListing {
		h.frontend.Listing(w, r, m)
		return
	}
	h.frontend.Record(w, r, m)
}

// Tree writes the annotated forest
func (h *Handlers) Tree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.svc.AnnotatedTree(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"source": h.svc.Source(),
		"tree":   tree,
	})
}

// NodeRelations is the body of the node endpoint
type NodeRelations struct {
	Node     relations.Node   `json:"node"`
	Parent   *relations.Node  `json:"parent,omitempty"`
	Parents  []relations.Node `json:"parents"`
	Children []relations.Node `json:"children"`
	Siblings []relations.Node `json:"siblings"`
}

// Node writes one node with its relations. The key query parameter uses
// the "type/id", "type/slug" or listing path notation.
func (h *Handlers) Node(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("key")
	if strings.Trim(raw, "/") == "" {
		response.BadRequest(w, r, "query parameter key is required")
		return
	}
	k := hierarchy.ParseKey(raw, h.isContentType)
	ctx := r.Context()

	node, ok, err := h.svc.Node(ctx, k)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ok {
		response.NotFound(w, r, "No hierarchy node "+k.String())
		return
	}

	out := NodeRelations{Node: node}
	if parent, ok, err := h.svc.Parent(ctx, k); err != nil {
		h.fail(w, r, err)
		return
	} else if ok {
		out.Parent = &parent
	}
	if out.Parents, err = h.svc.Parents(ctx, k); err != nil {
		h.fail(w, r, err)
		return
	}
	if out.Children, err = h.svc.Children(ctx, k); err != nil {
		h.fail(w, r, err)
		return
	}
	if out.Siblings, err = h.svc.Siblings(ctx, k); err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, out)
}

// Link writes the generated path of a record
func (h *Handlers) Link(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	contentType, slug := q.Get("contenttype"), q.Get("slug")
	if contentType == "" || slug == "" {
		response.BadRequest(w, r, "query parameters contenttype and slug are required")
		return
	}

	link, err := h.svc.Link(r.Context(), contentType, slug)
	if errors.Is(err, linkgen.ErrNoRoute) {
		response.NotFound(w, r, "No route for "+contentType+"/"+slug)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"link": link})
}

// Rebuild forces a rebuild from the menu and rules
func (h *Handlers) Rebuild(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Rebuild(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	ix, err := h.svc.Index(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	subject := ""
	if c := auth.ClaimsFrom(r.Context()); c != nil {
		subject = c.Subject
	}
	h.logger.Info("rebuild requested", zap.String("subject", subject), zap.Int("nodes", ix.Len()))
	response.JSON(w, http.StatusOK, map[string]any{
		"status": "rebuilt",
		"nodes":  ix.Len(),
	})
}

// maxChangeBody caps the content change request body
const maxChangeBody = 1 << 20

// ContentChange is one content mutation reported by the CMS
type ContentChange struct {
	Type        string `json:"type"`
	ContentType string `json:"contenttype"`
	ID          int64  `json:"id"`
}

// ContentChanges is the body of the content endpoint: a single change, or
// a batch under events
type ContentChanges struct {
	ContentChange
	Events []ContentChange `json:"events,omitempty"`
}

func (c ContentChanges) events() ([]service.Event, error) {
	changes := c.Events
	if len(changes) == 0 {
		changes = []ContentChange{c.ContentChange}
	}
	events := make([]service.Event, 0, len(changes))
	for i, ch := range changes {
		typ, err := service.ParseEventType(ch.Type)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if ch.ContentType == "" {
			return nil, fmt.Errorf("event %d: contenttype is required", i)
		}
		events = append(events, service.Event{Type: typ, ContentType: ch.ContentType, ID: ch.ID})
	}
	return events, nil
}

// ContentChanged rebuilds after content was saved or deleted. All events of
// one request share a cycle, so a batch rebuilds once.
func (h *Handlers) ContentChanged(w http.ResponseWriter, r *http.Request) {
	var body ContentChanges
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChangeBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		response.BadRequest(w, r, "invalid request body: "+err.Error())
		return
	}
	events, err := body.events()
	if err != nil {
		response.BadRequest(w, r, err.Error())
		return
	}

	ctx := r.Context()
	cycle := service.CycleFrom(ctx)
	if cycle == nil {
		ctx = service.WithCycle(ctx)
		cycle = service.CycleFrom(ctx)
	}
	for _, ev := range events {
		if err := h.svc.OnContentChanged(ctx, ev); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"events":  len(events),
		"rebuilt": cycle.Rebuilt(),
	})
}

// ClearCache drops the persisted route cache
func (h *Handlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearCache(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) isContentType(slug string) bool {
	if h.catalog == nil {
		return false
	}
	for _, ct := range h.catalog.ContentTypes() {
		if ct.Slug == slug || ct.Key == slug {
			return true
		}
	}
	return false
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed",
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	response.InternalServerError(w, r, err, h.showDetails)
}
