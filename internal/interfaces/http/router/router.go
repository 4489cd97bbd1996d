// Package router assembles the versioned API from domain route groups.
package router

import (
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
)

// RouteOptions is what the Router hands every registrar at setup
type RouteOptions struct {
	// Idempotency runs in front of retryable routes. Nil leaves them unguarded.
	Idempotency gin.HandlerFunc
}

// RouteRegistrar registers a set of routes on the API group
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup, opts RouteOptions)
	Routes() []RouteInfo
}

// RouteInfo describes one registered route, relative to the API prefix
type RouteInfo struct {
	Method    string `json:"method"`
	Path      string `json:"path"`
	Retryable bool   `json:"retryable"`
}

// Router owns the /api/<version> group and the middleware that applies to it
type Router struct {
	engine      *gin.Engine
	apiVersion  string
	middleware  []gin.HandlerFunc
	idempotency gin.HandlerFunc
	registrars  []RouteRegistrar
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix, "v1" by default
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// WithMiddleware adds middleware that runs for every API route but not for
// routes registered directly on the engine, such as /health
func WithMiddleware(middleware ...gin.HandlerFunc) RouterOption {
	return func(r *Router) {
		r.middleware = append(r.middleware, middleware...)
	}
}

// WithIdempotency sets the middleware placed in front of every retryable
// route, the ones that move money
func WithIdempotency(mw gin.HandlerFunc) RouterOption {
	return func(r *Router) {
		r.idempotency = mw
	}
}

// NewRouter creates a Router on engine
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register queues a registrar for Setup
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// APIVersion returns the version segment of the API prefix
func (r *Router) APIVersion() string {
	return r.apiVersion
}

// Setup registers all routes with the engine under /api/<version>
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	if len(r.middleware) > 0 {
		api.Use(r.middleware...)
	}
	opts := RouteOptions{Idempotency: r.idempotency}
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api, opts)
	}
}

// Routes lists every queued route in registration order
func (r *Router) Routes() []RouteInfo {
	var routes []RouteInfo
	for _, registrar := range r.registrars {
		routes = append(routes, registrar.Routes()...)
	}
	return routes
}

// DomainGroup collects the routes of one domain under a common prefix
type DomainGroup struct {
	name       string
	prefix     string
	routes     []routeDefinition
	subgroups  []*DomainGroup
	middleware []gin.HandlerFunc
}

type routeDefinition struct {
	method    string
	path      string
	handlers  []gin.HandlerFunc
	retryable bool
}

// NewDomainGroup creates a route group for one domain
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

// Use adds middleware to this group
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

func (dg *DomainGroup) handle(method, path string, retryable bool, handlers []gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: method, path: path, handlers: handlers, retryable: retryable})
	return dg
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodGet, path, false, handlers)
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodPost, path, false, handlers)
}

// RetryablePOST registers a POST that moves money. It runs behind the
// router's idempotency middleware so a client may safely resend it.
func (dg *DomainGroup) RetryablePOST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodPost, path, true, handlers)
}

// PUT registers a PUT route
func (dg *DomainGroup) PUT(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodPut, path, false, handlers)
}

// DELETE registers a DELETE route
func (dg *DomainGroup) DELETE(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodDelete, path, false, handlers)
}

// Group creates a sub-group within this domain
func (dg *DomainGroup) Group(name, prefix string) *DomainGroup {
	subgroup := NewDomainGroup(name, prefix)
	dg.subgroups = append(dg.subgroups, subgroup)
	return subgroup
}

// RegisterRoutes implements RouteRegistrar
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup, opts RouteOptions) {
	group := rg.Group(dg.prefix)
	if len(dg.middleware) > 0 {
		group.Use(dg.middleware...)
	}
	for _, route := range dg.routes {
		handlers := route.handlers
		if route.retryable && opts.Idempotency != nil {
			handlers = append([]gin.HandlerFunc{opts.Idempotency}, handlers...)
		}
		group.Handle(route.method, route.path, handlers...)
	}
	for _, subgroup := range dg.subgroups {
		subgroup.RegisterRoutes(group, opts)
	}
}

// Routes implements RouteRegistrar
func (dg *DomainGroup) Routes() []RouteInfo {
	routes := make([]RouteInfo, 0, len(dg.routes))
	for _, route := range dg.routes {
		routes = append(routes, RouteInfo{
			Method:    route.method,
			Path:      joinPath(dg.prefix, route.path),
			Retryable: route.retryable,
		})
	}
	for _, subgroup := range dg.subgroups {
		for _, info := range subgroup.Routes() {
			info.Path = joinPath(dg.prefix, info.Path)
			routes = append(routes, info)
		}
	}
	return routes
}

// Name returns the group name
func (dg *DomainGroup) Name() string {
	return dg.name
}

// Prefix returns the group prefix
func (dg *DomainGroup) Prefix() string {
	return dg.prefix
}

func joinPath(prefix, relative string) string {
	if relative == "" {
		return prefix
	}
	return path.Join(prefix, relative)
}
