package server

import (
	"net/http"
	"slices"
	"strings"
)

// BasicRouter is the [Router] used by the callback listener.
//
// Routes are registered on an [http.ServeMux] with method patterns, so unknown paths get
// 404 and known paths with the wrong method get 405 with an Allow header. Middleware wraps
// the whole mux and therefore sees those responses too.
type BasicRouter struct {
	mux         *http.ServeMux
	middlewares []Middleware
	patterns    []string
}

// NewBasicRouter creates a new [BasicRouter] instance.
func NewBasicRouter() *BasicRouter {
	return &BasicRouter{mux: http.NewServeMux()}
}

// Use appends middleware. The first added is the outermost.
func (r *BasicRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle registers handler for one method on path.
func (r *BasicRouter) Handle(method, path string, handler http.Handler) {
	pattern := strings.ToUpper(method) + " " + path
	r.mux.Handle(pattern, handler)
	r.patterns = append(r.patterns, pattern)
}

// Handler registers every path from [Handler.Routes] for GET, the only method a browser
// redirect uses. A route that already names a method is registered as given.
func (r *BasicRouter) Handler(handler Handler) {
	for _, route := range handler.Routes() {
		if strings.HasPrefix(route, "/") {
			r.Handle(http.MethodGet, route, handler)
			continue
		}
		r.mux.Handle(route, handler)
		r.patterns = append(r.patterns, route)
	}
}

// Patterns lists the registered patterns in registration order.
func (r *BasicRouter) Patterns() []string {
	return slices.Clone(r.patterns)
}

// ServeHTTP runs the request through the middleware stack and then the mux.
func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.Apply(r.mux).ServeHTTP(w, req)
}

// Apply wraps handler with the middleware stack.
func (r *BasicRouter) Apply(handler http.Handler) http.Handler {
	for _, mw := range slices.Backward(r.middlewares) {
		handler = mw(handler)
	}
	return handler
}
