// package server contains the router, middleware and handlers for the local OAuth callback listener
package server

import (
	"net/http"
)

// Middleware decorates a handler.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that declares the paths it serves.
// A route is either a bare path, served for GET, or a full "METHOD /path" pattern.
type Handler interface {
	http.Handler
	Routes() []string
}

// Router collects handlers behind a shared middleware stack.
type Router interface {
	Use(middleware ...Middleware)
	Handle(method, path string, handler http.Handler)
	Handler(handler Handler)
	Patterns() []string
	http.Handler
}
