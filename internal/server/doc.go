// Package server runs the local listener that receives OAuth redirects during a CLI login.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [Middleware] wraps
// handlers in reverse order (last added executes first). [BasicRouter] uses [http.ServeMux]
// internally with method filtering.
//
// # Callback Handler
//
// [CallbackHandler] compares the nonce carried in the state parameter with the one the CLI
// generated, then passes the query to a [session.Bootstrapper], which owns dedupe, exchange
// and persistence. The first conclusive redirect is reported through a channel. Reloads of
// the same redirect are answered as duplicates and never exchange the code twice.
//
// # Lifecycle
//
// [CallbackServer] binds before the browser is opened, serves until one result arrives or the
// wait context expires, and then shuts itself down.
package server
