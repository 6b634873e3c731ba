package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/imgx/internal/shared"
)

const shutdownTimeout = 5 * time.Second

// CallbackServer is the short-lived local listener the identity provider redirects to.
type CallbackServer struct {
	handler *CallbackHandler
	router  Router
	srv     *http.Server
	ln      net.Listener
	errs    chan error
	logger  *log.Logger
}

// NewCallbackServer wires handler behind the request logging middleware on addr.
func NewCallbackServer(addr string, handler *CallbackHandler, logger *log.Logger) *CallbackServer {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	router := NewBasicRouter()
	router.Use(RequestLogger(logger), Recoverer(logger), NoStore)
	router.Handler(handler)

	return &CallbackServer{
		handler: handler,
		router:  router,
		srv: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		errs:   make(chan error, 1),
		logger: logger,
	}
}

// Start binds the listener and serves in the background. Binding happens before
// Start returns so the browser can be opened immediately afterwards.
func (s *CallbackServer) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	s.ln = ln
	s.logger.Info("callback server listening", "addr", ln.Addr().String(), "routes", s.router.Patterns())

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errs <- err
		}
	}()
	return nil
}

// Addr returns the bound address, which differs from the configured one when port 0 was requested.
func (s *CallbackServer) Addr() string {
	if s.ln == nil {
		return s.srv.Addr
	}
	return s.ln.Addr().String()
}

// Wait blocks until the first callback result, a server failure, or ctx is done,
// then shuts the listener down.
func (s *CallbackServer) Wait(ctx context.Context) (CallbackResult, error) {
	defer s.Shutdown()

	select {
	case res := <-s.handler.Result():
		return res, nil
	case err := <-s.errs:
		return CallbackResult{}, fmt.Errorf("callback server failed: %w", err)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return CallbackResult{}, fmt.Errorf("%w: no authorization callback received", shared.ErrTimeout)
		}
		return CallbackResult{}, ctx.Err()
	}
}

// Shutdown stops the listener, waiting briefly for the response page to flush.
func (s *CallbackServer) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("error shutting down callback server", "err", err)
	}
}
