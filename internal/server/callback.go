package server

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/imgx/internal/session"
	"github.com/desertthunder/imgx/internal/shared"
)

// CallbackResult is what the first authorization redirect resolved to.
type CallbackResult struct {
	Resolution session.Resolution
	Err        error
}

// CallbackHandler receives the identity provider's redirect, checks the state nonce, and hands
// the query to a [session.Bootstrapper]. Only the first conclusive redirect is reported on
// [CallbackHandler.Result]; a reload of the same redirect is answered by the bootstrapper's guard.
type CallbackHandler struct {
	bootstrap *session.Bootstrapper
	nonce     string
	path      string
	logger    *log.Logger
	result    chan CallbackResult
	once      sync.Once
}

// NewCallbackHandler creates a handler expecting the given nonce in the state parameter.
// An empty nonce disables the check.
func NewCallbackHandler(b *session.Bootstrapper, nonce, path string, logger *log.Logger) *CallbackHandler {
	if path == "" {
		path = "/callback"
	}
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &CallbackHandler{
		bootstrap: b,
		nonce:     nonce,
		path:      path,
		logger:    shared.WithLogger(logger, "component", "callback"),
		result:    make(chan CallbackResult, 1),
	}
}

// Routes implements [Handler].
func (h *CallbackHandler) Routes() []string {
	return []string{h.path}
}

// Result delivers exactly one [CallbackResult].
func (h *CallbackHandler) Result() <-chan CallbackResult {
	return h.result
}

func (h *CallbackHandler) send(r CallbackResult) {
	h.once.Do(func() {
		h.result <- r
		close(h.result)
	})
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if err := h.checkState(q); err != nil {
		h.logger.Warn("rejected callback", "err", err)
		h.render(w, http.StatusBadRequest, page{Title: "Authorization Failed", Message: "The sign-in response did not match this request. Start the login again from the terminal."})
		h.send(CallbackResult{Err: err})
		return
	}

	res, err := h.bootstrap.Resolve(r.Context(), q)
	switch {
	case errors.Is(err, shared.ErrMissingAuthParams):
		h.render(w, http.StatusBadRequest, page{Title: "Authorization Failed", Message: "The sign-in response was incomplete."})
		h.send(CallbackResult{Resolution: res, Err: err})
	case err != nil:
		h.render(w, http.StatusBadGateway, page{Title: "Authorization Failed", Message: "Sign-in could not be completed. Check the terminal for details."})
		h.send(CallbackResult{Resolution: res, Err: err})
	case res.Outcome == session.OutcomeDenied:
		h.render(w, http.StatusForbidden, page{Title: "Authorization Denied", Message: res.Reason})
		h.send(CallbackResult{Resolution: res})
	case res.Outcome == session.OutcomeEstablished:
		h.render(w, http.StatusOK, page{Title: "Authorization Successful", Message: "Signed in as " + res.Session.Username + ". You can close this window.", OK: true})
		h.send(CallbackResult{Resolution: res})
	case res.Outcome == session.OutcomeDuplicate:
		h.render(w, http.StatusOK, page{Title: "Already Handled", Message: "This sign-in is already being processed. You can close this window.", OK: true})
	default:
		h.render(w, http.StatusBadRequest, page{Title: "Waiting for Authorization", Message: "No sign-in response was found in this request."})
	}
}

func (h *CallbackHandler) checkState(q url.Values) error {
	raw := q.Get("state")
	if raw == "" || h.nonce == "" {
		return nil
	}
	p, err := session.DecodeState(raw)
	if err != nil {
		h.logger.Debug("state did not decode cleanly", "err", err)
	}
	if p.Nonce != h.nonce {
		return fmt.Errorf("%w: nonce mismatch", shared.ErrStateMismatch)
	}
	return nil
}

type page struct {
	Title   string
	Message string
	OK      bool
}

var pageTemplate = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<title>{{.Title}}</title>
	<style>
		body { font-family: system-ui, sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; background: #f4f4f5; }
		.card { background: white; padding: 2rem 3rem; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.08); text-align: center; max-width: 28rem; }
		h1 { margin: 0 0 1rem; color: {{if .OK}}#16a34a{{else}}#dc2626{{end}}; }
		p { color: #52525b; }
	</style>
</head>
<body>
	<div class="card">
		<h1>{{.Title}}</h1>
		<p>{{.Message}}</p>
	</div>
</body>
</html>
`))

func (h *CallbackHandler) render(w http.ResponseWriter, status int, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, p); err != nil {
		h.logger.Warn("failed to render callback page", "err", err)
	}
}
