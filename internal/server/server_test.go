package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/imgx/internal/session"
	"github.com/desertthunder/imgx/internal/shared"
)

type stubExchanger struct {
	calls atomic.Int32
	err   error
}

func (s *stubExchanger) Exchange(_ context.Context, code, _ string) (*session.Session, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return session.New("tok-"+code, session.Profile{ID: "u1", Username: "admin"}, session.LoginAuth0, 3600), nil
}

func newHandler(t *testing.T, ex session.Exchanger, nonce string) (*CallbackHandler, *session.Manager) {
	t.Helper()
	logger := shared.NewLogger(io.Discard)
	m := session.NewManager(session.NewMemoryStore(), session.NewBus(), logger)
	b := session.NewBootstrapper(m, session.NewMemoryGuard(), ex, session.WithLogger(logger))
	return NewCallbackHandler(b, nonce, "/callback", logger), m
}

func callbackQuery(nonce string) string {
	q := url.Values{
		"code":  {"abc"},
		"state": {session.EncodeState(session.StatePayload{ReturnURL: "/", Nonce: nonce})},
	}
	return "/callback?" + q.Encode()
}

func receive(t *testing.T, h *CallbackHandler) CallbackResult {
	t.Helper()
	select {
	case r := <-h.Result():
		return r
	case <-time.After(time.Second):
		t.Fatal("expected a callback result")
		return CallbackResult{}
	}
}

func TestCallbackHandler(t *testing.T) {
	t.Run("Establishes Session", func(t *testing.T) {
		ex := &stubExchanger{}
		h, m := newHandler(t, ex, "n1")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, callbackQuery("n1"), nil))

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Signed in as admin") {
			t.Errorf("unexpected page %s", rec.Body.String())
		}

		res := receive(t, h)
		if res.Err != nil || res.Resolution.Outcome != session.OutcomeEstablished {
			t.Errorf("unexpected result %+v", res)
		}
		if s, _ := m.Current(context.Background()); !s.Authenticated() {
			t.Error("expected session to be saved")
		}
	})

	t.Run("Nonce Mismatch", func(t *testing.T) {
		ex := &stubExchanger{}
		h, _ := newHandler(t, ex, "expected")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, callbackQuery("forged"), nil))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if res := receive(t, h); !errors.Is(res.Err, shared.ErrStateMismatch) {
			t.Errorf("expected ErrStateMismatch, got %v", res.Err)
		}
		if ex.calls.Load() != 0 {
			t.Error("expected no exchange for a forged state")
		}
	})

	t.Run("Denied", func(t *testing.T) {
		h, _ := newHandler(t, &stubExchanger{}, "n1")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?error=access_denied&error_description=User+%3Cb%3Ecancelled%3C%2Fb%3E", nil))

		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "<b>") {
			t.Error("expected provider text to be escaped")
		}
		res := receive(t, h)
		if res.Err != nil || res.Resolution.Outcome != session.OutcomeDenied {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("Missing Code", func(t *testing.T) {
		h, _ := newHandler(t, &stubExchanger{}, "")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=abc", nil))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if res := receive(t, h); !errors.Is(res.Err, shared.ErrMissingAuthParams) {
			t.Errorf("expected ErrMissingAuthParams, got %v", res.Err)
		}
	})

	t.Run("Exchange Failure", func(t *testing.T) {
		h, _ := newHandler(t, &stubExchanger{err: shared.ErrAuthFailed}, "n1")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, callbackQuery("n1"), nil))

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rec.Code)
		}
		if res := receive(t, h); !errors.Is(res.Err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", res.Err)
		}
	})

	t.Run("Plain Visit Does Not Report", func(t *testing.T) {
		h, _ := newHandler(t, &stubExchanger{}, "n1")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback", nil))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		select {
		case r := <-h.Result():
			t.Errorf("expected no result, got %+v", r)
		default:
		}
	})

	t.Run("Only First Result Reported", func(t *testing.T) {
		ex := &stubExchanger{}
		h, _ := newHandler(t, ex, "n1")

		for range 2 {
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, callbackQuery("n1"), nil))
		}

		receive(t, h)
		if _, open := <-h.Result(); open {
			t.Error("expected result channel to be closed after the first result")
		}
	})
}

type stubRoutes struct {
	routes []string
}

func (s *stubRoutes) Routes() []string { return s.routes }

func (s *stubRoutes) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestBasicRouter(t *testing.T) {
	t.Run("Method Filtering", func(t *testing.T) {
		r := NewBasicRouter()
		r.Handle(http.MethodPost, "/hook", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hook", nil))
		if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != "POST" {
			t.Errorf("expected 405 with Allow: POST, got %d %q", rec.Code, rec.Header().Get("Allow"))
		}

		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/hook", nil))
		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
	})

	t.Run("Unknown Path", func(t *testing.T) {
		r := NewBasicRouter()
		r.Use(NoStore)
		r.Handler(&stubRoutes{routes: []string{"/callback", "POST /hook"}})

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/elsewhere", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
		if rec.Header().Get("Cache-Control") != "no-store" {
			t.Error("expected middleware to wrap unmatched requests")
		}

		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/hook", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("expected explicit pattern to be served, got %d", rec.Code)
		}

		if got := r.Patterns(); len(got) != 2 || got[0] != "GET /callback" || got[1] != "POST /hook" {
			t.Errorf("unexpected patterns %v", got)
		}
	})

	t.Run("Middleware", func(t *testing.T) {
		logger := shared.NewLogger(io.Discard)
		r := NewBasicRouter()
		r.Use(RequestLogger(logger), Recoverer(logger), NoStore)
		r.Handle(http.MethodGet, "/panic", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
		if rec.Header().Get("Cache-Control") != "no-store" {
			t.Error("expected no-store header")
		}
	})
}

func TestCallbackServer(t *testing.T) {
	t.Run("Round Trip", func(t *testing.T) {
		h, _ := newHandler(t, &stubExchanger{}, "n1")
		srv := NewCallbackServer("127.0.0.1:0", h, nil)
		if err := srv.Start(); err != nil {
			t.Fatalf("failed to start: %v", err)
		}

		go func() {
			resp, err := http.Get("http://" + srv.Addr() + callbackQuery("n1"))
			if err == nil {
				resp.Body.Close()
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		res, err := srv.Wait(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Resolution.Outcome != session.OutcomeEstablished {
			t.Errorf("expected established, got %v", res.Resolution.Outcome)
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		h, _ := newHandler(t, &stubExchanger{}, "n1")
		srv := NewCallbackServer("127.0.0.1:0", h, nil)
		if err := srv.Start(); err != nil {
			t.Fatalf("failed to start: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if _, err := srv.Wait(ctx); !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})

	t.Run("Address In Use", func(t *testing.T) {
		h, _ := newHandler(t, &stubExchanger{}, "")
		first := NewCallbackServer("127.0.0.1:0", h, nil)
		if err := first.Start(); err != nil {
			t.Fatalf("failed to start: %v", err)
		}
		defer first.Shutdown()

		second := NewCallbackServer(first.Addr(), h, nil)
		if err := second.Start(); err == nil {
			t.Error("expected bind error")
		}
	})
}
