package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	tu "github.com/desertthunder/imgx/internal/testing"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	t.Run("Counts Outcomes And Retries", func(t *testing.T) {
		m := NewMetrics()
		rt := tu.NewScriptedRoundTripper(tu.Step{Err: errors.New("reset")}, tu.Step{Body: `{}`})
		sleep, _ := recordSleeps()

		srv := NewAPIService("http://example.com", rt.Client(), WithSleeper(sleep), WithObserver(m.Observe))
		if _, err := srv.Get(context.Background(), "/test", nil); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "standard", "success", "200")); got != 1 {
			t.Errorf("expected 1 successful request, got %v", got)
		}
		if got := testutil.ToFloat64(m.retries.WithLabelValues("GET", "standard")); got != 1 {
			t.Errorf("expected 1 retry, got %v", got)
		}
	})

	t.Run("Counts Credential Rejections", func(t *testing.T) {
		m := NewMetrics()
		rt := tu.NewScriptedRoundTripper(tu.Step{Status: 401, Body: `{}`})

		srv := NewAPIService("http://example.com", rt.Client(), WithObserver(m.Observe))
		srv.Get(context.Background(), "/me", nil)

		if got := testutil.ToFloat64(m.invalidations); got != 1 {
			t.Errorf("expected 1 rejection, got %v", got)
		}
		if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "standard", "failure", "401")); got != 1 {
			t.Errorf("expected 1 failed request, got %v", got)
		}
	})

	t.Run("WriteText", func(t *testing.T) {
		m := NewMetrics()
		m.Observe(Transition{Method: "POST", Tier: TierUpload, To: StateSucceeded, Status: 200})

		var buf bytes.Buffer
		if err := m.WriteText(&buf); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		out := buf.String()
		for _, want := range []string{"imgx_client_requests_total", `tier="upload"`, "imgx_client_request_duration_seconds"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %s", want)
			}
		}
	})

	t.Run("WriteText Propagates Writer Errors", func(t *testing.T) {
		m := NewMetrics()
		m.Observe(Transition{Method: "GET", To: StateSucceeded, Status: 200})

		if err := m.WriteText(&tu.FWriter{}); err == nil {
			t.Error("expected error from failing writer")
		}
	})
}
