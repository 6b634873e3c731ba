package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetryPolicy(t *testing.T) {
	transport := transportError("GET", "/x", errors.New("dial tcp: refused"))

	t.Run("Default Schedule", func(t *testing.T) {
		p := DefaultRetryPolicy(0)
		got := p.Schedule()
		if len(got) != 2 || got[0] != 2*time.Second || got[1] != 4*time.Second {
			t.Errorf("expected [2s 4s], got %v", got)
		}
	})

	t.Run("Custom Step", func(t *testing.T) {
		p := DefaultRetryPolicy(100 * time.Millisecond)
		p.MaxAttempts = 4
		got := p.Schedule()
		want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("delay %d: expected %v, got %v", i, want[i], got[i])
			}
		}
	})

	t.Run("ShouldRetry", func(t *testing.T) {
		p := DefaultRetryPolicy(time.Second)

		if !p.ShouldRetry(1, transport) || !p.ShouldRetry(2, transport) {
			t.Error("expected transport failures to be retried before the last attempt")
		}
		if p.ShouldRetry(3, transport) {
			t.Error("expected no retry on the last attempt")
		}
		if p.ShouldRetry(1, nil) {
			t.Error("expected no retry for nil error")
		}
		if p.ShouldRetry(1, statusError("GET", "/x", 503, nil)) {
			t.Error("expected no retry for a 503")
		}
		if p.ShouldRetry(1, errors.New("plain")) {
			t.Error("expected no retry for errors that are not RequestError")
		}
		if !p.ShouldRetry(1, fmt.Errorf("wrapped: %w", transport)) {
			t.Error("expected wrapped transport failure to be retried")
		}
	})

	t.Run("Transport Error With Status Is Terminal", func(t *testing.T) {
		re := transportError("GET", "/x", errors.New("short read"))
		re.StatusCode = 200
		if IsTransportFailure(re) {
			t.Error("a received status should make the failure terminal")
		}
	})

	t.Run("NoRetry", func(t *testing.T) {
		p := NoRetry()
		if p.ShouldRetry(1, transport) {
			t.Error("expected single attempt")
		}
		if len(p.Schedule()) != 0 {
			t.Errorf("expected empty schedule, got %v", p.Schedule())
		}
	})
}

func TestSleepContext(t *testing.T) {
	t.Run("Returns After Duration", func(t *testing.T) {
		if err := sleepContext(context.Background(), time.Millisecond); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("Returns On Cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		start := time.Now()
		if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if time.Since(start) > time.Second {
			t.Error("expected cancel to interrupt the wait")
		}
	})
}
