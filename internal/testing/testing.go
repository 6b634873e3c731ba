// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
)

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// Step is one scripted reply. A non-nil Err fails the round trip.
type Step struct {
	Status int
	Body   string
	Err    error
}

// ScriptedRoundTripper replies with its steps in order, repeating the last one.
// Every request it sees is recorded along with its body.
type ScriptedRoundTripper struct {
	mu       sync.Mutex
	steps    []Step
	requests []*http.Request
	bodies   []string
}

func NewScriptedRoundTripper(steps ...Step) *ScriptedRoundTripper {
	return &ScriptedRoundTripper{steps: steps}
}

func (s *ScriptedRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		req.Body.Close()
		body = string(data)
	}

	s.mu.Lock()
	n := len(s.requests)
	s.requests = append(s.requests, req)
	s.bodies = append(s.bodies, body)
	step := s.steps[min(n, len(s.steps)-1)]
	s.mu.Unlock()

	if step.Err != nil {
		return nil, step.Err
	}
	status := step.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(step.Body)),
		Request:    req,
	}, nil
}

// Calls is the number of round trips made.
func (s *ScriptedRoundTripper) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Request returns the nth request.
func (s *ScriptedRoundTripper) Request(n int) *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[n]
}

// Body returns the body sent with the nth request.
func (s *ScriptedRoundTripper) Body(n int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bodies[n]
}

// Client wraps s in an http.Client.
func (s *ScriptedRoundTripper) Client() *http.Client {
	return &http.Client{Transport: s}
}

// FakeCredentials is an in-memory credential source that counts invalidations.
type FakeCredentials struct {
	mu          sync.Mutex
	credential  string
	err         error
	invalidated int
}

func NewFakeCredentials(credential string) *FakeCredentials {
	return &FakeCredentials{credential: credential}
}

// Failing makes Credential return err.
func (f *FakeCredentials) Failing(err error) *FakeCredentials {
	f.err = err
	return f
}

func (f *FakeCredentials) Credential(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credential, f.err
}

func (f *FakeCredentials) Invalidate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credential = ""
	f.invalidated++
	return nil
}

func (f *FakeCredentials) Invalidated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalidated
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

func MustWriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
}
