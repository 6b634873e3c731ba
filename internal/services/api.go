// API service: the single client every backend call goes through
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/imgx/internal/shared"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const defaultBaseURL = "http://localhost:8000"

// Tier selects a timeout budget.
type Tier int

const (
	TierStandard Tier = iota // reads
	TierShort                // health checks
	TierLong                 // writes and mutations
	TierUpload               // multipart file submission
)

func (t Tier) String() string {
	switch t {
	case TierShort:
		return "short"
	case TierLong:
		return "long"
	case TierUpload:
		return "upload"
	default:
		return "standard"
	}
}

// Timeouts holds one budget per [Tier]. Each attempt gets the full budget.
type Timeouts struct {
	Short    time.Duration
	Standard time.Duration
	Long     time.Duration
	Upload   time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{Short: 15 * time.Second, Standard: 30 * time.Second, Long: 60 * time.Second, Upload: 120 * time.Second}
}

// TimeoutsFromConfig reads the [timeouts] section.
func TimeoutsFromConfig(c shared.TimeoutsConfig) Timeouts {
	return Timeouts{
		Short:    c.Short.Duration,
		Standard: c.Standard.Duration,
		Long:     c.Long.Duration,
		Upload:   c.Upload.Duration,
	}
}

func (t Timeouts) For(tier Tier) time.Duration {
	switch tier {
	case TierShort:
		return t.Short
	case TierLong:
		return t.Long
	case TierUpload:
		return t.Upload
	default:
		return t.Standard
	}
}

// FilePart is one file in a multipart upload.
type FilePart struct {
	Field    string
	Filename string
	Content  []byte
}

// Multipart is an upload payload. It is encoded once and replayed on retries.
type Multipart struct {
	Fields map[string]string
	Files  []FilePart
}

func (m *Multipart) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k, v := range m.Fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	for _, f := range m.Files {
		part, err := w.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// Request describes one outbound call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is sent as JSON. []byte and [json.RawMessage] are sent verbatim.
	Body any
	Form *Multipart
	Tier Tier
	// Retry overrides the service policy when set.
	Retry *RetryPolicy
}

func (r *Request) encode() ([]byte, string, error) {
	if r.Form != nil {
		return r.Form.encode()
	}

	switch b := r.Body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return b, "application/json", nil
	case json.RawMessage:
		return b, "application/json", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return data, "application/json", nil
	}
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
	Attempts   int
}

// Decode unmarshals the body into v.
func (r *APIResponse) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: decode response: %v", shared.ErrAPIRequest, err)
	}
	return nil
}

// CredentialSource supplies the bearer credential and is told when the server rejects it.
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}

// Interceptor mutates an outgoing request before each attempt.
type Interceptor func(req *http.Request) error

// RequestState is a point in one request's lifecycle.
type RequestState int

const (
	StateCreated RequestState = iota
	StateInFlight
	StateSucceeded
	StateFailedRetryable
	StateFailedTerminal
)

func (s RequestState) String() string {
	switch s {
	case StateInFlight:
		return "in_flight"
	case StateSucceeded:
		return "succeeded"
	case StateFailedRetryable:
		return "failed_retryable"
	case StateFailedTerminal:
		return "failed_terminal"
	default:
		return "created"
	}
}

// Terminal reports whether no further transition can follow s.
func (s RequestState) Terminal() bool {
	return s == StateSucceeded || s == StateFailedTerminal
}

// Transition is emitted each time a request changes state.
type Transition struct {
	RequestID string
	Method    string
	Path      string
	Tier      Tier
	From      RequestState
	To        RequestState
	Attempt   int
	Status    int
	Elapsed   time.Duration
	Err       error
}

// Observer receives every [Transition] synchronously.
type Observer func(Transition)

// APIService makes every HTTP call to the backend.
//
// It attaches the bearer credential, applies the per-tier timeout to each attempt,
// retries transport failures according to its [RetryPolicy] and normalizes failures
// into [*RequestError]. A 401 invalidates the credential source before returning.
type APIService struct {
	baseURL      string
	httpClient   *http.Client
	timeouts     Timeouts
	retry        RetryPolicy
	credentials  CredentialSource
	interceptors []Interceptor
	observers    []Observer
	sleep        Sleeper
	logger       *log.Logger
}

type Option func(*APIService)

func WithTimeouts(t Timeouts) Option {
	return func(a *APIService) { a.timeouts = t }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(a *APIService) { a.retry = p }
}

func WithCredentials(c CredentialSource) Option {
	return func(a *APIService) { a.credentials = c }
}

// WithInterceptor adds an interceptor after the built-in ones.
func WithInterceptor(i Interceptor) Option {
	return func(a *APIService) { a.interceptors = append(a.interceptors, i) }
}

func WithObserver(o Observer) Option {
	return func(a *APIService) { a.observers = append(a.observers, o) }
}

// WithSleeper replaces the backoff wait, for tests.
func WithSleeper(s Sleeper) Option {
	return func(a *APIService) { a.sleep = s }
}

func WithLogger(l *log.Logger) Option {
	return func(a *APIService) { a.logger = l }
}

// NewAPIService creates a new API service for the backend at baseURL.
func NewAPIService(baseURL string, client *http.Client, opts ...Option) *APIService {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	a := &APIService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		timeouts:   DefaultTimeouts(),
		retry:      DefaultRetryPolicy(DefaultBackoffStep),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = shared.NewLogger(io.Discard)
	}
	a.logger = shared.WithLogger(a.logger, "component", "api")
	return a
}

// NewAPIServiceFromConfig builds the service from the [api], [timeouts] and [retry] sections.
func NewAPIServiceFromConfig(c *shared.Config, client *http.Client, opts ...Option) *APIService {
	policy := DefaultRetryPolicy(c.Retry.BackoffStep.Duration)
	policy.MaxAttempts = c.Retry.MaxAttempts

	base := []Option{WithTimeouts(TimeoutsFromConfig(c.Timeouts)), WithRetryPolicy(policy)}
	return NewAPIService(c.API.BaseURL, client, append(base, opts...)...)
}

// BaseURL returns the backend root.
func (a *APIService) BaseURL() string {
	return a.baseURL
}

// Get performs a GET request on the standard tier.
func (a *APIService) Get(ctx context.Context, path string, query url.Values) (*APIResponse, error) {
	return a.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query, Tier: TierStandard})
}

// Post performs a POST request with a JSON body on the long tier.
func (a *APIService) Post(ctx context.Context, path string, body any) (*APIResponse, error) {
	return a.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body, Tier: TierLong})
}

func (a *APIService) Put(ctx context.Context, path string, body any) (*APIResponse, error) {
	return a.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body, Tier: TierLong})
}

func (a *APIService) Patch(ctx context.Context, path string, body any) (*APIResponse, error) {
	return a.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body, Tier: TierLong})
}

func (a *APIService) Delete(ctx context.Context, path string, query url.Values) (*APIResponse, error) {
	return a.Do(ctx, &Request{Method: http.MethodDelete, Path: path, Query: query, Tier: TierLong})
}

// Upload posts a multipart form on the upload tier.
func (a *APIService) Upload(ctx context.Context, path string, form *Multipart) (*APIResponse, error) {
	return a.Do(ctx, &Request{Method: http.MethodPost, Path: path, Form: form, Tier: TierUpload})
}

// Health calls GET /health on the short tier.
func (a *APIService) Health(ctx context.Context) (*APIResponse, error) {
	return a.Do(ctx, &Request{Method: http.MethodGet, Path: "/health", Tier: TierShort})
}

// Do sends r, retrying transport failures according to the service's policy.
func (a *APIService) Do(ctx context.Context, r *Request) (*APIResponse, error) {
	if r.Method == "" {
		r.Method = http.MethodGet
	}

	payload, contentType, err := r.encode()
	if err != nil {
		return nil, fmt.Errorf("%w: encode request body: %v", shared.ErrInvalidInput, err)
	}

	policy := a.retry
	if r.Retry != nil {
		policy = *r.Retry
	}

	t := &tracker{a: a, r: r, id: uuid.NewString(), state: StateCreated, start: time.Now()}
	logger := a.logger.With("method", r.Method, "path", r.Path, "request_id", t.id)

	for attempt := 1; ; attempt++ {
		t.move(StateInFlight, attempt, 0, nil)

		resp, err := a.attempt(ctx, r, t.id, payload, contentType)
		if err == nil {
			resp.Attempts = attempt
			t.move(StateSucceeded, attempt, resp.StatusCode, nil)
			logger.Debug("request succeeded", "status", resp.StatusCode, "attempt", attempt)
			return resp, nil
		}

		status := 0
		re := asRequestError(err)
		if re != nil {
			re.Attempts = attempt
			status = re.StatusCode
		}

		if ctx.Err() == nil && policy.ShouldRetry(attempt, err) {
			t.move(StateFailedRetryable, attempt, status, err)
			delay := policy.Delay(attempt)
			logger.Warn("transport failure, retrying", "attempt", attempt, "of", policy.MaxAttempts, "delay", delay, "err", err)

			if serr := a.sleep(ctx, delay); serr != nil {
				t.move(StateFailedTerminal, attempt, status, err)
				return nil, err
			}
			continue
		}

		t.move(StateFailedTerminal, attempt, status, err)
		if re != nil && re.Kind == KindUnauthorized {
			a.invalidate(ctx, logger)
		}
		if re != nil {
			logger.Debug("request failed", "kind", re.Kind, "detail", re.Detail())
		}
		return nil, err
	}
}

func (a *APIService) attempt(ctx context.Context, r *Request, id string, payload []byte, contentType string) (*APIResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeouts.For(r.Tier))
	defer cancel()

	fullURL := a.baseURL + r.Path
	if len(r.Query) > 0 {
		fullURL += "?" + r.Query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", id)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if err := a.authorize(req); err != nil {
		return nil, err
	}
	for _, intercept := range a.interceptors {
		if err := intercept(req); err != nil {
			return nil, fmt.Errorf("interceptor: %w", err)
		}
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, transportError(r.Method, r.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		re := transportError(r.Method, r.Path, fmt.Errorf("failed to read response: %w", err))
		re.StatusCode = resp.StatusCode
		return nil, re
	}

	if resp.StatusCode >= 400 {
		return nil, statusError(r.Method, r.Path, resp.StatusCode, data)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}

	var jsonData any
	if err := json.Unmarshal(data, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// authorize attaches the bearer credential when one is stored. A missing credential,
// or a store that cannot be read, sends the request unauthenticated.
func (a *APIService) authorize(req *http.Request) error {
	if a.credentials == nil {
		return nil
	}

	credential, err := a.credentials.Credential(req.Context())
	if err != nil {
		a.logger.Warn("could not read credential, sending unauthenticated", "err", err)
		return nil
	}
	if credential == "" {
		return nil
	}

	tok := &oauth2.Token{AccessToken: credential, TokenType: "Bearer"}
	tok.SetAuthHeader(req)
	return nil
}

func (a *APIService) invalidate(ctx context.Context, logger *log.Logger) {
	if a.credentials == nil {
		return
	}
	if err := a.credentials.Invalidate(context.WithoutCancel(ctx)); err != nil {
		logger.Error("failed to clear rejected credential", "err", err)
		return
	}
	logger.Info("credential rejected, session cleared")
}

func asRequestError(err error) *RequestError {
	var re *RequestError
	if errors.As(err, &re) {
		return re
	}
	return nil
}

type tracker struct {
	a     *APIService
	r     *Request
	id    string
	state RequestState
	start time.Time
}

func (t *tracker) move(to RequestState, attempt, status int, err error) {
	tr := Transition{
		RequestID: t.id,
		Method:    t.r.Method,
		Path:      t.r.Path,
		Tier:      t.r.Tier,
		From:      t.state,
		To:        to,
		Attempt:   attempt,
		Status:    status,
		Elapsed:   time.Since(t.start),
		Err:       err,
	}
	t.state = to
	for _, o := range t.a.observers {
		o(tr)
	}
}
