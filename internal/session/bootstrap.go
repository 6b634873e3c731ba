package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/imgx/internal/shared"
)

// Exchanger trades an authorization code for a session with the backend.
type Exchanger interface {
	Exchange(ctx context.Context, code, state string) (*Session, error)
}

// Revoker tells the backend a session is ending.
type Revoker interface {
	Revoke(ctx context.Context) error
}

// Outcome classifies how a page load resolved.
type Outcome int

const (
	OutcomeGuest       Outcome = iota // no stored session, no callback
	OutcomeHydrated                   // stored session, no callback
	OutcomeEstablished                // callback exchanged for a new session
	OutcomeDuplicate                  // callback already owned by another attempt
	OutcomeDenied                     // provider returned an error
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHydrated:
		return "hydrated"
	case OutcomeEstablished:
		return "established"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeDenied:
		return "denied"
	default:
		return "guest"
	}
}

// Resolution is the result of resolving a page load.
type Resolution struct {
	Outcome Outcome
	// Session is nil for guests.
	Session   *Session
	ReturnURL string
	// Reason carries the provider's denial message for [OutcomeDenied].
	Reason string
}

// Authenticated reports whether the resolution ended with a usable session.
func (r Resolution) Authenticated() bool {
	return r.Session.Authenticated()
}

// Bootstrapper turns a page load, possibly carrying OAuth callback parameters, into
// a resolved session exactly once per redirect.
type Bootstrapper struct {
	manager   *Manager
	guard     Guard
	exchanger Exchanger
	revoker   Revoker
	logger    *log.Logger
	now       func() time.Time
}

type Option func(*Bootstrapper)

// WithRevoker sets the backend used for best-effort logout.
func WithRevoker(r Revoker) Option {
	return func(b *Bootstrapper) { b.revoker = r }
}

func WithLogger(l *log.Logger) Option {
	return func(b *Bootstrapper) { b.logger = l }
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(b *Bootstrapper) { b.now = now }
}

func NewBootstrapper(m *Manager, g Guard, ex Exchanger, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{manager: m, guard: g, exchanger: ex, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = shared.NewLogger(nil)
	}
	b.logger = shared.WithLogger(b.logger, "component", "bootstrap")
	return b
}

// Hydrate returns the stored session when it is structurally valid and not known to
// be expired. It never contacts the backend. Anything else is a guest, reported as nil.
func (b *Bootstrapper) Hydrate(ctx context.Context) *Session {
	s, err := b.manager.Current(ctx)
	if err != nil {
		b.logger.Warn("could not read stored session", "err", err)
		return nil
	}
	if s == nil {
		return nil
	}
	if err := s.Validate(); err != nil {
		b.logger.Warn("ignoring stored session", "err", err)
		return nil
	}
	if s.Expired(b.now()) {
		b.logger.Info("stored session has expired", "subject", s.SubjectID, "expired_at", s.ExpiresAt)
		return nil
	}
	return s
}

// BeginExchange exchanges a pending authorization for a session.
//
// The guard for p.DedupeKey is acquired before the exchange is sent. If another attempt
// already holds it the call returns [OutcomeDuplicate] with no error and no network call.
// A failed exchange releases the guard so the redirect can be retried, though never
// from here. A successful one leaves the entry marked [GuardConsumed], so a replayed
// redirect is also a duplicate until the guard's TTL lapses or [Bootstrapper.Logout]
// resets it.
func (b *Bootstrapper) BeginExchange(ctx context.Context, p PendingAuthorization) (Resolution, error) {
	logger := b.logger.With("key", p.DedupeKey.Short())

	state, err := DecodeState(p.State)
	if err != nil {
		logger.Warn("using default return URL", "err", err)
	}
	res := Resolution{ReturnURL: state.ReturnURL}

	acquired, err := b.guard.Acquire(ctx, p.DedupeKey)
	if err != nil {
		return res, fmt.Errorf("acquire authorization guard: %w", err)
	}
	if !acquired {
		logger.Info("authorization already claimed, skipping")
		res.Outcome = OutcomeDuplicate
		return res, nil
	}

	// guard cleanup must survive a cancelled request context
	cleanup := context.WithoutCancel(ctx)

	s, err := b.exchanger.Exchange(ctx, p.Code, p.State)
	if err == nil && s == nil {
		err = fmt.Errorf("%w: empty exchange response", shared.ErrAuthFailed)
	}
	if err != nil {
		logger.Error("authorization exchange failed", "err", err)
		return res, errors.Join(err, b.release(cleanup, p.DedupeKey))
	}

	if err := b.manager.Save(cleanup, s); err != nil {
		return res, errors.Join(fmt.Errorf("persist session: %w", err), b.release(cleanup, p.DedupeKey))
	}
	// the code is spent either way; a pending entry still blocks replays until it expires
	if err := b.guard.Mark(cleanup, p.DedupeKey, GuardConsumed); err != nil {
		logger.Warn("could not mark authorization consumed", "err", err)
	}

	logger.Info("session established", "subject", s.SubjectID, "method", s.LoginMethod)
	b.manager.Announce(s)

	res.Outcome = OutcomeEstablished
	res.Session = s
	return res, nil
}

func (b *Bootstrapper) release(ctx context.Context, key DedupeKey) error {
	if err := b.guard.Release(ctx, key); err != nil {
		return fmt.Errorf("release authorization guard: %w", err)
	}
	return nil
}

// Resolve runs the page-load pipeline: hydrate from storage, then look for callback
// parameters in q and exchange them when present.
//
// A provider denial is not an error; it resolves to [OutcomeDenied] with the reason set
// and the hydrated session, if any, left untouched.
func (b *Bootstrapper) Resolve(ctx context.Context, q url.Values) (Resolution, error) {
	current := b.Hydrate(ctx)

	pending, err := Detect(q)
	var denied *AuthorizationDenied
	if errors.As(err, &denied) {
		b.logger.Warn("authorization denied by provider", "error", denied.Code, "reason", denied.Reason())
		return Resolution{Outcome: OutcomeDenied, Session: current, ReturnURL: DefaultReturnURL, Reason: denied.Reason()}, nil
	}
	if err != nil {
		return Resolution{Session: current, ReturnURL: DefaultReturnURL}, err
	}

	if pending == nil {
		if current != nil {
			return Resolution{Outcome: OutcomeHydrated, Session: current, ReturnURL: DefaultReturnURL}, nil
		}
		return Resolution{Outcome: OutcomeGuest, ReturnURL: DefaultReturnURL}, nil
	}

	res, err := b.BeginExchange(ctx, *pending)
	if res.Outcome == OutcomeDuplicate {
		res.Session = current
	}
	return res, err
}

// Logout clears the stored session and every guard entry.
//
// The backend is told first, on a best-effort basis, so the request still carries the
// credential. Its failure is logged and never prevents local clearing.
func (b *Bootstrapper) Logout(ctx context.Context) error {
	if b.revoker != nil {
		if s, _ := b.manager.Current(ctx); s.Authenticated() {
			if err := b.revoker.Revoke(ctx); err != nil {
				b.logger.Warn("backend logout failed", "err", err)
			}
		}
	}

	local := context.WithoutCancel(ctx)
	return errors.Join(b.manager.Clear(local), b.guard.Reset(local))
}
