package session

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/imgx/internal/shared"
)

// Store persists the current session. It is the only path to a stored credential.
type Store interface {
	// Load returns the persisted session, or nil when none is stored.
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Clear(ctx context.Context) error
}

// MemoryStore is a [Store] that lives only as long as the process.
type MemoryStore struct {
	mu      sync.RWMutex
	current *Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return nil, nil
	}
	s := *m.current
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	if err := s.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.current = &cp
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	return nil
}

// Manager couples a [Store] with the notification [Bus].
//
// It also acts as the credential source for the request client: Credential reads
// the stored bearer and Invalidate clears it after a 401.
type Manager struct {
	store  Store
	bus    *Bus
	logger *log.Logger
}

func NewManager(store Store, bus *Bus, logger *log.Logger) *Manager {
	if bus == nil {
		bus = NewBus()
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Manager{store: store, bus: bus, logger: shared.WithLogger(logger, "component", "session")}
}

// Current returns the stored session or nil for a guest.
func (m *Manager) Current(ctx context.Context) (*Session, error) {
	return m.store.Load(ctx)
}

// Save persists s without announcing it.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	return m.store.Save(ctx, s)
}

// Announce publishes s to subscribers.
func (m *Manager) Announce(s *Session) {
	if s == nil {
		return
	}
	m.bus.Publish(*s)
}

// Establish persists s and then announces it.
func (m *Manager) Establish(ctx context.Context, s *Session) error {
	if err := m.Save(ctx, s); err != nil {
		return err
	}
	m.logger.Info("session established", "subject", s.SubjectID, "method", s.LoginMethod)
	m.Announce(s)
	return nil
}

func (m *Manager) Clear(ctx context.Context) error {
	return m.store.Clear(ctx)
}

func (m *Manager) Subscribe(h Handler) func() {
	return m.bus.Subscribe(h)
}

// Credential returns the stored bearer credential, or "" when there is no session.
func (m *Manager) Credential(ctx context.Context) (string, error) {
	s, err := m.store.Load(ctx)
	if err != nil || s == nil {
		return "", err
	}
	return s.Credential, nil
}

// Invalidate clears the stored session after the backend rejected its credential.
func (m *Manager) Invalidate(ctx context.Context) error {
	m.logger.Warn("credential rejected by server, clearing session")
	return m.store.Clear(ctx)
}
