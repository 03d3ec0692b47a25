package session

import (
	"context"
	"sync"
	"time"

	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/logger"
	"go-marketplace-backend/pkg/metrics"

	"github.com/google/uuid"
)

// Options configures stores opened by a Manager.
type Options struct {
	InitTimeout time.Duration
	IdleTimeout time.Duration
}

// Manager keeps one Store per session id on this instance.
type Manager struct {
	storage   Storage
	refresher Refresher
	opts      Options

	mu     sync.Mutex
	stores map[string]*Store
	closed bool
}

func NewManager(storage Storage, refresher Refresher, opts Options) *Manager {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 15 * time.Minute
	}
	return &Manager{
		storage:   storage,
		refresher: refresher,
		opts:      opts,
		stores:    make(map[string]*Store),
	}
}

// Open returns the store for sid, creating it and starting its storage
// watcher on first use.
func (m *Manager) Open(ctx context.Context, sid string) (*Store, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if st, ok := m.stores[sid]; ok {
		m.mu.Unlock()
		return st, nil
	}
	st := NewStore(sid, m.storage, m.refresher, m.opts.InitTimeout)
	m.stores[sid] = st
	m.mu.Unlock()

	metrics.SessionOpened()
	if err := st.watch(ctx); err != nil {
		// Cross-instance updates are missed until the store is reopened.
		logger.Log.Warn("session watcher not started", "session_id", sid, "error", err)
	}
	return st, nil
}

// Len is the number of stores held open.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}

// expirer is implemented by storages that age out namespaces themselves
// instead of relying on a server-side TTL.
type expirer interface {
	PurgeExpired(now time.Time) int
}

// Sweep closes stores idle for longer than the idle timeout. Their state stays
// in storage and is restored on the next Open.
func (m *Manager) Sweep(now time.Time) int {
	cutoff := now.Add(-m.opts.IdleTimeout)

	m.mu.Lock()
	var idle []*Store
	for sid, st := range m.stores {
		if st.idle(cutoff) {
			idle = append(idle, st)
			delete(m.stores, sid)
		}
	}
	m.mu.Unlock()

	for _, st := range idle {
		st.Close()
		metrics.SessionClosed()
	}
	if e, ok := m.storage.(expirer); ok {
		e.PurgeExpired(now)
	}
	return len(idle)
}

func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	stores := m.stores
	m.stores = make(map[string]*Store)
	m.mu.Unlock()

	for _, st := range stores {
		st.Close()
		metrics.SessionClosed()
	}
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(userID, sessionID, role string) (string, time.Time, error)
}

// Service hands completed users to a fresh session store
// (onAuthenticationComplete) and signs the token that addresses it.
type Service struct {
	manager *Manager
	tokens  TokenIssuer
}

func NewService(manager *Manager, tokens TokenIssuer) *Service {
	return &Service{manager: manager, tokens: tokens}
}

var _ domain.SessionStarter = (*Service)(nil)

func (s *Service) Start(ctx context.Context, user domain.AuthenticatedUser, profile domain.UserProfile) (*domain.SessionGrant, error) {
	sid := uuid.NewString()
	store, err := s.manager.Open(ctx, sid)
	if err != nil {
		return nil, err
	}
	st, err := store.LoginWithProfile(ctx, user, &profile)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, sid, string(user.Role))
	if err != nil {
		_, _ = store.Logout(ctx)
		return nil, err
	}

	return &domain.SessionGrant{
		Token:     token,
		SessionID: sid,
		ExpiresAt: expiresAt,
		User:      *st.User,
		Profile:   *st.Profile,
	}, nil
}
