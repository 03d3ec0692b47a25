package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/logger"
	"go-marketplace-backend/pkg/metrics"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	snapshotVersion    = 1
	DefaultInitTimeout = 10 * time.Second
	resyncTimeout      = 5 * time.Second
)

// Refresher re-reads the remote users/profiles rows for a restored user.
type Refresher interface {
	RefreshUser(ctx context.Context, user domain.AuthenticatedUser) (*domain.AuthenticatedUser, *domain.UserProfile, error)
}

// State is what the SPA sees of its session.
type State struct {
	User            *domain.AuthenticatedUser `json:"user"`
	Profile         *domain.UserProfile       `json:"profile"`
	IsAuthenticated bool                      `json:"isAuthenticated"`
	IsLoading       bool                      `json:"isLoading"`
	IsInitialized   bool                      `json:"isInitialized"`
}

func (s State) clone() State {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	return out
}

// GuardState is the part of the state the route guards look at.
func (s State) GuardState() domain.GuardState {
	g := domain.GuardState{IsAuthenticated: s.IsAuthenticated && s.User != nil}
	if s.User != nil {
		g.IsVerified = s.User.IsVerified
		g.Role = s.User.Role
	}
	return g
}

// snapshot is the JSON persisted under KeySnapshot.
type snapshot struct {
	User            *domain.AuthenticatedUser `json:"user"`
	Profile         *domain.UserProfile       `json:"profile"`
	IsAuthenticated bool                      `json:"isAuthenticated"`
	IsInitialized   bool                      `json:"isInitialized"`
	Version         int                       `json:"version"`
}

// Store is the session state container for one session id. Mutations go
// through Login, Logout and UpdateUser only; each one is committed to
// Storage before it becomes visible.
type Store struct {
	ns          string
	origin      string
	storage     Storage
	refresher   Refresher
	initTimeout time.Duration
	log         *slog.Logger
	now         func() time.Time

	// writeMu serializes commit-then-publish so storage and state agree.
	writeMu sync.Mutex

	mu        sync.RWMutex
	state     State
	lastUsed  time.Time
	subs      map[int]chan State
	nextSub   int
	stopWatch func()
	closed    bool

	init singleflight.Group
}

func NewStore(ns string, storage Storage, refresher Refresher, initTimeout time.Duration) *Store {
	if initTimeout <= 0 {
		initTimeout = DefaultInitTimeout
	}
	return &Store{
		ns:          ns,
		origin:      uuid.NewString(),
		storage:     storage,
		refresher:   refresher,
		initTimeout: initTimeout,
		log:         logger.Log.With("session_id", ns),
		now:         time.Now,
		subs:        make(map[int]chan State),
		lastUsed:    time.Now(),
	}
}

func (s *Store) ID() string { return s.ns }

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

func (s *Store) touch() {
	s.mu.Lock()
	s.lastUsed = s.now()
	s.mu.Unlock()
}

// Initialize restores the session from storage once. Concurrent callers share
// a single execution and later callers get the memoized result.
func (s *Store) Initialize(ctx context.Context) (State, error) {
	s.touch()
	if st := s.State(); st.IsInitialized {
		return st, nil
	}
	_, err, _ := s.init.Do("init", func() (interface{}, error) {
		if s.State().IsInitialized {
			return nil, nil
		}
		return nil, s.initialize(ctx)
	})
	return s.State(), err
}

func (s *Store) initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.state.IsLoading = true
	s.mu.Unlock()

	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.initTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.load(ictx) }()

	select {
	case err := <-done:
		s.finishInit()
		if err != nil {
			metrics.SessionInit("error")
			s.log.Error("session initialization failed", "error", err)
			return err
		}
		metrics.SessionInit("ok")
		return nil
	case <-ictx.Done():
		s.finishInit()
		metrics.SessionInit("timeout")
		s.log.Warn("session initialization timed out, forcing completion", "timeout", s.initTimeout.String())
		return nil
	}
}

// finishInit marks initialization complete; results arriving later are dropped.
func (s *Store) finishInit() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.state.IsLoading = false
	s.state.IsInitialized = true
	st := s.state.clone()
	s.mu.Unlock()
	s.notify(st)
}

func (s *Store) load(ctx context.Context) error {
	if err := s.migrateLegacy(ctx); err != nil {
		return err
	}

	restored, err := s.restore(ctx)
	if err != nil {
		return err
	}
	if !s.applyDuringInit(restored) {
		return nil
	}
	if !restored.IsAuthenticated || restored.User == nil || s.refresher == nil {
		return nil
	}

	user, profile, err := s.refresher.RefreshUser(ctx, *restored.User)
	switch {
	case errors.Is(err, domain.ErrUserDisabled) || errors.Is(err, domain.ErrNotFound):
		s.log.Info("session user no longer active, clearing", "user_id", restored.User.ID, "reason", err.Error())
		return s.commitDuringInit(ctx, State{})
	case err != nil:
		// The cached snapshot stays in effect.
		s.log.Warn("session refresh failed, keeping cached user", "user_id", restored.User.ID, "error", err)
		return nil
	}

	next := State{User: user, Profile: profile, IsAuthenticated: true}
	if next.Profile == nil {
		p := domain.NewUserProfile(*user)
		next.Profile = &p
	}
	return s.commitDuringInit(ctx, next)
}

// migrateLegacy moves a bare user written under the legacy key into the
// current layout. Runs only when no snapshot exists yet.
func (s *Store) migrateLegacy(ctx context.Context) error {
	_, hasSnapshot, err := s.storage.Get(ctx, s.ns, KeySnapshot)
	if err != nil || hasSnapshot {
		return err
	}
	raw, ok, err := s.storage.Get(ctx, s.ns, KeyLegacyUser)
	if err != nil || !ok {
		return err
	}

	var user domain.AuthenticatedUser
	if err := json.Unmarshal(raw, &user); err != nil || user.ID == "" {
		s.log.Warn("discarding unreadable legacy session user")
		return s.storage.Commit(ctx, s.ns, Mutation{Origin: s.origin, Delete: []string{KeyLegacyUser}})
	}

	profile := domain.NewUserProfile(user)
	m, err := persistMutation(s.origin, State{User: &user, Profile: &profile, IsAuthenticated: true, IsInitialized: true})
	if err != nil {
		return err
	}
	if err := s.storage.Commit(ctx, s.ns, m); err != nil {
		return fmt.Errorf("session: migrate legacy user: %w", err)
	}
	metrics.SessionInit("migrated")
	s.log.Info("migrated legacy session user", "user_id", user.ID)
	return nil
}

// restore reads the snapshot, falling back to the bare user key.
func (s *Store) restore(ctx context.Context) (State, error) {
	raw, ok, err := s.storage.Get(ctx, s.ns, KeySnapshot)
	if err != nil {
		return State{}, err
	}
	if ok {
		var snap snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			s.log.Warn("ignoring unreadable session snapshot", "error", err)
			return State{}, nil
		}
		st := State{User: snap.User, Profile: snap.Profile, IsAuthenticated: snap.IsAuthenticated && snap.User != nil}
		if st.User != nil && st.Profile == nil {
			p := domain.NewUserProfile(*st.User)
			st.Profile = &p
		}
		return st, nil
	}

	raw, ok, err = s.storage.Get(ctx, s.ns, KeyUser)
	if err != nil || !ok {
		return State{}, err
	}
	var user domain.AuthenticatedUser
	if err := json.Unmarshal(raw, &user); err != nil {
		s.log.Warn("ignoring unreadable session user", "error", err)
		return State{}, nil
	}
	p := domain.NewUserProfile(user)
	return State{User: &user, Profile: &p, IsAuthenticated: true}, nil
}

// applyDuringInit sets restored state unless initialization was already
// completed (timeout) or superseded by a mutation.
func (s *Store) applyDuringInit(st State) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsInitialized || s.closed {
		return false
	}
	st.IsLoading = true
	s.state = st
	return true
}

func (s *Store) commitDuringInit(ctx context.Context, next State) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	done := s.state.IsInitialized || s.closed
	s.mu.RUnlock()
	if done {
		return nil
	}
	next.IsLoading = true
	_, err := s.commitLocked(ctx, next)
	return err
}

// Login takes ownership of a completed user. The profile is derived from the
// user's display fields.
func (s *Store) Login(ctx context.Context, user domain.AuthenticatedUser) (State, error) {
	return s.LoginWithProfile(ctx, user, nil)
}

// LoginWithProfile is Login with a profile whose structured fields were
// captured at entry.
func (s *Store) LoginWithProfile(ctx context.Context, user domain.AuthenticatedUser, profile *domain.UserProfile) (State, error) {
	if !user.Role.IsValid() {
		return State{}, ErrInvalidRole
	}
	var p domain.UserProfile
	if profile != nil {
		p = *profile
		p.Sync(user, false, false)
	} else {
		p = domain.NewUserProfile(user)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.commitLocked(ctx, State{User: &user, Profile: &p, IsAuthenticated: true, IsInitialized: true})
}

// Logout clears the state and removes every session key.
func (s *Store) Logout(ctx context.Context) (State, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.commitLocked(ctx, State{IsInitialized: true})
}

// UpdateUser merges a partial update and re-derives only the profile fields
// whose source changed.
func (s *Store) UpdateUser(ctx context.Context, update domain.UserUpdate) (State, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.State()
	if !cur.IsAuthenticated || cur.User == nil {
		return State{}, ErrNotAuthenticated
	}

	user := *cur.User
	nameChanged, locationChanged := update.Apply(&user)

	var profile domain.UserProfile
	if cur.Profile != nil {
		profile = *cur.Profile
		profile.Sync(user, nameChanged, locationChanged)
	} else {
		profile = domain.NewUserProfile(user)
	}

	cur.User, cur.Profile = &user, &profile
	return s.commitLocked(ctx, cur)
}

// commitLocked persists next and publishes it. Caller holds writeMu.
func (s *Store) commitLocked(ctx context.Context, next State) (State, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return State{}, ErrClosed
	}

	m, err := persistMutation(s.origin, next)
	if err != nil {
		return State{}, err
	}
	if err := s.storage.Commit(ctx, s.ns, m); err != nil {
		return State{}, err
	}

	s.mu.Lock()
	s.state = next
	s.lastUsed = s.now()
	st := s.state.clone()
	s.mu.Unlock()

	s.notify(st)
	return st, nil
}

func persistMutation(origin string, st State) (Mutation, error) {
	if !st.IsAuthenticated || st.User == nil {
		return Mutation{Origin: origin, Delete: []string{KeyUser, KeySnapshot, KeyLegacyUser}}, nil
	}
	user, err := json.Marshal(st.User)
	if err != nil {
		return Mutation{}, err
	}
	snap, err := json.Marshal(snapshot{
		User:            st.User,
		Profile:         st.Profile,
		IsAuthenticated: true,
		IsInitialized:   true,
		Version:         snapshotVersion,
	})
	if err != nil {
		return Mutation{}, err
	}
	return Mutation{
		Origin: origin,
		Set:    map[string][]byte{KeyUser: user, KeySnapshot: snap},
		Delete: []string{KeyLegacyUser},
	}, nil
}

// Subscribe registers for state changes. Slow subscribers only see the
// latest state.
func (s *Store) Subscribe() (int, <-chan State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan State, 1)
	if s.closed {
		close(ch)
		return id, ch
	}
	s.subs[id] = ch
	return id, ch
}

func (s *Store) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
	s.lastUsed = s.now()
}

// notify is only called with writeMu held.
func (s *Store) notify(st State) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- st.clone():
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st.clone():
			default:
			}
		}
	}
}

// watch re-syncs the store when another holder of the namespace commits.
func (s *Store) watch(ctx context.Context) error {
	events, stop, err := s.storage.Watch(ctx, s.ns)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		stop()
		return ErrClosed
	}
	s.stopWatch = stop
	s.mu.Unlock()

	go func() {
		for ev := range events {
			if ev.Origin == s.origin {
				continue
			}
			s.resync()
		}
	}()
	return nil
}

func (s *Store) resync() {
	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	restored, err := s.restore(ctx)
	if err != nil {
		s.log.Warn("session resync failed", "error", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	restored.IsInitialized = true
	s.state = restored
	st := s.state.clone()
	s.mu.Unlock()

	s.log.Debug("session re-synced from storage", "authenticated", st.IsAuthenticated)
	s.notify(st)
}

// idle reports whether the store has no subscribers and was unused since cutoff.
func (s *Store) idle(cutoff time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs) == 0 && s.lastUsed.Before(cutoff)
}

// Close stops the watcher and ends all subscriptions.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stop := s.stopWatch
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}
