package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go-marketplace-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func engineer() domain.AuthenticatedUser {
	return domain.AuthenticatedUser{
		ID:         "8c0a4c8e-3f7a-4a53-9d7b-1f2f1d1f0a01",
		Email:      "eng@example.com",
		Name:       "Ahmed Al Harbi",
		Role:       domain.RoleEngineer,
		IsVerified: true,
		SCENumber:  "1234567",
		Location:   "Riyadh, Riyadh Province",
		Phone:      "+966501234567",
		Language:   domain.LanguageArabic,
	}
}

type mockRefresher struct {
	mock.Mock
}

func (m *mockRefresher) RefreshUser(ctx context.Context, user domain.AuthenticatedUser) (*domain.AuthenticatedUser, *domain.UserProfile, error) {
	args := m.Called(ctx, user)
	var u *domain.AuthenticatedUser
	var p *domain.UserProfile
	if args.Get(0) != nil {
		u = args.Get(0).(*domain.AuthenticatedUser)
	}
	if args.Get(1) != nil {
		p = args.Get(1).(*domain.UserProfile)
	}
	return u, p, args.Error(2)
}

// countingStorage records commits on top of MemoryStorage.
type countingStorage struct {
	*MemoryStorage
	commits atomic.Int32
}

func (c *countingStorage) Commit(ctx context.Context, ns string, m Mutation) error {
	c.commits.Add(1)
	return c.MemoryStorage.Commit(ctx, ns, m)
}

func TestLoginPersistsUser(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(time.Hour)
	store := NewStore("sid-1", storage, nil, time.Second)

	st, err := store.Login(ctx, engineer())
	require.NoError(t, err)
	assert.True(t, st.IsAuthenticated)
	assert.True(t, st.IsInitialized)
	assert.Equal(t, "Ahmed", st.Profile.FirstName)
	assert.Equal(t, "Al Harbi", st.Profile.LastName)
	assert.Equal(t, "Riyadh", st.Profile.City)
	assert.Equal(t, "Riyadh Province", st.Profile.Region)

	raw, ok, err := storage.Get(ctx, "sid-1", KeyUser)
	require.NoError(t, err)
	require.True(t, ok)

	var persisted domain.AuthenticatedUser
	require.NoError(t, json.Unmarshal(raw, &persisted))
	assert.Equal(t, engineer().ID, persisted.ID)
	assert.Equal(t, engineer().Email, persisted.Email)
	assert.Equal(t, domain.RoleEngineer, persisted.Role)

	raw, ok, err = storage.Get(ctx, "sid-1", KeySnapshot)
	require.NoError(t, err)
	require.True(t, ok)
	var snap map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, true, snap["isAuthenticated"])
	assert.Contains(t, snap, "profile")
}

func TestLoginRejectsInvalidRole(t *testing.T) {
	store := NewStore("sid-1", NewMemoryStorage(0), nil, time.Second)

	user := engineer()
	user.Role = "candidate"
	_, err := store.Login(context.Background(), user)
	assert.ErrorIs(t, err, ErrInvalidRole)

	user.Role = ""
	_, err = store.Login(context.Background(), user)
	assert.ErrorIs(t, err, ErrInvalidRole)
	assert.False(t, store.State().IsAuthenticated)
}

func TestLogoutRemovesKeys(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(0)
	require.NoError(t, storage.Commit(ctx, "sid-1", Mutation{Set: map[string][]byte{KeyLegacyUser: []byte(`{"id":"x"}`)}}))

	store := NewStore("sid-1", storage, nil, time.Second)
	_, err := store.Login(ctx, engineer())
	require.NoError(t, err)

	st, err := store.Logout(ctx)
	require.NoError(t, err)
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.User)
	assert.Nil(t, st.Profile)

	for _, key := range []string{KeyUser, KeySnapshot, KeyLegacyUser} {
		_, ok, err := storage.Get(ctx, "sid-1", key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
}

func TestUpdateUserRederivesTouchedFields(t *testing.T) {
	ctx := context.Background()
	store := NewStore("sid-1", NewMemoryStorage(0), nil, time.Second)

	profile := domain.NewUserProfile(engineer())
	profile.FirstName, profile.LastName = "Ahmed", "Al-Harbi"
	_, err := store.LoginWithProfile(ctx, engineer(), &profile)
	require.NoError(t, err)

	company := "Saudi Aramco"
	st, err := store.UpdateUser(ctx, domain.UserUpdate{Company: &company})
	require.NoError(t, err)
	assert.Equal(t, "Saudi Aramco", st.User.Company)
	assert.Equal(t, "Saudi Aramco", st.Profile.Company)
	// Structured name untouched when name did not change.
	assert.Equal(t, "Al-Harbi", st.Profile.LastName)

	location := "Jeddah"
	st, err = store.UpdateUser(ctx, domain.UserUpdate{Location: &location})
	require.NoError(t, err)
	assert.Equal(t, "Jeddah", st.Profile.City)
	assert.Equal(t, "", st.Profile.Region)
	assert.Equal(t, "Al-Harbi", st.Profile.LastName)

	name := "Sara Al Qahtani"
	st, err = store.UpdateUser(ctx, domain.UserUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Sara", st.Profile.FirstName)
	assert.Equal(t, "Al Qahtani", st.Profile.LastName)
}

func TestUpdateUserRequiresSession(t *testing.T) {
	store := NewStore("sid-1", NewMemoryStorage(0), nil, time.Second)
	name := "Sara"
	_, err := store.UpdateUser(context.Background(), domain.UserUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestInitializeRestoresAndRefreshes(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(0)
	seed := NewStore("sid-1", storage, nil, time.Second)
	_, err := seed.Login(ctx, engineer())
	require.NoError(t, err)

	refreshed := engineer()
	refreshed.Company = "NEOM"
	refresher := new(mockRefresher)
	refresher.On("RefreshUser", mock.Anything, engineer()).Return(&refreshed, nil, nil).Once()

	store := NewStore("sid-1", storage, refresher, time.Second)
	st, err := store.Initialize(ctx)
	require.NoError(t, err)
	assert.True(t, st.IsInitialized)
	assert.False(t, st.IsLoading)
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, "NEOM", st.User.Company)

	// Memoized: no second refresh.
	_, err = store.Initialize(ctx)
	require.NoError(t, err)
	refresher.AssertExpectations(t)
}

func TestInitializeClearsDisabledUser(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(0)
	_, err := NewStore("sid-1", storage, nil, time.Second).Login(ctx, engineer())
	require.NoError(t, err)

	refresher := new(mockRefresher)
	refresher.On("RefreshUser", mock.Anything, mock.Anything).Return(nil, nil, domain.ErrUserDisabled)

	st, err := NewStore("sid-1", storage, refresher, time.Second).Initialize(ctx)
	require.NoError(t, err)
	assert.False(t, st.IsAuthenticated)

	_, ok, err := storage.Get(ctx, "sid-1", KeyUser)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInitializeKeepsCacheOnRefreshError(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(0)
	_, err := NewStore("sid-1", storage, nil, time.Second).Login(ctx, engineer())
	require.NoError(t, err)

	refresher := new(mockRefresher)
	refresher.On("RefreshUser", mock.Anything, mock.Anything).Return(nil, nil, errors.New("db down"))

	st, err := NewStore("sid-1", storage, refresher, time.Second).Initialize(ctx)
	require.NoError(t, err)
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, engineer().ID, st.User.ID)
}

func TestConcurrentInitializeMigratesOnce(t *testing.T) {
	ctx := context.Background()
	storage := &countingStorage{MemoryStorage: NewMemoryStorage(0)}
	legacy, err := json.Marshal(engineer())
	require.NoError(t, err)
	require.NoError(t, storage.MemoryStorage.Commit(ctx, "sid-1", Mutation{Set: map[string][]byte{KeyLegacyUser: legacy}}))

	store := NewStore("sid-1", storage, nil, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := store.Initialize(ctx)
			assert.NoError(t, err)
			assert.True(t, st.IsInitialized)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), storage.commits.Load())

	_, ok, err := storage.Get(ctx, "sid-1", KeyLegacyUser)
	require.NoError(t, err)
	assert.False(t, ok)

	raw, ok, err := storage.Get(ctx, "sid-1", KeyUser)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, string(legacy), string(raw))

	st := store.State()
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, "Ahmed", st.Profile.FirstName)
}

func TestInitializeTimeoutForcesCompletion(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(0)
	_, err := NewStore("sid-1", storage, nil, time.Second).Login(ctx, engineer())
	require.NoError(t, err)

	refresher := new(mockRefresher)
	refresher.On("RefreshUser", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, nil, context.DeadlineExceeded)

	store := NewStore("sid-1", storage, refresher, 50*time.Millisecond)
	start := time.Now()
	st, err := store.Initialize(ctx)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, st.IsInitialized)
	assert.False(t, st.IsLoading)
	// The cached snapshot was restored before the refresh stalled.
	assert.True(t, st.IsAuthenticated)
}

func TestCrossOriginResync(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(0)
	manager := NewManager(storage, nil, Options{InitTimeout: time.Second})
	defer manager.Close()

	watcher, err := manager.Open(ctx, "sid-1")
	require.NoError(t, err)
	_, err = watcher.Initialize(ctx)
	require.NoError(t, err)
	_, updates := watcher.Subscribe()

	// A second holder of the same namespace, e.g. another instance.
	other := NewStore("sid-1", storage, nil, time.Second)
	_, err = other.Login(ctx, engineer())
	require.NoError(t, err)

	select {
	case st := <-updates:
		assert.True(t, st.IsAuthenticated)
		assert.Equal(t, engineer().ID, st.User.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not re-sync")
	}

	_, err = other.Logout(ctx)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return !watcher.State().IsAuthenticated }, 2*time.Second, 10*time.Millisecond)
}

func TestOwnWritesDoNotResync(t *testing.T) {
	ctx := context.Background()
	storage := &countingStorage{MemoryStorage: NewMemoryStorage(0)}
	manager := NewManager(storage, nil, Options{})
	defer manager.Close()

	store, err := manager.Open(ctx, "sid-1")
	require.NoError(t, err)
	_, updates := store.Subscribe()

	_, err = store.Login(ctx, engineer())
	require.NoError(t, err)
	st := <-updates
	assert.True(t, st.IsAuthenticated)

	select {
	case extra := <-updates:
		t.Fatalf("unexpected resync notification: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestManagerSweep(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(NewMemoryStorage(0), nil, Options{IdleTimeout: time.Minute})
	defer manager.Close()

	idle, err := manager.Open(ctx, "idle")
	require.NoError(t, err)
	busy, err := manager.Open(ctx, "busy")
	require.NoError(t, err)
	_, _ = busy.Subscribe()

	same, err := manager.Open(ctx, "idle")
	require.NoError(t, err)
	assert.Same(t, idle, same)

	assert.Equal(t, 1, manager.Sweep(time.Now().Add(2*time.Minute)))
	assert.Equal(t, 1, manager.Len())

	_, err = idle.Login(ctx, engineer())
	assert.ErrorIs(t, err, ErrClosed)
}

type fakeIssuer struct{}

func (fakeIssuer) Issue(userID, sessionID, role string) (string, time.Time, error) {
	return userID + "." + sessionID + "." + role, time.Now().Add(time.Hour), nil
}

func TestServiceStart(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(NewMemoryStorage(0), nil, Options{})
	defer manager.Close()
	svc := NewService(manager, fakeIssuer{})

	profile := domain.NewUserProfile(engineer())
	profile.City, profile.Region = "Dammam", "Eastern Province"

	grant, err := svc.Start(ctx, engineer(), profile)
	require.NoError(t, err)
	require.NotEmpty(t, grant.SessionID)
	assert.Equal(t, engineer().ID+"."+grant.SessionID+".engineer", grant.Token)
	assert.Equal(t, "Dammam", grant.Profile.City)

	store, err := manager.Open(ctx, grant.SessionID)
	require.NoError(t, err)
	st, err := store.Initialize(ctx)
	require.NoError(t, err)
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, domain.RoleEngineer, st.GuardState().Role)
}
