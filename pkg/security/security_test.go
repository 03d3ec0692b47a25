package security

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "a***@example.com", MaskEmail("ahmed@example.com"))
	assert.Equal(t, "***", MaskEmail("ab"))
}

func TestLoginTrackerInMemory(t *testing.T) {
	ctx := context.Background()
	cfg := LoginTrackerConfig{
		MaxAttempts:   3,
		AttemptWindow: time.Minute,
		BlockDuration: time.Minute,
		UseIPTracking: true,
	}
	lt := NewLoginTracker(cfg, nil, NewNopSecurityLogger())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	lt.nowFunc = func() time.Time { return now }

	for i := 1; i < 3; i++ {
		blocked, count, err := lt.RecordFailedAttempt(ctx, "User@Example.com", "10.0.0.1", "ua", "req")
		require.NoError(t, err)
		assert.False(t, blocked)
		assert.Equal(t, i, count)
	}

	remaining, err := lt.GetRemainingAttempts(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	blocked, _, err := lt.RecordFailedAttempt(ctx, "user@example.com", "10.0.0.1", "ua", "req")
	require.NoError(t, err)
	assert.True(t, blocked)

	isBlocked, err := lt.IsBlocked(ctx, "user@example.com", "")
	require.NoError(t, err)
	assert.True(t, isBlocked)

	now = now.Add(2 * time.Minute)
	isBlocked, err = lt.IsBlocked(ctx, "user@example.com", "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, isBlocked)
}

func TestValidateImage(t *testing.T) {
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}

	res := ValidateImage("me.png", png)
	assert.True(t, res.Valid, res.Error)

	res = ValidateImage("me.jpg", png)
	assert.False(t, res.Valid)

	res = ValidateImage("me.pdf", []byte("%PDF-1.4"))
	assert.False(t, res.Valid)
	assert.Contains(t, res.Error, "extension")
}

type recordingExec struct {
	sql  string
	args []any
}

func (r *recordingExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql, r.args = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestEventStorePersist(t *testing.T) {
	db := &recordingExec{}
	store := NewEventStore(db)

	err := store.Persist(context.Background(), SecurityEvent{
		Event:   EventLoginBlocked,
		Details: map[string]interface{}{"attempts": 5},
	})
	require.NoError(t, err)
	assert.Contains(t, db.sql, "INSERT INTO security_events")
	require.Len(t, db.args, 11)
	assert.Equal(t, "login_blocked", db.args[0])
	assert.Equal(t, "HIGH", db.args[1])
	assert.Nil(t, db.args[6], "empty ip is stored as NULL")
	assert.JSONEq(t, `{"attempts":5}`, string(db.args[9].([]byte)))
}

func TestSecurityLoggerPersistsHighSeverityOnly(t *testing.T) {
	sl := NewNopSecurityLogger()
	got := make(chan EventType, 2)
	sl.SetPersistFunc(func(_ context.Context, ev SecurityEvent) error {
		got <- ev.Event
		return nil
	})

	sl.Log(context.Background(), SecurityEvent{Event: EventLoginSuccess})
	sl.Log(context.Background(), SecurityEvent{Event: EventUserDisabled})

	select {
	case ev := <-got:
		assert.Equal(t, EventUserDisabled, ev)
	case <-time.After(time.Second):
		t.Fatal("high severity event was not persisted")
	}
	select {
	case ev := <-got:
		t.Fatalf("unexpected persisted event %s", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
