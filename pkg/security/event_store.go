package security

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EventStore writes security events to the security_events table.
type EventStore struct {
	db execer
}

func NewEventStore(db execer) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) Persist(ctx context.Context, event SecurityEvent) error {
	query := `
		INSERT INTO security_events (
			event_type, severity, service, environment,
			subject_type, subject_value, ip_address, user_agent,
			request_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	details := []byte("null")
	if len(event.Details) > 0 {
		b, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("encode event details: %w", err)
		}
		details = b
	}

	var ip interface{}
	if event.IP != "" {
		ip = event.IP
	}

	_, err := s.db.Exec(ctx, query,
		string(event.Event),
		string(GetSeverity(event.Event)),
		event.Service,
		event.Environment,
		event.SubjectType,
		event.SubjectValue,
		ip,
		event.UserAgent,
		event.RequestID,
		details,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to persist security event: %w", err)
	}
	return nil
}
