// Package session holds the server-side session store: the authenticated
// user, its derived profile and the persisted snapshot the SPA resumes from.
package session

import (
	"context"
	"errors"
)

// Keys written under a session namespace.
const (
	KeyUser       = "auth_user"
	KeySnapshot   = "auth-storage"
	KeyLegacyUser = "user"
)

var (
	ErrNotAuthenticated = errors.New("session: not authenticated")
	ErrInvalidRole      = errors.New("session: invalid role")
	ErrClosed           = errors.New("session: store closed")
)

// Mutation is applied atomically to one namespace.
type Mutation struct {
	Origin string
	Set    map[string][]byte
	Delete []string
}

// Keys lists every key the mutation touches.
func (m Mutation) Keys() []string {
	keys := make([]string, 0, len(m.Set)+len(m.Delete))
	for k := range m.Set {
		keys = append(keys, k)
	}
	return append(keys, m.Delete...)
}

// Event is published after a commit so other holders of the namespace can
// re-read it.
type Event struct {
	Namespace string   `json:"ns"`
	Origin    string   `json:"origin"`
	Keys      []string `json:"keys"`
}

// Storage persists session keys and fans out change events.
type Storage interface {
	Get(ctx context.Context, ns, key string) ([]byte, bool, error)
	Commit(ctx context.Context, ns string, m Mutation) error
	// Watch streams events for ns until stop is called.
	Watch(ctx context.Context, ns string) (<-chan Event, func(), error)
}
