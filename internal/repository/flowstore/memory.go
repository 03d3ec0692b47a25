// Package flowstore persists signup flows between wizard steps.
package flowstore

import (
	"context"
	"sync"
	"time"

	"go-marketplace-backend/internal/domain"
)

type memoryRepository struct {
	mu    sync.Mutex
	flows map[string]domain.SignupFlow
	locks map[string]time.Time
	now   func() time.Time
}

// NewMemoryRepository keeps flows in process memory. Used when Redis is not
// configured and in tests.
func NewMemoryRepository() domain.SignupFlowRepository {
	return &memoryRepository{
		flows: make(map[string]domain.SignupFlow),
		locks: make(map[string]time.Time),
		now:   time.Now,
	}
}

func (r *memoryRepository) Save(_ context.Context, flow *domain.SignupFlow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[flow.ID] = *flow
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (*domain.SignupFlow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	flow, ok := r.flows[id]
	if !ok || flow.Expired(r.now()) {
		return nil, domain.ErrNotFound
	}
	return &flow, nil
}

func (r *memoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flows, id)
	return nil
}

func (r *memoryRepository) Lock(_ context.Context, id string, ttl time.Duration) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if until, held := r.locks[id]; held && now.Before(until) {
		return nil, domain.ErrFlowBusy
	}
	until := now.Add(ttl)
	r.locks[id] = until

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.locks[id].Equal(until) {
				delete(r.locks, id)
			}
		})
	}, nil
}

func (r *memoryRepository) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, flow := range r.flows {
		if flow.Expired(now) {
			delete(r.flows, id)
			n++
		}
	}
	for id, until := range r.locks {
		if now.After(until) {
			delete(r.locks, id)
		}
	}
	return n, nil
}
