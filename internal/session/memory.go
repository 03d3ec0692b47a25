package session

import (
	"context"
	"sync"
	"time"
)

type memoryNamespace struct {
	values    map[string][]byte
	expiresAt time.Time
	watchers  map[int]chan Event
}

// MemoryStorage is the single-instance Storage used when Redis is not
// configured and in tests.
type MemoryStorage struct {
	mu     sync.Mutex
	ttl    time.Duration
	spaces map[string]*memoryNamespace
	nextID int
	now    func() time.Time
}

func NewMemoryStorage(ttl time.Duration) *MemoryStorage {
	return &MemoryStorage{
		ttl:    ttl,
		spaces: make(map[string]*memoryNamespace),
		now:    time.Now,
	}
}

// lookup returns the live namespace without creating one.
func (s *MemoryStorage) lookup(ns string) *memoryNamespace {
	sp, ok := s.spaces[ns]
	if !ok {
		return nil
	}
	if !sp.expiresAt.IsZero() && s.now().After(sp.expiresAt) {
		sp.values = make(map[string][]byte)
		sp.expiresAt = time.Time{}
	}
	return sp
}

func (s *MemoryStorage) space(ns string) *memoryNamespace {
	if sp := s.lookup(ns); sp != nil {
		return sp
	}
	sp := &memoryNamespace{values: make(map[string][]byte), watchers: make(map[int]chan Event)}
	s.spaces[ns] = sp
	return sp
}

// release drops a namespace that holds neither keys nor watchers.
func (s *MemoryStorage) release(ns string, sp *memoryNamespace) {
	if len(sp.values) == 0 && len(sp.watchers) == 0 {
		delete(s.spaces, ns)
	}
}

// Len is the number of namespaces held in memory.
func (s *MemoryStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spaces)
}

// PurgeExpired drops namespaces whose TTL passed and which nobody watches.
// Watched namespaces are emptied on their next access instead.
func (s *MemoryStorage) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for ns, sp := range s.spaces {
		if len(sp.watchers) > 0 {
			continue
		}
		if len(sp.values) == 0 || (!sp.expiresAt.IsZero() && now.After(sp.expiresAt)) {
			delete(s.spaces, ns)
			n++
		}
	}
	return n
}

func (s *MemoryStorage) Get(_ context.Context, ns, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := s.lookup(ns)
	if sp == nil {
		return nil, false, nil
	}
	v, ok := sp.values[key]
	if !ok {
		s.release(ns, sp)
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *MemoryStorage) Commit(_ context.Context, ns string, m Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := s.space(ns)
	for k, v := range m.Set {
		b := make([]byte, len(v))
		copy(b, v)
		sp.values[k] = b
	}
	for _, k := range m.Delete {
		delete(sp.values, k)
	}
	if s.ttl > 0 {
		sp.expiresAt = s.now().Add(s.ttl)
	}

	ev := Event{Namespace: ns, Origin: m.Origin, Keys: m.Keys()}
	for _, ch := range sp.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
	s.release(ns, sp)
	return nil
}

func (s *MemoryStorage) Watch(_ context.Context, ns string) (<-chan Event, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Event, 16)
	s.space(ns).watchers[id] = ch

	var once sync.Once
	stop := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sp, ok := s.spaces[ns]; ok {
				delete(sp.watchers, id)
				s.release(ns, sp)
			}
			close(ch)
		})
	}
	return ch, stop, nil
}
