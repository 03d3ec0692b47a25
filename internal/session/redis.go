package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go-marketplace-backend/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

const eventsPattern = "session:*:events"

// RedisStorage keeps session keys at session:{sid}:{key} and publishes
// commits on session:{sid}:events. All watchers share one pattern
// subscription.
type RedisStorage struct {
	client *goredis.Client
	ttl    time.Duration

	mu     sync.Mutex
	pubsub *goredis.PubSub
	hub    *eventHub
}

func NewRedisStorage(client *goredis.Client, ttl time.Duration) *RedisStorage {
	return &RedisStorage{client: client, ttl: ttl, hub: newEventHub()}
}

func (r *RedisStorage) key(ns, key string) string {
	return fmt.Sprintf("session:%s:%s", ns, key)
}

func (r *RedisStorage) channel(ns string) string {
	return fmt.Sprintf("session:%s:events", ns)
}

func (r *RedisStorage) Get(ctx context.Context, ns, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, r.key(ns, key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("session: redis get %s: %w", key, err)
	}
	return b, true, nil
}

// Commit applies the mutation in one MULTI/EXEC and publishes the event in
// the same transaction.
func (r *RedisStorage) Commit(ctx context.Context, ns string, m Mutation) error {
	payload, err := json.Marshal(Event{Namespace: ns, Origin: m.Origin, Keys: m.Keys()})
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		for k, v := range m.Set {
			p.Set(ctx, r.key(ns, k), v, r.ttl)
		}
		if len(m.Delete) > 0 {
			keys := make([]string, len(m.Delete))
			for i, k := range m.Delete {
				keys[i] = r.key(ns, k)
			}
			p.Del(ctx, keys...)
		}
		p.Publish(ctx, r.channel(ns), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: redis commit: %w", err)
	}
	return nil
}

func namespaceOf(channel string) (string, bool) {
	rest, ok := strings.CutPrefix(channel, "session:")
	if !ok {
		return "", false
	}
	return strings.CutSuffix(rest, ":events")
}

func (r *RedisStorage) Watch(ctx context.Context, ns string) (<-chan Event, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pubsub == nil {
		pubsub := r.client.PSubscribe(ctx, eventsPattern)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return nil, nil, fmt.Errorf("session: subscribe: %w", err)
		}
		r.pubsub = pubsub
		go r.dispatch(pubsub)
	}

	out, id := r.hub.add(ns)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.hub.remove(ns, id) == 0 && r.pubsub != nil {
				_ = r.pubsub.Close()
				r.pubsub = nil
			}
		})
	}
	return out, stop, nil
}

func (r *RedisStorage) dispatch(pubsub *goredis.PubSub) {
	for msg := range pubsub.Channel() {
		ns, ok := namespaceOf(msg.Channel)
		if !ok {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			logger.Log.Warn("session: dropping malformed event", "channel", msg.Channel, "error", err)
			continue
		}
		ev.Namespace = ns
		r.hub.publish(ev)
	}
}

// eventHub fans events out to the watchers of each namespace.
type eventHub struct {
	mu       sync.Mutex
	nextID   int
	watchers map[string]map[int]chan Event
}

func newEventHub() *eventHub {
	return &eventHub{watchers: make(map[string]map[int]chan Event)}
}

func (h *eventHub) add(ns string) (chan Event, int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Event, 16)
	if h.watchers[ns] == nil {
		h.watchers[ns] = make(map[int]chan Event)
	}
	h.watchers[ns][id] = ch
	return ch, id
}

// remove closes the watcher's channel and reports how many watchers remain
// across all namespaces.
func (h *eventHub) remove(ns string, id int) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.watchers[ns]; ok {
		if ch, ok := set[id]; ok {
			delete(set, id)
			close(ch)
		}
		if len(set) == 0 {
			delete(h.watchers, ns)
		}
	}
	n := 0
	for _, set := range h.watchers {
		n += len(set)
	}
	return n
}

// publish never blocks; a watcher with a full buffer misses the event.
func (h *eventHub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.watchers[ev.Namespace] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *eventHub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}
