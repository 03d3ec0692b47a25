package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespaceOf(t *testing.T) {
	r := NewRedisStorage(nil, 0)

	ns, ok := namespaceOf(r.channel("sid-1"))
	require.True(t, ok)
	assert.Equal(t, "sid-1", ns)

	_, ok = namespaceOf("session:sid-1:auth_user")
	assert.False(t, ok)
	_, ok = namespaceOf("other:sid-1:events")
	assert.False(t, ok)
}

func TestEventHubRoutesByNamespace(t *testing.T) {
	hub := newEventHub()
	a1, _ := hub.add("sid-a")
	a2, _ := hub.add("sid-a")
	b, _ := hub.add("sid-b")

	hub.publish(Event{Namespace: "sid-a", Origin: "tab-1", Keys: []string{KeyUser}})

	for _, ch := range []chan Event{a1, a2} {
		select {
		case ev := <-ch:
			assert.Equal(t, "tab-1", ev.Origin)
		case <-time.After(time.Second):
			t.Fatal("watcher of sid-a missed the event")
		}
	}
	select {
	case ev := <-b:
		t.Fatalf("sid-b received %+v", ev)
	default:
	}
}

func TestEventHubRemove(t *testing.T) {
	hub := newEventHub()
	a, idA := hub.add("sid-a")
	_, idB := hub.add("sid-b")

	assert.Equal(t, 1, hub.remove("sid-a", idA))
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, hub.len())

	// Removing twice is harmless.
	assert.Equal(t, 1, hub.remove("sid-a", idA))
	assert.Equal(t, 0, hub.remove("sid-b", idB))
	assert.Equal(t, 0, hub.len())

	hub.publish(Event{Namespace: "sid-a"})
}

func TestEventHubPublishDoesNotBlock(t *testing.T) {
	hub := newEventHub()
	ch, _ := hub.add("sid-a")

	for i := 0; i < cap(ch)+5; i++ {
		hub.publish(Event{Namespace: "sid-a"})
	}
	assert.Len(t, ch, cap(ch))
}
