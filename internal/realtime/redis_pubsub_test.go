package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPubSubPair(t *testing.T) (*RedisPubSub, *RedisPubSub) {
	t.Helper()
	mr := miniredis.RunT(t)
	clientA := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clientB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = clientA.Close()
		_ = clientB.Close()
	})
	return NewRedisPubSub(clientA, nil), NewRedisPubSub(clientB, nil)
}

func TestRedisPubSubCrossInstanceDelivery(t *testing.T) {
	instanceA, instanceB := newPubSubPair(t)
	sessionID := uuid.New()

	var mu sync.Mutex
	var gotEvent string
	var gotPayload []byte
	cancel, err := instanceB.SubscribeSession(sessionID, func(event string, payload []byte) {
		mu.Lock()
		gotEvent, gotPayload = event, payload
		mu.Unlock()
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, instanceA.PublishSessionEvent(sessionID, EventAssetShared, []byte(`{"assetId":"a1"}`)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotEvent == EventAssetShared
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.JSONEq(t, `{"assetId":"a1"}`, string(gotPayload))
	mu.Unlock()
}

func TestRedisPubSubSkipsOwnOrigin(t *testing.T) {
	instanceA, _ := newPubSubPair(t)
	sessionID := uuid.New()

	delivered := make(chan string, 1)
	cancel, err := instanceA.SubscribeSession(sessionID, func(event string, _ []byte) {
		delivered <- event
	})
	require.NoError(t, err)
	defer cancel()

	// The publisher's own instance already delivered locally; its
	// subscription must not deliver the same event twice.
	require.NoError(t, instanceA.PublishSessionEvent(sessionID, EventAssetShared, []byte(`{}`)))

	select {
	case event := <-delivered:
		t.Fatalf("self-origin event %q delivered", event)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisPubSubSessionChannelIsolation(t *testing.T) {
	instanceA, instanceB := newPubSubPair(t)
	sessionA := uuid.New()
	sessionB := uuid.New()

	delivered := make(chan string, 1)
	cancel, err := instanceB.SubscribeSession(sessionB, func(event string, _ []byte) {
		delivered <- event
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, instanceA.PublishSessionEvent(sessionA, EventSessionStarted, []byte(`{}`)))

	select {
	case event := <-delivered:
		t.Fatalf("event %q crossed the session channel boundary", event)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisPubSubCancelStopsDelivery(t *testing.T) {
	instanceA, instanceB := newPubSubPair(t)
	sessionID := uuid.New()

	delivered := make(chan string, 4)
	cancel, err := instanceB.SubscribeSession(sessionID, func(event string, _ []byte) {
		delivered <- event
	})
	require.NoError(t, err)

	cancel()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, instanceA.PublishSessionEvent(sessionID, EventAssetShared, []byte(`{}`)))

	select {
	case event := <-delivered:
		t.Fatalf("event %q delivered after cancel", event)
	case <-time.After(200 * time.Millisecond):
	}
}
