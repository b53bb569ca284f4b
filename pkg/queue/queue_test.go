package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewQueue(client, nil), mr
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	sessionID := uuid.New()
	endedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, q.EnqueueSessionTeardown(ctx, SessionTeardownPayload{
		SessionID: sessionID,
		EndedAt:   endedAt,
	}))

	job, queueName, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, QueueTeardown, queueName)
	assert.Equal(t, JobTypeSessionTeardown, job.Type)
	assert.Equal(t, 0, job.Attempt)
	assert.NotEmpty(t, job.ID)

	var payload SessionTeardownPayload
	require.NoError(t, json.Unmarshal(job.Payload, &payload))
	assert.Equal(t, sessionID, payload.SessionID)
	assert.True(t, payload.EndedAt.Equal(endedAt))
}

func TestDequeueFIFO(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	first := uuid.New()
	second := uuid.New()
	require.NoError(t, q.EnqueueSessionTeardown(ctx, SessionTeardownPayload{SessionID: first}))
	require.NoError(t, q.EnqueueSessionTeardown(ctx, SessionTeardownPayload{SessionID: second}))

	job, _, err := q.Dequeue(ctx)
	require.NoError(t, err)
	var payload SessionTeardownPayload
	require.NoError(t, json.Unmarshal(job.Payload, &payload))
	assert.Equal(t, first, payload.SessionID)

	job, _, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(job.Payload, &payload))
	assert.Equal(t, second, payload.SessionID)
}

func TestRetryIncrementsAttempt(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.EnqueueSessionTeardown(ctx, SessionTeardownPayload{SessionID: uuid.New()}))
	job, _, err := q.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Retry(ctx, job))

	retried, _, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, retried)
	assert.Equal(t, job.ID, retried.ID)
	assert.Equal(t, 1, retried.Attempt)
}

func TestRetryMovesToDLQAfterMaxRetries(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.EnqueueSessionTeardown(ctx, SessionTeardownPayload{SessionID: uuid.New()}))
	job, _, err := q.Dequeue(ctx)
	require.NoError(t, err)

	job.Attempt = MaxRetries - 1
	require.NoError(t, q.Retry(ctx, job))

	// The job must be in the DLQ, not back on the work queue.
	assert.Equal(t, 0, int(mustLen(t, mr, QueueTeardown)))
	assert.Equal(t, 1, int(mustLen(t, mr, QueueDLQ)))
}

func TestDequeueMalformedJobSkipped(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	_, err := mr.Push(QueueTeardown, "{broken")
	require.NoError(t, err)

	job, _, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func mustLen(t *testing.T, mr *miniredis.Miniredis, key string) int {
	t.Helper()
	if !mr.Exists(key) {
		return 0
	}
	items, err := mr.List(key)
	require.NoError(t, err)
	return len(items)
}
