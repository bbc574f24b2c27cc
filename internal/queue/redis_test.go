package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/alertbridge/internal/domain"
)

func newTestRedisQueue(t *testing.T, visibility time.Duration) *RedisQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisQueue(client, "test", 5*time.Millisecond, visibility, zap.NewNop())
}

func dequeueWithin(t *testing.T, q Queue, d time.Duration) *Delivery {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	delivery, err := q.Dequeue(ctx)
	require.NoError(t, err)
	return delivery
}

func TestRedisQueueOrdersByDueTime(t *testing.T) {
	ctx := context.Background()
	q := newTestRedisQueue(t, time.Minute)

	require.NoError(t, q.Enqueue(ctx, RetryItem(domain.Event{ID: "third"}, domain.RetryState{Attempt: 2}, 60*time.Millisecond)))
	require.NoError(t, q.Enqueue(ctx, RetryItem(domain.Event{ID: "second"}, domain.RetryState{Attempt: 1}, 30*time.Millisecond)))
	require.NoError(t, q.Enqueue(ctx, NewWorkItem(domain.Event{ID: "first"})))

	var order []string
	for range 3 {
		d := dequeueWithin(t, q, time.Second)
		order = append(order, d.Item.Event.ID)
		require.NoError(t, d.Ack(ctx))
	}
	assert.Equal(t, []string{"first", "second", "third"}, order)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)
}

func TestRedisQueueHoldsBackFutureItems(t *testing.T) {
	q := newTestRedisQueue(t, time.Minute)
	require.NoError(t, q.Enqueue(context.Background(), RetryItem(domain.Event{ID: "e"}, domain.RetryState{Attempt: 1}, time.Hour)))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	depth, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}

func TestRedisQueueReclaimsAfterVisibilityTimeout(t *testing.T) {
	ctx := context.Background()
	q := newTestRedisQueue(t, 30*time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, NewWorkItem(domain.Event{ID: "e1", EndpointID: "grafana"})))

	first := dequeueWithin(t, q, time.Second)
	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth, "in-flight items still count")

	second := dequeueWithin(t, q, time.Second)
	assert.Equal(t, first.Item.DeliveryID, second.Item.DeliveryID)
	assert.Equal(t, "grafana", second.Item.Event.EndpointID)

	require.NoError(t, second.Ack(ctx))
	depth, err = q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)
}

func TestRedisQueueAckedItemIsNotRedelivered(t *testing.T) {
	ctx := context.Background()
	q := newTestRedisQueue(t, 10*time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, NewWorkItem(domain.Event{ID: "e1"})))

	d := dequeueWithin(t, q, time.Second)
	require.NoError(t, d.Ack(ctx))

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
