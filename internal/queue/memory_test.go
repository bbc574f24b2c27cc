package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/alertbridge/internal/domain"
)

func TestMemoryQueueOrdersByDueTime(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(time.Minute)

	late := RetryItem(domain.Event{ID: "late"}, domain.RetryState{Attempt: 1}, 20*time.Millisecond)
	now := NewWorkItem(domain.Event{ID: "now"})
	require.NoError(t, q.Enqueue(ctx, late))
	require.NoError(t, q.Enqueue(ctx, now))

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "now", d.Item.Event.ID)
	assert.False(t, d.Item.IsRetry())

	d2, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late", d2.Item.Event.ID)
	assert.True(t, d2.Item.IsRetry())
	assert.False(t, time.Now().Before(d2.Item.DueAt))

	depth, _ := q.Depth(ctx)
	assert.Equal(t, int64(2), depth)
	require.NoError(t, d.Ack(ctx))
	require.NoError(t, d.Ack(ctx))
	require.NoError(t, d2.Ack(ctx))
	depth, _ = q.Depth(ctx)
	assert.Equal(t, int64(0), depth)
}

func TestMemoryQueueHoldsBackFutureItems(t *testing.T) {
	q := NewMemoryQueue(time.Minute)
	require.NoError(t, q.Enqueue(context.Background(), RetryItem(domain.Event{ID: "e"}, domain.RetryState{Attempt: 1}, time.Hour)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueueWakesBlockedConsumer(t *testing.T) {
	q := NewMemoryQueue(time.Minute)
	got := make(chan string, 1)
	go func() {
		d, err := q.Dequeue(context.Background())
		if err == nil {
			got <- d.Item.Event.ID
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), NewWorkItem(domain.Event{ID: "wake"})))

	select {
	case id := <-got:
		assert.Equal(t, "wake", id)
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken")
	}
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue(time.Minute)
	q.Close()
	_, err := q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, q.Enqueue(context.Background(), NewWorkItem(domain.Event{})), ErrClosed)
}

func TestMemoryQueueRedeliversUnacked(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(30 * time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, NewWorkItem(domain.Event{ID: "e1"})))

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	second, err := q.Dequeue(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, first.Item.DeliveryID, second.Item.DeliveryID)
	assert.Equal(t, "e1", second.Item.Event.ID)

	// The stale delivery's ack must not release the redelivered one.
	require.NoError(t, first.Ack(ctx))
	depth, _ := q.Depth(ctx)
	assert.Equal(t, int64(1), depth)

	require.NoError(t, second.Ack(ctx))
	depth, _ = q.Depth(ctx)
	assert.Equal(t, int64(0), depth)
}

func TestMemoryQueueAckedItemIsNotRedelivered(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(10 * time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, NewWorkItem(domain.Event{ID: "e1"})))
	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, d.Ack(ctx))

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
