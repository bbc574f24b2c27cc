// Package queue carries events and rescheduled retries to the worker pool
// with at-least-once delivery.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/alertbridge/internal/domain"
)

// ErrClosed is returned by Dequeue after the queue was closed.
var ErrClosed = errors.New("queue closed")

// WorkItem is one unit of work: a fresh event or a retry carrying its state.
// A retry is never processed before DueAt.
type WorkItem struct {
	DeliveryID string            `json:"delivery_id"`
	Event      domain.Event      `json:"event"`
	Retry      domain.RetryState `json:"retry"`
	DueAt      time.Time         `json:"due_at"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

// NewWorkItem wraps a fresh event, due immediately.
func NewWorkItem(event domain.Event) WorkItem {
	now := time.Now().UTC()
	return WorkItem{DeliveryID: uuid.NewString(), Event: event, DueAt: now, EnqueuedAt: now}
}

// RetryItem schedules the next attempt of an event after delay.
func RetryItem(event domain.Event, state domain.RetryState, delay time.Duration) WorkItem {
	now := time.Now().UTC()
	return WorkItem{DeliveryID: uuid.NewString(), Event: event, Retry: state, DueAt: now.Add(delay), EnqueuedAt: now}
}

// IsRetry reports whether the item is a rescheduled attempt.
func (w WorkItem) IsRetry() bool {
	return w.Retry.Attempt > 0 || w.Retry.Unexpected > 0
}

// Delivery is a dequeued item. It must be acked once fully handled,
// including after any follow-up retry has been enqueued.
type Delivery struct {
	Item WorkItem
	ack  func(ctx context.Context) error
}

// Ack confirms the delivery so it is not redelivered.
func (d *Delivery) Ack(ctx context.Context) error {
	if d == nil || d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// Queue is the durable work queue shared by ingestion and workers.
type Queue interface {
	Enqueue(ctx context.Context, item WorkItem) error
	// Dequeue blocks until an item is due or ctx is done.
	Dequeue(ctx context.Context) (*Delivery, error)
	// Depth reports the number of queued items, in flight or not.
	Depth(ctx context.Context) (int64, error)
}

func encode(item WorkItem) ([]byte, error) {
	if item.DeliveryID == "" {
		item.DeliveryID = uuid.NewString()
	}
	return json.Marshal(item)
}

func decode(data []byte) (WorkItem, error) {
	var item WorkItem
	err := json.Unmarshal(data, &item)
	return item, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
