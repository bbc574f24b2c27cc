// Package worker runs the pool that drains the work queue through the pipeline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/alertbridge/internal/queue"
	"github.com/spec-kit/alertbridge/internal/service"
)

const dequeueErrorBackoff = time.Second

// Processor handles one work item. Process returns an error only when the
// item must be redelivered.
type Processor interface {
	Process(ctx context.Context, item queue.WorkItem) (service.Outcome, error)
	Fail(ctx context.Context, item queue.WorkItem, cause error) (service.Outcome, error)
}

// Pool runs a fixed number of workers against a queue.
type Pool struct {
	queue     queue.Queue
	processor Processor
	size      int
	logger    *zap.Logger

	wg sync.WaitGroup
}

func NewPool(q queue.Queue, processor Processor, size int, logger *zap.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{queue: q, processor: processor, size: size, logger: logger}
}

// Start launches the workers. They stop when ctx is done or the queue closes;
// an item already dequeued is still finished.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.size))
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	log := p.logger.With(zap.Int("worker", id))
	for {
		delivery, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			log.Warn("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueErrorBackoff):
			}
			continue
		}
		p.handle(context.WithoutCancel(ctx), log, delivery)
	}
}

// handle processes one delivery and acks it once every follow-up is stored.
func (p *Pool) handle(ctx context.Context, log *zap.Logger, delivery *queue.Delivery) {
	item := delivery.Item
	if err := p.safeProcess(ctx, log, item); err != nil {
		log.Error("work item left for redelivery",
			zap.String("event_id", item.Event.ID),
			zap.String("correlation_id", item.Event.CorrelationID),
			zap.Error(err),
		)
		return
	}
	if err := delivery.Ack(ctx); err != nil {
		log.Warn("ack failed", zap.String("event_id", item.Event.ID), zap.Error(err))
	}
}

func (p *Pool) safeProcess(ctx context.Context, log *zap.Logger, item queue.WorkItem) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		log.Error("panic while processing event",
			zap.String("event_id", item.Event.ID),
			zap.Any("panic", r),
			zap.Stack("stack"),
		)
		_, err = p.processor.Fail(ctx, item, fmt.Errorf("panic: %v", r))
	}()
	_, err = p.processor.Process(ctx, item)
	return err
}
