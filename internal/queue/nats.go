package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/spec-kit/alertbridge/internal/config"
)

// NATSQueue is a JetStream work-queue stream. Items that are not yet due are
// negatively acknowledged with the remaining delay so the server holds them back.
type NATSQueue struct {
	js           jetstream.JetStream
	consumer     jetstream.Consumer
	subject      string
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewNATSQueue ensures the stream and durable consumer exist.
func NewNATSQueue(ctx context.Context, nc *nats.Conn, cfg config.NATSConfig, queueCfg config.QueueConfig, logger *zap.Logger) (*NATSQueue, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, err
	}
	return newNATSQueue(ctx, js, cfg, queueCfg, logger)
}

func newNATSQueue(ctx context.Context, js jetstream.JetStream, cfg config.NATSConfig, queueCfg config.QueueConfig, logger *zap.Logger) (*NATSQueue, error) {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Subject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	ackWait := queueCfg.VisibilityTimeout
	if ackWait <= 0 {
		ackWait = 5 * time.Minute
	}
	consumer, err := js.CreateOrUpdateConsumer(ctx, cfg.Stream, jetstream.ConsumerConfig{
		Durable:       cfg.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		MaxDeliver:    -1,
		FilterSubject: cfg.Subject,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	poll := queueCfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &NATSQueue{js: js, consumer: consumer, subject: cfg.Subject, pollInterval: poll, logger: logger}, nil
}

func (q *NATSQueue) Enqueue(ctx context.Context, item WorkItem) error {
	data, err := encode(item)
	if err != nil {
		return fmt.Errorf("encode work item: %w", err)
	}
	item, _ = decode(data)
	if _, err := q.js.Publish(ctx, q.subject, data, jetstream.WithMsgID(item.DeliveryID)); err != nil {
		return fmt.Errorf("publish %s: %w", item.DeliveryID, err)
	}
	return nil
}

func (q *NATSQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := q.consumer.Fetch(1, jetstream.FetchMaxWait(q.pollInterval))
		if err != nil {
			q.logger.Warn("fetch failed", zap.Error(err))
			if err := sleepCtx(ctx, q.pollInterval); err != nil {
				return nil, err
			}
			continue
		}
		for msg := range batch.Messages() {
			if d := q.accept(msg); d != nil {
				return d, nil
			}
		}
		if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) && !errors.Is(err, jetstream.ErrNoMessages) {
			q.logger.Warn("fetch batch failed", zap.Error(err))
		}
	}
}

// accept turns a message into a delivery, or holds it back if not yet due.
func (q *NATSQueue) accept(msg jetstream.Msg) *Delivery {
	item, err := decode(msg.Data())
	if err != nil {
		q.logger.Error("terminating undecodable work item", zap.Error(err))
		_ = msg.Term()
		return nil
	}
	if wait := time.Until(item.DueAt); wait > 0 {
		if err := msg.NakWithDelay(wait); err != nil {
			q.logger.Warn("failed to delay work item", zap.String("delivery_id", item.DeliveryID), zap.Error(err))
		}
		return nil
	}
	return &Delivery{Item: item, ack: func(context.Context) error { return msg.Ack() }}
}

func (q *NATSQueue) Depth(ctx context.Context) (int64, error) {
	info, err := q.consumer.Info(ctx)
	if err != nil {
		return 0, err
	}
	return int64(info.NumPending) + int64(info.NumAckPending), nil
}
