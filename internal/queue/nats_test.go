package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/alertbridge/internal/config"
	"github.com/spec-kit/alertbridge/internal/domain"
)

type MockJetStream struct {
	mock.Mock
	jetstream.JetStream
}

func (m *MockJetStream) CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	args := m.Called(ctx, cfg)
	return nil, args.Error(1)
}

func (m *MockJetStream) CreateOrUpdateConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error) {
	args := m.Called(ctx, stream, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(jetstream.Consumer), args.Error(1)
}

func (m *MockJetStream) Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	args := m.Called(ctx, subject, payload)
	return &jetstream.PubAck{}, args.Error(0)
}

type MockConsumer struct {
	mock.Mock
	jetstream.Consumer
}

func (m *MockConsumer) Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error) {
	args := m.Called(batch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(jetstream.MessageBatch), args.Error(1)
}

type MockMsg struct {
	mock.Mock
	jetstream.Msg
	data []byte
}

func (m *MockMsg) Data() []byte {
	return m.data
}

func (m *MockMsg) Ack() error {
	return m.Called().Error(0)
}

func (m *MockMsg) NakWithDelay(delay time.Duration) error {
	return m.Called(delay).Error(0)
}

type fakeBatch struct {
	msgs chan jetstream.Msg
}

func newBatch(msgs ...jetstream.Msg) *fakeBatch {
	ch := make(chan jetstream.Msg, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	return &fakeBatch{msgs: ch}
}

func (b *fakeBatch) Messages() <-chan jetstream.Msg { return b.msgs }
func (b *fakeBatch) Error() error                   { return nil }

func setupNATS(t *testing.T) (*NATSQueue, *MockJetStream, *MockConsumer) {
	t.Helper()
	js := new(MockJetStream)
	consumer := new(MockConsumer)
	natsCfg := config.NATSConfig{Stream: "ALERTBRIDGE", Subject: "alertbridge.events", Consumer: "workers"}

	js.On("CreateOrUpdateStream", mock.Anything, mock.MatchedBy(func(cfg jetstream.StreamConfig) bool {
		return cfg.Name == "ALERTBRIDGE" && cfg.Retention == jetstream.WorkQueuePolicy
	})).Return(nil, nil)
	js.On("CreateOrUpdateConsumer", mock.Anything, "ALERTBRIDGE", mock.MatchedBy(func(cfg jetstream.ConsumerConfig) bool {
		return cfg.Durable == "workers" && cfg.AckPolicy == jetstream.AckExplicitPolicy
	})).Return(consumer, nil)

	q, err := newNATSQueue(context.Background(), js, natsCfg, config.QueueConfig{PollInterval: 10 * time.Millisecond}, zap.NewNop())
	require.NoError(t, err)
	return q, js, consumer
}

func TestNATSQueueEnqueuePublishes(t *testing.T) {
	q, js, _ := setupNATS(t)
	item := NewWorkItem(domain.Event{ID: "e1"})
	js.On("Publish", mock.Anything, "alertbridge.events", mock.MatchedBy(func(data []byte) bool {
		var got WorkItem
		return json.Unmarshal(data, &got) == nil && got.DeliveryID == item.DeliveryID
	})).Return(nil)

	require.NoError(t, q.Enqueue(context.Background(), item))
	js.AssertExpectations(t)
}

func TestNATSQueueDelaysItemsNotYetDue(t *testing.T) {
	q, _, consumer := setupNATS(t)

	future, _ := json.Marshal(RetryItem(domain.Event{ID: "future"}, domain.RetryState{Attempt: 1}, time.Minute))
	due, _ := json.Marshal(NewWorkItem(domain.Event{ID: "due"}))
	futureMsg := &MockMsg{data: future}
	dueMsg := &MockMsg{data: due}
	futureMsg.On("NakWithDelay", mock.MatchedBy(func(d time.Duration) bool {
		return d > 50*time.Second && d <= time.Minute
	})).Return(nil)
	dueMsg.On("Ack").Return(nil)

	consumer.On("Fetch", 1).Return(newBatch(futureMsg), nil).Once()
	consumer.On("Fetch", 1).Return(newBatch(dueMsg), nil).Once()

	d, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "due", d.Item.Event.ID)
	require.NoError(t, d.Ack(context.Background()))

	futureMsg.AssertExpectations(t)
	dueMsg.AssertExpectations(t)
}

func TestNATSQueueDequeueHonoursContext(t *testing.T) {
	q, _, consumer := setupNATS(t)
	consumer.On("Fetch", 1).Return(newBatch(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
