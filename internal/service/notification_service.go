package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/alertbridge/internal/events"
	"github.com/spec-kit/alertbridge/internal/observability"
)

// NotificationService turns pipeline events into counters and operator-facing logs.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventAlertProcessed, n.handleAlertProcessed)
	n.dispatcher.Subscribe(events.EventAlertDeadLettered, n.handleDeadLettered)
	n.dispatcher.Subscribe(events.EventDeadLetterReplayed, n.handleReplayed)
}

func (n *NotificationService) handleAlertProcessed(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.AlertProcessedPayload)
	if !ok {
		return nil
	}
	n.metrics.RecordOutcome(event.EndpointID, string(payload.State), payload.Duration)
	return nil
}

func (n *NotificationService) handleDeadLettered(_ context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.DeadLetterPayload)
	n.logger.Error("AlertDeadLettered",
		zap.String("correlation_id", event.CorrelationID),
		zap.String("endpoint_id", event.EndpointID),
		zap.String("dead_letter_id", payload.DeadLetterID),
		zap.Int("attempt_count", payload.AttemptCount),
		zap.String("last_error", payload.LastError))
	return nil
}

func (n *NotificationService) handleReplayed(_ context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.DeadLetterPayload)
	n.logger.Info("DeadLetterReplayed",
		zap.String("correlation_id", event.CorrelationID),
		zap.String("endpoint_id", event.EndpointID),
		zap.String("dead_letter_id", payload.DeadLetterID),
		zap.String("replay_event_id", payload.ReplayEventID))
	return nil
}
