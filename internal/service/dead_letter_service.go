package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/alertbridge/internal/domain"
	"github.com/spec-kit/alertbridge/internal/events"
	"github.com/spec-kit/alertbridge/internal/queue"
	"github.com/spec-kit/alertbridge/internal/repository"
	apperrors "github.com/spec-kit/alertbridge/pkg/util/errorutil"
)

// DeadLetterService lists dead letters and replays them on operator request.
type DeadLetterService struct {
	deadLetters repository.DeadLetterRepository
	queue       queue.Queue
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	now         func() time.Time
}

// NewDeadLetterService constructs the service.
func NewDeadLetterService(deadLetters repository.DeadLetterRepository, q queue.Queue, dispatcher events.Dispatcher, logger *zap.Logger) *DeadLetterService {
	return &DeadLetterService{
		deadLetters: deadLetters,
		queue:       q,
		dispatcher:  dispatcher,
		logger:      logger,
		now:         time.Now,
	}
}

// List returns dead letters matching filter.
func (s *DeadLetterService) List(ctx context.Context, filter repository.DeadLetterFilter) ([]domain.DeadLetter, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.deadLetters.List(ctx, filter)
}

// Replay re-submits a dead letter as a fresh event with the same correlation
// id and marks the record replayed. A record is replayed at most once.
func (s *DeadLetterService) Replay(ctx context.Context, id string) (domain.Event, error) {
	dl, err := s.deadLetters.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.Event{}, apperrors.NewNotFound("dead letter", map[string]any{"id": id})
		}
		return domain.Event{}, err
	}

	now := s.now().UTC()
	ev := domain.Event{
		ID:            uuid.NewString(),
		EndpointID:    dl.Event.EndpointID,
		CorrelationID: dl.Event.CorrelationID,
		ReceivedAt:    now,
		Payload:       dl.Event.Payload,
		SourceIP:      dl.Event.SourceIP,
	}

	if err := s.deadLetters.MarkReplayed(ctx, id, ev.ID, now); err != nil {
		if errors.Is(err, repository.ErrAlreadyReplayed) {
			return domain.Event{}, apperrors.NewConflict("dead letter already replayed", map[string]any{"id": id})
		}
		return domain.Event{}, err
	}
	if err := s.queue.Enqueue(ctx, queue.NewWorkItem(ev)); err != nil {
		if clearErr := s.deadLetters.ClearReplay(ctx, id); clearErr != nil {
			s.logger.Error("failed to clear replay mark", zap.String("dead_letter_id", id), zap.Error(clearErr))
		}
		return domain.Event{}, apperrors.NewUnavailable("queue unavailable", err)
	}

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:            uuid.NewString(),
			Type:          events.EventDeadLetterReplayed,
			CorrelationID: ev.CorrelationID,
			EndpointID:    ev.EndpointID,
			Timestamp:     now,
			Payload: events.DeadLetterPayload{
				DeadLetterID:  id,
				LastError:     dl.LastError,
				AttemptCount:  dl.AttemptCount,
				ReplayEventID: ev.ID,
			},
		})
	}
	return ev, nil
}
