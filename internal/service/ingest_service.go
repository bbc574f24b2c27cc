package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/alertbridge/internal/domain"
	"github.com/spec-kit/alertbridge/internal/queue"
	"github.com/spec-kit/alertbridge/internal/repository"
	apperrors "github.com/spec-kit/alertbridge/pkg/util/errorutil"
)

// IngestService accepts raw payloads for an endpoint and queues them.
type IngestService struct {
	endpoints repository.EndpointRepository
	queue     queue.Queue
	now       func() time.Time
}

// NewIngestService constructs the service.
func NewIngestService(endpoints repository.EndpointRepository, q queue.Queue) *IngestService {
	return &IngestService{endpoints: endpoints, queue: q, now: time.Now}
}

// SubmitInput is one received webhook delivery.
type SubmitInput struct {
	EndpointID    string
	CorrelationID string
	Body          []byte
	SourceIP      string
}

// Submit validates the endpoint and queues a fresh event. The body is not
// parsed here; malformed JSON fails later as a resolution error.
func (s *IngestService) Submit(ctx context.Context, in SubmitInput) (domain.Event, error) {
	cfg, err := s.endpoints.GetByID(ctx, in.EndpointID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.Event{}, apperrors.NewNotFound("endpoint", map[string]any{"endpoint_id": in.EndpointID})
		}
		return domain.Event{}, err
	}
	if !cfg.Enabled {
		return domain.Event{}, apperrors.NewForbidden("endpoint disabled")
	}

	correlationID := strings.TrimSpace(in.CorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	ev := domain.Event{
		ID:            uuid.NewString(),
		EndpointID:    cfg.ID,
		CorrelationID: correlationID,
		ReceivedAt:    s.now().UTC(),
		Payload:       append([]byte(nil), in.Body...),
		SourceIP:      in.SourceIP,
	}
	if err := s.queue.Enqueue(ctx, queue.NewWorkItem(ev)); err != nil {
		return domain.Event{}, apperrors.NewUnavailable("queue unavailable", err)
	}
	return ev, nil
}
