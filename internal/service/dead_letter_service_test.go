package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/alertbridge/internal/domain"
	"github.com/spec-kit/alertbridge/internal/events"
	"github.com/spec-kit/alertbridge/internal/repository"
	apperrors "github.com/spec-kit/alertbridge/pkg/util/errorutil"
)

func seedDeadLetter(t *testing.T, repo repository.DeadLetterRepository) *domain.DeadLetter {
	t.Helper()
	dl := &domain.DeadLetter{
		ID:             "evt-1",
		Event:          domain.Event{ID: "evt-1", EndpointID: "uptime", CorrelationID: "corr-1", Payload: []byte(`{"a":1}`)},
		LastError:      "create: status 503: Service Unavailable",
		AttemptCount:   5,
		DeadLetteredAt: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}
	_, err := repo.Record(context.Background(), dl)
	require.NoError(t, err)
	return dl
}

func TestReplaySubmitsFreshEventWithSameCorrelation(t *testing.T) {
	repo := repository.NewMemoryDeadLetterRepository()
	dl := seedDeadLetter(t, repo)
	q := &recordingQueue{}
	dispatcher := events.NewInMemoryDispatcher()
	var replayed []events.Event
	dispatcher.Subscribe(events.EventDeadLetterReplayed, func(_ context.Context, e events.Event) error {
		replayed = append(replayed, e)
		return nil
	})
	svc := NewDeadLetterService(repo, q, dispatcher, zap.NewNop())

	ev, err := svc.Replay(context.Background(), dl.ID)
	require.NoError(t, err)
	assert.NotEqual(t, dl.Event.ID, ev.ID)
	assert.Equal(t, "corr-1", ev.CorrelationID)
	assert.Equal(t, dl.Event.Payload, ev.Payload)

	item, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, ev.ID, item.Event.ID)
	assert.False(t, item.IsRetry())

	got, err := repo.GetByID(context.Background(), dl.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ReplayEventID)
	assert.Equal(t, ev.ID, *got.ReplayEventID)
	require.Len(t, replayed, 1)

	_, err = svc.Replay(context.Background(), dl.ID)
	var de *apperrors.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusConflict, de.HTTPStatus)
}

func TestReplayUnknownDeadLetter(t *testing.T) {
	svc := NewDeadLetterService(repository.NewMemoryDeadLetterRepository(), &recordingQueue{}, nil, zap.NewNop())
	_, err := svc.Replay(context.Background(), "missing")
	var de *apperrors.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusNotFound, de.HTTPStatus)
}

func TestReplayQueueFailureKeepsRecordReplayable(t *testing.T) {
	repo := repository.NewMemoryDeadLetterRepository()
	dl := seedDeadLetter(t, repo)
	q := &recordingQueue{err: errors.New("queue down")}
	svc := NewDeadLetterService(repo, q, nil, zap.NewNop())

	_, err := svc.Replay(context.Background(), dl.ID)
	require.Error(t, err)

	got, err := repo.GetByID(context.Background(), dl.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ReplayedAt)

	q.err = nil
	_, err = svc.Replay(context.Background(), dl.ID)
	assert.NoError(t, err)
}

func TestListDeadLettersCapsLimit(t *testing.T) {
	repo := repository.NewMemoryDeadLetterRepository()
	seedDeadLetter(t, repo)
	svc := NewDeadLetterService(repo, &recordingQueue{}, nil, zap.NewNop())
	got, err := svc.List(context.Background(), repository.DeadLetterFilter{Limit: 10000})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
