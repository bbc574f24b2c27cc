package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/alertbridge/internal/domain"
	apperrors "github.com/spec-kit/alertbridge/pkg/util/errorutil"
)

func TestMemoryEndpointRepositoryReturnsSnapshots(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEndpointRepository(domain.EndpointConfig{ID: "a", Mapping: map[string]string{"summary": "$.x"}})

	cfg, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)
	cfg.Mapping["summary"] = "$.changed"

	again, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "$.x", again.Mapping["summary"])

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, repo.Upsert(ctx, &domain.EndpointConfig{ID: "b"}))
	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
}

func TestMemoryTenantMappingUpsert(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTenantMappingRepository(
		domain.TenantMapping{TenantValue: "b", CompanyID: "B"},
		domain.TenantMapping{TenantValue: "a", CompanyID: "A"},
	)
	require.NoError(t, repo.Upsert(ctx, &domain.TenantMapping{TenantValue: "a", CompanyID: "A2"}))

	got, err := repo.ListTenantMappings(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].TenantValue)
	assert.Equal(t, "A2", got[0].CompanyID)
}

func TestMemoryDeadLetterRecordIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryDeadLetterRepository()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	dl := &domain.DeadLetter{
		ID:             "evt-1",
		Event:          domain.Event{ID: "evt-1", EndpointID: "uptime"},
		LastError:      "503",
		AttemptCount:   3,
		DeadLetteredAt: now,
	}

	inserted, err := repo.Record(ctx, dl)
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = repo.Record(ctx, dl)
	require.NoError(t, err)
	assert.False(t, inserted)

	list, err := repo.List(ctx, DeadLetterFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.MarkReplayed(ctx, "evt-1", "evt-2", now))
	assert.ErrorIs(t, repo.MarkReplayed(ctx, "evt-1", "evt-3", now), ErrAlreadyReplayed)
	assert.ErrorIs(t, repo.MarkReplayed(ctx, "nope", "evt-3", now), apperrors.ErrNotFound)

	list, err = repo.List(ctx, DeadLetterFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	list, err = repo.List(ctx, DeadLetterFilter{IncludeReplayed: true, EndpointID: "uptime"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "evt-2", *list[0].ReplayEventID)

	require.NoError(t, repo.ClearReplay(ctx, "evt-1"))
	got, err := repo.GetByID(ctx, "evt-1")
	require.NoError(t, err)
	assert.Nil(t, got.ReplayedAt)
}

func TestMemoryEventLogBounded(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEventLogRepository(2)
	for _, cid := range []string{"c1", "c2", "c2"} {
		require.NoError(t, repo.Append(ctx, &domain.EventLog{CorrelationID: cid, State: domain.StateOpen}))
	}
	assert.Equal(t, 2, repo.Len())

	got, err := repo.ListByCorrelation(ctx, "c2")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	got, err = repo.ListByCorrelation(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryEventLogDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEventLogRepository(0)
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{cutoff.Add(-time.Hour), cutoff, cutoff.Add(-24 * time.Hour), cutoff.Add(time.Minute)} {
		require.NoError(t, repo.Append(ctx, &domain.EventLog{CorrelationID: fmt.Sprintf("c%d", i), CreatedAt: at}))
	}

	n, err := repo.DeleteOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 2, repo.Len())

	got, err := repo.ListByCorrelation(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	n, err = repo.DeleteOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
