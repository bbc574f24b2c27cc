package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/alertbridge/internal/domain"
	"github.com/spec-kit/alertbridge/internal/maintenance"
	"github.com/spec-kit/alertbridge/internal/repository"
	apperrors "github.com/spec-kit/alertbridge/pkg/util/errorutil"
)

// MaintenanceService exposes the global maintenance switch to operators.
type MaintenanceService struct {
	flag   maintenance.FlagStore
	logger *zap.Logger
}

func NewMaintenanceService(flag maintenance.FlagStore, logger *zap.Logger) *MaintenanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaintenanceService{flag: flag, logger: logger}
}

// Enabled reads the flag.
func (s *MaintenanceService) Enabled(ctx context.Context) (bool, error) {
	on, err := s.flag.Enabled(ctx)
	if err != nil {
		return false, apperrors.NewUnavailable("maintenance flag unavailable", err)
	}
	return on, nil
}

// SetEnabled flips the flag. Events already being processed keep their snapshot.
func (s *MaintenanceService) SetEnabled(ctx context.Context, enabled bool) error {
	if err := s.flag.SetEnabled(ctx, enabled); err != nil {
		return apperrors.NewUnavailable("maintenance flag unavailable", err)
	}
	s.logger.Warn("global maintenance changed", zap.Bool("enabled", enabled))
	return nil
}

// EventLogService reads processing history.
type EventLogService struct {
	repo repository.EventLogRepository
}

func NewEventLogService(repo repository.EventLogRepository) *EventLogService {
	return &EventLogService{repo: repo}
}

// Prune deletes entries older than retention, counted back from now.
func (s *EventLogService) Prune(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	n, err := s.repo.DeleteOlderThan(ctx, now.Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("prune event log: %w", err)
	}
	return n, nil
}

// ByCorrelation returns every entry recorded for a correlation id, oldest first.
func (s *EventLogService) ByCorrelation(ctx context.Context, correlationID string) ([]domain.EventLog, error) {
	entries, err := s.repo.ListByCorrelation(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("list event log: %w", err)
	}
	if len(entries) == 0 {
		return nil, apperrors.NewNotFound("event log", map[string]any{"correlation_id": correlationID})
	}
	return entries, nil
}
