package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/alertbridge/internal/annotate"
	"github.com/spec-kit/alertbridge/internal/events"
	"github.com/spec-kit/alertbridge/internal/lock"
	"github.com/spec-kit/alertbridge/internal/ticketing"
)

// AnnotationService appends an automated analysis note to newly created
// tickets. It is best effort: failures are logged and never reach the pipeline.
type AnnotationService struct {
	dispatcher events.Dispatcher
	annotator  annotate.Annotator
	adapter    ticketing.Adapter
	locker     lock.Locker
	timeout    time.Duration
	lockWait   time.Duration
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// AnnotationDependencies bundles collaborators for the annotation service.
type AnnotationDependencies struct {
	Dispatcher events.Dispatcher
	Annotator  annotate.Annotator
	Adapter    ticketing.Adapter
	Locker     lock.Locker
	Timeout    time.Duration
	LockWait   time.Duration
	Logger     *zap.Logger
}

// NewAnnotationService constructs the service.
func NewAnnotationService(deps AnnotationDependencies) *AnnotationService {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &AnnotationService{
		dispatcher: deps.Dispatcher,
		annotator:  deps.Annotator,
		adapter:    deps.Adapter,
		locker:     deps.Locker,
		timeout:    timeout,
		lockWait:   deps.LockWait,
		logger:     deps.Logger,
	}
}

// RegisterHandlers subscribes to ticket creation.
func (a *AnnotationService) RegisterHandlers() {
	if a.dispatcher == nil || a.annotator == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventTicketCreated, a.handleTicketCreated)
}

// Wait blocks until in-flight annotations finish.
func (a *AnnotationService) Wait() {
	a.wg.Wait()
}

func (a *AnnotationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok || !payload.Annotation.Enabled || event.TicketID == "" {
		return nil
	}
	// Fire and forget: the worker moves on while the annotator runs.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		if err := a.annotate(bg, event, payload); err != nil {
			a.logger.Warn("annotation failed",
				zap.String("correlation_id", event.CorrelationID),
				zap.String("ticket_id", event.TicketID),
				zap.Error(err))
		}
	}()
	return nil
}

func (a *AnnotationService) annotate(ctx context.Context, event events.Event, payload events.TicketCreatedPayload) error {
	analysis, err := a.annotator.Analyze(ctx, payload.MaskedPayload, annotate.Instructions(payload.Annotation.Instructions))
	if err != nil {
		return err
	}
	if analysis == "" {
		return errors.New("annotator returned no text")
	}

	// The note is a ticket mutation, so it takes the dedup key lease like any other.
	if a.locker != nil && payload.DedupKey != "" {
		lease, err := a.locker.Acquire(ctx, payload.DedupKey, a.timeout, a.lockWait)
		if err != nil {
			return err
		}
		defer func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = a.locker.Release(rctx, lease)
		}()
	}
	if err := a.adapter.AppendNote(ctx, event.TicketID, annotate.Note(analysis)); err != nil {
		return err
	}
	a.logger.Info("annotation added",
		zap.String("correlation_id", event.CorrelationID),
		zap.String("ticket_id", event.TicketID))
	return nil
}
