package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/alertbridge/internal/domain"
	"github.com/spec-kit/alertbridge/internal/events"
	"github.com/spec-kit/alertbridge/internal/maintenance"
	"github.com/spec-kit/alertbridge/internal/queue"
	"github.com/spec-kit/alertbridge/internal/reconcile"
	"github.com/spec-kit/alertbridge/internal/repository"
	"github.com/spec-kit/alertbridge/internal/resolver"
	"github.com/spec-kit/alertbridge/internal/retry"
	"github.com/spec-kit/alertbridge/internal/routing"
	apperrors "github.com/spec-kit/alertbridge/pkg/util/errorutil"
)

// PipelineService turns one queued work item into a terminal outcome or a
// rescheduled retry.
type PipelineService struct {
	endpoints   repository.EndpointRepository
	deadLetters repository.DeadLetterRepository
	eventLog    repository.EventLogRepository
	flag        maintenance.FlagStore
	queue       queue.Queue
	machine     *reconcile.Machine
	retries     *retry.Manager
	rules       *routing.Engine
	companies   *routing.CompanyResolver
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	now         func() time.Time
}

// PipelineDependencies bundles collaborators for the pipeline service.
type PipelineDependencies struct {
	EndpointRepo   repository.EndpointRepository
	TenantRepo     routing.TenantSource
	DeadLetterRepo repository.DeadLetterRepository
	EventLogRepo   repository.EventLogRepository
	Flag           maintenance.FlagStore
	Queue          queue.Queue
	Machine        *reconcile.Machine
	Retries        *retry.Manager
	Rules          *routing.Engine
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	// Now defaults to the wall clock.
	Now func() time.Time
}

// Outcome is the result of processing one work item.
type Outcome struct {
	State        domain.State
	Action       domain.Action
	TicketID     string
	DedupKey     string
	Reason       string
	Attempt      int
	Delay        time.Duration
	MatchedRules []string
	Class        retry.Class
	Summary      string

	next domain.RetryState
	cfg  *domain.EndpointConfig
	root *resolver.Value
}

// NewPipelineService constructs the service.
func NewPipelineService(deps PipelineDependencies) *PipelineService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	rules := deps.Rules
	if rules == nil {
		rules = routing.NewEngine()
	}
	retries := deps.Retries
	if retries == nil {
		retries = retry.NewManager()
	}
	return &PipelineService{
		endpoints:   deps.EndpointRepo,
		deadLetters: deps.DeadLetterRepo,
		eventLog:    deps.EventLogRepo,
		flag:        deps.Flag,
		queue:       deps.Queue,
		machine:     deps.Machine,
		retries:     retries,
		rules:       rules,
		companies:   routing.NewCompanyResolver(deps.TenantRepo),
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
		now:         now,
	}
}

// Process runs one attempt of an event. The returned error is non-nil only when
// a follow-up could not be persisted (retry enqueue or dead-letter record);
// the delivery must then stay unacknowledged so the queue redelivers it.
// A panic during evaluation is settled like Fail, keeping any dedup key
// computed before it.
func (s *PipelineService) Process(ctx context.Context, item queue.WorkItem) (Outcome, error) {
	start := s.now()
	key := item.Retry.DedupKey
	out, cause := s.safeProcess(ctx, item, &key)
	if cause != nil {
		out = s.unexpected(ctx, item, nil, cause)
		out.DedupKey = key.Value
		out.next.DedupKey = key
	}
	return s.finish(ctx, item, out, start)
}

func (s *PipelineService) safeProcess(ctx context.Context, item queue.WorkItem, key *domain.DedupKey) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.process(ctx, item, key), nil
}

// Fail settles an attempt that broke outside the engine, such as a recovered panic.
// It counts as an unexpected failure: retried once, then dead-lettered.
func (s *PipelineService) Fail(ctx context.Context, item queue.WorkItem, cause error) (Outcome, error) {
	start := s.now()
	return s.finish(ctx, item, s.unexpected(ctx, item, nil, cause), start)
}

// process evaluates the event. key is updated as soon as the dedup key is known.
func (s *PipelineService) process(ctx context.Context, item queue.WorkItem, key *domain.DedupKey) Outcome {
	ev := item.Event

	cfg, err := s.endpoints.GetByID(ctx, ev.EndpointID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return terminal(item, domain.StateFailed, "unknown endpoint")
		}
		return s.unexpected(ctx, item, nil, fmt.Errorf("load endpoint: %w", err))
	}

	// A retry that carries a pending call and its lease resumes that call
	// without evaluating the event again.
	if item.Retry.Action != domain.ActionNone && item.Retry.HasLease() {
		trigger := domain.TriggerOpen
		if item.Retry.Action == domain.ActionClose {
			trigger = domain.TriggerClose
		}
		res := s.machine.Run(ctx, reconcile.Input{
			Event:        ev,
			Config:       cfg,
			Trigger:      trigger,
			Key:          item.Retry.DedupKey,
			Fields:       item.Retry.Fields,
			MatchedRules: item.Retry.MatchedRules,
			Retry:        item.Retry,
		})
		out := fromResult(res, item.Retry.DedupKey.Value, item.Retry.Fields.Summary, item.Retry.MatchedRules)
		out.cfg = cfg
		return out
	}

	if !cfg.Enabled {
		return terminal(item, domain.StateFailed, "endpoint disabled")
	}

	global := false
	if s.flag != nil {
		on, err := s.flag.Enabled(ctx)
		if err != nil {
			s.logger.Warn("maintenance flag unavailable; evaluating endpoint windows only",
				zap.String("correlation_id", ev.CorrelationID), zap.Error(err))
		}
		global = on
	}
	if reason, ok := maintenance.Match(s.now(), cfg.MaintenanceWindows, global); ok {
		return terminal(item, domain.StateSuppressed, "maintenance: "+reason)
	}

	root, err := resolver.Parse(ev.Payload)
	if err != nil {
		return terminal(item, domain.StateFailed, err.Error())
	}

	value, defined := resolver.Trigger(root, cfg.TriggerField)
	trigger := reconcile.ClassifyTrigger(cfg, value, defined)
	if trigger == domain.TriggerUnknown {
		reason := fmt.Sprintf("trigger value %q matches neither open nor close values", value)
		if !defined {
			reason = "trigger field " + cfg.TriggerField + " is undefined"
		}
		out := terminal(item, domain.StateSkipped, reason)
		out.root = root
		return out
	}

	routed := s.rules.Apply(root, resolver.Fields(root, cfg.Mapping), cfg.RoutingRules)
	for _, w := range routed.Warnings {
		s.logger.Warn("routing rule skipped", zap.String("correlation_id", ev.CorrelationID),
			zap.String("endpoint_id", ev.EndpointID), zap.String("warning", w))
	}
	if routed.Drop {
		out := terminal(item, domain.StateSkipped, "dropped by routing rule")
		out.MatchedRules = routed.Matched
		out.root = root
		return out
	}

	fields := resolver.Finalize(root, cfg, routed.Fields, ev.CorrelationID)
	note, err := s.companies.Resolve(ctx, root, cfg, fields)
	if err != nil {
		s.logger.Warn("tenant mapping unavailable; using default company",
			zap.String("correlation_id", ev.CorrelationID), zap.Error(err))
	}
	matched := routed.Matched
	if note != "" {
		matched = append(matched, note)
	}

	*key = domain.NewDedupKey(cfg.ID, fields, cfg.KeyFields)
	res := s.machine.Run(ctx, reconcile.Input{
		Event:        ev,
		Config:       cfg,
		Trigger:      trigger,
		Key:          *key,
		Fields:       domain.NewTicketFields(fields, *key),
		Message:      fields.Value(domain.FieldMessage),
		MatchedRules: matched,
		Retry:        item.Retry,
	})
	out := fromResult(res, key.Value, fields.Value(domain.FieldSummary), matched)
	out.cfg = cfg
	out.root = root
	return out
}

func terminal(item queue.WorkItem, state domain.State, reason string) Outcome {
	out := Outcome{State: state, Reason: reason, Attempt: item.Retry.Attempt, DedupKey: item.Retry.DedupKey.Value}
	if state == domain.StateFailed {
		out.Class = retry.ClassTerminal
	}
	return out
}

// unexpected applies the unexpected-failure policy of the endpoint, or the
// default policy when the endpoint could not be loaded.
func (s *PipelineService) unexpected(ctx context.Context, item queue.WorkItem, cfg *domain.EndpointConfig, cause error) Outcome {
	if cfg == nil {
		if loaded, err := s.endpoints.GetByID(ctx, item.Event.EndpointID); err == nil {
			cfg = loaded
		} else {
			cfg = &domain.EndpointConfig{ID: item.Event.EndpointID}
			cfg.ApplyDefaults()
		}
	}
	state := item.Retry
	state.LeaseKey, state.LeaseToken, state.Action, state.Note = "", "", domain.ActionNone, ""
	d := s.retries.Decide(cfg.RetryPolicy, state, cause)
	out := Outcome{Attempt: d.State.Attempt, Class: d.Class, Reason: cause.Error(), DedupKey: item.Retry.DedupKey.Value}
	switch d.Outcome {
	case retry.Retry:
		out.State = domain.StateRetrying
		out.Delay = d.Delay
	case retry.Failed:
		out.State = domain.StateFailed
	default:
		out.State = domain.StateDeadLetter
	}
	out.next = d.State
	out.cfg = cfg
	return out
}

// finish schedules follow-ups, records the outcome and publishes it.
func (s *PipelineService) finish(ctx context.Context, item queue.WorkItem, out Outcome, start time.Time) (Outcome, error) {
	ev := item.Event
	switch out.State {
	case domain.StateRetrying:
		next := queue.RetryItem(ev, out.next, out.Delay)
		if err := s.queue.Enqueue(ctx, next); err != nil {
			return out, fmt.Errorf("enqueue retry: %w", err)
		}
	case domain.StateDeadLetter:
		dl := &domain.DeadLetter{
			ID:             ev.ID,
			Event:          ev,
			DedupKey:       out.DedupKey,
			LastError:      out.Reason,
			AttemptCount:   out.next.Attempt,
			DeadLetteredAt: s.now().UTC(),
		}
		inserted, err := s.deadLetters.Record(ctx, dl)
		if err != nil {
			return out, fmt.Errorf("record dead letter: %w", err)
		}
		if inserted {
			s.publish(ctx, events.Event{
				Type:          events.EventAlertDeadLettered,
				CorrelationID: ev.CorrelationID,
				EndpointID:    ev.EndpointID,
				Payload: events.DeadLetterPayload{
					DeadLetterID: dl.ID,
					LastError:    dl.LastError,
					AttemptCount: dl.AttemptCount,
				},
			})
		}
	}

	elapsed := s.now().Sub(start)
	masked := ""
	if out.root != nil {
		masked = resolver.MaskedJSON(out.root)
	}
	if out.State == domain.StateOpen && out.Action == domain.ActionCreate {
		s.publishCreated(ctx, item, out, masked)
	}
	s.record(ctx, item, out, masked, elapsed)
	s.publish(ctx, events.Event{
		Type:          events.EventAlertProcessed,
		TicketID:      out.TicketID,
		CorrelationID: ev.CorrelationID,
		EndpointID:    ev.EndpointID,
		Payload: events.AlertProcessedPayload{
			EventID:  ev.ID,
			State:    out.State,
			Action:   out.Action,
			DedupKey: out.DedupKey,
			Attempt:  out.Attempt,
			Reason:   out.Reason,
			Duration: elapsed,
		},
	})
	s.log(item, out, elapsed)
	return out, nil
}

func (s *PipelineService) publishCreated(ctx context.Context, item queue.WorkItem, out Outcome, masked string) {
	if out.cfg == nil || !out.cfg.Annotation.Enabled {
		return
	}
	if masked == "" {
		// Resumed retries skip parsing; parse here so the annotator sees the alert.
		if root, err := resolver.Parse(item.Event.Payload); err == nil {
			masked = resolver.MaskedJSON(root)
		}
	}
	s.publish(ctx, events.Event{
		Type:          events.EventTicketCreated,
		TicketID:      out.TicketID,
		CorrelationID: item.Event.CorrelationID,
		EndpointID:    item.Event.EndpointID,
		Payload: events.TicketCreatedPayload{
			Summary:       out.Summary,
			DedupKey:      out.DedupKey,
			Annotation:    out.cfg.Annotation,
			MaskedPayload: masked,
		},
	})
}

func (s *PipelineService) record(ctx context.Context, item queue.WorkItem, out Outcome, masked string, elapsed time.Duration) {
	if s.eventLog == nil {
		return
	}
	entry := &domain.EventLog{
		EventID:        item.Event.ID,
		CorrelationID:  item.Event.CorrelationID,
		EndpointID:     item.Event.EndpointID,
		State:          out.State,
		Action:         out.Action,
		DedupKey:       out.DedupKey,
		MatchedRules:   out.MatchedRules,
		Attempts:       out.Attempt,
		Payload:        masked,
		ProcessingTime: elapsed,
	}
	if out.TicketID != "" {
		id := out.TicketID
		entry.TicketID = &id
	}
	if out.Reason != "" {
		reason := out.Reason
		entry.ErrorMessage = &reason
	}
	if err := s.eventLog.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to write event log", zap.String("correlation_id", item.Event.CorrelationID), zap.Error(err))
	}
}

func (s *PipelineService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func (s *PipelineService) log(item queue.WorkItem, out Outcome, elapsed time.Duration) {
	level := zapcore.InfoLevel
	switch out.State {
	case domain.StateFailed, domain.StateDeadLetter:
		level = zapcore.ErrorLevel
	case domain.StateRetrying:
		level = zapcore.WarnLevel
	}
	fields := []zap.Field{
		zap.String("event_id", item.Event.ID),
		zap.String("correlation_id", item.Event.CorrelationID),
		zap.String("endpoint_id", item.Event.EndpointID),
		zap.String("dedup_key", out.DedupKey),
		zap.String("state", string(out.State)),
		zap.Int("attempt", out.Attempt),
		zap.Duration("duration", elapsed),
	}
	if out.Action != domain.ActionNone {
		fields = append(fields, zap.String("action", string(out.Action)))
	}
	if out.TicketID != "" {
		fields = append(fields, zap.String("ticket_id", out.TicketID))
	}
	if out.Reason != "" {
		fields = append(fields, zap.String("reason", out.Reason))
	}
	if out.State == domain.StateRetrying {
		fields = append(fields, zap.Duration("retry_in", out.Delay), zap.String("class", out.Class.String()))
	}
	if len(out.MatchedRules) > 0 {
		fields = append(fields, zap.Strings("matched_rules", out.MatchedRules))
	}
	s.logger.Log(level, "alert processed", fields...)
}

func fromResult(res reconcile.Result, key, summary string, matched []string) Outcome {
	return Outcome{
		State:        res.State,
		Action:       res.Action,
		TicketID:     res.TicketID,
		DedupKey:     key,
		Reason:       res.Reason,
		Attempt:      res.Retry.Attempt,
		Delay:        res.Delay,
		MatchedRules: matched,
		Class:        res.Class,
		Summary:      summary,
		next:         res.Retry,
	}
}
