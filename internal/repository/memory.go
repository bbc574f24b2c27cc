package repository

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/spec-kit/alertbridge/internal/domain"
	apperrors "github.com/spec-kit/alertbridge/pkg/util/errorutil"
)

// MemoryEndpointRepository keeps endpoint configurations in process, typically
// loaded from an endpoint file.
type MemoryEndpointRepository struct {
	mu        sync.RWMutex
	endpoints map[string]*domain.EndpointConfig
}

// NewMemoryEndpointRepository seeds the repository with cfgs.
func NewMemoryEndpointRepository(cfgs ...domain.EndpointConfig) *MemoryEndpointRepository {
	r := &MemoryEndpointRepository{endpoints: make(map[string]*domain.EndpointConfig, len(cfgs))}
	for i := range cfgs {
		r.endpoints[cfgs[i].ID] = cfgs[i].Clone()
	}
	return r
}

func (r *MemoryEndpointRepository) GetByID(_ context.Context, id string) (*domain.EndpointConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.endpoints[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cfg.Clone(), nil
}

func (r *MemoryEndpointRepository) List(_ context.Context) ([]domain.EndpointConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.EndpointConfig, 0, len(r.endpoints))
	for _, cfg := range r.endpoints {
		out = append(out, *cfg.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryEndpointRepository) Upsert(_ context.Context, cfg *domain.EndpointConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[cfg.ID] = cfg.Clone()
	return nil
}

// MemoryTenantMappingRepository keeps tenant mappings in process.
type MemoryTenantMappingRepository struct {
	mu       sync.RWMutex
	mappings []domain.TenantMapping
}

// NewMemoryTenantMappingRepository seeds the repository with mappings.
func NewMemoryTenantMappingRepository(mappings ...domain.TenantMapping) *MemoryTenantMappingRepository {
	r := &MemoryTenantMappingRepository{}
	for i := range mappings {
		m := mappings[i]
		_ = r.Upsert(context.Background(), &m)
	}
	return r
}

func (r *MemoryTenantMappingRepository) ListTenantMappings(_ context.Context) ([]domain.TenantMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.TenantMapping(nil), r.mappings...), nil
}

func (r *MemoryTenantMappingRepository) Upsert(_ context.Context, mapping *domain.TenantMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.mappings {
		if r.mappings[i].TenantValue == mapping.TenantValue {
			mapping.ID = r.mappings[i].ID
			r.mappings[i] = *mapping
			return nil
		}
	}
	if mapping.ID == "" {
		mapping.ID = strconv.Itoa(len(r.mappings) + 1)
	}
	r.mappings = append(r.mappings, *mapping)
	sort.Slice(r.mappings, func(i, j int) bool { return r.mappings[i].TenantValue < r.mappings[j].TenantValue })
	return nil
}

// MemoryDeadLetterRepository keeps dead letters in process.
type MemoryDeadLetterRepository struct {
	mu      sync.RWMutex
	letters map[string]*domain.DeadLetter
}

// NewMemoryDeadLetterRepository returns an empty repository.
func NewMemoryDeadLetterRepository() *MemoryDeadLetterRepository {
	return &MemoryDeadLetterRepository{letters: make(map[string]*domain.DeadLetter)}
}

func (r *MemoryDeadLetterRepository) Record(_ context.Context, dl *domain.DeadLetter) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.letters[dl.ID]; ok {
		return false, nil
	}
	cp := *dl
	r.letters[dl.ID] = &cp
	return true, nil
}

func (r *MemoryDeadLetterRepository) GetByID(_ context.Context, id string) (*domain.DeadLetter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dl, ok := r.letters[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *dl
	return &cp, nil
}

func (r *MemoryDeadLetterRepository) List(_ context.Context, filter DeadLetterFilter) ([]domain.DeadLetter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.DeadLetter
	for _, dl := range r.letters {
		if filter.EndpointID != "" && dl.Event.EndpointID != filter.EndpointID {
			continue
		}
		if !filter.IncludeReplayed && dl.ReplayedAt != nil {
			continue
		}
		out = append(out, *dl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeadLetteredAt.After(out[j].DeadLetteredAt) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryDeadLetterRepository) MarkReplayed(_ context.Context, id, replayEventID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	dl, ok := r.letters[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if dl.ReplayedAt != nil {
		return ErrAlreadyReplayed
	}
	dl.ReplayedAt = &at
	dl.ReplayEventID = &replayEventID
	return nil
}

func (r *MemoryDeadLetterRepository) ClearReplay(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if dl, ok := r.letters[id]; ok {
		dl.ReplayedAt = nil
		dl.ReplayEventID = nil
	}
	return nil
}

// MemoryEventLogRepository keeps the event log in process, bounded to the newest entries.
type MemoryEventLogRepository struct {
	mu      sync.RWMutex
	entries []domain.EventLog
	limit   int
	seq     int
}

// NewMemoryEventLogRepository keeps at most limit entries; limit <= 0 keeps everything.
func NewMemoryEventLogRepository(limit int) *MemoryEventLogRepository {
	return &MemoryEventLogRepository{limit: limit}
}

func (r *MemoryEventLogRepository) Append(_ context.Context, entry *domain.EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	entry.ID = strconv.Itoa(r.seq)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.entries = append(r.entries, *entry)
	if r.limit > 0 && len(r.entries) > r.limit {
		r.entries = append([]domain.EventLog(nil), r.entries[len(r.entries)-r.limit:]...)
	}
	return nil
}

func (r *MemoryEventLogRepository) ListByCorrelation(_ context.Context, correlationID string) ([]domain.EventLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.EventLog
	for _, e := range r.entries {
		if e.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *MemoryEventLogRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.CreatedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, e)
	}
	deleted := int64(len(r.entries) - len(kept))
	r.entries = kept
	return deleted, nil
}

// Len reports the number of retained entries.
func (r *MemoryEventLogRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
