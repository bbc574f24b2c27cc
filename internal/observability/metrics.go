package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	outcomeCount map[string]int64
	processing   map[string]time.Duration
}

// Snapshot is a copy of the counters at one instant.
type Snapshot struct {
	Requests map[string]int64 `json:"requests"`
	Errors   map[string]int64 `json:"errors"`
	Outcomes map[string]int64 `json:"outcomes"`
	// ProcessingSeconds is the cumulative processing time per outcome.
	ProcessingSeconds map[string]float64 `json:"processing_seconds"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		outcomeCount: make(map[string]int64),
		processing:   make(map[string]time.Duration),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordOutcome counts one pipeline outcome for an endpoint.
func (m *Metrics) RecordOutcome(endpointID, state string, duration time.Duration) {
	if m == nil {
		return
	}
	key := endpointID + "|" + state
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomeCount[key]++
	m.processing[key] += duration
}

// Outcomes returns the count recorded for endpointID and state.
func (m *Metrics) Outcomes(endpointID, state string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomeCount[endpointID+"|"+state]
}

// Snapshot copies all counters.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		Requests:          map[string]int64{},
		Errors:            map[string]int64{},
		Outcomes:          map[string]int64{},
		ProcessingSeconds: map[string]float64{},
	}
	if m == nil {
		return s
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.requestCount {
		s.Requests[k] = v
	}
	for k, v := range m.errorCount {
		s.Errors[k] = v
	}
	for k, v := range m.outcomeCount {
		s.Outcomes[k] = v
	}
	for k, v := range m.processing {
		s.ProcessingSeconds[k] = v.Seconds()
	}
	return s
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
