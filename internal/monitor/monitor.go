// Package monitor is the engine's observation sink: a shared,
// internally-synchronized recorder for emitted events and the session
// cancellation flag (§5 "is_cancelled"). The teacher has no metrics layer of
// its own; this follows the constructor-injected Prometheus sink pattern
// used across the rest of the pack (goadesign-goa-ai, haasonsaas-nexus,
// hieuntg81-alfred-ai all wire prometheus/client_golang the same way).
package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink is the monitor interface the emitter and round loop depend on.
// Insertions are fire-and-forget (§5 "record insertions are fire-and-forget").
type Sink interface {
	RecordEvent(sessionID, eventType string)
	IsCancelled(sessionID string) bool
	MarkCancelled(sessionID string)
	ClearCancelled(sessionID string)
}

// PromSink is the Prometheus-backed Sink implementation.
type PromSink struct {
	eventsTotal *prometheus.CounterVec

	mu        sync.RWMutex
	cancelled map[string]bool
}

func NewPromSink(registerer prometheus.Registerer) *PromSink {
	s := &PromSink{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrion_stream_events_total",
			Help: "Count of stream events recorded by type.",
		}, []string{"event_type"}),
		cancelled: make(map[string]bool),
	}
	if registerer != nil {
		registerer.MustRegister(s.eventsTotal)
	}
	return s
}

func (s *PromSink) RecordEvent(sessionID, eventType string) {
	s.eventsTotal.WithLabelValues(eventType).Inc()
}

func (s *PromSink) IsCancelled(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancelled[sessionID]
}

func (s *PromSink) MarkCancelled(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled[sessionID] = true
}

func (s *PromSink) ClearCancelled(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancelled, sessionID)
}

var _ Sink = (*PromSink)(nil)
