// Package stream implements the event emitter and stream pump (§4.3):
// monotonic per-session event ids, delta coalescing, best-effort TTL sweep,
// and resumable replay that merges the live fan-out queue with the
// persisted log. Grounded on the teacher's internal/service/llm/
// turn_executor.go (per-client channel fan-out, HandleReconnection catchup)
// and internal/service/llm/streaming/mstream_adapter.go (delta buffering,
// sequence remapping on resume).
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"orchestrion/internal/domain/models"
	"orchestrion/internal/domain/repositories"
	"orchestrion/internal/monitor"
)

// Config holds the emitter/pump tunables from §6.4.
type Config struct {
	QueueSize            int
	DeltaPersistChars    int
	DeltaPersistInterval time.Duration
	PollInterval         time.Duration
	FetchLimit           int
	EventTTL             time.Duration
	CleanupInterval      time.Duration
}

// Emitter is the per-request event emission state described in §4.3.1.
type Emitter struct {
	sessionID string
	userID    string

	storage repositories.Storage
	monitor monitor.Sink
	logger  *slog.Logger
	cfg     Config

	queue chan Signal

	closed        atomic.Bool
	nextEventID   atomic.Int64
	lastCleanupAt atomic.Int64 // unix seconds
	deltaBuf      *deltaBuffer
}

// New creates an Emitter. startOffset is the max persisted event id for this
// session, used when resuming so ids continue strictly increasing rather
// than restarting at 1 (§4.3.1 step 1).
func New(sessionID, userID string, storage repositories.Storage, sink monitor.Sink, logger *slog.Logger, cfg Config, startOffset int64) *Emitter {
	e := &Emitter{
		sessionID: sessionID,
		userID:    userID,
		storage:   storage,
		monitor:   sink,
		logger:    logger,
		cfg:       cfg,
		queue:     make(chan Signal, cfg.QueueSize),
		deltaBuf:  newDeltaBuffer(cfg.DeltaPersistChars, cfg.DeltaPersistInterval),
	}
	e.nextEventID.Store(startOffset)
	e.lastCleanupAt.Store(time.Now().Unix())
	return e
}

// Queue exposes the fan-out channel for the stream pump to consume.
func (e *Emitter) Queue() <-chan Signal { return e.queue }

// Emit stamps a monotonic event id, persists (or buffers) the event, and
// enqueues it for live delivery, per §4.3.1.
func (e *Emitter) Emit(ctx context.Context, eventType string, data interface{}, round models.RoundInfo) models.WireEvent {
	eventID := e.nextEventID.Add(1)

	if eventType != models.EventLLMOutputDelta {
		e.flushDeltaBuffer(ctx)
	}

	e.monitor.RecordEvent(e.sessionID, eventType)

	wireData := models.WireEventData{SessionID: e.sessionID, Timestamp: time.Now().UTC(), Data: data}
	event := models.WireEvent{Event: eventType, Data: wireData, ID: eventID, Timestamp: wireData.Timestamp}

	if eventType == models.EventLLMOutputDelta {
		seg := deltaSegmentFromPayload(eventID, data, round)
		if e.deltaBuf.push(seg) {
			e.persistDeltaBatch(ctx)
		}
	} else if models.IsPersistable(eventType) {
		e.persist(ctx, eventID, eventType, event)
	}

	e.tryEnqueue(event)
	e.maybeSweep(ctx)
	return event
}

// deltaSegmentFromPayload extracts delta/reasoning_delta/round out of the
// loosely-typed delta payload shape used by the LLM invoker.
func deltaSegmentFromPayload(eventID int64, data interface{}, round models.RoundInfo) models.StreamDeltaSegment {
	seg := models.StreamDeltaSegment{EventID: eventID, Round: round.ModelRoundInt()}
	m, ok := data.(map[string]interface{})
	if !ok {
		return seg
	}
	if v, ok := m["delta"].(string); ok {
		seg.Delta = &v
	}
	if v, ok := m["reasoning_delta"].(string); ok {
		seg.ReasoningDelta = &v
	}
	return seg
}

func (e *Emitter) flushDeltaBuffer(ctx context.Context) {
	e.persistDeltaBatch(ctx)
}

func (e *Emitter) persistDeltaBatch(ctx context.Context) {
	batch, ok := e.deltaBuf.flush()
	if !ok {
		return
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		e.logger.Warn("failed to marshal delta batch", "session_id", e.sessionID, "error", err)
		return
	}
	// Persistence runs off the hot path; failures are logged, never block
	// the streaming callback that produced the delta.
	go func(eventID int64) {
		if err := e.storage.AppendStreamEvent(ctx, e.sessionID, e.userID, eventID, models.EventLLMOutputDelta, payload); err != nil {
			e.logger.Warn("failed to persist delta batch", "session_id", e.sessionID, "error", err)
		}
	}(batch.EventIDEnd)
}

func (e *Emitter) persist(ctx context.Context, eventID int64, eventType string, event models.WireEvent) {
	payload, err := json.Marshal(event.Data.Data)
	if err != nil {
		e.logger.Warn("failed to marshal event payload", "session_id", e.sessionID, "event_type", eventType, "error", err)
		return
	}
	go func() {
		if err := e.storage.AppendStreamEvent(ctx, e.sessionID, e.userID, eventID, eventType, payload); err != nil {
			e.logger.Warn("failed to persist event", "session_id", e.sessionID, "event_type", eventType, "error", err)
		}
	}()
}

// tryEnqueue delivers the event to the live fan-out queue. On Full or
// Closed, the event is still considered delivered because it was already
// persisted — the pump will replay it from the log (§4.3.1 step 5).
func (e *Emitter) tryEnqueue(event models.WireEvent) {
	if e.closed.Load() {
		return
	}
	select {
	case e.queue <- Signal{Kind: SignalEvent, Event: event}:
	default:
	}
}

// maybeSweep opportunistically triggers the TTL sweep at most every
// CleanupInterval (§4.3.1 step 6).
func (e *Emitter) maybeSweep(ctx context.Context) {
	now := time.Now()
	last := e.lastCleanupAt.Load()
	if now.Unix()-last < int64(e.cfg.CleanupInterval.Seconds()) {
		return
	}
	if !e.lastCleanupAt.CompareAndSwap(last, now.Unix()) {
		return
	}
	cutoff := now.Add(-e.cfg.EventTTL).Unix()
	go func() {
		if _, err := e.storage.DeleteStreamEventsBefore(ctx, cutoff); err != nil {
			e.logger.Warn("stream event cleanup sweep failed", "error", err)
		}
	}()
}

// Finish force-flushes the delta buffer and signals end-of-stream.
func (e *Emitter) Finish(ctx context.Context) {
	e.flushDeltaBuffer(ctx)
	e.closed.Store(true)
	select {
	case e.queue <- Signal{Kind: SignalDone}:
	default:
	}
}
