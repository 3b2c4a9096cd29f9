package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"orchestrion/internal/domain/models"
	"orchestrion/internal/domain/repositories"
)

// Pump multiplexes an Emitter's live fan-out queue with on-demand log
// replay onto a single outbound sequence, guaranteeing client-observed
// event ids are strictly increasing from startOffset+1 onward (§4.3.2).
// Ids can be skipped: a gap the log cannot fill is accepted, and a replayed
// delta batch is forwarded as one event carrying its last segment's id.
type Pump struct {
	sessionID string
	storage   repositories.Storage
	logger    *slog.Logger
	cfg       Config

	queue       <-chan Signal
	lastEmitted int64
	closed      bool
}

// NewPump builds a pump over emitter's queue, starting replay from
// startOffset (the last event id the client has already seen, 0 for a
// fresh stream).
func NewPump(sessionID string, queue <-chan Signal, storage repositories.Storage, logger *slog.Logger, cfg Config, startOffset int64) *Pump {
	return &Pump{
		sessionID:   sessionID,
		storage:     storage,
		logger:      logger,
		cfg:         cfg,
		queue:       queue,
		lastEmitted: startOffset,
	}
}

// Run drives the pump until the stream terminates, sending each forwarded
// event to out. out is closed on return.
func (p *Pump) Run(ctx context.Context, out chan<- models.WireEvent) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-p.queue:
			switch sig.Kind {
			case SignalDone:
				p.closed = true
				p.drainQueueAndExit(ctx, out)
				return
			case SignalEvent:
				p.handleEvent(ctx, sig.Event, out)
			}
		case <-time.After(p.cfg.PollInterval):
			p.drainFrom(ctx, p.lastEmitted+1, out)
		}
	}
}

// drainQueueAndExit handles any signals already buffered ahead of Done, then
// pages the log once more to catch anything the emitter persisted but had
// not yet enqueued, per "continue loop so any pending overflow can be
// drained" and the closed&&queue-empty exit condition.
func (p *Pump) drainQueueAndExit(ctx context.Context, out chan<- models.WireEvent) {
	for {
		select {
		case sig := <-p.queue:
			if sig.Kind == SignalEvent {
				p.handleEvent(ctx, sig.Event, out)
			}
			continue
		default:
		}
		break
	}
	p.drainFrom(ctx, p.lastEmitted+1, out)
}

func (p *Pump) handleEvent(ctx context.Context, e models.WireEvent, out chan<- models.WireEvent) {
	switch {
	case e.ID > p.lastEmitted+1:
		p.drainUntil(ctx, p.lastEmitted+1, e.ID-1, out)
		// Whether or not the gap fully drained, forward e itself and adopt
		// its id as the new watermark — storage will catch up on a later
		// timeout poll if drain_until could not.
		out <- e
		p.lastEmitted = e.ID
	case e.ID <= p.lastEmitted:
		// duplicate from a persist-then-enqueue race; drop.
	default:
		out <- e
		p.lastEmitted = e.ID
	}
}

// drainUntil pages load_stream_events to forward records in [from, to],
// per §4.3.2. Breaks (accepting the gap) if a page comes back empty.
func (p *Pump) drainUntil(ctx context.Context, from, to int64, out chan<- models.WireEvent) {
	after := from - 1
	for after < to {
		records, err := p.storage.LoadStreamEvents(ctx, p.sessionID, after, p.cfg.FetchLimit)
		if err != nil {
			p.logger.Warn("stream pump: drain_until load failed", "session_id", p.sessionID, "error", err)
			return
		}
		if len(records) == 0 {
			return
		}
		for _, rec := range records {
			if rec.EventID > to {
				return
			}
			p.forwardRecord(rec, out)
			after = rec.EventID
		}
	}
}

// drainFrom is the timeout-path replay: page everything after last_emitted.
func (p *Pump) drainFrom(ctx context.Context, from int64, out chan<- models.WireEvent) {
	after := from - 1
	for {
		records, err := p.storage.LoadStreamEvents(ctx, p.sessionID, after, p.cfg.FetchLimit)
		if err != nil {
			p.logger.Warn("stream pump: timeout poll failed", "session_id", p.sessionID, "error", err)
			return
		}
		if len(records) == 0 {
			return
		}
		for _, rec := range records {
			p.forwardRecord(rec, out)
			after = rec.EventID
		}
		if len(records) < p.cfg.FetchLimit {
			return
		}
	}
}

// forwardRecord converts a persisted record back into a wire event,
// applying delta-record replay filtering for llm_output_delta (§4.3.2
// "Delta record replay").
func (p *Pump) forwardRecord(rec models.StreamEventRecord, out chan<- models.WireEvent) {
	if rec.EventID <= p.lastEmitted {
		return
	}

	if rec.EventType == models.EventLLMOutputDelta {
		var batch models.StreamDeltaBatch
		if err := json.Unmarshal(rec.Payload, &batch); err != nil {
			p.logger.Warn("stream pump: malformed delta batch", "session_id", p.sessionID, "error", err)
			return
		}
		filtered, ok := batch.FilterFrom(p.lastEmitted)
		if !ok {
			p.lastEmitted = rec.EventID
			return
		}
		delta, reasoning, round := filtered.Concat()
		payload := map[string]interface{}{"delta": delta, "reasoning_delta": reasoning, "round": round}
		out <- models.WireEvent{
			Event:     rec.EventType,
			ID:        filtered.EventIDEnd,
			Timestamp: rec.Timestamp,
			Data:      models.WireEventData{SessionID: rec.SessionID, Timestamp: rec.Timestamp, Data: payload},
		}
		p.lastEmitted = filtered.EventIDEnd
		return
	}

	var payload interface{}
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		p.logger.Warn("stream pump: malformed event payload", "session_id", p.sessionID, "event_id", rec.EventID, "error", err)
		return
	}
	out <- models.WireEvent{
		Event:     rec.EventType,
		ID:        rec.EventID,
		Timestamp: rec.Timestamp,
		Data:      models.WireEventData{SessionID: rec.SessionID, Timestamp: rec.Timestamp, Data: payload},
	}
	p.lastEmitted = rec.EventID
}
