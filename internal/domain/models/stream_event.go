package models

import (
	"encoding/json"
	"time"
)

// Persistable event types, per the wire envelope contract. llm_output_delta
// is persisted as a coalesced StreamDeltaSegment batch rather than per-token.
const (
	EventLLMRequest       = "llm_request"
	EventLLMOutputDelta   = "llm_output_delta"
	EventLLMOutput        = "llm_output"
	EventTokenUsage       = "token_usage"
	EventQuotaUsage       = "quota_usage"
	EventToolCall         = "tool_call"
	EventToolResult       = "tool_result"
	EventLLMStreamRetry   = "llm_stream_retry"
	EventProgress         = "progress"
	EventKnowledgeRequest = "knowledge_request"
	EventCompaction       = "compaction"
	EventPlanUpdate       = "plan_update"
	EventQuestionPanel    = "question_panel"
	EventContextUsage     = "context_usage"
	EventFinal            = "final"
	EventError            = "error"
	EventA2UI             = "a2ui"
)

// persistableEventTypes is the set of event types the emitter writes to the
// stream event log. llm_output_delta is included here too: it is always
// routed through the delta buffer first, which persists it as a
// StreamDeltaSegment batch once a flush threshold is hit.
var persistableEventTypes = map[string]bool{
	EventProgress:         true,
	EventLLMRequest:       true,
	EventLLMResponse:      true,
	EventKnowledgeRequest: true,
	EventCompaction:       true,
	EventToolCall:         true,
	EventToolResult:       true,
	EventPlanUpdate:       true,
	EventQuestionPanel:    true,
	EventLLMOutputDelta:   true,
	EventLLMOutput:        true,
	EventContextUsage:     true,
	EventQuotaUsage:       true,
	EventFinal:            true,
	EventError:            true,
	EventA2UI:             true,
}

// EventLLMResponse exists only so the "llm_response" name from the spec's
// component table (§2) has a symbol; it is not separately emitted — llm
// invoker success is reported as EventLLMOutput + EventTokenUsage.
const EventLLMResponse = "llm_response"

// IsPersistable reports whether an event type belongs to the persistable set
// described in the emitter's step 4.
func IsPersistable(eventType string) bool {
	return persistableEventTypes[eventType]
}

// StreamEventRecord is an append-only row in the stream event log. EventID is
// strictly increasing per SessionID; readers must tolerate gaps introduced by
// best-effort TTL sweep deletion, never gaps introduced by writers.
type StreamEventRecord struct {
	SessionID string          `db:"session_id"`
	UserID    string          `db:"user_id"`
	EventID   int64           `db:"event_id"`
	EventType string          `db:"event_type"`
	Payload   json.RawMessage `db:"payload"`
	Timestamp time.Time       `db:"timestamp"`
}

// StreamDeltaSegment is one coalesced unit inside a persisted
// llm_output_delta record. Segment EventIDs are strictly increasing and equal
// the IDs that would have been allocated had each delta been emitted
// individually.
type StreamDeltaSegment struct {
	EventID        int64   `json:"event_id"`
	Delta          *string `json:"delta,omitempty"`
	ReasoningDelta *string `json:"reasoning_delta,omitempty"`
	Round          *int    `json:"round,omitempty"`
}

// StreamDeltaBatch is the payload shape of a persisted llm_output_delta
// record: a run of segments plus the inclusive ID range they span.
type StreamDeltaBatch struct {
	Segments     []StreamDeltaSegment `json:"segments"`
	EventIDStart int64                `json:"event_id_start"`
	EventIDEnd   int64                `json:"event_id_end"`
}

// FilterFrom returns the subset of segments with EventID > after, renumbering
// EventIDStart/EventIDEnd to the surviving range. Used by the stream pump
// when replaying a delta record for a client resuming after a given id — see
// §4.3.2 "Delta record replay".
func (b StreamDeltaBatch) FilterFrom(after int64) (StreamDeltaBatch, bool) {
	var kept []StreamDeltaSegment
	for _, seg := range b.Segments {
		if seg.EventID > after {
			kept = append(kept, seg)
		}
	}
	if len(kept) == 0 {
		return StreamDeltaBatch{}, false
	}
	return StreamDeltaBatch{
		Segments:     kept,
		EventIDStart: kept[0].EventID,
		EventIDEnd:   kept[len(kept)-1].EventID,
	}, true
}

// Concat reassembles the surviving delta/reasoning text and the last
// non-nil round, for property 3 ("delta coalescing preserves content").
func (b StreamDeltaBatch) Concat() (delta string, reasoning string, round *int) {
	for _, seg := range b.Segments {
		if seg.Delta != nil {
			delta += *seg.Delta
		}
		if seg.ReasoningDelta != nil {
			reasoning += *seg.ReasoningDelta
		}
		if seg.Round != nil {
			round = seg.Round
		}
	}
	return
}

// WireEvent is the envelope shape sent to clients, per §6.2.
type WireEvent struct {
	Event     string        `json:"event"`
	Data      WireEventData `json:"data"`
	ID        int64         `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
}

// WireEventData is the inner {session_id, timestamp, data} wrapper.
type WireEventData struct {
	SessionID string      `json:"session_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}
