package stream

import "orchestrion/internal/domain/models"

// SignalKind distinguishes a delivered event from the end-of-stream marker
// on the bounded fan-out queue (§4.3.1 "queue (bounded MPSC of
// Signal::{Event,Done})").
type SignalKind int

const (
	SignalEvent SignalKind = iota
	SignalDone
)

// Signal is one item on a request's fan-out queue.
type Signal struct {
	Kind  SignalKind
	Event models.WireEvent
}
