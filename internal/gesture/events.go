package gesture

import "time"

// EventKind enumerates gesture lifecycle events.
type EventKind int

const (
	// EventStarted fires when a queued request crosses its boundary and
	// becomes an active instance.
	EventStarted EventKind = iota
	// EventCompleted fires when an instance finishes, naturally or by being
	// superseded past its protection floor.
	EventCompleted
	// EventDropped fires when a request or instance is discarded before
	// completion.
	EventDropped
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "gestureStarted"
	case EventCompleted:
		return "gestureCompleted"
	case EventDropped:
		return "gestureDropped"
	}
	return "unknown"
}

// DropReason says why a Dropped event happened.
type DropReason string

const (
	DropOverflow  DropReason = "queue-overflow"
	DropCancelled DropReason = "cancelled"
)

// Event is one lifecycle transition returned from Advance. Events are
// returned as an ordered list rather than delivered through callbacks so
// hosts observe them deterministically.
type Event struct {
	Kind    EventKind
	Gesture string
	Handle  Handle
	Reason  DropReason
	At      time.Time
}
