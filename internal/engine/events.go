package engine

import "time"

// EventKind enumerates everything the engine reports to its host.
type EventKind int

const (
	EventBeat EventKind = iota
	EventDownbeat
	EventMeasure
	EventTempoChange
	EventGestureStarted
	EventGestureCompleted
	EventGestureDropped
)

func (k EventKind) String() string {
	switch k {
	case EventBeat:
		return "beat"
	case EventDownbeat:
		return "downbeat"
	case EventMeasure:
		return "measure"
	case EventTempoChange:
		return "tempoChange"
	case EventGestureStarted:
		return "gestureStarted"
	case EventGestureCompleted:
		return "gestureCompleted"
	case EventGestureDropped:
		return "gestureDropped"
	}
	return "unknown"
}

// Event is one observable occurrence, returned in deterministic order from
// Step rather than pushed through callbacks.
type Event struct {
	Kind    EventKind
	At      time.Time
	Marker  string
	Gesture string
	Reason  string
	OldBPM  float64
	NewBPM  float64
}
