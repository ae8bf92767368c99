package gesture

import (
	"time"

	"github.com/google/uuid"
)

// Handle identifies a trigger request and the instance it becomes. Hosts use
// it to cancel queued or active gestures.
type Handle struct {
	id uuid.UUID
}

func newHandle() Handle { return Handle{id: uuid.New()} }

// ParseHandle reconstructs a handle from its string form.
func ParseHandle(s string) (Handle, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return Handle{}, err
	}
	return Handle{id: id}, nil
}

// IsZero reports whether the handle was never assigned.
func (h Handle) IsZero() bool { return h.id == uuid.Nil }

func (h Handle) String() string { return h.id.String() }

// LifecycleState tracks an instance from queue to teardown.
type LifecycleState int

const (
	StateQueued LifecycleState = iota
	StateActive
	StateCompleting
	StateDone
)

func (s LifecycleState) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateActive:
		return "active"
	case StateCompleting:
		return "completing"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Instance is a fired gesture. The scheduler owns it; the compositor reads
// it while active.
type Instance struct {
	Def       *Definition
	Handle    Handle
	StartTime time.Time
	StartBeat float64
	Progress  float64

	state           LifecycleState
	cancelRequested bool
}

// State returns the lifecycle state.
func (i *Instance) State() LifecycleState { return i.state }

// ActiveGesture is a read-only summary of a running instance for hosts and
// status endpoints.
type ActiveGesture struct {
	Name     string
	Handle   Handle
	Blend    BlendType
	Progress float64
	State    LifecycleState
}

// Summary captures the instance for external reporting.
func (i *Instance) Summary() ActiveGesture {
	return ActiveGesture{
		Name:     i.Def.Name,
		Handle:   i.Handle,
		Blend:    i.Def.Blend,
		Progress: i.Progress,
		State:    i.state,
	}
}

// Contribution evaluates the gesture's curve at its current progress.
func (i *Instance) Contribution() Contribution {
	if i.Def == nil || i.Def.Curve == nil {
		return Neutral()
	}
	return i.Def.Curve(clamp01(i.Progress))
}
