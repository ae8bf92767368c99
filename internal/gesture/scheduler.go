package gesture

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/emotive-engine/groove/internal/rhythm"
)

// overrideFloor is the progress an active Override must reach before another
// Override may replace it or a cancellation takes effect.
const overrideFloor = 0.8

// defaultQueueBound is the per-alignment-class FIFO capacity.
const defaultQueueBound = 8

// Request asks for a gesture to fire at a musical boundary.
type Request struct {
	Gesture   string
	Alignment Alignment
}

type pending struct {
	handle Handle
	def    *Definition
	align  Alignment
}

// SchedulerConfig controls Scheduler behavior.
type SchedulerConfig struct {
	Registry   *Registry
	QueueBound int
	Log        *log.Logger
}

// Scheduler queues trigger requests and fires them when the rhythm clock
// crosses the matching boundary. All methods run on the render cadence; the
// scheduler owns every queued request and active instance.
type Scheduler struct {
	cfg SchedulerConfig

	queues  [alignmentKinds][]pending
	active  []*Instance
	backlog []Event

	prevTotalBeats float64
	started        bool
}

// NewScheduler creates a Scheduler backed by the given registry.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.QueueBound <= 0 {
		cfg.QueueBound = defaultQueueBound
	}
	return &Scheduler{cfg: cfg}
}

// Enqueue accepts a trigger request. Unknown gesture names are rejected with
// ErrUnknownGesture and change no state. When an alignment class's FIFO is
// full the oldest queued request is dropped and a Dropped event is surfaced
// on the next Advance.
func (s *Scheduler) Enqueue(req Request) (Handle, error) {
	def, ok := s.cfg.Registry.Lookup(req.Gesture)
	if !ok {
		if s.cfg.Log != nil {
			s.cfg.Log.Printf("trigger rejected: %v %q", ErrUnknownGesture, req.Gesture)
		}
		return Handle{}, fmt.Errorf("%w: %q", ErrUnknownGesture, req.Gesture)
	}

	p := pending{handle: newHandle(), def: def, align: req.Alignment}
	kind := req.Alignment.Kind
	s.queues[kind] = append(s.queues[kind], p)

	if len(s.queues[kind]) > s.cfg.QueueBound {
		dropped := s.queues[kind][0]
		s.queues[kind] = s.queues[kind][1:]
		s.backlog = append(s.backlog, Event{
			Kind:    EventDropped,
			Gesture: dropped.def.Name,
			Handle:  dropped.handle,
			Reason:  DropOverflow,
		})
		if s.cfg.Log != nil {
			s.cfg.Log.Printf("queue overflow on %s alignment, dropped %q", kind, dropped.def.Name)
		}
	}

	return p.handle, nil
}

// Cancel removes a queued request, or tears down an active instance. Active
// Blending and Effect instances cancel immediately. An active Override only
// honors cancellation once it passes its protection floor; until then the
// request is deferred, not rejected. Reports whether the handle was found.
func (s *Scheduler) Cancel(h Handle) bool {
	if h.IsZero() {
		return false
	}
	for kind := range s.queues {
		for i, p := range s.queues[kind] {
			if p.handle == h {
				s.queues[kind] = append(s.queues[kind][:i], s.queues[kind][i+1:]...)
				s.backlog = append(s.backlog, Event{
					Kind:    EventDropped,
					Gesture: p.def.Name,
					Handle:  p.handle,
					Reason:  DropCancelled,
				})
				return true
			}
		}
	}
	for _, inst := range s.active {
		if inst.Handle != h || inst.state == StateDone {
			continue
		}
		inst.cancelRequested = true
		if inst.Def.Blend != Override || inst.Progress >= overrideFloor {
			s.retire(inst)
			s.backlog = append(s.backlog, Event{
				Kind:    EventDropped,
				Gesture: inst.Def.Name,
				Handle:  inst.Handle,
				Reason:  DropCancelled,
			})
		}
		return true
	}
	return false
}

// Active returns the instances the compositor should read this frame.
func (s *Scheduler) Active() []*Instance {
	out := make([]*Instance, 0, len(s.active))
	for _, inst := range s.active {
		if inst.state == StateActive || inst.state == StateCompleting {
			out = append(out, inst)
		}
	}
	return out
}

// QueueDepth returns the number of requests waiting in one alignment class.
func (s *Scheduler) QueueDepth(kind AlignmentKind) int {
	if kind < 0 || kind >= alignmentKinds {
		return 0
	}
	return len(s.queues[kind])
}

// Advance fires due requests, progresses active instances, and returns the
// lifecycle events of this frame in deterministic order. Bounded and
// non-blocking: O(queued + active).
func (s *Scheduler) Advance(state rhythm.State, now time.Time) []Event {
	events := s.backlog
	s.backlog = nil

	if !s.started {
		s.started = true
		s.prevTotalBeats = state.TotalBeats
	}

	// Completing instances got their final frame last tick.
	s.sweepDone()

	for kind := AlignmentKind(0); kind < alignmentKinds; kind++ {
		if !s.boundaryCrossed(kind, state) {
			continue
		}
		events = s.fireQueue(kind, state, now, events)
	}

	events = s.progress(state, now, events)

	s.prevTotalBeats = state.TotalBeats
	return events
}

func (s *Scheduler) boundaryCrossed(kind AlignmentKind, state rhythm.State) bool {
	switch kind {
	case AlignImmediate:
		return len(s.queues[AlignImmediate]) > 0
	case AlignBeat:
		return state.IsBeatStart
	case AlignBar:
		return state.IsDownbeat
	case AlignPhrase:
		return state.IsPhraseStart
	case AlignSubdivision:
		// Requests carry their own grid density; checked per request.
		return len(s.queues[AlignSubdivision]) > 0
	}
	return false
}

// subGridCrossed reports whether a 1/n-beat grid point fell between the
// previous and current tick.
func (s *Scheduler) subGridCrossed(state rhythm.State, n int) bool {
	if n < 1 {
		n = 1
	}
	prev := math.Floor(s.prevTotalBeats * float64(n))
	cur := math.Floor(state.TotalBeats * float64(n))
	return cur > prev
}

func (s *Scheduler) fireQueue(kind AlignmentKind, state rhythm.State, now time.Time, events []Event) []Event {
	var kept []pending
	for _, p := range s.queues[kind] {
		if kind == AlignSubdivision && !s.subGridCrossed(state, p.align.Steps) {
			kept = append(kept, p)
			continue
		}
		if p.def.Blend == Override && s.overrideBlocked() {
			// The incumbent Override is still under its protection floor;
			// the request stays queued rather than truncating it.
			kept = append(kept, p)
			continue
		}
		events = s.start(p, state, now, events)
	}
	s.queues[kind] = kept
	return events
}

func (s *Scheduler) overrideBlocked() bool {
	for _, inst := range s.active {
		if inst.Def.Blend == Override && inst.state == StateActive && inst.Progress < overrideFloor {
			return true
		}
	}
	return false
}

func (s *Scheduler) start(p pending, state rhythm.State, now time.Time, events []Event) []Event {
	if p.def.Blend == Override {
		// Replace any incumbent past its floor; at most one Override runs.
		for _, inst := range s.active {
			if inst.Def.Blend != Override {
				continue
			}
			switch inst.state {
			case StateActive:
				s.retire(inst)
				events = append(events, Event{Kind: EventCompleted, Gesture: inst.Def.Name, Handle: inst.Handle, At: now})
			case StateCompleting:
				// Already announced completion; just clear it out.
				s.retire(inst)
			}
		}
	}

	inst := &Instance{
		Def:       p.def,
		Handle:    p.handle,
		StartTime: now,
		StartBeat: state.TotalBeats,
		state:     StateActive,
	}
	s.active = append(s.active, inst)
	return append(events, Event{Kind: EventStarted, Gesture: p.def.Name, Handle: p.handle, At: now})
}

func (s *Scheduler) progress(state rhythm.State, now time.Time, events []Event) []Event {
	for _, inst := range s.active {
		if inst.state != StateActive {
			continue
		}
		if inst.Def.DurationBeats > 0 {
			inst.Progress = (state.TotalBeats - inst.StartBeat) / inst.Def.DurationBeats
		} else {
			inst.Progress = 1
		}
		if inst.Progress < 0 {
			inst.Progress = 0
		}

		if inst.cancelRequested && inst.Progress >= overrideFloor {
			s.retire(inst)
			events = append(events, Event{Kind: EventDropped, Gesture: inst.Def.Name, Handle: inst.Handle, Reason: DropCancelled, At: now})
			continue
		}

		if inst.Progress >= 1 {
			inst.Progress = 1
			inst.state = StateCompleting
			events = append(events, Event{Kind: EventCompleted, Gesture: inst.Def.Name, Handle: inst.Handle, At: now})
		}
	}
	return events
}

// retire marks an instance done; the next sweep drops it from the active set.
func (s *Scheduler) retire(inst *Instance) {
	inst.state = StateDone
}

func (s *Scheduler) sweepDone() {
	kept := s.active[:0]
	for _, inst := range s.active {
		switch inst.state {
		case StateCompleting:
			inst.state = StateDone
		case StateDone:
			continue
		default:
			kept = append(kept, inst)
			continue
		}
	}
	s.active = kept
}
