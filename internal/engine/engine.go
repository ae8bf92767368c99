package engine

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/emotive-engine/groove/internal/gesture"
	"github.com/emotive-engine/groove/internal/rhythm"
	"github.com/emotive-engine/groove/internal/tempo"
)

// Config configures the engine runtime.
type Config struct {
	DefaultBPM      float64
	MinBPM          float64
	MaxBPM          float64
	BeatsPerBar     int
	BarsPerPhrase   int
	SmoothingWindow time.Duration
	SilenceWindow   time.Duration
	QueueBound      int
	TargetFPS       float64
	Registry        *gesture.Registry
	Log             *log.Logger
}

// FrameOutput is the per-frame result handed to the renderer and any other
// sinks: the composited transform, the musical-time state it was derived
// from, and the events that happened on this tick.
type FrameOutput struct {
	Transform gesture.Transform
	State     rhythm.State
	Groove    float64
	Events    []Event
}

// Engine ties tempo estimation, the rhythm clock, gesture scheduling and
// composition into one explicitly constructed instance owned by the host.
// Feature frames arrive on the audio cadence through IngestFrame; everything
// else runs on the render cadence through Step.
type Engine struct {
	cfg Config
	log *log.Logger

	estimator  *tempo.Estimator
	clock      *rhythm.Clock
	registry   *gesture.Registry
	scheduler  *gesture.Scheduler
	compositor *gesture.Compositor
	ramp       *gesture.Ramp

	// mu guards render-cadence state against host API calls arriving from
	// other goroutines (web handlers, keyboard listener). The estimator has
	// its own synchronization.
	mu        sync.Mutex
	lastState rhythm.State
}

// New constructs an Engine using the provided configuration.
func New(cfg Config) *Engine {
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = 60
	}
	if cfg.Log == nil {
		cfg.Log = log.New(os.Stderr, "", log.LstdFlags)
	}
	if cfg.Registry == nil {
		cfg.Registry = gesture.NewRegistry()
	}

	estimator := tempo.New(tempo.Config{
		MinBPM:        cfg.MinBPM,
		MaxBPM:        cfg.MaxBPM,
		DefaultBPM:    cfg.DefaultBPM,
		SilenceWindow: cfg.SilenceWindow,
		Log:           cfg.Log,
	})
	clock := rhythm.NewClock(rhythm.Config{
		BeatsPerBar:     cfg.BeatsPerBar,
		BarsPerPhrase:   cfg.BarsPerPhrase,
		SmoothingWindow: cfg.SmoothingWindow,
		Source:          estimator,
		Log:             cfg.Log,
	})
	scheduler := gesture.NewScheduler(gesture.SchedulerConfig{
		Registry:   cfg.Registry,
		QueueBound: cfg.QueueBound,
		Log:        cfg.Log,
	})

	return &Engine{
		cfg:        cfg,
		log:        cfg.Log,
		estimator:  estimator,
		clock:      clock,
		registry:   cfg.Registry,
		scheduler:  scheduler,
		compositor: gesture.NewCompositor(),
		ramp:       gesture.NewRamp(),
	}
}

// Registry exposes the gesture table so hosts can register custom gestures
// before the loop starts.
func (e *Engine) Registry() *gesture.Registry { return e.registry }

// IngestFrame feeds one audio feature frame to the tempo estimator.
// Safe to call from the audio-analysis goroutine.
func (e *Engine) IngestFrame(frame tempo.FeatureFrame) tempo.Estimate {
	return e.estimator.Ingest(frame)
}

// TriggerGesture queues a gesture for the given musical alignment.
func (e *Engine) TriggerGesture(name string, align gesture.Alignment) (gesture.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scheduler.Enqueue(gesture.Request{Gesture: name, Alignment: align})
}

// CancelGesture cancels a queued or active gesture by handle.
func (e *Engine) CancelGesture(h gesture.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scheduler.Cancel(h)
}

// SetBPM applies a manual tempo override, clamped to bounds.
func (e *Engine) SetBPM(v float64) float64 {
	return e.estimator.SetBPM(v)
}

// SetGrooveConfidence bypasses the lock-stage intensity table until cleared.
func (e *Engine) SetGrooveConfidence(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ramp.SetManual(v)
}

// ClearGrooveConfidence restores stage-table intensity.
func (e *Engine) ClearGrooveConfidence() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ramp.ClearManual()
}

// LockStage returns the estimator's current lock stage.
func (e *Engine) LockStage() int { return e.estimator.LockStage() }

// Estimate returns the current tempo estimate snapshot.
func (e *Engine) Estimate() tempo.Estimate { return e.estimator.Snapshot() }

// Hypotheses exposes the estimator's candidate set for observability.
func (e *Engine) Hypotheses() []tempo.Estimate { return e.estimator.Hypotheses() }

// RhythmState returns the musical-time state of the most recent Step.
func (e *Engine) RhythmState() rhythm.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastState
}

// ActiveGestures summarizes the gestures currently compositing.
func (e *Engine) ActiveGestures() []gesture.ActiveGesture {
	e.mu.Lock()
	defer e.mu.Unlock()
	active := e.scheduler.Active()
	out := make([]gesture.ActiveGesture, 0, len(active))
	for _, inst := range active {
		out = append(out, inst.Summary())
	}
	return out
}

// GestureNames lists the registered gesture names.
func (e *Engine) GestureNames() []string { return e.registry.Names() }

// Step advances musical time to now, fires due gestures, and composites one
// frame. Bounded and non-blocking; runs once per render frame.
func (e *Engine) Step(now time.Time) FrameOutput {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := e.clock.Tick(now)

	var events []Event
	if state.TempoChanged {
		events = append(events, Event{
			Kind:   EventTempoChange,
			At:     now,
			Marker: state.Marker(),
			OldBPM: state.PrevBPM,
			NewBPM: state.TargetBPM,
		})
	}
	if state.IsBeatStart {
		events = append(events, Event{Kind: EventBeat, At: now, Marker: state.Marker()})
	}
	if state.IsDownbeat {
		events = append(events,
			Event{Kind: EventDownbeat, At: now, Marker: state.Marker()},
			Event{Kind: EventMeasure, At: now, Marker: state.Marker()},
		)
	}

	for _, ge := range e.scheduler.Advance(state, now) {
		events = append(events, fromGestureEvent(ge, state))
	}

	groove := e.ramp.IntensityFor(state.LockStage)
	transform := e.compositor.Composite(e.scheduler.Active(), groove)

	e.lastState = state
	return FrameOutput{
		Transform: transform,
		State:     state,
		Groove:    groove,
		Events:    events,
	}
}

// Run drives the render cadence until context cancellation, passing each
// frame to sink.
func (e *Engine) Run(ctx context.Context, sink func(FrameOutput) error) error {
	interval := time.Duration(float64(time.Second) / e.cfg.TargetFPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			out := e.Step(now)
			if sink == nil {
				continue
			}
			if err := sink(out); err != nil {
				return err
			}
		}
	}
}

func fromGestureEvent(ge gesture.Event, state rhythm.State) Event {
	ev := Event{
		At:      ge.At,
		Marker:  state.Marker(),
		Gesture: ge.Gesture,
		Reason:  string(ge.Reason),
	}
	switch ge.Kind {
	case gesture.EventStarted:
		ev.Kind = EventGestureStarted
	case gesture.EventCompleted:
		ev.Kind = EventGestureCompleted
	case gesture.EventDropped:
		ev.Kind = EventGestureDropped
	}
	return ev
}
