package gesture

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emotive-engine/groove/internal/rhythm"
)

func constCurve(c Contribution) CurveFunc {
	return func(float64) Contribution { return c }
}

// testRegistry keeps durations and curves under the test's control.
func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := &Registry{defs: map[string]*Definition{}}
	defs := []*Definition{
		{Name: "drift", Blend: Blending, DurationBeats: 2, Curve: constCurve(Contribution{OffsetX: 5, Scale: 1, ScaleX: 1, ScaleY: 1})},
		{Name: "rise", Blend: Blending, DurationBeats: 2, Curve: constCurve(Contribution{OffsetY: -3, Scale: 1, ScaleX: 1, ScaleY: 1})},
		{Name: "whirl", Blend: Override, DurationBeats: 2, Channels: ChannelRotation, Curve: constCurve(Contribution{Rotation: 1, Scale: 1, ScaleX: 1, ScaleY: 1})},
		{Name: "whirl2", Blend: Override, DurationBeats: 2, Channels: ChannelRotation, Curve: constCurve(Contribution{Rotation: 2, Scale: 1, ScaleX: 1, ScaleY: 1})},
		{Name: "glimmer", Blend: Effect, DurationBeats: 1, Channels: ChannelGlow, Curve: constCurve(Contribution{Glow: 0.5, Scale: 1, ScaleX: 1, ScaleY: 1})},
	}
	for _, d := range defs {
		require.NoError(t, r.Register(d))
	}
	return r
}

func beatState(totalBeats float64, beatStart bool) rhythm.State {
	return rhythm.State{
		TotalBeats:  totalBeats,
		IsBeatStart: beatStart,
		BeatPhase:   totalBeats - float64(int(totalBeats)),
	}
}

func at(step int) time.Time {
	return time.Unix(0, 0).Add(time.Duration(step) * 100 * time.Millisecond)
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func TestEnqueueUnknownGestureRejected(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Registry: testRegistry(t)})

	h, err := s.Enqueue(Request{Gesture: "moonwalk", Alignment: NextBeat()})
	require.ErrorIs(t, err, ErrUnknownGesture)
	assert.True(t, h.IsZero())

	// No state change: nothing queued, nothing fires.
	events := s.Advance(beatState(1.0, true), at(0))
	assert.Empty(t, events)
}

func TestBeatAlignmentWaitsForBoundary(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Registry: testRegistry(t)})

	// Trigger arrives late in the beat; it must not fire mid-beat.
	_, err := s.Enqueue(Request{Gesture: "drift", Alignment: NextBeat()})
	require.NoError(t, err)

	events := s.Advance(beatState(0.9, false), at(0))
	assert.Empty(t, events)
	assert.Empty(t, s.Active())

	events = s.Advance(beatState(1.0, true), at(1))
	require.Len(t, events, 1)
	assert.Equal(t, EventStarted, events[0].Kind)
	assert.Equal(t, "drift", events[0].Gesture)
	assert.Len(t, s.Active(), 1)
}

func TestImmediateFiresOnNextAdvance(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Registry: testRegistry(t)})

	_, err := s.Enqueue(Request{Gesture: "rise", Alignment: Immediate()})
	require.NoError(t, err)

	events := s.Advance(beatState(0.42, false), at(0))
	require.Len(t, events, 1)
	assert.Equal(t, EventStarted, events[0].Kind)
}

func TestBarAndPhraseAlignment(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Registry: testRegistry(t)})

	_, err := s.Enqueue(Request{Gesture: "drift", Alignment: NextBar()})
	require.NoError(t, err)
	_, err = s.Enqueue(Request{Gesture: "rise", Alignment: NextPhrase()})
	require.NoError(t, err)

	// A beat that is not a downbeat fires neither.
	st := beatState(1.0, true)
	assert.Empty(t, s.Advance(st, at(0)))

	// Downbeat fires the bar-aligned request only.
	st = beatState(4.0, true)
	st.IsDownbeat = true
	events := s.Advance(st, at(1))
	require.Len(t, events, 1)
	assert.Equal(t, "drift", events[0].Gesture)

	// Phrase boundary fires the rest; the earlier gesture also finishes here.
	st = beatState(16.0, true)
	st.IsDownbeat = true
	st.IsPhraseStart = true
	events = s.Advance(st, at(2))
	require.Len(t, events, 2)
	assert.Equal(t, EventStarted, events[0].Kind)
	assert.Equal(t, "rise", events[0].Gesture)
	assert.Equal(t, EventCompleted, events[1].Kind)
	assert.Equal(t, "drift", events[1].Gesture)
}

func TestSubdivisionFiresOnSubBeatGrid(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Registry: testRegistry(t)})

	s.Advance(beatState(0.1, false), at(0))

	_, err := s.Enqueue(Request{Gesture: "drift", Alignment: Subdivision(4)})
	require.NoError(t, err)

	// 0.1 -> 0.2 crosses no 1/4 grid point.
	assert.Empty(t, s.Advance(beatState(0.2, false), at(1)))
	// 0.2 -> 0.3 crosses 0.25.
	events := s.Advance(beatState(0.3, false), at(2))
	require.Len(t, events, 1)
	assert.Equal(t, EventStarted, events[0].Kind)
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Registry: testRegistry(t), QueueBound: 2})

	h1, err := s.Enqueue(Request{Gesture: "drift", Alignment: NextBeat()})
	require.NoError(t, err)
	_, err = s.Enqueue(Request{Gesture: "rise", Alignment: NextBeat()})
	require.NoError(t, err)
	_, err = s.Enqueue(Request{Gesture: "drift", Alignment: NextBeat()})
	require.NoError(t, err)

	assert.Equal(t, 2, s.QueueDepth(AlignBeat))

	events := s.Advance(beatState(1.0, true), at(0))
	require.Len(t, events, 3)
	assert.Equal(t, EventDropped, events[0].Kind)
	assert.Equal(t, DropOverflow, events[0].Reason)
	assert.Equal(t, h1, events[0].Handle)
	assert.Equal(t, []EventKind{EventDropped, EventStarted, EventStarted}, kinds(events))
}

func TestOverrideRefusesReplacementBelowFloor(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Registry: testRegistry(t)})

	_, err := s.Enqueue(Request{Gesture: "whirl", Alignment: NextBeat()})
	require.NoError(t, err)
	events := s.Advance(beatState(0.0, true), at(0))
	require.Len(t, events, 1)

	// Incumbent at progress 0.25 (0.5 of 2 beats): challenger must wait.
	s.Advance(beatState(0.5, false), at(1))
	_, err = s.Enqueue(Request{Gesture: "whirl2", Alignment: NextBeat()})
	require.NoError(t, err)

	events = s.Advance(beatState(1.0, true), at(2))
	assert.Empty(t, events, "override below floor must not be replaced")
	assert.Equal(t, 1, s.QueueDepth(AlignBeat))
	require.Len(t, s.Active(), 1)
	assert.Equal(t, "whirl", s.Active()[0].Def.Name)

	// Progress 0.8 reached (1.6 of 2 beats): the queued override replaces it.
	s.Advance(beatState(1.6, false), at(3))
	events = s.Advance(beatState(2.0, true), at(4))
	require.Len(t, events, 2)
	assert.Equal(t, EventCompleted, events[0].Kind)
	assert.Equal(t, "whirl", events[0].Gesture)
	assert.Equal(t, EventStarted, events[1].Kind)
	assert.Equal(t, "whirl2", events[1].Gesture)
}

func TestBlendingNeverBlocksTriggers(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Registry: testRegistry(t)})

	_, err := s.Enqueue(Request{Gesture: "drift", Alignment: NextBeat()})
	require.NoError(t, err)
	s.Advance(beatState(0.0, true), at(0))

	_, err = s.Enqueue(Request{Gesture: "rise", Alignment: NextBeat()})
	require.NoError(t, err)
	_, err = s.Enqueue(Request{Gesture: "glimmer", Alignment: NextBeat()})
	require.NoError(t, err)

	events := s.Advance(beatState(1.0, true), at(1))
	assert.Len(t, events, 2)
	assert.Len(t, s.Active(), 3)
}

func TestCancelQueuedRequest(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Registry: testRegistry(t)})

	h, err := s.Enqueue(Request{Gesture: "drift", Alignment: NextBar()})
	require.NoError(t, err)
	assert.True(t, s.Cancel(h))
	assert.False(t, s.Cancel(h), "second cancel finds nothing")

	st := beatState(4.0, true)
	st.IsDownbeat = true
	events := s.Advance(st, at(0))
	require.Len(t, events, 1)
	assert.Equal(t, EventDropped, events[0].Kind)
	assert.Equal(t, DropCancelled, events[0].Reason)
	assert.Empty(t, s.Active())
}

func TestCancelActiveBlendingIsImmediate(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Registry: testRegistry(t)})

	h, err := s.Enqueue(Request{Gesture: "drift", Alignment: Immediate()})
	require.NoError(t, err)
	s.Advance(beatState(0.0, true), at(0))
	require.Len(t, s.Active(), 1)

	assert.True(t, s.Cancel(h))
	assert.Empty(t, s.Active())

	events := s.Advance(beatState(0.1, false), at(1))
	require.Len(t, events, 1)
	assert.Equal(t, EventDropped, events[0].Kind)
}

func TestCancelActiveOverrideIsDeferred(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Registry: testRegistry(t)})

	h, err := s.Enqueue(Request{Gesture: "whirl", Alignment: Immediate()})
	require.NoError(t, err)
	s.Advance(beatState(0.0, true), at(0))

	s.Advance(beatState(0.5, false), at(1))
	assert.True(t, s.Cancel(h))
	// Deferred: still active below the floor.
	require.Len(t, s.Active(), 1)

	s.Advance(beatState(1.0, false), at(2))
	require.Len(t, s.Active(), 1)

	// 1.7 of 2 beats is progress 0.85; the deferred cancel lands.
	events := s.Advance(beatState(1.7, false), at(3))
	require.Len(t, events, 1)
	assert.Equal(t, EventDropped, events[0].Kind)
	assert.Equal(t, DropCancelled, events[0].Reason)
	assert.Empty(t, s.Active())
}

func TestInstanceLifecycle(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Registry: testRegistry(t)})

	_, err := s.Enqueue(Request{Gesture: "drift", Alignment: Immediate()})
	require.NoError(t, err)

	events := s.Advance(beatState(0.0, true), at(0))
	require.Len(t, events, 1)
	inst := s.Active()[0]
	assert.Equal(t, StateActive, inst.State())

	s.Advance(beatState(1.0, true), at(1))
	assert.InDelta(t, 0.5, inst.Progress, 1e-9)

	events = s.Advance(beatState(2.0, true), at(2))
	require.Len(t, events, 1)
	assert.Equal(t, EventCompleted, events[0].Kind)
	assert.Equal(t, StateCompleting, inst.State())
	// Completing instances still composite for their final frame.
	assert.Len(t, s.Active(), 1)

	events = s.Advance(beatState(2.1, false), at(3))
	assert.Empty(t, events)
	assert.Empty(t, s.Active())
}

func TestAdvanceCostIsBounded(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Registry: testRegistry(t), QueueBound: 4})

	for i := 0; i < 100; i++ {
		_, err := s.Enqueue(Request{Gesture: "drift", Alignment: NextBeat()})
		require.NoError(t, err)
	}
	// The bound held: 96 drops, 4 queued.
	assert.Equal(t, 4, s.QueueDepth(AlignBeat))

	events := s.Advance(beatState(1.0, true), at(0))
	drops := 0
	starts := 0
	for _, e := range events {
		switch e.Kind {
		case EventDropped:
			drops++
		case EventStarted:
			starts++
		}
	}
	assert.Equal(t, 96, drops)
	assert.Equal(t, 4, starts)
}

func TestErrUnknownGestureWrapped(t *testing.T) {
	s := NewScheduler(SchedulerConfig{})
	_, err := s.Enqueue(Request{Gesture: "nope", Alignment: Immediate()})
	if !errors.Is(err, ErrUnknownGesture) {
		t.Fatalf("expected ErrUnknownGesture, got %v", err)
	}
}
