package rhythm

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emotive-engine/groove/internal/tempo"
)

type stubSource struct {
	est tempo.Estimate
}

func (s *stubSource) Snapshot() tempo.Estimate { return s.est }

func TestBeatDurationMatchesBPM(t *testing.T) {
	for bpm := 40.0; bpm <= 220.0; bpm += 0.5 {
		got := float64(BeatDuration(bpm)) / float64(time.Millisecond)
		want := 60000 / bpm
		if math.Abs(got-want) > 1e-6 {
			t.Fatalf("BeatDuration(%.1f)=%.9fms want=%.9fms", bpm, got, want)
		}
	}
}

func TestFirstTickOpensBeatZero(t *testing.T) {
	clock := NewClock(Config{Source: &stubSource{est: tempo.Estimate{BPM: 120}}})
	state := clock.Tick(time.Unix(0, 0))

	assert.True(t, state.IsBeatStart)
	assert.True(t, state.IsDownbeat)
	assert.True(t, state.IsPhraseStart)
	assert.Zero(t, state.BeatIndex)
	assert.Zero(t, state.BarIndex)
	assert.Equal(t, 500*time.Millisecond, state.BeatDuration)
}

func TestDownbeatEveryBarAndPhraseBoundary(t *testing.T) {
	clock := NewClock(Config{
		BeatsPerBar:   4,
		BarsPerPhrase: 2,
		Source:        &stubSource{est: tempo.Estimate{BPM: 120}},
	})

	start := time.Unix(0, 0)
	clock.Tick(start)

	downbeats := 0
	phraseStarts := 0
	beats := 0
	// 8 seconds at 120 BPM is 16 beats, 4 bars, 2 phrases.
	for i := 1; i <= 8*100; i++ {
		state := clock.Tick(start.Add(time.Duration(i) * 10 * time.Millisecond))
		if state.IsBeatStart {
			beats += state.BeatsCrossed
		}
		if state.IsDownbeat {
			downbeats++
			assert.Zero(t, state.BeatIndex)
		}
		if state.IsPhraseStart {
			phraseStarts++
		}
	}

	assert.Equal(t, 16, beats)
	assert.Equal(t, 4, downbeats)
	assert.Equal(t, 2, phraseStarts)
}

func TestPhaseContinuityAcrossTempoChange(t *testing.T) {
	src := &stubSource{est: tempo.Estimate{BPM: 120, Confidence: 0.9, LockStage: 4}}
	window := 2 * time.Second
	clock := NewClock(Config{Source: src, SmoothingWindow: window})

	start := time.Unix(0, 0)
	const dt = 10 * time.Millisecond
	prev := clock.Tick(start)

	// The fastest tempo involved bounds how far phase may move per tick.
	maxPerTick := dt.Seconds()*180/60 + 1e-9

	for i := 1; i <= 600; i++ {
		now := start.Add(time.Duration(i) * dt)
		if i == 100 {
			src.est = tempo.Estimate{BPM: 180, Confidence: 0.9, LockStage: 4}
		}
		state := clock.Tick(now)

		delta := state.TotalBeats - prev.TotalBeats
		require.GreaterOrEqual(t, delta, 0.0, "phase must never move backward")
		require.LessOrEqual(t, delta, maxPerTick, "tick %d: phase jumped by %f beats", i, delta)
		prev = state
	}

	// After the smoothing window the clock has fully adopted the new tempo.
	assert.InDelta(t, 180, prev.BPM, 1e-9)
}

func TestTempoChangeRampsNotSnaps(t *testing.T) {
	src := &stubSource{est: tempo.Estimate{BPM: 100}}
	clock := NewClock(Config{Source: src, SmoothingWindow: 2 * time.Second})

	start := time.Unix(0, 0)
	clock.Tick(start)
	clock.Tick(start.Add(10 * time.Millisecond))

	src.est = tempo.Estimate{BPM: 200}
	state := clock.Tick(start.Add(20 * time.Millisecond))

	assert.True(t, state.TempoChanged)
	assert.InDelta(t, 100, state.PrevBPM, 1e-9)
	assert.Equal(t, 200.0, state.TargetBPM)
	// Just after the revision the effective tempo is still close to the old one.
	assert.Less(t, state.BPM, 110.0)

	state = clock.Tick(start.Add(3 * time.Second))
	assert.InDelta(t, 200, state.BPM, 1e-9)
	assert.False(t, state.TempoChanged)
}

func TestMinorRevisionDoesNotRetrigger(t *testing.T) {
	src := &stubSource{est: tempo.Estimate{BPM: 120}}
	clock := NewClock(Config{Source: src})

	start := time.Unix(0, 0)
	clock.Tick(start)
	src.est = tempo.Estimate{BPM: 120.05}
	state := clock.Tick(start.Add(10 * time.Millisecond))
	assert.False(t, state.TempoChanged)
}

func TestMarker(t *testing.T) {
	s := State{PhraseIndex: 2, BarIndex: 9, BeatIndex: 3}
	if s.Marker() != "2.9.3" {
		t.Fatalf("marker=%s", s.Marker())
	}
}
