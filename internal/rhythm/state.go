package rhythm

import (
	"fmt"
	"time"
)

// State is the musical-time snapshot derived on every render tick. It is
// recomputed from scratch each frame; nothing downstream mutates it.
type State struct {
	// BPM is the smoothed tempo in effect this tick. TargetBPM is the tempo
	// the clock is ramping toward; the two are equal outside a smoothing
	// window.
	BPM       float64
	TargetBPM float64

	BeatDuration time.Duration
	BeatPhase    float64 // [0, 1), 0 at beat onset
	TotalBeats   float64 // beats elapsed since the clock started, fractional

	BeatIndex   int // position within the bar, [0, BeatsPerBar)
	BarIndex    int
	PhraseIndex int

	// Boundary flags for the tick on which a crossing happened. BeatsCrossed
	// can exceed one on a slow render frame.
	BeatsCrossed  int
	IsBeatStart   bool
	IsDownbeat    bool
	IsPhraseStart bool

	// TempoChanged marks the tick on which a new target tempo was adopted.
	TempoChanged bool
	PrevBPM      float64

	Confidence float64
	LockStage  int
}

// Marker renders the position as "phrase.bar.beat" for logs and status output.
func (s State) Marker() string {
	return fmt.Sprintf("%d.%d.%d", s.PhraseIndex, s.BarIndex, s.BeatIndex)
}
