package rhythm

import (
	"log"
	"math"
	"time"

	"github.com/emotive-engine/groove/internal/tempo"
)

// tempoChangeEpsilon is the BPM revision below which the clock does not
// bother re-ramping.
const tempoChangeEpsilon = 0.1

// EstimateSource provides the current tempo estimate as an atomic copy.
// *tempo.Estimator satisfies this.
type EstimateSource interface {
	Snapshot() tempo.Estimate
}

// Config controls Clock behavior.
type Config struct {
	BeatsPerBar     int
	BarsPerPhrase   int
	SmoothingWindow time.Duration
	Source          EstimateSource
	Log             *log.Logger
}

// Clock converts tempo estimates into musical time. Phase advances by elapsed
// wall time between ticks, never by reconstruction from absolute time, so a
// long session cannot amplify drift. Tempo revisions ramp the effective beat
// duration over the smoothing window instead of snapping.
//
// The very first Tick opens beat 0 of bar 0 of phrase 0: IsBeatStart,
// IsDownbeat and IsPhraseStart all report true on that tick, so work queued
// for any boundary before the clock starts fires immediately rather than
// waiting out a full beat, bar or phrase.
type Clock struct {
	cfg Config

	started   bool
	lastTick  time.Time
	phase     float64
	beatCount int64

	currentBPM float64
	targetBPM  float64
	rampFrom   float64
	rampStart  time.Time
}

// NewClock creates a Clock with sensible defaults.
func NewClock(cfg Config) *Clock {
	if cfg.BeatsPerBar <= 0 {
		cfg.BeatsPerBar = 4
	}
	if cfg.BarsPerPhrase <= 0 {
		cfg.BarsPerPhrase = 4
	}
	if cfg.SmoothingWindow <= 0 {
		cfg.SmoothingWindow = 2 * time.Second
	}
	return &Clock{cfg: cfg}
}

// BeatsPerBar returns the configured bar length in beats.
func (c *Clock) BeatsPerBar() int { return c.cfg.BeatsPerBar }

// BarsPerPhrase returns the configured phrase length in bars.
func (c *Clock) BarsPerPhrase() int { return c.cfg.BarsPerPhrase }

// Tick advances musical time to now and returns the derived state.
// Runs on the render cadence only.
func (c *Clock) Tick(now time.Time) State {
	est := c.snapshot()

	if !c.started {
		c.started = true
		c.lastTick = now
		c.currentBPM = est.BPM
		c.targetBPM = est.BPM
		// The first tick opens beat 0 of bar 0 so boundary-aligned work can
		// start without waiting a full beat.
		return c.state(est, 1, false, 0)
	}

	tempoChanged := false
	prevBPM := 0.0
	if est.BPM > 0 && math.Abs(est.BPM-c.targetBPM) > tempoChangeEpsilon {
		prevBPM = c.targetBPM
		c.rampFrom = c.currentBPM
		c.targetBPM = est.BPM
		c.rampStart = now
		tempoChanged = true
		if c.cfg.Log != nil {
			c.cfg.Log.Printf("tempo %.1f -> %.1f bpm (smoothing over %s)", prevBPM, est.BPM, c.cfg.SmoothingWindow)
		}
	}
	c.currentBPM = c.smoothedBPM(now)

	elapsed := now.Sub(c.lastTick)
	c.lastTick = now
	if elapsed < 0 {
		elapsed = 0
	}

	c.phase += elapsed.Seconds() * c.currentBPM / 60
	crossed := int(c.phase)
	c.phase -= float64(crossed)
	c.beatCount += int64(crossed)

	return c.state(est, crossed, tempoChanged, prevBPM)
}

func (c *Clock) snapshot() tempo.Estimate {
	if c.cfg.Source == nil {
		return tempo.Estimate{BPM: 120}
	}
	return c.cfg.Source.Snapshot()
}

// smoothedBPM linearly ramps from the pre-revision tempo to the target over
// the smoothing window.
func (c *Clock) smoothedBPM(now time.Time) float64 {
	if c.rampStart.IsZero() {
		return c.targetBPM
	}
	elapsed := now.Sub(c.rampStart)
	if elapsed >= c.cfg.SmoothingWindow {
		c.rampStart = time.Time{}
		return c.targetBPM
	}
	frac := float64(elapsed) / float64(c.cfg.SmoothingWindow)
	return c.rampFrom + (c.targetBPM-c.rampFrom)*frac
}

func (c *Clock) state(est tempo.Estimate, crossed int, tempoChanged bool, prevBPM float64) State {
	beatIndex := int(c.beatCount % int64(c.cfg.BeatsPerBar))
	barIndex := int(c.beatCount / int64(c.cfg.BeatsPerBar))
	phraseIndex := barIndex / c.cfg.BarsPerPhrase

	bpm := c.currentBPM
	if bpm <= 0 {
		bpm = est.BPM
	}

	return State{
		BPM:           bpm,
		TargetBPM:     c.targetBPM,
		BeatDuration:  BeatDuration(bpm),
		BeatPhase:     c.phase,
		TotalBeats:    float64(c.beatCount) + c.phase,
		BeatIndex:     beatIndex,
		BarIndex:      barIndex,
		PhraseIndex:   phraseIndex,
		BeatsCrossed:  crossed,
		IsBeatStart:   crossed > 0,
		IsDownbeat:    crossed > 0 && beatIndex == 0,
		IsPhraseStart: crossed > 0 && beatIndex == 0 && barIndex%c.cfg.BarsPerPhrase == 0,
		TempoChanged:  tempoChanged,
		PrevBPM:       prevBPM,
		Confidence:    est.Confidence,
		LockStage:     est.LockStage,
	}
}

// BeatDuration converts a tempo to the duration of one beat.
func BeatDuration(bpm float64) time.Duration {
	if bpm <= 0 {
		return 0
	}
	return time.Duration(60000 / bpm * float64(time.Millisecond))
}
