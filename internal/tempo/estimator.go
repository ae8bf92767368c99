package tempo

import (
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Tuning constants for hypothesis scoring. The decay/reinforce formula is a
// calibrated parameter, not a contract; only the lock-stage table is fixed.
const (
	maxHypotheses   = 5
	intervalHistory = 16

	reinforceGain    = 0.18 // confidence gain factor on a grid-aligned onset
	missDecay        = 0.92 // confidence multiplier per missed predicted beat
	confidenceFloor  = 0.05 // below this a hypothesis is discarded
	seedConfidence   = 0.2  // starting confidence of a fresh candidate
	manualConfidence = 0.95 // confidence seeded by an explicit SetBPM
	switchMargin     = 0.1  // challenger must beat incumbent by this much

	gridTolerance  = 0.15 // onset-to-grid match window, fraction of a beat
	mergeTolerance = 2.0  // BPM distance below which candidates merge
	bpmNudge       = 0.1  // blend factor pulling a matched hypothesis's BPM

	onsetFloor     = 0.02 // absolute onset strength required to count a peak
	onsetRatio     = 1.5  // peak must exceed the running average by this ratio
	strengthSmooth = 0.95 // running-average smoothing for onset strength
	energyFloor    = 0.01 // frames below this energy count as silence
	maxInterval    = 4.0  // seconds; onset gaps beyond this are not intervals
)

var minOnsetGap = 100 * time.Millisecond

// hypothesis is one candidate tempo with a running confidence score.
// Hypotheses are owned exclusively by the Estimator.
type hypothesis struct {
	bpm        float64
	confidence float64
	nextBeat   time.Time
	updatedAt  time.Time
}

func (h *hypothesis) period() time.Duration {
	return time.Duration(60 / h.bpm * float64(time.Second))
}

// Config controls Estimator behavior.
type Config struct {
	MinBPM        float64
	MaxBPM        float64
	DefaultBPM    float64
	SilenceWindow time.Duration
	Log           *log.Logger
}

// Estimator keeps a bounded set of competing tempo hypotheses and publishes
// the winner as an immutable snapshot readable from any goroutine.
type Estimator struct {
	cfg Config

	mu          sync.Mutex
	hyps        []*hypothesis
	winner      *hypothesis
	ratchet     float64
	intervals   []float64
	lastOnset   time.Time
	lastFrame   time.Time
	lastActive  time.Time
	frozen      bool
	prevOnset   float64
	strengthAvg float64

	published atomic.Pointer[Estimate]
}

// New creates an Estimator with sensible defaults.
func New(cfg Config) *Estimator {
	if cfg.MinBPM <= 0 {
		cfg.MinBPM = 40
	}
	if cfg.MaxBPM <= cfg.MinBPM {
		cfg.MaxBPM = 220
	}
	if cfg.DefaultBPM <= 0 {
		cfg.DefaultBPM = 120
	}
	if cfg.DefaultBPM < cfg.MinBPM || cfg.DefaultBPM > cfg.MaxBPM {
		cfg.DefaultBPM = clampFloat(cfg.DefaultBPM, cfg.MinBPM, cfg.MaxBPM)
	}
	if cfg.SilenceWindow <= 0 {
		cfg.SilenceWindow = 3 * time.Second
	}
	e := &Estimator{
		cfg:       cfg,
		intervals: make([]float64, 0, intervalHistory),
	}
	e.published.Store(&Estimate{BPM: cfg.DefaultBPM, Confidence: 0, LockStage: StageDetecting})
	return e
}

// Snapshot returns the current estimate as an atomic copy. Safe to call from
// the render cadence while Ingest runs on the audio cadence.
func (e *Estimator) Snapshot() Estimate {
	return *e.published.Load()
}

// LockStage returns the lock stage of the current estimate.
func (e *Estimator) LockStage() int {
	return e.published.Load().LockStage
}

// Hypotheses returns a copy of the candidate set for observability.
func (e *Estimator) Hypotheses() []Estimate {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Estimate, 0, len(e.hyps))
	for _, h := range e.hyps {
		out = append(out, Estimate{BPM: h.bpm, Confidence: h.confidence, LockStage: StageFor(h.confidence)})
	}
	return out
}

// Ingest consumes one feature frame and returns the updated estimate.
// Runs on the audio-analysis cadence.
func (e *Estimator) Ingest(frame FeatureFrame) Estimate {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := frame.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	e.lastFrame = now

	active := frame.Energy() > energyFloor || frame.OnsetStrength > onsetFloor
	if active {
		e.lastActive = now
	}

	// Silence freeze: keep the last estimate rather than decaying to nothing,
	// so a pause in the music does not visibly restart the lock.
	if !e.lastActive.IsZero() && now.Sub(e.lastActive) > e.cfg.SilenceWindow {
		e.frozen = true
		return *e.published.Load()
	}
	if e.frozen {
		e.realign(now)
		e.frozen = false
	}

	e.advanceGrids(now)

	if e.isOnset(frame, now) {
		e.handleOnset(now)
	}
	e.prevOnset = frame.OnsetStrength
	e.strengthAvg = e.strengthAvg*strengthSmooth + frame.OnsetStrength*(1-strengthSmooth)

	e.prune()
	e.electWinner()
	return e.publish(now)
}

// SetBPM seeds a nearly-certain hypothesis from an explicit host override.
// Out-of-range values clamp to the configured bounds. Returns the applied BPM.
func (e *Estimator) SetBPM(bpm float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	applied := clampFloat(bpm, e.cfg.MinBPM, e.cfg.MaxBPM)
	if applied != bpm && e.cfg.Log != nil {
		e.cfg.Log.Printf("bpm %.1f out of range [%.0f, %.0f], clamped to %.1f", bpm, e.cfg.MinBPM, e.cfg.MaxBPM, applied)
	}

	now := e.lastFrame
	if now.IsZero() {
		now = time.Now()
	}

	h := &hypothesis{bpm: applied, confidence: manualConfidence, updatedAt: now}
	h.nextBeat = now.Add(h.period())

	// Replace any hypothesis already near this tempo, otherwise the weakest.
	replaced := false
	for i, existing := range e.hyps {
		if math.Abs(existing.bpm-applied) <= mergeTolerance {
			e.hyps[i] = h
			replaced = true
			break
		}
	}
	if !replaced {
		if len(e.hyps) < maxHypotheses {
			e.hyps = append(e.hyps, h)
		} else {
			weakest := 0
			for i, existing := range e.hyps {
				if existing.confidence < e.hyps[weakest].confidence {
					weakest = i
				}
			}
			e.hyps[weakest] = h
		}
	}

	e.winner = h
	e.ratchet = h.confidence
	e.publish(now)
	return applied
}

// isOnset applies rising-edge peak picking with a refractory gap.
func (e *Estimator) isOnset(frame FeatureFrame, now time.Time) bool {
	if frame.OnsetStrength < onsetFloor {
		return false
	}
	if frame.OnsetStrength < e.strengthAvg*onsetRatio {
		return false
	}
	if frame.OnsetStrength <= e.prevOnset {
		return false
	}
	if !e.lastOnset.IsZero() && now.Sub(e.lastOnset) < minOnsetGap {
		return false
	}
	return true
}

func (e *Estimator) handleOnset(now time.Time) {
	if !e.lastOnset.IsZero() {
		gap := now.Sub(e.lastOnset).Seconds()
		if gap >= minOnsetGap.Seconds() && gap <= maxInterval {
			e.pushInterval(gap)
		}
	}
	e.lastOnset = now

	for _, h := range e.hyps {
		period := h.period()
		tol := time.Duration(gridTolerance * float64(period))
		dist := now.Sub(h.nextBeat)
		if dist < 0 {
			dist = -dist
		}
		prevDist := now.Sub(h.nextBeat.Add(-period))
		if prevDist < 0 {
			prevDist = -prevDist
		}
		if dist <= tol || prevDist <= tol {
			h.confidence += reinforceGain * (1 - h.confidence)
			h.nextBeat = now.Add(period)
			h.updatedAt = now
			if cand, ok := e.candidateBPM(); ok {
				folded := foldBPM(cand, e.cfg.MinBPM, e.cfg.MaxBPM)
				if math.Abs(folded-h.bpm) <= mergeTolerance {
					h.bpm = h.bpm*(1-bpmNudge) + folded*bpmNudge
				}
			}
		} else {
			h.confidence *= missDecay
		}
	}

	e.seedCandidate(now)
}

// advanceGrids moves each hypothesis's predicted beat past now, decaying
// confidence once per beat that passed without a matching onset.
func (e *Estimator) advanceGrids(now time.Time) {
	for _, h := range e.hyps {
		period := h.period()
		tol := time.Duration(gridTolerance * float64(period))
		for now.Sub(h.nextBeat) > tol {
			h.confidence *= missDecay
			h.nextBeat = h.nextBeat.Add(period)
		}
	}
}

// realign shifts stale grids forward after a silence freeze so hypotheses
// predict from the present instead of the past.
func (e *Estimator) realign(now time.Time) {
	for _, h := range e.hyps {
		period := h.period()
		for h.nextBeat.Before(now) {
			h.nextBeat = h.nextBeat.Add(period)
		}
	}
	e.lastOnset = time.Time{}
}

func (e *Estimator) pushInterval(seconds float64) {
	e.intervals = append(e.intervals, seconds)
	if len(e.intervals) > intervalHistory {
		copy(e.intervals, e.intervals[1:])
		e.intervals = e.intervals[:len(e.intervals)-1]
	}
}

// candidateBPM derives a tempo from the inter-onset interval cluster,
// rejecting outliers beyond one standard deviation of the mean.
func (e *Estimator) candidateBPM() (float64, bool) {
	if len(e.intervals) < 2 {
		if len(e.intervals) == 1 {
			return 60 / e.intervals[0], true
		}
		return 0, false
	}
	mean := stat.Mean(e.intervals, nil)
	sigma := stat.StdDev(e.intervals, nil)
	if mean <= 0 {
		return 0, false
	}

	kept := make([]float64, 0, len(e.intervals))
	for _, v := range e.intervals {
		if math.Abs(v-mean) <= sigma || sigma == 0 {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return 60 / mean, true
	}
	return 60 / stat.Mean(kept, nil), true
}

// seedCandidate spawns or merges a tap-tempo-style hypothesis from the most
// recent onset intervals.
func (e *Estimator) seedCandidate(now time.Time) {
	raw, ok := e.candidateBPM()
	if !ok {
		return
	}
	bpm := foldBPM(raw, e.cfg.MinBPM, e.cfg.MaxBPM)

	for _, h := range e.hyps {
		if math.Abs(h.bpm-bpm) <= mergeTolerance {
			// Weighted merge keeps the established grid but pulls the tempo.
			w := seedConfidence
			h.bpm = (h.bpm*h.confidence + bpm*w) / (h.confidence + w)
			return
		}
	}

	h := &hypothesis{bpm: bpm, confidence: seedConfidence, updatedAt: now}
	h.nextBeat = now.Add(h.period())
	if len(e.hyps) < maxHypotheses {
		e.hyps = append(e.hyps, h)
		return
	}
	weakest := 0
	for i, existing := range e.hyps {
		if existing.confidence < e.hyps[weakest].confidence {
			weakest = i
		}
	}
	if e.hyps[weakest].confidence < seedConfidence {
		e.hyps[weakest] = h
	}
}

func (e *Estimator) prune() {
	kept := e.hyps[:0]
	for _, h := range e.hyps {
		if h.confidence >= confidenceFloor {
			kept = append(kept, h)
			continue
		}
		if h == e.winner {
			e.winner = nil
		}
	}
	e.hyps = kept
}

// electWinner keeps the incumbent unless a challenger clearly beats it.
// While the incumbent holds, published confidence only ratchets upward.
func (e *Estimator) electWinner() {
	var best *hypothesis
	for _, h := range e.hyps {
		if best == nil || h.confidence > best.confidence {
			best = h
		}
	}
	if best == nil {
		e.winner = nil
		e.ratchet = 0
		return
	}
	if e.winner == nil {
		e.winner = best
		e.ratchet = best.confidence
		return
	}
	if best != e.winner && best.confidence > e.winner.confidence+switchMargin {
		e.winner = best
		e.ratchet = best.confidence
		return
	}
	if e.winner.confidence > e.ratchet {
		e.ratchet = e.winner.confidence
	}
}

func (e *Estimator) publish(now time.Time) Estimate {
	est := Estimate{BPM: e.cfg.DefaultBPM, Confidence: 0, LockStage: StageDetecting}
	if e.winner != nil {
		est = Estimate{
			BPM:        clampFloat(e.winner.bpm, e.cfg.MinBPM, e.cfg.MaxBPM),
			Confidence: clampFloat(e.ratchet, 0, 1),
		}
		est.LockStage = StageFor(est.Confidence)
	}
	e.published.Store(&est)
	return est
}

// foldBPM doubles or halves a tempo until it lands inside the bounds.
func foldBPM(bpm, minBPM, maxBPM float64) float64 {
	if bpm <= 0 {
		return minBPM
	}
	for bpm < minBPM {
		bpm *= 2
	}
	for bpm > maxBPM {
		bpm /= 2
	}
	if bpm < minBPM {
		bpm = minBPM
	}
	return bpm
}

func clampFloat(v, minVal, maxVal float64) float64 {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
