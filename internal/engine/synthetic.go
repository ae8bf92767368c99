package engine

import (
	"math"
	"math/rand"
	"time"

	"github.com/emotive-engine/groove/internal/tempo"
)

// Synthetic generates feature frames with a steady virtual kick so the
// engine can run without any audio hardware.
type Synthetic struct {
	rng       *rand.Rand
	bpm       float64
	phase     float64
	bandPhase float64
	last      time.Time
}

// NewSynthetic creates a generator ticking at the given tempo.
func NewSynthetic(bpm float64) *Synthetic {
	if bpm <= 0 {
		bpm = 120
	}
	return &Synthetic{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		bpm: bpm,
	}
}

// Next produces the feature frame for now.
func (s *Synthetic) Next(now time.Time) tempo.FeatureFrame {
	if s.last.IsZero() {
		s.last = now
	}
	delta := now.Sub(s.last).Seconds()
	s.last = now

	s.phase += delta * s.bpm / 60
	s.bandPhase += delta * 1.3

	onset := 0.02 + s.rng.Float64()*0.02
	if s.phase >= 1 {
		s.phase -= math.Floor(s.phase)
		onset = 0.85 + s.rng.Float64()*0.15
	}

	bass := clamp01(0.5 + 0.4*math.Sin(s.bandPhase) + s.rng.Float64()*0.05)
	mid := clamp01(0.4 + 0.3*math.Sin(s.bandPhase*1.7+0.5) + s.rng.Float64()*0.05)
	treble := clamp01(0.3 + 0.2*math.Sin(s.bandPhase*2.9+1.0) + s.rng.Float64()*0.05)

	return tempo.FeatureFrame{
		Timestamp:     now,
		OnsetStrength: onset,
		Bands:         []float64{bass, mid, treble},
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
