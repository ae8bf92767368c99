package tempo

import "time"

// FeatureFrame is one tick of derived audio data delivered by the analysis
// collaborator. The estimator never touches raw samples; onset strength and
// band energies are all it consumes.
type FeatureFrame struct {
	Timestamp     time.Time
	OnsetStrength float64
	Bands         []float64
}

// Energy returns the mean band energy of the frame.
func (f FeatureFrame) Energy() float64 {
	if len(f.Bands) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range f.Bands {
		sum += b
	}
	return sum / float64(len(f.Bands))
}
