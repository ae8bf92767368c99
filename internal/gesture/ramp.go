package gesture

import "github.com/emotive-engine/groove/internal/tempo"

// Ramp maps lock stages to groove intensity so animation ramps in smoothly
// as tempo confidence improves instead of snapping to full strength. A pure
// table lookup unless a manual override is set.
type Ramp struct {
	manual *float64
}

// NewRamp creates a Ramp following the stage ceiling table.
func NewRamp() *Ramp { return &Ramp{} }

// IntensityFor returns the groove intensity for a lock stage, or the manual
// override when one is set.
func (r *Ramp) IntensityFor(stage int) float64 {
	if r.manual != nil {
		return *r.manual
	}
	return tempo.StageCeiling(stage)
}

// SetManual bypasses the stage table until cleared. Values clamp to [0,1].
func (r *Ramp) SetManual(v float64) {
	v = clamp01(v)
	r.manual = &v
}

// ClearManual restores stage-table behavior.
func (r *Ramp) ClearManual() { r.manual = nil }

// Manual returns the override value, if set.
func (r *Ramp) Manual() (float64, bool) {
	if r.manual == nil {
		return 0, false
	}
	return *r.manual, true
}
