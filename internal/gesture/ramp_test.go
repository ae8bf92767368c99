package gesture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRampFollowsStageTable(t *testing.T) {
	r := NewRamp()
	want := []float64{0.15, 0.40, 0.65, 0.85, 1.0}
	for stage, v := range want {
		assert.Equal(t, v, r.IntensityFor(stage))
	}
}

func TestRampMonotonic(t *testing.T) {
	r := NewRamp()
	prev := -1.0
	for stage := 0; stage <= 4; stage++ {
		v := r.IntensityFor(stage)
		if v < prev {
			t.Fatalf("intensity decreased at stage %d: %f < %f", stage, v, prev)
		}
		prev = v
	}
}

func TestRampManualOverrideBypassesTable(t *testing.T) {
	r := NewRamp()
	r.SetManual(0.33)

	for stage := 0; stage <= 4; stage++ {
		assert.Equal(t, 0.33, r.IntensityFor(stage))
	}
	v, ok := r.Manual()
	assert.True(t, ok)
	assert.Equal(t, 0.33, v)

	r.ClearManual()
	assert.Equal(t, 0.15, r.IntensityFor(0))
	_, ok = r.Manual()
	assert.False(t, ok)
}

func TestRampManualClamps(t *testing.T) {
	r := NewRamp()
	r.SetManual(1.7)
	assert.Equal(t, 1.0, r.IntensityFor(2))
	r.SetManual(-0.2)
	assert.Equal(t, 0.0, r.IntensityFor(2))
}
