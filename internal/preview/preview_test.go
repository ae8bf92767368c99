package preview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emotive-engine/groove/internal/gesture"
	"github.com/emotive-engine/groove/internal/rhythm"
)

func TestNewRejectsInvalidDimensions(t *testing.T) {
	_, err := New(0, 24, false)
	assert.Error(t, err)

	_, err = New(80, -1, false)
	assert.Error(t, err)
}

func TestRenderFrameShape(t *testing.T) {
	r, err := New(40, 20, false)
	require.NoError(t, err)

	frame := r.Render(gesture.Identity(), rhythm.State{BPM: 120}, 0.5, 60)

	require.Len(t, frame.Lines, 20)
	for _, line := range frame.Lines {
		assert.Len(t, []rune(line), 40)
	}
	assert.Contains(t, frame.Status, "120.0 bpm")
	assert.Contains(t, frame.Status, "groove 0.50")
}

func TestOffsetMovesBody(t *testing.T) {
	r, err := New(40, 20, false)
	require.NoError(t, err)

	centered := r.Render(gesture.Identity(), rhythm.State{}, 1, 60)
	shifted := r.Render(gesture.Transform{
		OffsetX: 5, Scale: 1, ScaleX: 1, ScaleY: 1, Glow: 0,
	}, rhythm.State{}, 1, 60)

	assert.NotEqual(t, centered.Lines, shifted.Lines)

	// body mass ends up right of center
	left, right := inkSplit(shifted.Lines)
	assert.Greater(t, right, left)
}

func TestZeroScaleRendersNothing(t *testing.T) {
	r, err := New(40, 20, false)
	require.NoError(t, err)

	frame := r.Render(gesture.Transform{Scale: 0, ScaleX: 1, ScaleY: 1}, rhythm.State{}, 1, 60)

	for _, line := range frame.Lines {
		for _, ch := range line {
			assert.Equal(t, ' ', ch)
		}
	}
}

func TestGlowBrightensBody(t *testing.T) {
	r, err := New(40, 20, false)
	require.NoError(t, err)

	dim := r.Render(gesture.Transform{Scale: 1, ScaleX: 1, ScaleY: 1, Glow: 0}, rhythm.State{}, 1, 60)
	lit := r.Render(gesture.Transform{Scale: 1, ScaleX: 1, ScaleY: 1, Glow: 1}, rhythm.State{}, 1, 60)

	assert.Greater(t, ink(lit.Lines), ink(dim.Lines))
}

// ink counts non-blank glyph weight across the frame.
func ink(lines []string) int {
	total := 0
	for _, line := range lines {
		for _, ch := range line {
			for i, g := range glyphRamp {
				if ch == g {
					total += i
					break
				}
			}
		}
	}
	return total
}

func inkSplit(lines []string) (left, right int) {
	for _, line := range lines {
		runes := []rune(line)
		mid := len(runes) / 2
		for x, ch := range runes {
			if ch == ' ' {
				continue
			}
			if x < mid {
				left++
			} else {
				right++
			}
		}
	}
	return left, right
}
