package preview

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/emotive-engine/groove/internal/gesture"
	"github.com/emotive-engine/groove/internal/rhythm"
)

// ErrQuit signals the host that the preview backend was closed.
var ErrQuit = errors.New("preview: backend quit")

type backend int

const (
	backendTerminal backend = iota
	backendSDL
)

var glyphRamp = []rune(" .:-=+*#%@")

var (
	resetANSI       = "\x1b[0m"
	precomputedANSI [256]string
)

func init() {
	for i := range precomputedANSI {
		precomputedANSI[i] = "\x1b[38;5;" + strconv.Itoa(i) + "m"
	}
}

// Renderer draws the mascot's composited transform as an ASCII frame, or to
// an SDL window when built with -tags sdl.
type Renderer struct {
	width   int
	height  int
	useANSI bool
	mode    backend
	frame   uint64

	sdl *sdlState
}

// Frame is one rendered preview frame. Present pushes it to the SDL window
// when that backend is active; terminal frames carry their lines directly.
type Frame struct {
	Lines   []string
	Status  string
	Present func(status string) error
}

// New creates a terminal Renderer.
func New(width, height int, useANSI bool) (*Renderer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: width=%d height=%d", width, height)
	}
	return &Renderer{
		width:   width,
		height:  height,
		useANSI: useANSI,
	}, nil
}

// EnableSDL switches to the SDL window backend. Fails unless the binary was
// built with -tags sdl.
func (r *Renderer) EnableSDL() error {
	return r.initSDL(r.width, r.height)
}

// Resize updates the framebuffer dimensions.
func (r *Renderer) Resize(width, height int) {
	if width > 0 {
		r.width = width
	}
	if height > 0 {
		r.height = height
	}
	r.resizeSDL()
}

// Close releases any window resources.
func (r *Renderer) Close() error { return r.closeSDL() }

// Render draws the mascot under the given composite transform.
func (r *Renderer) Render(t gesture.Transform, state rhythm.State, groove, fps float64) Frame {
	r.frame++
	if r.mode == backendSDL {
		return r.renderSDL(t, state, groove, fps)
	}

	lines := make([]string, r.height)
	aspect := 0.5 // terminal cells are roughly twice as tall as wide
	for y := 0; y < r.height; y++ {
		var builder strings.Builder
		builder.Grow(r.width * 8)
		lastColor := -1
		vy := (float64(y)/float64(r.height-1) - 0.5) * 2.0
		for x := 0; x < r.width; x++ {
			vx := (float64(x)/float64(r.width-1) - 0.5) * 2.0 / aspect
			b := r.sample(vx, vy, t)
			if r.useANSI {
				if fg := colorFor(b, t.Glow); fg != lastColor {
					builder.WriteString(precomputedANSI[fg])
					lastColor = fg
				}
			}
			builder.WriteRune(glyphFor(b))
		}
		if r.useANSI {
			builder.WriteString(resetANSI)
		}
		lines[y] = builder.String()
	}

	return Frame{
		Lines:  lines,
		Status: r.buildStatus(state, groove, fps),
	}
}

// sample evaluates mascot brightness at viewport coordinates in [-1,1].
func (r *Renderer) sample(vx, vy float64, t gesture.Transform) float64 {
	// offsets are in mascot-radius units; a +5 offset walks the body well
	// off-center without leaving the viewport at default scale
	px := vx - t.OffsetX*0.08
	py := vy + t.OffsetY*0.08

	cos := math.Cos(-t.Rotation)
	sin := math.Sin(-t.Rotation)
	rx := px*cos - py*sin
	ry := px*sin + py*cos

	sx := t.Scale * t.ScaleX * 0.45
	sy := t.Scale * t.ScaleY * 0.45
	if sx < 1e-6 || sy < 1e-6 {
		return 0
	}

	dist := math.Hypot(rx/sx, ry/sy)
	body := clamp01(1.2 - dist)
	body = body * body

	// rotation marker: a bright notch so spins read on screen
	angle := math.Atan2(ry, rx)
	notch := clamp01(1.0-math.Abs(angle)*2.0) * clamp01(1.0-math.Abs(dist-0.75)*4.0)

	b := clamp01(body + notch*0.6)
	b *= 0.7 + 0.3*clamp01(t.Glow)

	if t.ParticleBurst && dist > 1.0 && dist < 2.2 {
		if sparkle(rx, ry, r.frame) < 0.15 {
			b = 1.0
		}
	}
	return b
}

func (r *Renderer) buildStatus(state rhythm.State, groove, fps float64) string {
	return fmt.Sprintf("%s  %.1f bpm  lock %d  groove %.2f  %.0f fps",
		state.Marker(), state.BPM, state.LockStage, groove, fps)
}

func glyphFor(b float64) rune {
	idx := int(b*float64(len(glyphRamp)-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(glyphRamp) {
		idx = len(glyphRamp) - 1
	}
	return glyphRamp[idx]
}

// colorFor maps brightness onto the 256-color grayscale ramp, shifted warm
// as glow rises.
func colorFor(b, glow float64) int {
	if b <= 0.02 {
		return 232
	}
	if glow > 0.5 {
		// orange ramp 208..214
		return 208 + int(clamp01(b)*6)
	}
	return 232 + int(clamp01(b)*23)
}

// sparkle is a cheap hash in [0,1) used for particle placement.
func sparkle(x, y float64, frame uint64) float64 {
	h := math.Sin(x*127.1+y*311.7+float64(frame%64)*0.73) * 43758.5453
	return h - math.Floor(h)
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
