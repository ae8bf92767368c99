package gesture

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrUnknownGesture is returned when a trigger names a gesture absent from
// the registry.
var ErrUnknownGesture = errors.New("unknown gesture")

// Registry is the static table of gesture definitions.
type Registry struct {
	defs map[string]*Definition
}

// NewRegistry returns a registry preloaded with the built-in gesture set.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[string]*Definition)}
	for _, def := range builtins() {
		r.defs[def.Name] = def
	}
	return r
}

// Register adds a custom definition. Names are case-insensitive and must be
// unique; registering replaces any builtin of the same name.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.Name == "" {
		return errors.New("gesture definition requires a name")
	}
	if def.DurationBeats <= 0 {
		return fmt.Errorf("gesture %q: duration must be positive", def.Name)
	}
	if def.Curve == nil {
		return fmt.Errorf("gesture %q: curve is required", def.Name)
	}
	r.defs[strings.ToLower(def.Name)] = def
	return nil
}

// Lookup resolves a gesture by name.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	def, ok := r.defs[strings.ToLower(name)]
	return def, ok
}

// Names lists all registered gestures sorted alphabetically.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.defs))
	for name := range r.defs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// The fifteen emotional states the engine animates.
var emotions = []string{
	"neutral", "joy", "sadness", "anger", "fear", "surprise", "disgust",
	"love", "suspicion", "excited", "resting", "euphoria", "focused",
	"glitch", "calm",
}

var upbeat = []string{"joy", "excited", "euphoria", "love", "surprise"}
var grounded = []string{"neutral", "calm", "resting", "focused", "sadness"}

// builtins is the stock gesture vocabulary.
func builtins() []*Definition {
	return []*Definition{
		{
			Name: "bounce", Blend: Blending, DurationBeats: 2,
			CompatibleEmotions: upbeat,
			Curve: func(p float64) Contribution {
				c := Neutral()
				c.OffsetY = -12 * math.Abs(math.Sin(2*math.Pi*p))
				return c
			},
		},
		{
			Name: "sway", Blend: Blending, DurationBeats: 4,
			CompatibleEmotions: grounded,
			Curve: func(p float64) Contribution {
				c := Neutral()
				c.OffsetX = 8 * math.Sin(2*math.Pi*p)
				c.Rotation = 0.06 * math.Sin(2*math.Pi*p)
				return c
			},
		},
		{
			Name: "pulse", Blend: Blending, DurationBeats: 1,
			Curve: func(p float64) Contribution {
				c := Neutral()
				c.Scale = 1 + 0.15*math.Sin(math.Pi*p)
				return c
			},
		},
		{
			Name: "pop", Blend: Blending, DurationBeats: 0.5,
			Curve: func(p float64) Contribution {
				c := Neutral()
				c.Scale = 1 + 0.3*decay(p, 6)
				c.OffsetY = -5 * decay(p, 6)
				return c
			},
		},
		{
			Name: "nod", Blend: Blending, DurationBeats: 1,
			CompatibleEmotions: grounded,
			Curve: func(p float64) Contribution {
				c := Neutral()
				c.OffsetY = 6 * math.Sin(math.Pi*p)
				return c
			},
		},
		{
			Name: "wiggle", Blend: Blending, DurationBeats: 1,
			CompatibleEmotions: upbeat,
			Curve: func(p float64) Contribution {
				c := Neutral()
				c.OffsetX = 4 * math.Sin(6*math.Pi*p) * (1 - p)
				return c
			},
		},
		{
			Name: "spin", Blend: Override, DurationBeats: 2,
			Channels:           ChannelRotation,
			CompatibleEmotions: upbeat,
			Curve: func(p float64) Contribution {
				c := Neutral()
				c.Rotation = 2 * math.Pi * easeInOut(p)
				return c
			},
		},
		{
			Name: "twist", Blend: Override, DurationBeats: 1.5,
			Channels: ChannelRotation | ChannelScale,
			Curve: func(p float64) Contribution {
				c := Neutral()
				c.Rotation = 0.8 * math.Sin(2*math.Pi*easeInOut(p))
				c.ScaleX = 1 - 0.2*math.Sin(math.Pi*p)
				return c
			},
		},
		{
			Name: "stretch", Blend: Override, DurationBeats: 2,
			Channels: ChannelScale | ChannelOffset,
			Curve: func(p float64) Contribution {
				c := Neutral()
				arc := math.Sin(math.Pi * p)
				c.ScaleY = 1 + 0.4*arc
				c.ScaleX = 1 - 0.15*arc
				c.OffsetY = -10 * arc
				return c
			},
		},
		{
			Name: "flash", Blend: Effect, DurationBeats: 0.5,
			Channels: ChannelGlow,
			Curve: func(p float64) Contribution {
				c := Neutral()
				c.Glow = decay(p, 8)
				return c
			},
		},
		{
			Name: "sparkle", Blend: Effect, DurationBeats: 2,
			Channels:           ChannelGlow,
			CompatibleEmotions: upbeat,
			Curve: func(p float64) Contribution {
				c := Neutral()
				c.Glow = 0.4 + 0.3*math.Sin(8*math.Pi*p)
				c.Particles = p < 0.25
				return c
			},
		},
		{
			Name: "shimmer", Blend: Effect, DurationBeats: 1,
			Channels: ChannelGlow,
			Curve: func(p float64) Contribution {
				c := Neutral()
				c.Glow = 0.5 * math.Sin(math.Pi*p)
				return c
			},
		},
	}
}

// Emotions returns the engine's emotional vocabulary.
func Emotions() []string {
	out := make([]string, len(emotions))
	copy(out, emotions)
	return out
}

func easeInOut(p float64) float64 {
	return 0.5 * (1 - math.Cos(math.Pi*clamp01(p)))
}

// decay is a sharp attack with an exponential tail, normalized so decay(0)=1.
func decay(p, rate float64) float64 {
	return math.Exp(-rate * clamp01(p))
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
