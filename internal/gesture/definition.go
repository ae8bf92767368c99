package gesture

import "strings"

// BlendType classifies how a gesture's contribution is resolved against
// everything else active on the same frame. The set is closed; the
// compositor switches over it exhaustively.
type BlendType int

const (
	// Blending gestures layer additively with one another.
	Blending BlendType = iota
	// Override gestures replace the blended motion on the channels they claim.
	Override
	// Effect gestures never touch geometry; they only emit auxiliary signals.
	Effect
)

func (b BlendType) String() string {
	switch b {
	case Blending:
		return "blending"
	case Override:
		return "override"
	case Effect:
		return "effect"
	}
	return "unknown"
}

// ChannelMask declares which transform channels an Override gesture claims.
type ChannelMask uint8

const (
	ChannelOffset ChannelMask = 1 << iota
	ChannelScale
	ChannelRotation
	ChannelGlow
)

// Has reports whether the mask claims the given channel.
func (m ChannelMask) Has(ch ChannelMask) bool { return m&ch != 0 }

// Contribution is one gesture's raw output for a frame, computed from its
// progress. Offset, rotation and glow are additive with zero as neutral;
// the scale channels are multiplicative with one as neutral.
type Contribution struct {
	OffsetX   float64
	OffsetY   float64
	Scale     float64
	ScaleX    float64
	ScaleY    float64
	Rotation  float64
	Glow      float64
	Particles bool
}

// Neutral returns the contribution that changes nothing.
func Neutral() Contribution {
	return Contribution{Scale: 1, ScaleX: 1, ScaleY: 1}
}

// CurveFunc maps gesture progress in [0,1] to a transform contribution.
type CurveFunc func(progress float64) Contribution

// Definition is an immutable gesture description loaded once at startup.
type Definition struct {
	Name               string
	Blend              BlendType
	DurationBeats      float64
	Channels           ChannelMask
	Curve              CurveFunc
	CompatibleEmotions []string
}

// CompatibleWith reports whether the gesture fits the given emotional state.
// An empty compatibility set means the gesture suits every emotion.
func (d *Definition) CompatibleWith(emotion string) bool {
	if len(d.CompatibleEmotions) == 0 {
		return true
	}
	for _, e := range d.CompatibleEmotions {
		if strings.EqualFold(e, emotion) {
			return true
		}
	}
	return false
}
