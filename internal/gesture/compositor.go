package gesture

// Transform is the per-frame composite output handed to the renderer. It is
// rebuilt from scratch every frame so identical inputs always reproduce the
// identical result.
type Transform struct {
	OffsetX  float64
	OffsetY  float64
	Scale    float64
	ScaleX   float64
	ScaleY   float64
	Rotation float64

	// Auxiliary signals from Effect gestures; never scaled by groove
	// intensity and never part of the geometry.
	Glow          float64
	ParticleBurst bool
}

// Identity returns the transform that moves nothing.
func Identity() Transform {
	return Transform{Scale: 1, ScaleX: 1, ScaleY: 1}
}

// Compositor resolves all active instances into one transform per frame.
type Compositor struct{}

// NewCompositor creates a Compositor.
func NewCompositor() *Compositor { return &Compositor{} }

// Composite combines the active instances under the blend-type resolution
// rules and scales the geometric result by grooveIntensity. Blending
// contributions are summed (offsets, rotation) or multiplied (scale), so the
// result is independent of instance order within each partition.
func (c *Compositor) Composite(active []*Instance, grooveIntensity float64) Transform {
	g := clamp01(grooveIntensity)

	blend := Identity()
	blendGlow := 0.0
	effectGlow := 0.0
	particles := false
	var override *Instance

	for _, inst := range active {
		if inst == nil || inst.Def == nil {
			continue
		}
		switch inst.Def.Blend {
		case Blending:
			contrib := inst.Contribution()
			blend.OffsetX += contrib.OffsetX
			blend.OffsetY += contrib.OffsetY
			blend.Rotation += contrib.Rotation
			blend.Scale *= contrib.Scale
			blend.ScaleX *= contrib.ScaleX
			blend.ScaleY *= contrib.ScaleY
			blendGlow += contrib.Glow
		case Override:
			override = pickOverride(override, inst)
		case Effect:
			contrib := inst.Contribution()
			effectGlow += contrib.Glow
			particles = particles || contrib.Particles
		}
	}

	out := blend
	if override != nil {
		contrib := override.Contribution()
		mask := override.Def.Channels
		if mask.Has(ChannelOffset) {
			out.OffsetX = contrib.OffsetX
			out.OffsetY = contrib.OffsetY
		}
		if mask.Has(ChannelScale) {
			out.Scale = contrib.Scale
			out.ScaleX = contrib.ScaleX
			out.ScaleY = contrib.ScaleY
		}
		if mask.Has(ChannelRotation) {
			out.Rotation = contrib.Rotation
		}
		if mask.Has(ChannelGlow) {
			blendGlow = contrib.Glow
		}
	}

	out.OffsetX *= g
	out.OffsetY *= g
	out.Rotation *= g
	out.Scale = 1 + (out.Scale-1)*g
	out.ScaleX = 1 + (out.ScaleX-1)*g
	out.ScaleY = 1 + (out.ScaleY-1)*g

	out.Glow = blendGlow*g + effectGlow
	out.ParticleBurst = particles
	return out
}

// pickOverride resolves the defensive case of two Override instances being
// visible on the same frame. The scheduler keeps at most one active; if a
// replaced instance is still completing, the further-along one wins, with
// name order as the tiebreak so the choice stays order-independent.
func pickOverride(a, b *Instance) *Instance {
	if a == nil {
		return b
	}
	if b.Progress != a.Progress {
		if b.Progress > a.Progress {
			return b
		}
		return a
	}
	if b.Def.Name < a.Def.Name {
		return b
	}
	return a
}
