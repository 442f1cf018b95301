package colorgrade

import (
	colorful "github.com/lucasb-eyer/go-colorful"
)

// Grader is a compiled color correction. Stages that are identity in the
// source ColorCorrection are compiled out entirely, so grading with a neutral
// correction costs nothing per pixel.
type Grader struct {
	stages []func(r, g, b float64) (float64, float64, float64)
}

// NewGrader compiles a correction snapshot. The snapshot is copied by value;
// later mutation of the caller's ColorCorrection does not affect the grader.
func NewGrader(cc ColorCorrection) *Grader {
	g := &Grader{}
	if !cc.IsLabIdentity() {
		scale, offset := cc.LabScale, cc.LabOffset
		g.stages = append(g.stages, func(r, gr, b float64) (float64, float64, float64) {
			l, a, bb := rgb2lab(r, gr, b)
			l = clamp(l*scale[0]+offset[0], 0, 255)
			a = clamp(a*scale[1]+offset[1], 0, 255)
			bb = clamp(bb*scale[2]+offset[2], 0, 255)
			return lab2rgb(l, a, bb)
		})
	}
	if !cc.IsLegacyIdentity() {
		legacy := cc
		g.stages = append(g.stages, legacy.applyLegacy)
	}
	return g
}

// IsIdentity reports whether the grader is a compiled no-op.
func (g *Grader) IsIdentity() bool { return len(g.stages) == 0 }

// Apply grades one RGB sample in [0,1].
func (g *Grader) Apply(r, gr, b float64) (float64, float64, float64) {
	for _, stage := range g.stages {
		r, gr, b = stage(r, gr, b)
	}
	return r, gr, b
}

// applyLegacy is the original brightness/contrast chain: balance gains,
// temperature shift, additive brightness, contrast about mid-gray, then
// saturation via an RGB-HSL round trip scaling the S channel.
func (cc ColorCorrection) applyLegacy(r, g, b float64) (float64, float64, float64) {
	r *= cc.ColorBalance[0]
	g *= cc.ColorBalance[1]
	b *= cc.ColorBalance[2]

	r += cc.Temperature * 0.1
	b -= cc.Temperature * 0.1

	r += cc.Brightness
	g += cc.Brightness
	b += cc.Brightness

	r = (r-0.5)*cc.Contrast + 0.5
	g = (g-0.5)*cc.Contrast + 0.5
	b = (b-0.5)*cc.Contrast + 0.5

	r, g, b = clamp01(r), clamp01(g), clamp01(b)

	if cc.Saturation != 1 {
		h, s, l := colorful.Color{R: r, G: g, B: b}.Hsl()
		s = clamp01(s * cc.Saturation)
		c := colorful.Hsl(h, s, l).Clamped()
		r, g, b = c.R, c.G, c.B
	}
	return r, g, b
}
