package colorgrade

import "math"

// The LAB transfer operates in the calibration service's color space: CIE Lab
// with a D65 white point, rescaled into an 0-255 convention (L·255/100,
// a+128, b+128). The conversions are written out here rather than borrowed
// from a color library because that 0-255 scaling is a wire convention the
// correction parameters are expressed in.

const (
	labEpsilon = 216.0 / 24389.0
	labKappa   = 24389.0 / 27.0

	// D65 reference white.
	whiteX = 0.95047
	whiteY = 1.0
	whiteZ = 1.08883
)

func srgbToLinear(c float64) float64 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

func linearToSrgb(c float64) float64 {
	if c <= 0.0031308 {
		return 12.92 * c
	}
	return 1.055*math.Pow(c, 1.0/2.4) - 0.055
}

func labForward(t float64) float64 {
	if t > labEpsilon {
		return math.Cbrt(t)
	}
	return (labKappa*t + 16) / 116
}

func labInverse(t float64) float64 {
	if t3 := t * t * t; t3 > labEpsilon {
		return t3
	}
	return (116*t - 16) / labKappa
}

// rgb2lab converts an sRGB color in [0,1] to 0-255-scaled Lab.
func rgb2lab(r, g, b float64) (l, a, bb float64) {
	lr := srgbToLinear(r)
	lg := srgbToLinear(g)
	lb := srgbToLinear(b)

	x := 0.4124564*lr + 0.3575761*lg + 0.1804375*lb
	y := 0.2126729*lr + 0.7151522*lg + 0.0721750*lb
	z := 0.0193339*lr + 0.1191920*lg + 0.9503041*lb

	fx := labForward(x / whiteX)
	fy := labForward(y / whiteY)
	fz := labForward(z / whiteZ)

	l = (116*fy - 16) * 255.0 / 100.0
	a = 500*(fx-fy) + 128
	bb = 200*(fy-fz) + 128
	return l, a, bb
}

// lab2rgb converts 0-255-scaled Lab back to sRGB, clamping to [0,1].
func lab2rgb(l, a, bb float64) (r, g, b float64) {
	ll := l * 100.0 / 255.0
	fy := (ll + 16) / 116
	fx := fy + (a-128)/500
	fz := fy - (bb-128)/200

	x := labInverse(fx) * whiteX
	y := labInverse(fy) * whiteY
	z := labInverse(fz) * whiteZ

	lr := 3.2404542*x - 1.5371385*y - 0.4985314*z
	lg := -0.9692660*x + 1.8760108*y + 0.0415560*z
	lb := 0.0556434*x - 0.2040259*y + 1.0572252*z

	return clamp01(linearToSrgb(lr)), clamp01(linearToSrgb(lg)), clamp01(linearToSrgb(lb))
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
