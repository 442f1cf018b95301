package fisheye

import (
	"math"

	"github.com/pkg/errors"
)

// KannalaBrandt is the forward fisheye distortion model for wide-angle lenses:
// an incidence angle θ maps to the distorted angle
//
//	θ_d = θ·(1 + k1·θ² + k2·θ⁴ + k3·θ⁶ + k4·θ⁸)
//
// which is the fisheye_kb4 model the calibration service produces
// coefficients for.
type KannalaBrandt struct {
	K1 float64 `json:"k1"`
	K2 float64 `json:"k2"`
	K3 float64 `json:"k3"`
	K4 float64 `json:"k4"`
}

// NewKannalaBrandt takes in a slice of exactly four coefficients that will be
// passed into the struct in order.
func NewKannalaBrandt(inp []float64) (*KannalaBrandt, error) {
	if len(inp) != 4 {
		return nil, errors.Errorf("fisheye_kb4 expects exactly 4 coefficients, got %d", len(inp))
	}
	return &KannalaBrandt{inp[0], inp[1], inp[2], inp[3]}, nil
}

// Parameters returns the coefficients of the distortion model as a list of floats.
func (kb *KannalaBrandt) Parameters() []float64 {
	if kb == nil {
		return []float64{}
	}
	return []float64{kb.K1, kb.K2, kb.K3, kb.K4}
}

// DistortAngle applies the forward polynomial to an incidence angle.
func (kb *KannalaBrandt) DistortAngle(theta float64) float64 {
	t2 := theta * theta
	t4 := t2 * t2
	t6 := t4 * t2
	t8 := t4 * t4
	return theta * (1 + kb.K1*t2 + kb.K2*t4 + kb.K3*t6 + kb.K4*t8)
}

// ScaleFactor returns the sampling-space scale to apply to a plane coordinate
// at radius r from the plane origin: θ_d/θ for θ = atan(r), or exactly 1 at
// the origin (and whenever all coefficients are zero).
func (kb *KannalaBrandt) ScaleFactor(r float64) float64 {
	if r == 0 {
		return 1
	}
	theta := math.Atan(r)
	return kb.DistortAngle(theta) / theta
}
