// Package colorgrade applies the per-camera color correction the calibration
// service computes: a Reinhard-style LAB transfer followed by the legacy
// brightness/contrast/saturation channel.
package colorgrade

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ColorCorrection is one camera side's correction state, as produced by the
// auto color match. Both channels may be non-identity at once; the LAB
// transfer is applied before the legacy fields.
type ColorCorrection struct {
	Brightness   float64    `json:"brightness"`
	Contrast     float64    `json:"contrast"`
	Saturation   float64    `json:"saturation"`
	ColorBalance [3]float64 `json:"colorBalance"`
	Temperature  float64    `json:"temperature"`
	LabScale     [3]float64 `json:"labScale"`
	LabOffset    [3]float64 `json:"labOffset"`
}

// Identity returns the neutral correction: applying it leaves every color
// unchanged.
func Identity() ColorCorrection {
	return ColorCorrection{
		Contrast:     1,
		Saturation:   1,
		ColorBalance: [3]float64{1, 1, 1},
		LabScale:     [3]float64{1, 1, 1},
	}
}

// IsLabIdentity reports whether the LAB transfer channel is a no-op.
func (cc ColorCorrection) IsLabIdentity() bool {
	return cc.LabScale == [3]float64{1, 1, 1} && cc.LabOffset == [3]float64{}
}

// IsLegacyIdentity reports whether the legacy channel is a no-op.
func (cc ColorCorrection) IsLegacyIdentity() bool {
	return cc.Brightness == 0 &&
		cc.Contrast == 1 &&
		cc.Saturation == 1 &&
		cc.ColorBalance == [3]float64{1, 1, 1} &&
		cc.Temperature == 0
}

// Pair is the calibration service's color match response: one correction per
// camera side, the right side carrying the Reinhard transfer toward the left.
type Pair struct {
	Left  ColorCorrection `json:"left"`
	Right ColorCorrection `json:"right"`
}

// ParsePair decodes and validates a color match response.
func ParsePair(data []byte) (Pair, error) {
	// The service omits fields it leaves neutral, so decode over identity.
	pair := Pair{Left: Identity(), Right: Identity()}
	if err := json.Unmarshal(data, &pair); err != nil {
		return Pair{}, errors.Wrap(err, "cannot decode color correction")
	}
	if err := pair.Left.CheckValid(); err != nil {
		return Pair{}, errors.Wrap(err, "left")
	}
	if err := pair.Right.CheckValid(); err != nil {
		return Pair{}, errors.Wrap(err, "right")
	}
	return pair, nil
}

// CheckValid enforces the ranges the calibration service promises for the
// legacy channel.
func (cc ColorCorrection) CheckValid() error {
	if cc.Brightness < -0.5 || cc.Brightness > 0.5 {
		return errors.Errorf("brightness %f out of range [-0.5, 0.5]", cc.Brightness)
	}
	if cc.Contrast < 0.5 || cc.Contrast > 1.5 {
		return errors.Errorf("contrast %f out of range [0.5, 1.5]", cc.Contrast)
	}
	if cc.Saturation < 0 || cc.Saturation > 2 {
		return errors.Errorf("saturation %f out of range [0, 2]", cc.Saturation)
	}
	if cc.Temperature < -1 || cc.Temperature > 1 {
		return errors.Errorf("temperature %f out of range [-1, 1]", cc.Temperature)
	}
	return nil
}
