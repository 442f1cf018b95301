// Package compose arranges the two undistorted camera planes in 3D and
// renders the stitched panorama offscreen.
package compose

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// StitchParameters are the five calibration scalars plus the seam blend
// extent, as produced by the calibration service's position optimizer. Values
// are replaced wholesale on recalibration, never mutated in place while a
// render holds them.
type StitchParameters struct {
	// CameraAxisOffset is the distance of the virtual viewer from the origin
	// along the symmetric diagonal between the two planes.
	CameraAxisOffset float64 `json:"cameraAxisOffset"`
	// Intersect controls plane separation; 1 fully closes the seam.
	Intersect float64 `json:"intersect"`
	// XTy, XRz and ZRx are small corrective translations/rotations.
	XTy float64 `json:"xTy"`
	XRz float64 `json:"xRz"`
	ZRx float64 `json:"zRx"`
	// BlendWidth is the seam cross-fade extent in plane units; 0 is a hard edge.
	BlendWidth float64 `json:"blendWidth"`
}

// DefaultStitchParameters returns the neutral parameter set used before the
// first calibration.
func DefaultStitchParameters() StitchParameters {
	return StitchParameters{CameraAxisOffset: 0.7, Intersect: 0.5}
}

// CheckValid validates the ranges the composer relies on.
func (sp StitchParameters) CheckValid() error {
	if sp.Intersect < 0 || sp.Intersect > 1 {
		return errors.Errorf("intersect %f out of range [0, 1]", sp.Intersect)
	}
	if sp.BlendWidth < 0 {
		return errors.Errorf("blendWidth %f must be >= 0", sp.BlendWidth)
	}
	return nil
}

// ParseStitchParameters decodes and validates a calibration service payload.
func ParseStitchParameters(data []byte) (StitchParameters, error) {
	var sp StitchParameters
	if err := json.Unmarshal(data, &sp); err != nil {
		return StitchParameters{}, errors.Wrap(err, "cannot decode stitch parameters")
	}
	if err := sp.CheckValid(); err != nil {
		return StitchParameters{}, err
	}
	return sp, nil
}
