// Package fisheye implements the projective undistortion model used to sample
// a fisheye camera frame from a point on the output panorama plane.
package fisheye

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intrinsics are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// CameraIntrinsics holds the parameters of one fisheye camera. Fx/Fy are focal
// lengths in normalized-plane units (pixels over image width/height) and Cx/Cy
// the plane-normalized principal point. DistortionCoeffs are the k1..k4 terms
// of the forward fisheye_kb4 distortion polynomial.
type CameraIntrinsics struct {
	Width            int        `json:"width_px"`
	Height           int        `json:"height_px"`
	Fx               float64    `json:"fx"`
	Fy               float64    `json:"fy"`
	Cx               float64    `json:"cx"`
	Cy               float64    `json:"cy"`
	DistortionCoeffs [4]float64 `json:"distortion_coeffs"`
}

// CheckValid checks if the fields for CameraIntrinsics have valid inputs.
func (ci *CameraIntrinsics) CheckValid() error {
	if ci == nil {
		return NewNoIntrinsicsError("intrinsics do not exist")
	}
	if ci.Width <= 0 || ci.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("invalid size (%#v, %#v)", ci.Width, ci.Height))
	}
	if ci.Fx <= 0 || ci.Fy <= 0 {
		return NewNoIntrinsicsError("focal lengths must be positive")
	}
	return nil
}

// lensProfile is the calibration service's lens profile payload.
type lensProfile struct {
	ID              string `json:"id"`
	DistortionModel string `json:"distortion_model"`
	Resolution      struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"resolution"`
	CameraMatrix struct {
		Fx float64 `json:"fx"`
		Fy float64 `json:"fy"`
		Cx float64 `json:"cx"`
		Cy float64 `json:"cy"`
	} `json:"camera_matrix"`
	DistortionCoeffs []float64 `json:"distortion_coeffs"`
}

// ParseLensProfile decodes a lens profile document from the calibration
// service into CameraIntrinsics, enforcing the same validation rules the
// service does. Only the fisheye_kb4 distortion model is supported.
func ParseLensProfile(data []byte) (*CameraIntrinsics, error) {
	var prof lensProfile
	if err := json.Unmarshal(data, &prof); err != nil {
		return nil, errors.Wrap(err, "cannot decode lens profile")
	}
	if prof.DistortionModel != "fisheye_kb4" {
		return nil, errors.Errorf("unsupported distortion model %q", prof.DistortionModel)
	}
	if len(prof.DistortionCoeffs) != 4 {
		return nil, errors.Errorf(
			"distortion_coeffs must contain exactly 4 values for fisheye_kb4 model, got %d",
			len(prof.DistortionCoeffs))
	}
	intrinsics := &CameraIntrinsics{
		Width:  prof.Resolution.Width,
		Height: prof.Resolution.Height,
		Fx:     prof.CameraMatrix.Fx,
		Fy:     prof.CameraMatrix.Fy,
		Cx:     prof.CameraMatrix.Cx,
		Cy:     prof.CameraMatrix.Cy,
	}
	copy(intrinsics.DistortionCoeffs[:], prof.DistortionCoeffs)
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	return intrinsics, nil
}
