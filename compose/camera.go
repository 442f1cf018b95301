package compose

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// PanoramaFOVDegrees is the fixed horizontal field of view of the composite
// viewer camera.
const PanoramaFOVDegrees = 75.0

// Camera is the virtual viewer for an offscreen render.
type Camera struct {
	Eye    mgl64.Vec3
	Center mgl64.Vec3
	// FovY is the vertical field of view in radians.
	FovY   float64
	Aspect float64
}

// NewPanoramaCamera places the viewer on the symmetric diagonal between the
// two planes, looking at the origin. The axis offset is the single scalar
// that controls how open the stitched seam angle appears.
func NewPanoramaCamera(cameraAxisOffset, aspect float64) Camera {
	fovX := mgl64.DegToRad(PanoramaFOVDegrees)
	return Camera{
		Eye:    mgl64.Vec3{cameraAxisOffset, 0, cameraAxisOffset},
		Center: mgl64.Vec3{0, 0, 0},
		FovY:   2 * math.Atan(math.Tan(fovX/2)/aspect),
		Aspect: aspect,
	}
}

// NewCalibrationCamera faces a single unrotated plane head-on from distance 1
// with the plane exactly filling the viewport height. Calibration captures
// and the composited export must share this geometry so the calibration
// service operates on pixel-equivalent input.
func NewCalibrationCamera() Camera {
	return Camera{
		Eye:    mgl64.Vec3{0, 0, 1},
		Center: mgl64.Vec3{0, 0, 0},
		FovY:   2 * math.Atan((PlaneHeight/2)/1),
		Aspect: 16.0 / 9.0,
	}
}

// ViewProjection returns the combined projection*view matrix.
func (c Camera) ViewProjection() mgl64.Mat4 {
	view := mgl64.LookAtV(c.Eye, c.Center, mgl64.Vec3{0, 1, 0})
	proj := mgl64.Perspective(c.FovY, c.Aspect, 0.01, 100)
	return proj.Mul4(view)
}
