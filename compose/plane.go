package compose

import (
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// PlaneWidth is the width of each camera's projection rectangle.
	PlaneWidth = 1.0
	// PlaneHeight keeps the rectangle at the source's 16:9 aspect.
	PlaneHeight = PlaneWidth * 9.0 / 16.0
)

// Plane is one camera's projection rectangle: width 1, height 9/16, centered
// on its local origin in the local XY plane, facing local +Z.
type Plane struct {
	Position mgl64.Vec3
	// Rotation holds euler angles in degrees, applied Y then X then Z.
	Rotation mgl64.Vec3
}

// Model returns the plane's local-to-world matrix.
func (p Plane) Model() mgl64.Mat4 {
	rot := mgl64.HomogRotate3DY(mgl64.DegToRad(p.Rotation.Y())).
		Mul4(mgl64.HomogRotate3DX(mgl64.DegToRad(p.Rotation.X()))).
		Mul4(mgl64.HomogRotate3DZ(mgl64.DegToRad(p.Rotation.Z())))
	return mgl64.Translate3D(p.Position.X(), p.Position.Y(), p.Position.Z()).Mul4(rot)
}

// ScenePlanes positions the two rectangles from the calibration scalars:
// the left plane swings 90° about Y to face the viewer from one side of the
// seam, the right plane faces +Z from the other, and intersect slides both
// toward the origin until the seam closes at intersect = 1.
func ScenePlanes(params StitchParameters) (left, right Plane) {
	separation := 0.5 * (1 - params.Intersect)
	left = Plane{
		Position: mgl64.Vec3{0, 0, separation},
		Rotation: mgl64.Vec3{params.ZRx, 90, 0},
	}
	right = Plane{
		Position: mgl64.Vec3{separation, params.XTy, 0},
		Rotation: mgl64.Vec3{0, 0, params.XRz},
	}
	return left, right
}
