package fisheye

import (
	"math"

	"github.com/golang/geo/r2"
)

// Side selects which camera a sampler belongs to. The two camera feeds share
// one vertically-packed source texture: the left camera occupies the lower
// half (v in [0, 0.5]) and the right camera the upper half (v in [0.5, 1]).
type Side int

const (
	// SideLeft is the left camera feed.
	SideLeft Side = iota
	// SideRight is the right camera feed.
	SideRight
)

// String returns the conventional name of the side.
func (s Side) String() string {
	if s == SideLeft {
		return "left"
	}
	return "right"
}

// HalfRange returns the [lo, hi) vertical extent of the side's half of the
// packed source texture.
func (s Side) HalfRange() (lo, hi float64) {
	if s == SideLeft {
		return 0, 0.5
	}
	return 0.5, 1
}

// Sampler maps a point on an output panorama plane to a sampling coordinate
// in the packed fisheye source texture. One sampler is built per (side,
// intrinsics) pair so the pixel kernel carries no per-side branching.
type Sampler struct {
	side       Side
	intrinsics CameraIntrinsics
	distortion KannalaBrandt
	vBase      float64
}

// NewSampler builds a sampler for one camera side. The intrinsics are copied;
// the caller's value is never retained or mutated.
func NewSampler(side Side, intrinsics *CameraIntrinsics) (*Sampler, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	kb, err := NewKannalaBrandt(intrinsics.DistortionCoeffs[:])
	if err != nil {
		return nil, err
	}
	lo, _ := side.HalfRange()
	return &Sampler{
		side:       side,
		intrinsics: *intrinsics,
		distortion: *kb,
		vBase:      lo,
	}, nil
}

// Side returns which camera the sampler belongs to.
func (s *Sampler) Side() Side { return s.side }

// Map converts a plane-space coordinate into a source-texture coordinate.
// The second return is false when the point projects outside the camera's
// field of view; such samples must be rendered fully transparent.
func (s *Sampler) Map(p r2.Point) (r2.Point, bool) {
	scale := s.distortion.ScaleFactor(math.Hypot(p.X, p.Y))
	u := s.intrinsics.Fx*p.X*scale + s.intrinsics.Cx
	v := s.intrinsics.Fy*p.Y*scale + s.intrinsics.Cy
	if u < 0 || u > 1 || v < 0 || v > 1 {
		return r2.Point{}, false
	}
	// Collapse the per-camera image into the side's vertical half of the
	// packed texture.
	return r2.Point{X: u, Y: s.vBase + v*0.5}, true
}
