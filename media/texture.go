package media

import (
	"image"

	"github.com/golang/geo/r2"

	"github.com/reco-project/video-stitcher/fisheye"
)

// Texture samples colors from the packed (two-camera) texture coordinate
// space: u in [0,1] across, v in [0,1] up, left camera in the lower half and
// right camera in the upper half. Returned channels are in [0,1].
type Texture interface {
	Sample(p r2.Point) (r, g, b, a float64)
}

// packedTexture is a single vertically-stacked frame holding both cameras.
type packedTexture struct {
	img image.Image
}

// NewPackedTexture wraps one vertically-stacked decoded frame.
func NewPackedTexture(img image.Image) Texture {
	return &packedTexture{img: img}
}

func (t *packedTexture) Sample(p r2.Point) (float64, float64, float64, float64) {
	return samplePixel(t.img, p.X, p.Y)
}

// halfTexture exposes a single camera's frame as one half of a virtual
// packed texture, for sessions decoding two independent streams.
type halfTexture struct {
	img image.Image
	lo  float64
	hi  float64
}

// NewHalfTexture wraps one camera's decoded frame as the given side's half of
// the packed coordinate space. Samples outside the half are transparent.
func NewHalfTexture(img image.Image, side fisheye.Side) Texture {
	lo, hi := side.HalfRange()
	return &halfTexture{img: img, lo: lo, hi: hi}
}

func (t *halfTexture) Sample(p r2.Point) (float64, float64, float64, float64) {
	if p.Y < t.lo || p.Y > t.hi {
		return 0, 0, 0, 0
	}
	// Stretch the half back over the full frame.
	return samplePixel(t.img, p.X, (p.Y-t.lo)*2)
}

// samplePixel reads the nearest pixel to a normalized coordinate, with v=0 at
// the bottom of the image.
func samplePixel(img image.Image, u, v float64) (float64, float64, float64, float64) {
	if u < 0 || u > 1 || v < 0 || v > 1 {
		return 0, 0, 0, 0
	}
	bounds := img.Bounds()
	x := bounds.Min.X + int(u*float64(bounds.Dx()-1)+0.5)
	y := bounds.Min.Y + int((1-v)*float64(bounds.Dy()-1)+0.5)
	r, g, b, a := img.At(x, y).RGBA()
	const max = float64(0xffff)
	return float64(r) / max, float64(g) / max, float64(b) / max, float64(a) / max
}
