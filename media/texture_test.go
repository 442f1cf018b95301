package media

import (
	"image"
	"image/color"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"github.com/reco-project/video-stitcher/fisheye"
)

// stacked frame: bottom half (left camera) red, top half (right camera) blue.
func stackedTestFrame() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		c := color.RGBA{0, 0, 255, 255}
		if y >= 4 {
			c = color.RGBA{255, 0, 0, 255}
		}
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestPackedTextureHalves(t *testing.T) {
	tex := NewPackedTexture(stackedTestFrame())

	// v runs bottom-up: the lower half is the left camera.
	r, g, b, a := tex.Sample(r2.Point{X: 0.5, Y: 0.25})
	test.That(t, [4]float64{r, g, b, a}, test.ShouldResemble, [4]float64{1, 0, 0, 1})

	r, g, b, a = tex.Sample(r2.Point{X: 0.5, Y: 0.75})
	test.That(t, [4]float64{r, g, b, a}, test.ShouldResemble, [4]float64{0, 0, 1, 1})

	// Outside the packed space is transparent.
	_, _, _, a = tex.Sample(r2.Point{X: -0.01, Y: 0.5})
	test.That(t, a, test.ShouldEqual, 0.0)
	_, _, _, a = tex.Sample(r2.Point{X: 0.5, Y: 1.01})
	test.That(t, a, test.ShouldEqual, 0.0)
}

func TestHalfTextureStretch(t *testing.T) {
	// A standalone left-camera frame answers only lower-half coordinates,
	// stretched over the whole image.
	frame := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			frame.SetRGBA(x, y, color.RGBA{0, 255, 0, 255})
		}
	}

	left := NewHalfTexture(frame, fisheye.SideLeft)
	_, g, _, a := left.Sample(r2.Point{X: 0.5, Y: 0.25})
	test.That(t, g, test.ShouldEqual, 1.0)
	test.That(t, a, test.ShouldEqual, 1.0)
	_, _, _, a = left.Sample(r2.Point{X: 0.5, Y: 0.75})
	test.That(t, a, test.ShouldEqual, 0.0)

	right := NewHalfTexture(frame, fisheye.SideRight)
	_, g, _, a = right.Sample(r2.Point{X: 0.5, Y: 0.75})
	test.That(t, g, test.ShouldEqual, 1.0)
	test.That(t, a, test.ShouldEqual, 1.0)
	_, _, _, a = right.Sample(r2.Point{X: 0.5, Y: 0.25})
	test.That(t, a, test.ShouldEqual, 0.0)
}

func TestExtractHalfGeometry(t *testing.T) {
	src := stackedTestFrame()

	left := ExtractHalf(src, fisheye.SideLeft, 8, 4)
	c := left.RGBAAt(4, 2)
	test.That(t, c.R, test.ShouldEqual, uint8(255))
	test.That(t, c.B, test.ShouldEqual, uint8(0))

	right := ExtractHalf(src, fisheye.SideRight, 8, 4)
	c = right.RGBAAt(4, 2)
	test.That(t, c.R, test.ShouldEqual, uint8(0))
	test.That(t, c.B, test.ShouldEqual, uint8(255))

	// Scaling to a different target size keeps the content.
	scaled := ExtractHalf(src, fisheye.SideLeft, 16, 8)
	test.That(t, scaled.Bounds().Dx(), test.ShouldEqual, 16)
	c = scaled.RGBAAt(8, 4)
	test.That(t, c.R, test.ShouldEqual, uint8(255))
}
