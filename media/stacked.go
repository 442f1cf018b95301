package media

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/reco-project/video-stitcher/fisheye"
)

// ExtractHalf copies one camera's half out of a vertically-stacked frame,
// scaling to targetW x targetH when the half's own size differs. The left
// camera is the lower half of the stack.
func ExtractHalf(img image.Image, side fisheye.Side, targetW, targetH int) *image.RGBA {
	bounds := img.Bounds()
	halfH := bounds.Dy() / 2
	var srcRect image.Rectangle
	if side == fisheye.SideLeft {
		srcRect = image.Rect(bounds.Min.X, bounds.Min.Y+halfH, bounds.Max.X, bounds.Max.Y)
	} else {
		srcRect = image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Min.Y+halfH)
	}
	out := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.ApproxBiLinear.Scale(out, out.Bounds(), img, srcRect, draw.Src, nil)
	return out
}
