package compose

import (
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"

	"github.com/reco-project/video-stitcher/colorgrade"
	"github.com/reco-project/video-stitcher/fisheye"
	"github.com/reco-project/video-stitcher/media"
)

// Pass renders one textured plane. Passes composite in order: an opaque pass
// depth-tests and writes depth, a blended pass alpha-composites over what is
// already there without writing depth.
type Pass struct {
	Plane   Plane
	Sampler *fisheye.Sampler
	Grader  *colorgrade.Grader
	Texture media.Texture
	// Blend enables alpha compositing with depth-write disabled.
	Blend bool
	// BlendWidth fades the plane in from its seam-side edge over this many
	// plane units. Only honored on blended passes.
	BlendWidth float64
}

// Renderer rasterizes passes into a fixed-size offscreen target by casting a
// ray per output pixel. The target is exclusively owned by whichever
// component is currently rendering; Render is serialized internally.
type Renderer struct {
	mu     sync.Mutex
	width  int
	height int
	img    *image.RGBA
	depth  []float64
}

// NewRenderer allocates a render target.
func NewRenderer(width, height int) *Renderer {
	return &Renderer{
		width:  width,
		height: height,
		img:    image.NewRGBA(image.Rect(0, 0, width, height)),
		depth:  make([]float64, width*height),
	}
}

// Size returns the target dimensions.
func (r *Renderer) Size() (int, int) { return r.width, r.height }

// Render draws the passes in order and returns the target. The returned
// image is reused by the next Render call; encode or copy it before then.
func (r *Renderer) Render(cam Camera, passes []Pass) *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.depth {
		r.depth[i] = math.Inf(1)
	}
	for i := range r.img.Pix {
		r.img.Pix[i] = 0
	}

	invVP := cam.ViewProjection().Inv()
	for _, pass := range passes {
		r.renderPass(cam, invVP, pass)
	}
	return r.img
}

func (r *Renderer) renderPass(cam Camera, invVP mgl64.Mat4, pass Pass) {
	invModel := pass.Plane.Model().Inv()
	localEye := invModel.Mul4x1(cam.Eye.Vec4(1)).Vec3()

	for py := 0; py < r.height; py++ {
		for px := 0; px < r.width; px++ {
			// Unproject the pixel center to a world-space ray.
			ndcX := 2*(float64(px)+0.5)/float64(r.width) - 1
			ndcY := 1 - 2*(float64(py)+0.5)/float64(r.height)
			far := invVP.Mul4x1(mgl64.Vec4{ndcX, ndcY, 1, 1})
			dir := far.Vec3().Mul(1 / far.W()).Sub(cam.Eye).Normalize()

			localDir := invModel.Mul4x1(dir.Vec4(0)).Vec3()
			if math.Abs(localDir.Z()) < 1e-12 {
				continue
			}
			t := -localEye.Z() / localDir.Z()
			if t <= 0 {
				continue
			}
			lx := localEye.X() + t*localDir.X()
			ly := localEye.Y() + t*localDir.Y()
			if math.Abs(lx) > PlaneWidth/2 || math.Abs(ly) > PlaneHeight/2 {
				continue
			}

			idx := py*r.width + px
			if t >= r.depth[idx] {
				continue
			}

			sr, sg, sb, sa := r.shade(pass, lx, ly)
			if sa <= 0 {
				continue
			}
			if pass.Blend {
				r.blendPixel(px, py, sr, sg, sb, sa)
				continue
			}
			r.img.SetRGBA(px, py, color.RGBA{
				R: uint8(sr*255 + 0.5),
				G: uint8(sg*255 + 0.5),
				B: uint8(sb*255 + 0.5),
				A: uint8(sa*255 + 0.5),
			})
			r.depth[idx] = t
		}
	}
}

// shade samples the fisheye texture at a plane-local coordinate and grades
// the color. Alpha 0 means the sample fell outside the camera's field of
// view, or outside the texture half; blended passes additionally fade in
// from the seam-side edge.
func (r *Renderer) shade(pass Pass, lx, ly float64) (float64, float64, float64, float64) {
	texCoord, ok := pass.Sampler.Map(r2.Point{X: lx, Y: ly})
	if !ok {
		return 0, 0, 0, 0
	}
	sr, sg, sb, sa := pass.Texture.Sample(texCoord)
	if sa <= 0 {
		return 0, 0, 0, 0
	}
	if pass.Grader != nil {
		sr, sg, sb = pass.Grader.Apply(sr, sg, sb)
	}
	if pass.Blend && pass.BlendWidth > 0 {
		edge := (lx + PlaneWidth/2) / pass.BlendWidth
		if edge < 1 {
			sa *= math.Max(0, edge)
		}
	}
	return sr, sg, sb, sa
}

func (r *Renderer) blendPixel(px, py int, sr, sg, sb, sa float64) {
	dst := r.img.RGBAAt(px, py)
	out := color.RGBA{
		R: uint8((sr*sa+float64(dst.R)/255*(1-sa))*255 + 0.5),
		G: uint8((sg*sa+float64(dst.G)/255*(1-sa))*255 + 0.5),
		B: uint8((sb*sa+float64(dst.B)/255*(1-sa))*255 + 0.5),
		A: uint8((sa+float64(dst.A)/255*(1-sa))*255 + 0.5),
	}
	r.img.SetRGBA(px, py, out)
}
