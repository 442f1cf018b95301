package compose

import (
	"context"
	"image"
	"sync"

	"github.com/reco-project/video-stitcher/colorgrade"
	"github.com/reco-project/video-stitcher/fisheye"
	"github.com/reco-project/video-stitcher/logging"
	"github.com/reco-project/video-stitcher/media"
)

// renderKey is the value-compared snapshot a compiled scene was built from.
// Any change to it rebuilds samplers, graders and plane placement; partially
// mutated state never reaches an active render.
type renderKey struct {
	params StitchParameters
	left   colorgrade.ColorCorrection
	right  colorgrade.ColorCorrection
}

// Composer renders the stitched panorama: two textured planes, left drawn
// first as the opaque base layer, right composited over the seam.
type Composer struct {
	renderer *Renderer
	logger   logging.Logger

	leftIntrinsics  fisheye.CameraIntrinsics
	rightIntrinsics fisheye.CameraIntrinsics

	mu           sync.Mutex
	key          renderKey
	camera       Camera
	leftPlane    Plane
	rightPlane   Plane
	leftSampler  *fisheye.Sampler
	rightSampler *fisheye.Sampler
	leftGrader   *colorgrade.Grader
	rightGrader  *colorgrade.Grader
}

// NewComposer validates the calibration inputs and compiles the initial
// scene. Missing or malformed intrinsics are a hard precondition failure; no
// render is attempted with them.
func NewComposer(
	renderer *Renderer,
	leftIntrinsics, rightIntrinsics *fisheye.CameraIntrinsics,
	params StitchParameters,
	logger logging.Logger,
) (*Composer, error) {
	if err := leftIntrinsics.CheckValid(); err != nil {
		return nil, err
	}
	if err := rightIntrinsics.CheckValid(); err != nil {
		return nil, err
	}
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	c := &Composer{
		renderer:        renderer,
		logger:          logger,
		leftIntrinsics:  *leftIntrinsics,
		rightIntrinsics: *rightIntrinsics,
		key: renderKey{
			params: params,
			left:   colorgrade.Identity(),
			right:  colorgrade.Identity(),
		},
	}
	if err := c.rebuildLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

// Recalibrate replaces the stitch parameters wholesale.
func (c *Composer) Recalibrate(params StitchParameters) error {
	if err := params.CheckValid(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if params == c.key.params {
		return nil
	}
	c.key.params = params
	return c.rebuildLocked()
}

// SetColorCorrection replaces one side's correction wholesale.
func (c *Composer) SetColorCorrection(side fisheye.Side, cc colorgrade.ColorCorrection) error {
	if err := cc.CheckValid(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if side == fisheye.SideLeft {
		if cc == c.key.left {
			return nil
		}
		c.key.left = cc
	} else {
		if cc == c.key.right {
			return nil
		}
		c.key.right = cc
	}
	return c.rebuildLocked()
}

// Params returns the active stitch parameter snapshot.
func (c *Composer) Params() StitchParameters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key.params
}

// Planes returns the current placement of the two rectangles.
func (c *Composer) Planes() (left, right Plane) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leftPlane, c.rightPlane
}

func (c *Composer) rebuildLocked() error {
	leftSampler, err := fisheye.NewSampler(fisheye.SideLeft, &c.leftIntrinsics)
	if err != nil {
		return err
	}
	rightSampler, err := fisheye.NewSampler(fisheye.SideRight, &c.rightIntrinsics)
	if err != nil {
		return err
	}
	width, height := c.renderer.Size()
	c.camera = NewPanoramaCamera(c.key.params.CameraAxisOffset, float64(width)/float64(height))
	c.leftPlane, c.rightPlane = ScenePlanes(c.key.params)
	c.leftSampler = leftSampler
	c.rightSampler = rightSampler
	c.leftGrader = colorgrade.NewGrader(c.key.left)
	c.rightGrader = colorgrade.NewGrader(c.key.right)
	c.logger.Debugw("scene rebuilt",
		"intersect", c.key.params.Intersect,
		"cameraAxisOffset", c.key.params.CameraAxisOffset,
		"blendWidth", c.key.params.BlendWidth,
	)
	return nil
}

// Render composites one output frame from the two current textures. Draw
// order is fixed: left first with depth write and no blending, then right,
// alpha-blended with depth write disabled only when a seam blend is
// configured. The returned image is owned by the renderer until the next
// render.
func (c *Composer) Render(ctx context.Context, leftTex, rightTex media.Texture) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	blend := c.key.params.BlendWidth > 0
	passes := []Pass{
		{
			Plane:   c.leftPlane,
			Sampler: c.leftSampler,
			Grader:  c.leftGrader,
			Texture: leftTex,
		},
		{
			Plane:      c.rightPlane,
			Sampler:    c.rightSampler,
			Grader:     c.rightGrader,
			Texture:    rightTex,
			Blend:      blend,
			BlendWidth: c.key.params.BlendWidth,
		},
	}
	cam := c.camera
	c.mu.Unlock()

	return c.renderer.Render(cam, passes), nil
}
