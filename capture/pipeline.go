// Package capture drives the one-shot offscreen renders that produce the
// still frames the calibration service computes stitching geometry from.
package capture

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	viamutils "go.viam.com/utils"

	"github.com/reco-project/video-stitcher/compose"
	"github.com/reco-project/video-stitcher/fisheye"
	"github.com/reco-project/video-stitcher/logging"
	"github.com/reco-project/video-stitcher/media"
)

const (
	// CanvasWidth and CanvasHeight fix the capture resolution; calibration
	// operates on pixel-equivalent input to the composited export.
	CanvasWidth  = 1920
	CanvasHeight = 1080

	// settleFrames re-renders let the decode/sampling pipeline reach steady
	// state before the frame is trusted.
	settleFrames = 10
	settleDelay  = 100 * time.Millisecond

	// sideTimeout aborts a stalled render rather than hanging the pair.
	sideTimeout = 5 * time.Second
)

// ErrCaptureTimeout is returned when a side's settle/encode exceeds the hard
// timeout. Callers treat it like a decode fault and may retry at another
// timestamp.
var ErrCaptureTimeout = errors.New("capture timed out waiting for a stable render")

// FramePair is one capture request's result: both sides' encoded stills,
// handed to the caller for upload and not retained here.
type FramePair struct {
	RequestID uuid.UUID
	Left      []byte
	Right     []byte
}

// Pipeline produces FramePairs. It renders strictly sequentially, left then
// right, into the shared render target.
type Pipeline struct {
	renderer *compose.Renderer
	clk      clock.Clock
	logger   logging.Logger
}

// NewPipeline wraps the shared render target, which must match the capture
// canvas contract.
func NewPipeline(renderer *compose.Renderer, clk clock.Clock, logger logging.Logger) (*Pipeline, error) {
	width, height := renderer.Size()
	if width != CanvasWidth || height != CanvasHeight {
		return nil, errors.Errorf("capture requires a %dx%d render target, got %dx%d",
			CanvasWidth, CanvasHeight, width, height)
	}
	return newPipeline(renderer, clk, logger), nil
}

func newPipeline(renderer *compose.Renderer, clk clock.Clock, logger logging.Logger) *Pipeline {
	return &Pipeline{renderer: renderer, clk: clk, logger: logger}
}

// Extract renders both sides' undistorted calibration frames at the target
// timestamp. leftSrc and rightSrc may be the same vertically-stacked source
// or two independent streams. Any failure aborts the whole pair; a partial
// pair is never returned.
func (p *Pipeline) Extract(
	ctx context.Context,
	leftSrc, rightSrc media.Source,
	seconds float64,
	leftIntrinsics, rightIntrinsics *fisheye.CameraIntrinsics,
) (*FramePair, error) {
	leftSampler, err := fisheye.NewSampler(fisheye.SideLeft, leftIntrinsics)
	if err != nil {
		return nil, err
	}
	rightSampler, err := fisheye.NewSampler(fisheye.SideRight, rightIntrinsics)
	if err != nil {
		return nil, err
	}

	pair := &FramePair{RequestID: uuid.New()}
	stacked := leftSrc == rightSrc

	p.logger.Infow("extracting calibration pair", "request", pair.RequestID, "at", seconds)
	pair.Left, err = p.captureSide(ctx, leftSrc, leftSampler, seconds, stacked)
	if err != nil {
		return nil, errors.Wrap(err, "left capture")
	}
	pair.Right, err = p.captureSide(ctx, rightSrc, rightSampler, seconds, stacked)
	if err != nil {
		return nil, errors.Wrap(err, "right capture")
	}
	return pair, nil
}

type sideResult struct {
	buf []byte
	err error
}

// captureSide runs one side's protocol under the hard timeout.
func (p *Pipeline) captureSide(
	ctx context.Context,
	src media.Source,
	sampler *fisheye.Sampler,
	seconds float64,
	stacked bool,
) ([]byte, error) {
	sideCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan sideResult, 1)
	viamutils.PanicCapturingGo(func() {
		buf, err := p.renderSide(sideCtx, src, sampler, seconds, stacked)
		done <- sideResult{buf: buf, err: err}
	})

	select {
	case res := <-done:
		return res.buf, res.err
	case <-p.clk.After(sideTimeout):
		cancel()
		<-done
		return nil, errors.Wrapf(ErrCaptureTimeout, "%s side at %0.3fs", sampler.Side(), seconds)
	case <-ctx.Done():
		cancel()
		<-done
		return nil, ctx.Err()
	}
}

func (p *Pipeline) renderSide(
	ctx context.Context,
	src media.Source,
	sampler *fisheye.Sampler,
	seconds float64,
	stacked bool,
) ([]byte, error) {
	if err := src.Seek(ctx, seconds); err != nil {
		return nil, err
	}

	cam := compose.NewCalibrationCamera()
	pass := compose.Pass{
		Plane:   compose.Plane{},
		Sampler: sampler,
	}

	render := func() (*image.RGBA, error) {
		frame, err := src.Frame(ctx)
		if err != nil {
			return nil, errors.Wrap(media.ErrDecode, err.Error())
		}
		if stacked {
			pass.Texture = media.NewPackedTexture(frame)
		} else {
			pass.Texture = media.NewHalfTexture(frame, sampler.Side())
		}
		return p.renderer.Render(cam, []compose.Pass{pass}), nil
	}

	for i := 0; i < settleFrames; i++ {
		if _, err := render(); err != nil {
			return nil, err
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.clk.After(settleDelay):
	}

	out, err := render()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, errors.Wrap(err, "cannot encode capture")
	}
	p.logger.Debugw("captured side", "side", sampler.Side(), "bytes", buf.Len())
	return buf.Bytes(), nil
}
