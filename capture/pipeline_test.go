package capture

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/reco-project/video-stitcher/compose"
	"github.com/reco-project/video-stitcher/fisheye"
	"github.com/reco-project/video-stitcher/logging"
	"github.com/reco-project/video-stitcher/media/fake"
)

func captureIntrinsics() *fisheye.CameraIntrinsics {
	return &fisheye.CameraIntrinsics{
		Width: 1920, Height: 1080,
		Fx: 0.45, Fy: 0.45,
		Cx: 0.5, Cy: 0.5,
	}
}

func stackedFrame(bottom, top color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 72))
	for y := 0; y < 72; y++ {
		c := top
		if y >= 36 {
			c = bottom
		}
		for x := 0; x < 64; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	test.That(t, err, test.ShouldBeNil)
	return img
}

func TestCanvasContract(t *testing.T) {
	logger := logging.NewTestLogger(t)
	_, err := NewPipeline(compose.NewRenderer(640, 480), clock.New(), logger)
	test.That(t, err, test.ShouldNotBeNil)

	p, err := NewPipeline(compose.NewRenderer(CanvasWidth, CanvasHeight), clock.New(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldNotBeNil)
}

func TestExtractStackedPair(t *testing.T) {
	logger := logging.NewTestLogger(t)
	green := color.RGBA{0, 255, 0, 255}
	magenta := color.RGBA{255, 0, 255, 255}
	src := fake.NewSource(stackedFrame(green, magenta))

	p := NewPipelineWithRenderer(compose.NewRenderer(64, 36), clock.New(), logger)
	pair, err := p.Extract(context.Background(), src, src, 12.5, captureIntrinsics(), captureIntrinsics())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pair.RequestID, test.ShouldNotEqual, uuid.Nil)

	// The same stacked source is seeked once per side.
	test.That(t, src.Seeks(), test.ShouldResemble, []float64{12.5, 12.5})

	// Each side's still shows only its own camera half, ungraded.
	left := decodePNG(t, pair.Left)
	r, g, b, a := left.At(32, 18).RGBA()
	test.That(t, [4]uint32{r >> 8, g >> 8, b >> 8, a >> 8}, test.ShouldResemble, [4]uint32{0, 255, 0, 255})

	right := decodePNG(t, pair.Right)
	r, g, b, a = right.At(32, 18).RGBA()
	test.That(t, [4]uint32{r >> 8, g >> 8, b >> 8, a >> 8}, test.ShouldResemble, [4]uint32{255, 0, 255, 255})
}

func TestExtractLeftBeforeRight(t *testing.T) {
	logger := logging.NewTestLogger(t)
	frame := stackedFrame(color.RGBA{255, 255, 255, 255}, color.RGBA{255, 255, 255, 255})
	leftSrc := fake.NewSource(frame)
	rightSrc := fake.NewSource(frame)

	var mu sync.Mutex
	var order []string
	leftSrc.SetSeekHook(func(float64) {
		mu.Lock()
		order = append(order, "left")
		mu.Unlock()
	})
	rightSrc.SetSeekHook(func(float64) {
		mu.Lock()
		order = append(order, "right")
		mu.Unlock()
	})

	p := NewPipelineWithRenderer(compose.NewRenderer(64, 36), clock.New(), logger)
	_, err := p.Extract(context.Background(), leftSrc, rightSrc, 3, captureIntrinsics(), captureIntrinsics())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, order, test.ShouldResemble, []string{"left", "right"})
}

func TestExtractFailureAbortsPair(t *testing.T) {
	logger := logging.NewTestLogger(t)
	frame := stackedFrame(color.RGBA{9, 9, 9, 255}, color.RGBA{9, 9, 9, 255})
	p := NewPipelineWithRenderer(compose.NewRenderer(64, 36), clock.New(), logger)

	// A left-side fault stops the pair before the right side is touched.
	leftSrc := fake.NewSource(frame)
	rightSrc := fake.NewSource(frame)
	leftSrc.FailFrames(errors.New("decoder gone"))
	pair, err := p.Extract(context.Background(), leftSrc, rightSrc, 1, captureIntrinsics(), captureIntrinsics())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, pair, test.ShouldBeNil)
	test.That(t, rightSrc.Seeks(), test.ShouldBeEmpty)

	// A right-side fault discards the already-captured left still.
	leftSrc = fake.NewSource(frame)
	rightSrc = fake.NewSource(frame)
	rightSrc.FailNextSeek(errors.New("stream hiccup"))
	pair, err = p.Extract(context.Background(), leftSrc, rightSrc, 1, captureIntrinsics(), captureIntrinsics())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, pair, test.ShouldBeNil)
}

func TestExtractInvalidIntrinsics(t *testing.T) {
	logger := logging.NewTestLogger(t)
	frame := stackedFrame(color.RGBA{9, 9, 9, 255}, color.RGBA{9, 9, 9, 255})
	src := fake.NewSource(frame)
	p := NewPipelineWithRenderer(compose.NewRenderer(64, 36), clock.New(), logger)

	// Both samplers are validated before any media is touched.
	_, err := p.Extract(context.Background(), src, src, 1, captureIntrinsics(), &fisheye.CameraIntrinsics{})
	test.That(t, errors.Is(err, fisheye.ErrNoIntrinsics), test.ShouldBeTrue)
	test.That(t, src.Seeks(), test.ShouldBeEmpty)
}

func TestExtractTimeout(t *testing.T) {
	logger := logging.NewTestLogger(t)
	frame := stackedFrame(color.RGBA{9, 9, 9, 255}, color.RGBA{9, 9, 9, 255})
	leftSrc := fake.NewSource(frame)
	rightSrc := fake.NewSource(frame)
	leftSrc.BlockFrames()

	clk := clock.NewMock()
	p := NewPipelineWithRenderer(compose.NewRenderer(64, 36), clk, logger)

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Extract(context.Background(), leftSrc, rightSrc, 2, captureIntrinsics(), captureIntrinsics())
		errCh <- err
	}()

	// Let the capture goroutine park on its first decode, then run the
	// deadline out on the mock clock.
	time.Sleep(100 * time.Millisecond)
	clk.Add(SideRenderTimeout)

	err := <-errCh
	test.That(t, errors.Is(err, ErrCaptureTimeout), test.ShouldBeTrue)
	test.That(t, rightSrc.Seeks(), test.ShouldBeEmpty)
}
