package mediasync

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/reco-project/video-stitcher/logging"
	"github.com/reco-project/video-stitcher/media"
	"github.com/reco-project/video-stitcher/media/fake"
)

func newTestPair(primaryAt float64) (*fake.Source, *fake.Source) {
	frame := image.NewRGBA(image.Rect(0, 0, 2, 2))
	primary := fake.NewSource(frame)
	primary.SetCurrentTime(primaryAt)
	secondary := fake.NewSource(frame)
	return primary, secondary
}

func TestStartSeeksSecondaryToOffset(t *testing.T) {
	logger := logging.NewTestLogger(t)
	primary, secondary := newTestPair(10)

	c := NewController(primary, secondary, Options{OffsetSeconds: 2}, clock.New(), logger)
	defer c.Stop()

	test.That(t, c.State(), test.ShouldEqual, StateIdle)
	test.That(t, c.Start(context.Background()), test.ShouldBeNil)
	test.That(t, c.State(), test.ShouldEqual, StateSyncing)
	test.That(t, secondary.Seeks(), test.ShouldResemble, []float64{12})

	// Already running; a second Start is a caller bug.
	err := c.Start(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFrameDriftCorrection(t *testing.T) {
	logger := logging.NewTestLogger(t)
	primary, secondary := newTestPair(10)

	c := NewController(primary, secondary, Options{OffsetSeconds: 2}, clock.New(), logger)
	defer c.Stop()
	test.That(t, c.Start(context.Background()), test.ShouldBeNil)

	// In tolerance: the secondary sits at 12 while the target drifts to
	// 12.1, well under the 500ms frame-path tolerance.
	primary.Advance(0.1)
	test.That(t, secondary.Seeks(), test.ShouldResemble, []float64{12})

	// Out of tolerance: one corrective seek back to primary + offset.
	secondary.SetCurrentTime(13)
	primary.Advance(0.1)
	test.That(t, secondary.Seeks(), test.ShouldResemble, []float64{12, 12.2})

	// The seek restored alignment; no further correction.
	primary.Advance(0.1)
	test.That(t, secondary.Seeks(), test.ShouldResemble, []float64{12, 12.2})
}

func TestOnSyncNeedsBothSides(t *testing.T) {
	logger := logging.NewTestLogger(t)
	primary, secondary := newTestPair(5)

	c := NewController(primary, secondary, Options{OffsetSeconds: 0}, clock.New(), logger)
	defer c.Stop()

	var fired []media.FrameInfo
	c.OnSync(func(p, s media.FrameInfo) {
		fired = append(fired, p, s)
	})
	test.That(t, c.Start(context.Background()), test.ShouldBeNil)

	// Nothing until the secondary has reported at least once.
	primary.Advance(0.1)
	test.That(t, fired, test.ShouldBeEmpty)

	secondary.Advance(0.1)
	primary.Advance(0.1)
	test.That(t, len(fired), test.ShouldEqual, 2)
	test.That(t, fired[0].PresentationTime, test.ShouldAlmostEqual, 5.2)
	test.That(t, fired[1].PresentationTime, test.ShouldAlmostEqual, 5.1)
}

func TestPollingFallback(t *testing.T) {
	logger := logging.NewTestLogger(t)
	primary, secondary := newTestPair(10)
	primary.DisableFrameCallbacks()
	secondary.DisableFrameCallbacks()

	clk := clock.NewMock()
	c := NewController(primary, secondary, Options{OffsetSeconds: 2}, clk, logger)
	defer c.Stop()
	test.That(t, c.Start(context.Background()), test.ShouldBeNil)
	test.That(t, c.State(), test.ShouldEqual, StateSyncing)

	// Aligned: ticks come and go without a seek.
	clk.Add(DefaultPollInterval)
	time.Sleep(50 * time.Millisecond)
	test.That(t, secondary.Seeks(), test.ShouldResemble, []float64{12})

	// 30ms of drift stays inside the 50ms polling tolerance.
	secondary.SetCurrentTime(12.03)
	clk.Add(DefaultPollInterval)
	time.Sleep(50 * time.Millisecond)
	test.That(t, secondary.Seeks(), test.ShouldResemble, []float64{12})

	// 80ms of drift does not.
	secondary.SetCurrentTime(12.08)
	clk.Add(DefaultPollInterval)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, secondary.Seeks(), test.ShouldResemble, []float64{12, 12})
	})
}

func TestPollingReportsLatestMetadata(t *testing.T) {
	logger := logging.NewTestLogger(t)
	primary, secondary := newTestPair(10)
	primary.DisableFrameCallbacks()
	secondary.DisableFrameCallbacks()

	clk := clock.NewMock()
	c := NewController(primary, secondary, Options{OffsetSeconds: 2}, clk, logger)
	defer c.Stop()

	var mu sync.Mutex
	var secondaryTimes []float64
	c.OnSync(func(_, s media.FrameInfo) {
		mu.Lock()
		secondaryTimes = append(secondaryTimes, s.PresentationTime)
		mu.Unlock()
	})
	test.That(t, c.Start(context.Background()), test.ShouldBeNil)

	clk.Add(DefaultPollInterval)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		mu.Lock()
		defer mu.Unlock()
		test.That(tb, secondaryTimes, test.ShouldNotBeEmpty)
		test.That(tb, secondaryTimes[len(secondaryTimes)-1], test.ShouldAlmostEqual, 12)
	})

	// The secondary creeps forward within tolerance; each cycle still
	// reports its current time, not the first one observed.
	secondary.SetCurrentTime(12.04)
	clk.Add(DefaultPollInterval)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		mu.Lock()
		defer mu.Unlock()
		test.That(tb, secondaryTimes[len(secondaryTimes)-1], test.ShouldAlmostEqual, 12.04)
	})
	test.That(t, secondary.Seeks(), test.ShouldResemble, []float64{12})
}

func TestSecondaryRegistrationFault(t *testing.T) {
	logger := logging.NewTestLogger(t)
	primary, secondary := newTestPair(10)
	secondary.FailOnFrame(errors.New("decoder detached"))

	c := NewController(primary, secondary, Options{OffsetSeconds: 2}, clock.New(), logger)
	defer c.Stop()

	err := c.Start(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, c.State(), test.ShouldEqual, StateStopped)
	test.That(t, c.Err(), test.ShouldNotBeNil)
}

func TestSeekFailureStopsSync(t *testing.T) {
	logger := logging.NewTestLogger(t)
	primary, secondary := newTestPair(10)

	c := NewController(primary, secondary, Options{OffsetSeconds: 2}, clock.New(), logger)
	defer c.Stop()
	test.That(t, c.Start(context.Background()), test.ShouldBeNil)

	secondary.FailNextSeek(errors.New("pipe closed"))
	secondary.SetCurrentTime(99)
	primary.Advance(0.1)

	test.That(t, c.State(), test.ShouldEqual, StateStopped)
	test.That(t, c.Err(), test.ShouldNotBeNil)

	// Dead controllers ignore further frames.
	primary.Advance(0.1)
	test.That(t, secondary.Seeks(), test.ShouldResemble, []float64{12})
}

func TestStopIsIdempotent(t *testing.T) {
	logger := logging.NewTestLogger(t)
	primary, secondary := newTestPair(10)

	c := NewController(primary, secondary, Options{OffsetSeconds: 2}, clock.New(), logger)
	test.That(t, c.Start(context.Background()), test.ShouldBeNil)

	c.Stop()
	test.That(t, c.State(), test.ShouldEqual, StateStopped)
	c.Stop()

	// Registrations are gone; a wildly drifted frame triggers nothing.
	secondary.SetCurrentTime(40)
	primary.Advance(0.1)
	test.That(t, secondary.Seeks(), test.ShouldResemble, []float64{12})

	// A stopped controller cannot be restarted.
	err := c.Start(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestInitialSeekFailure(t *testing.T) {
	logger := logging.NewTestLogger(t)
	primary, secondary := newTestPair(10)
	secondary.FailNextSeek(errors.New("no keyframe"))

	c := NewController(primary, secondary, Options{OffsetSeconds: 2}, clock.New(), logger)
	defer c.Stop()

	err := c.Start(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, c.State(), test.ShouldEqual, StateStopped)
	test.That(t, c.Err(), test.ShouldNotBeNil)
}
