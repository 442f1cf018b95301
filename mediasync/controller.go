// Package mediasync keeps two independently decoding media sources aligned
// to a known time offset.
package mediasync

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	viamutils "go.viam.com/utils"

	"github.com/reco-project/video-stitcher/logging"
	"github.com/reco-project/video-stitcher/media"
)

// State is the controller's lifecycle position.
type State int

// The controller moves strictly forward through these states.
const (
	StateIdle State = iota
	StateLoading
	StateSeeking
	StateSyncing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSeeking:
		return "seeking"
	case StateSyncing:
		return "syncing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Drift tolerances are explicit durations. The original compared a raw 500
// against second-denominated times on the frame-notification path, so
// correction never fired there; typed thresholds make the units impossible
// to mix up.
const (
	DefaultFrameDriftTolerance = 500 * time.Millisecond
	DefaultPollDriftTolerance  = 50 * time.Millisecond
	// DefaultPollInterval approximates a 60Hz display refresh.
	DefaultPollInterval = time.Second / 60
)

// Options configures a Controller.
type Options struct {
	// OffsetSeconds is the known alignment: secondary time = primary time + offset.
	OffsetSeconds float64
	// FrameDriftTolerance applies on the per-frame-notification path.
	FrameDriftTolerance time.Duration
	// PollDriftTolerance applies on the polling fallback path.
	PollDriftTolerance time.Duration
	// PollInterval is the fallback polling rate.
	PollInterval time.Duration
}

func (o *Options) fillDefaults() {
	if o.FrameDriftTolerance <= 0 {
		o.FrameDriftTolerance = DefaultFrameDriftTolerance
	}
	if o.PollDriftTolerance <= 0 {
		o.PollDriftTolerance = DefaultPollDriftTolerance
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
}

// Controller owns one synchronization session between two sources. It
// prefers per-decoded-frame notifications from the primary and falls back to
// a fixed-rate polling loop when the source cannot deliver them.
type Controller struct {
	primary   media.Source
	secondary media.Source
	opts      Options
	clk       clock.Clock
	logger    logging.Logger

	mu            sync.Mutex
	state         State
	err           error
	cancelCtx     context.Context
	cancelFunc    func()
	registrations []func()
	workers       sync.WaitGroup
	onSync        []func(primary, secondary media.FrameInfo)
	lastPrimary   *media.FrameInfo
	lastSecondary *media.FrameInfo
	correcting    bool
}

// NewController builds a controller; Start begins synchronization.
func NewController(
	primary, secondary media.Source,
	opts Options,
	clk clock.Clock,
	logger logging.Logger,
) *Controller {
	opts.fillDefaults()
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	return &Controller{
		primary:    primary,
		secondary:  secondary,
		opts:       opts,
		clk:        clk,
		logger:     logger,
		state:      StateIdle,
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err reports why the sync loop stopped, if it stopped on a fault.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// OnSync registers a diagnostic callback invoked each sync cycle once both
// sides have delivered at least one notification.
func (c *Controller) OnSync(fn func(primary, secondary media.FrameInfo)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSync = append(c.onSync, fn)
}

// Start waits for both sources' first frames, seeks the secondary to the
// offset, and enters the continuous synchronization loop. It returns once
// the loop is running.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return errors.Errorf("cannot start sync from state %q", state)
	}
	c.state = StateLoading
	c.mu.Unlock()

	if err := c.primary.WaitFirstFrame(ctx); err != nil {
		return c.fail(errors.Wrap(err, "primary source never became ready"))
	}
	if err := c.secondary.WaitFirstFrame(ctx); err != nil {
		return c.fail(errors.Wrap(err, "secondary source never became ready"))
	}

	c.setState(StateSeeking)
	target := c.primary.CurrentTime() + c.opts.OffsetSeconds
	if err := c.secondary.Seek(ctx, target); err != nil {
		return c.fail(errors.Wrapf(err, "initial seek to %0.3fs", target))
	}

	c.setState(StateSyncing)

	// Secondary metadata feeds the diagnostic callback only; drift
	// correction is always driven from the primary side.
	secondaryReg, err := c.secondary.OnFrame(c.handleSecondaryFrame)
	switch {
	case err == nil:
		c.addRegistration(secondaryReg)
	case errors.Is(err, media.ErrFrameCallbackUnsupported):
		// Polling fills the secondary metadata in instead.
	default:
		return c.fail(errors.Wrap(err, "cannot register secondary frame callback"))
	}

	cancelReg, err := c.primary.OnFrame(c.handlePrimaryFrame)
	switch {
	case err == nil:
		c.addRegistration(cancelReg)
		c.logger.Debugw("sync running on per-frame notifications",
			"offset", c.opts.OffsetSeconds, "tolerance", c.opts.FrameDriftTolerance)
	case errors.Is(err, media.ErrFrameCallbackUnsupported):
		// Not an error; poll at the display refresh rate with the tighter
		// tolerance instead.
		c.startPolling()
		c.logger.Debugw("sync running on polling fallback",
			"offset", c.opts.OffsetSeconds, "tolerance", c.opts.PollDriftTolerance)
	default:
		return c.fail(errors.Wrap(err, "cannot register frame callback"))
	}
	return nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) fail(err error) error {
	c.mu.Lock()
	c.state = StateStopped
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	return err
}

func (c *Controller) addRegistration(cancelReg func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registrations = append(c.registrations, cancelReg)
}

func (c *Controller) handlePrimaryFrame(info media.FrameInfo) {
	c.mu.Lock()
	if c.state != StateSyncing {
		c.mu.Unlock()
		return
	}
	c.lastPrimary = &info
	c.mu.Unlock()

	c.correctDrift(info.PresentationTime, c.opts.FrameDriftTolerance)
	c.fireOnSync()
}

func (c *Controller) handleSecondaryFrame(info media.FrameInfo) {
	c.mu.Lock()
	c.lastSecondary = &info
	c.mu.Unlock()
}

// correctDrift issues at most one corrective seek when the secondary has
// deviated beyond tolerance from primary time + offset.
func (c *Controller) correctDrift(primaryTime float64, tolerance time.Duration) {
	target := primaryTime + c.opts.OffsetSeconds
	drift := math.Abs(c.secondary.CurrentTime() - target)
	if drift <= tolerance.Seconds() {
		return
	}

	c.mu.Lock()
	if c.correcting {
		c.mu.Unlock()
		return
	}
	c.correcting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.correcting = false
		c.mu.Unlock()
	}()

	c.logger.Debugw("correcting drift", "drift", drift, "target", target)
	if err := c.secondary.Seek(c.cancelCtx, target); err != nil {
		// Report and stop rather than seeking forever against a broken source.
		c.logger.Errorw("drift correction seek failed; stopping sync", "error", err)
		_ = c.fail(errors.Wrap(err, "drift correction"))
	}
}

func (c *Controller) fireOnSync() {
	c.mu.Lock()
	if c.lastPrimary == nil || c.lastSecondary == nil {
		c.mu.Unlock()
		return
	}
	primary, secondary := *c.lastPrimary, *c.lastSecondary
	fns := make([]func(media.FrameInfo, media.FrameInfo), len(c.onSync))
	copy(fns, c.onSync)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(primary, secondary)
	}
}

func (c *Controller) startPolling() {
	ticker := c.clk.Ticker(c.opts.PollInterval)
	c.addRegistration(ticker.Stop)
	c.workers.Add(1)
	viamutils.PanicCapturingGo(func() {
		defer c.workers.Done()
		for {
			select {
			case <-c.cancelCtx.Done():
				return
			case <-ticker.C:
				c.pollOnce()
			}
		}
	})
}

func (c *Controller) pollOnce() {
	c.mu.Lock()
	if c.state != StateSyncing {
		c.mu.Unlock()
		return
	}
	primaryInfo := media.FrameInfo{PresentationTime: c.primary.CurrentTime()}
	secondaryInfo := media.FrameInfo{PresentationTime: c.secondary.CurrentTime()}
	c.lastPrimary = &primaryInfo
	c.lastSecondary = &secondaryInfo
	c.mu.Unlock()

	c.correctDrift(primaryInfo.PresentationTime, c.opts.PollDriftTolerance)
	c.fireOnSync()
}

// Stop tears the session down: it cancels every per-frame registration and
// the polling loop. Safe to call from any state and repeatedly.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.state = StateStopped
	registrations := c.registrations
	c.registrations = nil
	c.mu.Unlock()

	c.cancelFunc()
	for _, cancelReg := range registrations {
		cancelReg()
	}
	c.workers.Wait()
}
