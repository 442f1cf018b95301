// Package session ties one active playback session together: the media
// sources, the calibration snapshot, the composer, the capture pipeline and
// the sync controller all hang off an explicit Session instead of ambient
// global state.
package session

import (
	"context"
	"image"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/reco-project/video-stitcher/capture"
	"github.com/reco-project/video-stitcher/colorgrade"
	"github.com/reco-project/video-stitcher/compose"
	"github.com/reco-project/video-stitcher/fisheye"
	"github.com/reco-project/video-stitcher/logging"
	"github.com/reco-project/video-stitcher/media"
	"github.com/reco-project/video-stitcher/mediasync"
)

// Config describes one playback session.
type Config struct {
	// Primary is the left camera's stream, or the single vertically-stacked
	// stream carrying both cameras.
	Primary media.Source
	// Secondary is the right camera's stream in dual-stream mode; nil when
	// Primary is a stacked source.
	Secondary media.Source
	// OffsetSeconds aligns the secondary: secondary = primary + offset.
	OffsetSeconds float64

	LeftIntrinsics  *fisheye.CameraIntrinsics
	RightIntrinsics *fisheye.CameraIntrinsics
	Params          compose.StitchParameters

	// Clock defaults to the wall clock; tests inject a mock.
	Clock clock.Clock
	// Sync tunes the drift controller; zero values take the defaults.
	Sync mediasync.Options
}

// Session owns the resources of one active dual-camera playback.
type Session struct {
	id       uuid.UUID
	logger   logging.Logger
	cfg      Config
	renderer *compose.Renderer
	composer *compose.Composer
	capture  *capture.Pipeline
	sync     *mediasync.Controller

	mu     sync.Mutex
	closed bool
}

// New validates the calibration inputs and assembles the session. The single
// render target is shared between the composer and the capture pipeline;
// they never render concurrently.
func New(cfg Config, logger logging.Logger) (*Session, error) {
	if cfg.Primary == nil {
		return nil, errors.New("session needs a primary media source")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	renderer := compose.NewRenderer(capture.CanvasWidth, capture.CanvasHeight)
	composer, err := compose.NewComposer(renderer, cfg.LeftIntrinsics, cfg.RightIntrinsics, cfg.Params, logger)
	if err != nil {
		return nil, err
	}
	pipeline, err := capture.NewPipeline(renderer, cfg.Clock, logger)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:       uuid.New(),
		logger:   logger,
		cfg:      cfg,
		renderer: renderer,
		composer: composer,
		capture:  pipeline,
	}
	if cfg.Secondary != nil {
		opts := cfg.Sync
		opts.OffsetSeconds = cfg.OffsetSeconds
		s.sync = mediasync.NewController(cfg.Primary, cfg.Secondary, opts, cfg.Clock, logger)
	}
	return s, nil
}

// ID identifies the session, for diagnostics.
func (s *Session) ID() uuid.UUID { return s.id }

// Composer exposes the scene composer.
func (s *Session) Composer() *compose.Composer { return s.composer }

// Sync exposes the dual-stream controller, or nil in stacked mode.
func (s *Session) Sync() *mediasync.Controller { return s.sync }

// StartSync begins dual-stream synchronization.
func (s *Session) StartSync(ctx context.Context) error {
	if s.sync == nil {
		return errors.New("session has no secondary source to synchronize")
	}
	return s.sync.Start(ctx)
}

// Recalibrate replaces the stitch parameters wholesale.
func (s *Session) Recalibrate(params compose.StitchParameters) error {
	return s.composer.Recalibrate(params)
}

// SetColorCorrection replaces one side's correction wholesale.
func (s *Session) SetColorCorrection(side fisheye.Side, cc colorgrade.ColorCorrection) error {
	return s.composer.SetColorCorrection(side, cc)
}

// Seek moves the primary to the target time and, in dual-stream mode, the
// secondary to the offset-adjusted target.
func (s *Session) Seek(ctx context.Context, seconds float64) error {
	if err := s.cfg.Primary.Seek(ctx, seconds); err != nil {
		return errors.Wrap(err, "primary seek")
	}
	if s.cfg.Secondary != nil {
		if err := s.cfg.Secondary.Seek(ctx, seconds+s.cfg.OffsetSeconds); err != nil {
			return errors.Wrap(err, "secondary seek")
		}
	}
	return nil
}

// RenderFrame composites one panoramic frame from the current decoded
// frames. The returned image is owned by the renderer until the next render.
func (s *Session) RenderFrame(ctx context.Context) (*image.RGBA, error) {
	primaryFrame, err := s.cfg.Primary.Frame(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "primary frame")
	}
	var leftTex, rightTex media.Texture
	if s.cfg.Secondary == nil {
		packed := media.NewPackedTexture(primaryFrame)
		leftTex, rightTex = packed, packed
	} else {
		secondaryFrame, err := s.cfg.Secondary.Frame(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "secondary frame")
		}
		leftTex = media.NewHalfTexture(primaryFrame, fisheye.SideLeft)
		rightTex = media.NewHalfTexture(secondaryFrame, fisheye.SideRight)
	}
	return s.composer.Render(ctx, leftTex, rightTex)
}

// ExtractCalibrationPair captures both sides' calibration stills at the
// target timestamp.
func (s *Session) ExtractCalibrationPair(ctx context.Context, seconds float64) (*capture.FramePair, error) {
	leftSrc, rightSrc := s.cfg.Primary, s.cfg.Primary
	if s.cfg.Secondary != nil {
		rightSrc = s.cfg.Secondary
	}
	return s.capture.Extract(ctx, leftSrc, rightSrc, seconds, s.cfg.LeftIntrinsics, s.cfg.RightIntrinsics)
}

// Close tears the session down: sync first, then the sources. Safe to call
// repeatedly.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.sync != nil {
		s.sync.Stop()
	}
	err := s.cfg.Primary.Close()
	if s.cfg.Secondary != nil {
		err = multierr.Combine(err, s.cfg.Secondary.Close())
	}
	return err
}
