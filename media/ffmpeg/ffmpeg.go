// Package ffmpeg provides a media.Source implementation for ffmpeg decodable
// files and URLs.
package ffmpeg

import (
	"context"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"sync"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	viamutils "go.viam.com/utils"

	"github.com/reco-project/video-stitcher/logging"
	"github.com/reco-project/video-stitcher/media"
)

// DefaultFrameRate is the decode rate assumed when the caller does not
// specify one. Presentation timestamps are derived from it.
const DefaultFrameRate = 30.0

// Config configures a Source.
type Config struct {
	// URL is a file path or stream URL ffmpeg can open.
	URL string
	// FrameRate is the decode/presentation rate. Defaults to DefaultFrameRate.
	FrameRate float64
	// InputKWArgs are passed through to the ffmpeg input.
	InputKWArgs map[string]interface{}
}

// Source decodes frames from an ffmpeg input into a latest-frame buffer.
// Seeking restarts the input at the target timestamp.
type Source struct {
	cfg    Config
	logger logging.Logger

	mu            sync.Mutex
	latest        image.Image
	gotFirstFrame chan struct{}
	gotFirstOnce  bool
	base          float64
	frames        int
	totalFrames   int
	callbacks     map[int]func(media.FrameInfo)
	nextCallback  int
	decodeErr     error
	runCtx        context.Context
	cancel        func()
	workers       sync.WaitGroup
	closed        bool
}

// NewSource opens the input and starts decoding from its beginning.
func NewSource(cfg Config, logger logging.Logger) (*Source, error) {
	// make sure ffmpeg is in the path before doing anything else
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, err
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = DefaultFrameRate
	}
	s := &Source{
		cfg:       cfg,
		logger:    logger,
		callbacks: map[int]func(media.FrameInfo){},
	}
	s.startLocked(0)
	return s, nil
}

// startLocked launches the ffmpeg process and the decode loop for playback
// starting at base seconds. Callers must either hold no prior run or have
// stopped it.
func (s *Source) startLocked(base float64) {
	cancelCtx, cancel := context.WithCancel(context.Background())
	s.runCtx = cancelCtx
	s.cancel = cancel
	s.base = base
	s.frames = 0
	s.decodeErr = nil
	s.gotFirstFrame = make(chan struct{})
	s.gotFirstOnce = false

	inArgs := make(map[string]interface{}, len(s.cfg.InputKWArgs)+1)
	for key, value := range s.cfg.InputKWArgs {
		inArgs[key] = value
	}
	if base > 0 {
		inArgs["ss"] = base
	}
	outArgs := map[string]interface{}{
		"format": "image2pipe",
		"vcodec": "mjpeg",
		"r":      s.cfg.FrameRate,
	}

	in, out := io.Pipe()
	s.workers.Add(1)
	viamutils.ManagedGo(func() {
		stream := ffmpeg.Input(s.cfg.URL, inArgs).Output("pipe:", outArgs)
		stream.Context = cancelCtx
		if err := stream.WithOutput(out).Run(); err != nil && cancelCtx.Err() == nil {
			s.mu.Lock()
			s.decodeErr = err
			s.mu.Unlock()
		}
		viamutils.UncheckedErrorFunc(out.Close)
	}, func() {
		cancel()
		s.workers.Done()
	})

	s.workers.Add(1)
	viamutils.ManagedGo(func() {
		for {
			if cancelCtx.Err() != nil || s.loadErr() != nil {
				return
			}
			img, err := jpeg.Decode(in)
			if err != nil {
				continue
			}
			s.storeFrame(cancelCtx, img)
		}
	}, s.workers.Done)
}

func (s *Source) storeFrame(runCtx context.Context, img image.Image) {
	s.mu.Lock()
	// A seek may have replaced this run already.
	if runCtx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.latest = img
	// The first frame of a run presents at base itself.
	info := media.FrameInfo{
		PresentationTime: s.base + float64(s.frames)/s.cfg.FrameRate,
		FrameCount:       s.totalFrames + 1,
	}
	s.frames++
	s.totalFrames++
	if !s.gotFirstOnce {
		close(s.gotFirstFrame)
		s.gotFirstOnce = true
	}
	cbs := make([]func(media.FrameInfo), 0, len(s.callbacks))
	for _, cb := range s.callbacks {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(info)
	}
}

// WaitFirstFrame blocks until a frame has been decoded since the last seek.
func (s *Source) WaitFirstFrame(ctx context.Context) error {
	s.mu.Lock()
	first := s.gotFirstFrame
	runCtx := s.runCtx
	s.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-runCtx.Done():
		if err := s.loadErr(); err != nil {
			return errors.Wrap(media.ErrDecode, err.Error())
		}
		return runCtx.Err()
	case <-first:
	}
	if err := s.loadErr(); err != nil {
		return errors.Wrap(media.ErrDecode, err.Error())
	}
	return nil
}

func (s *Source) loadErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decodeErr
}

// Seek restarts the input at the target timestamp and waits for the first
// frame decoded there.
func (s *Source) Seek(ctx context.Context, seconds float64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.Wrap(media.ErrSeekFailed, "source closed")
	}
	s.cancel()
	s.mu.Unlock()
	s.workers.Wait()

	s.mu.Lock()
	s.startLocked(seconds)
	s.mu.Unlock()

	if err := s.WaitFirstFrame(ctx); err != nil {
		return errors.Wrapf(media.ErrSeekFailed, "seek to %0.3fs: %s", seconds, err)
	}
	return nil
}

// CurrentTime returns the presentation time of the latest decoded frame.
func (s *Source) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frames == 0 {
		return s.base
	}
	return s.base + float64(s.frames-1)/s.cfg.FrameRate
}

// Frame returns the latest decoded frame, waiting for the first one if
// decoding just (re)started.
func (s *Source) Frame(ctx context.Context) (image.Image, error) {
	if err := s.WaitFirstFrame(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return nil, media.ErrDecode
	}
	return s.latest, nil
}

// OnFrame registers a per-decoded-frame callback.
func (s *Source) OnFrame(fn func(media.FrameInfo)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextCallback
	s.nextCallback++
	s.callbacks[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.callbacks, id)
	}, nil
}

// Close stops the ffmpeg process and decode loop. Safe to call repeatedly.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel()
	s.mu.Unlock()
	s.workers.Wait()
	return nil
}
