// Package fake provides a scripted media source for tests.
package fake

import (
	"context"
	"image"
	"sync"

	"github.com/reco-project/video-stitcher/media"
)

// Source is an in-memory media.Source whose time only moves when the test
// advances it.
type Source struct {
	mu            sync.Mutex
	frame         image.Image
	current       float64
	frameCount    int
	callbacks     map[int]func(media.FrameInfo)
	nextCallback  int
	frameCallback bool
	onFrameErr    error
	seeks         []float64
	seekErr       error
	frameErr      error
	blockFrames   bool
	seekHook      func(float64)
	closed        bool
}

// NewSource returns a fake source that always decodes the given frame and
// supports per-frame notifications.
func NewSource(frame image.Image) *Source {
	return &Source{
		frame:         frame,
		callbacks:     map[int]func(media.FrameInfo){},
		frameCallback: true,
	}
}

// DisableFrameCallbacks makes OnFrame report ErrFrameCallbackUnsupported.
func (s *Source) DisableFrameCallbacks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameCallback = false
}

// FailOnFrame makes OnFrame return err instead of registering.
func (s *Source) FailOnFrame(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFrameErr = err
}

// FailNextSeek makes the next Seek return err.
func (s *Source) FailNextSeek(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seekErr = err
}

// BlockFrames makes Frame block until its context is canceled.
func (s *Source) BlockFrames() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockFrames = true
}

// SetSeekHook installs fn to observe every seek target as it happens.
func (s *Source) SetSeekHook(fn func(float64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seekHook = fn
}

// FailFrames makes Frame return err until cleared.
func (s *Source) FailFrames(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameErr = err
}

// SetCurrentTime forces the playback clock, without notifying callbacks.
func (s *Source) SetCurrentTime(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = seconds
}

// Advance moves playback forward one decoded frame of dt seconds and fires
// the registered per-frame callbacks.
func (s *Source) Advance(dt float64) {
	s.mu.Lock()
	s.current += dt
	s.frameCount++
	info := media.FrameInfo{PresentationTime: s.current, FrameCount: s.frameCount}
	cbs := make([]func(media.FrameInfo), 0, len(s.callbacks))
	for _, cb := range s.callbacks {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(info)
	}
}

// Seeks returns every seek target the source has been asked for.
func (s *Source) Seeks() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.seeks))
	copy(out, s.seeks)
	return out
}

// Closed reports whether Close has been called.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// WaitFirstFrame always succeeds immediately.
func (s *Source) WaitFirstFrame(ctx context.Context) error {
	return ctx.Err()
}

// Seek records the target and moves the playback clock there.
func (s *Source) Seek(ctx context.Context, seconds float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.seekErr != nil {
		err := s.seekErr
		s.seekErr = nil
		s.mu.Unlock()
		return err
	}
	s.seeks = append(s.seeks, seconds)
	s.current = seconds
	hook := s.seekHook
	s.mu.Unlock()
	if hook != nil {
		hook(seconds)
	}
	return nil
}

// CurrentTime returns the playback clock.
func (s *Source) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Frame returns the scripted frame.
func (s *Source) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	blocked := s.blockFrames
	s.mu.Unlock()
	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frameErr != nil {
		return nil, s.frameErr
	}
	return s.frame, nil
}

// OnFrame registers a per-frame callback fired by Advance.
func (s *Source) OnFrame(fn func(media.FrameInfo)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.frameCallback {
		return nil, media.ErrFrameCallbackUnsupported
	}
	if s.onFrameErr != nil {
		return nil, s.onFrameErr
	}
	id := s.nextCallback
	s.nextCallback++
	s.callbacks[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.callbacks, id)
	}, nil
}

// Close marks the source closed.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
