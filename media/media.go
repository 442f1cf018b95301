// Package media defines the decodable media source contract the stitcher
// renders from: seekable, time-addressable, and optionally delivering a
// notification per decoded frame.
package media

import (
	"context"
	"image"

	"github.com/pkg/errors"
)

// ErrSeekFailed is returned when a source cannot complete a seek.
var ErrSeekFailed = errors.New("media source seek failed")

// ErrDecode is returned when a source fails to decode a frame.
var ErrDecode = errors.New("media source decode error")

// ErrFrameCallbackUnsupported is returned by OnFrame when the source has no
// per-decoded-frame notification mechanism. It is not a failure; callers fall
// back to polling.
var ErrFrameCallbackUnsupported = errors.New("per-frame notifications unsupported")

// FrameInfo is the metadata delivered with a per-frame notification.
type FrameInfo struct {
	// PresentationTime is the media time of the decoded frame, in seconds.
	PresentationTime float64
	// FrameCount counts decoded frames since the source was opened.
	FrameCount int
}

// Source is one decodable media stream.
type Source interface {
	// WaitFirstFrame blocks until the source has decoded at least one frame.
	WaitFirstFrame(ctx context.Context) error

	// Seek moves playback to the given media time in seconds and returns
	// once the seek has completed. A decode fault surfaces as ErrSeekFailed.
	Seek(ctx context.Context, seconds float64) error

	// CurrentTime returns the current playback time in seconds.
	CurrentTime() float64

	// Frame returns the most recently decoded frame.
	Frame(ctx context.Context) (image.Image, error)

	// OnFrame registers fn to be called once per decoded frame. It returns a
	// cancel func to unregister, or ErrFrameCallbackUnsupported if the source
	// cannot deliver per-frame notifications.
	OnFrame(fn func(FrameInfo)) (func(), error)

	Close() error
}
