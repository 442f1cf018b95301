package capture

import (
	"github.com/benbjohnson/clock"

	"github.com/reco-project/video-stitcher/compose"
	"github.com/reco-project/video-stitcher/logging"
)

// NewPipelineWithRenderer skips the canvas-size contract so tests can run
// the protocol against a small target.
func NewPipelineWithRenderer(renderer *compose.Renderer, clk clock.Clock, logger logging.Logger) *Pipeline {
	return newPipeline(renderer, clk, logger)
}

const (
	SettleFrames      = settleFrames
	SettleDelay       = settleDelay
	SideRenderTimeout = sideTimeout
)
