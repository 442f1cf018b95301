// Command stitcher renders stitched panorama frames and extracts calibration
// stills from dual fisheye footage.
package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/urfave/cli/v2"
	viamutils "go.viam.com/utils"

	"github.com/reco-project/video-stitcher/colorgrade"
	"github.com/reco-project/video-stitcher/compose"
	"github.com/reco-project/video-stitcher/fisheye"
	"github.com/reco-project/video-stitcher/logging"
	"github.com/reco-project/video-stitcher/media"
	mediaffmpeg "github.com/reco-project/video-stitcher/media/ffmpeg"
	"github.com/reco-project/video-stitcher/session"
)

func main() {
	app := &cli.App{
		Name:            "stitcher",
		Usage:           "stitch dual fisheye camera footage into a panorama",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
			&cli.StringFlag{
				Name:     "left-profile",
				Usage:    "left camera lens profile `FILE` (calibration service JSON)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "right-profile",
				Usage:    "right camera lens profile `FILE`",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "params",
				Usage: "stitch parameters `FILE`; defaults apply when omitted",
			},
			&cli.StringFlag{
				Name:  "color",
				Usage: "color correction `FILE` with left/right entries",
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "vertically-stacked video `FILE` or URL",
			},
			&cli.StringFlag{
				Name:  "left",
				Usage: "left camera video `FILE` (dual-stream mode)",
			},
			&cli.StringFlag{
				Name:  "right",
				Usage: "right camera video `FILE` (dual-stream mode)",
			},
			&cli.Float64Flag{
				Name:  "offset",
				Usage: "seconds the right stream lags the left (dual-stream mode)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "render",
				Usage:  "composite one panoramic frame to a PNG",
				Action: renderAction,
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: "at", Usage: "timestamp in seconds", Value: 0},
					&cli.StringFlag{Name: "out", Usage: "output `FILE`", Value: "panorama.png"},
				},
			},
			{
				Name:   "capture",
				Usage:  "extract a calibration frame pair at a timestamp",
				Action: captureAction,
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: "at", Usage: "timestamp in seconds", Value: 0},
					&cli.StringFlag{Name: "out-left", Usage: "left output `FILE`", Value: "calib-left.png"},
					&cli.StringFlag{Name: "out-right", Usage: "right output `FILE`", Value: "calib-right.png"},
				},
			},
			{
				Name:   "probe",
				Usage:  "dump the raw per-camera halves of the current frame",
				Action: probeAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out-left", Usage: "left output `FILE`", Value: "raw-left.png"},
					&cli.StringFlag{Name: "out-right", Usage: "right output `FILE`", Value: "raw-right.png"},
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(c *cli.Context) logging.Logger {
	if c.Bool("debug") {
		return logging.NewDebugLogger("stitcher")
	}
	return logging.NewLogger("stitcher")
}

// newSession assembles a session from the CLI flags, in either stacked or
// dual-stream mode.
func newSession(c *cli.Context, logger logging.Logger) (*session.Session, error) {
	leftIntrinsics, err := readProfile(c.String("left-profile"))
	if err != nil {
		return nil, err
	}
	rightIntrinsics, err := readProfile(c.String("right-profile"))
	if err != nil {
		return nil, err
	}

	params := compose.DefaultStitchParameters()
	if path := c.String("params"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if params, err = compose.ParseStitchParameters(data); err != nil {
			return nil, err
		}
	}

	cfg := session.Config{
		LeftIntrinsics:  leftIntrinsics,
		RightIntrinsics: rightIntrinsics,
		Params:          params,
		OffsetSeconds:   c.Float64("offset"),
	}
	switch {
	case c.String("source") != "":
		cfg.Primary, err = mediaffmpeg.NewSource(mediaffmpeg.Config{URL: c.String("source")}, logger)
		if err != nil {
			return nil, err
		}
	case c.String("left") != "" && c.String("right") != "":
		cfg.Primary, err = mediaffmpeg.NewSource(mediaffmpeg.Config{URL: c.String("left")}, logger)
		if err != nil {
			return nil, err
		}
		cfg.Secondary, err = mediaffmpeg.NewSource(mediaffmpeg.Config{URL: c.String("right")}, logger)
		if err != nil {
			return nil, err
		}
	default:
		return nil, cli.Exit("either --source or both --left and --right are required", 1)
	}

	sess, err := session.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if path := c.String("color"); path != "" {
		if err := applyColorFile(sess, path); err != nil {
			viamutils.UncheckedErrorFunc(sess.Close)
			return nil, err
		}
	}
	return sess, nil
}

func readProfile(path string) (*fisheye.CameraIntrinsics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return fisheye.ParseLensProfile(data)
}

// applyColorFile loads the calibration service's color match response, a JSON
// object with "left" and "right" correction entries.
func applyColorFile(sess *session.Session, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	corrections, err := colorgrade.ParsePair(data)
	if err != nil {
		return err
	}
	if err := sess.SetColorCorrection(fisheye.SideLeft, corrections.Left); err != nil {
		return err
	}
	return sess.SetColorCorrection(fisheye.SideRight, corrections.Right)
}

func renderAction(c *cli.Context) error {
	logger := newLogger(c)
	sess, err := newSession(c, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Errorw("closing session", "error", err)
		}
	}()

	ctx := context.Background()
	if sess.Sync() != nil {
		if err := sess.StartSync(ctx); err != nil {
			return err
		}
	}
	if at := c.Float64("at"); at > 0 {
		if err := sess.Seek(ctx, at); err != nil {
			return err
		}
	}
	img, err := sess.RenderFrame(ctx)
	if err != nil {
		return err
	}
	return writePNG(c.String("out"), img)
}

func captureAction(c *cli.Context) error {
	logger := newLogger(c)
	sess, err := newSession(c, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Errorw("closing session", "error", err)
		}
	}()

	pair, err := sess.ExtractCalibrationPair(context.Background(), c.Float64("at"))
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.String("out-left"), pair.Left, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(c.String("out-right"), pair.Right, 0o644); err != nil {
		return err
	}
	logger.Infow("calibration pair written", "request", pair.RequestID)
	return nil
}

func probeAction(c *cli.Context) error {
	logger := newLogger(c)
	if c.String("source") == "" {
		return cli.Exit("probe needs a stacked --source", 1)
	}
	src, err := mediaffmpeg.NewSource(mediaffmpeg.Config{URL: c.String("source")}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Errorw("closing source", "error", err)
		}
	}()

	ctx := context.Background()
	frame, err := src.Frame(ctx)
	if err != nil {
		return err
	}
	bounds := frame.Bounds()
	halfW, halfH := bounds.Dx(), bounds.Dy()/2
	left := media.ExtractHalf(frame, fisheye.SideLeft, halfW, halfH)
	right := media.ExtractHalf(frame, fisheye.SideRight, halfW, halfH)
	if err := writePNG(c.String("out-left"), left); err != nil {
		return err
	}
	return writePNG(c.String("out-right"), right)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
