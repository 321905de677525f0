package composite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"echvid/internal/fileutil"
	"echvid/internal/logging"
	"echvid/internal/services"
)

// Request describes one composition.
type Request struct {
	VideoPath  string
	AudioPath  string
	OutputPath string
	Subtitles  string
	Watermark  bool
}

// Result summarizes a finished composition.
type Result struct {
	OutputPath       string
	Cues             int
	Watermarked      bool
	SubtitlesDropped bool
}

// Compositor muxes the final video.
type Compositor struct {
	ffmpeg string
	style  Style
	runner Runner
	logger *slog.Logger
}

// New builds a Compositor. A nil runner shells out to ffmpeg.
func New(ffmpegBinary string, style Style, runner Runner, logger *slog.Logger) *Compositor {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Compositor{
		ffmpeg: ffmpegBinary,
		style:  style.withDefaults(),
		runner: runner,
		logger: logging.NewComponentLogger(logger, "composite"),
	}
}

// Compose writes req.OutputPath. The output only appears once ffmpeg has
// produced a non-empty file; a failed subtitle layer is dropped and the
// composition retried with audio and video alone.
func (c *Compositor) Compose(ctx context.Context, req Request) (Result, error) {
	for _, input := range []struct{ label, path string }{{"video", req.VideoPath}, {"audio", req.AudioPath}} {
		if !fileutil.NonEmptyFile(input.path) {
			return Result{}, services.Wrap(services.ErrComposition, "composite", "open input",
				fmt.Sprintf("Cannot open %s input %s", input.label, filepath.Base(input.path)), nil)
		}
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return Result{}, services.Wrap(services.ErrComposition, "composite", "validate", "Output path is required", nil)
	}
	outDir := filepath.Dir(req.OutputPath)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrStorage, "composite", "prepare output", "Failed to create output directory", err)
	}

	work, err := os.MkdirTemp(outDir, ".compose-")
	if err != nil {
		return Result{}, services.Wrap(services.ErrStorage, "composite", "prepare overlays", "Failed to create overlay directory", err)
	}
	defer os.RemoveAll(work)

	tmp := fileutil.TempPath(req.OutputPath)
	defer os.Remove(tmp)

	plan, err := c.plan(work, tmp, req)
	if err != nil {
		return Result{}, err
	}

	result := Result{OutputPath: req.OutputPath, Cues: plan.CueCount(), Watermarked: plan.HasWatermark()}
	runErr := c.runner.Run(ctx, c.ffmpeg, plan.Args())
	if runErr != nil && ctx.Err() == nil && plan.CueCount() > 0 {
		logging.WarnWithContext(logging.WithContext(ctx, c.logger), "subtitle overlay failed; composing without subtitles",
			"subtitle_overlay_failed",
			logging.String(logging.FieldErrorHint, "check font availability and ffmpeg drawtext support"),
			logging.String(logging.FieldImpact, "final video has no burned-in subtitles"),
			logging.Int("cues", plan.CueCount()),
			logging.Error(runErr),
		)
		plan = plan.WithoutSubtitles()
		result.Cues = 0
		result.SubtitlesDropped = true
		_ = os.Remove(tmp)
		runErr = c.runner.Run(ctx, c.ffmpeg, plan.Args())
	}
	if runErr != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return Result{}, services.Wrap(services.ErrCanceled, "composite", "ffmpeg", "Composition canceled", ctx.Err())
		}
		return Result{}, services.Wrap(services.ErrComposition, "composite", "ffmpeg", "Failed to write final video", runErr)
	}

	if !fileutil.NonEmptyFile(tmp) {
		return Result{}, services.Wrap(services.ErrComposition, "composite", "verify output", "Final video was not produced", nil)
	}
	if err := os.Rename(tmp, req.OutputPath); err != nil {
		return Result{}, services.Wrap(services.ErrStorage, "composite", "publish output", "Failed to move final video into place", err)
	}
	logging.WithContext(ctx, c.logger).Info("composition complete",
		logging.String("output", req.OutputPath),
		logging.Int("cues", result.Cues),
		logging.Bool("watermark", result.Watermarked),
	)
	return result, nil
}

func (c *Compositor) plan(work, output string, req Request) (Plan, error) {
	plan := Plan{
		VideoPath:  req.VideoPath,
		AudioPath:  req.AudioPath,
		OutputPath: output,
		Style:      c.style,
	}
	for i, cue := range BuildCues(req.Subtitles, c.style.CueSeconds) {
		path := filepath.Join(work, fmt.Sprintf("cue_%04d.txt", i+1))
		if err := os.WriteFile(path, []byte(cue.Text), 0o644); err != nil {
			return Plan{}, services.Wrap(services.ErrStorage, "composite", "prepare overlays", "Failed to write subtitle cue", err)
		}
		plan.Overlays = append(plan.Overlays, Overlay{TextFile: path, Start: cue.Start, End: cue.End})
	}
	if req.Watermark {
		path := filepath.Join(work, "watermark.txt")
		if err := os.WriteFile(path, []byte(c.style.WatermarkText), 0o644); err != nil {
			return Plan{}, services.Wrap(services.ErrStorage, "composite", "prepare overlays", "Failed to write watermark", err)
		}
		plan.Overlays = append(plan.Overlays, Overlay{TextFile: path, Watermark: true})
	}
	return plan, nil
}
