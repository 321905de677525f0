package stages

import (
	"context"
	"log/slog"

	"echvid/internal/accounts"
	"echvid/internal/composite"
	"echvid/internal/logging"
	"echvid/internal/mediastore"
	"echvid/internal/queue"
	"echvid/internal/stage"
)

// Composite muxes the source video with the synthesized speech and writes
// output/{filename}_final.mp4. Free-plan users get the watermark.
type Composite struct {
	base
	compositor VideoCompositor
	plans      PlanReader
	binaries   []string
}

// NewComposite builds the composition stage.
func NewComposite(store *mediastore.Store, compositor VideoCompositor, plans PlanReader, logger *slog.Logger, binaries ...string) *Composite {
	return &Composite{base: newBase("composite", store, logger), compositor: compositor, plans: plans, binaries: binaries}
}

func (s *Composite) Execute(ctx context.Context, job *queue.Job) error {
	logger := s.log(ctx)
	subtitles := ""
	if text, err := s.store.ReadText(mediastore.KindTranslated, job.Filename); err == nil {
		subtitles = text
	} else {
		logger.Info("no translated text; composing without subtitles", logging.Error(err))
	}

	plan := s.plan(ctx, job.UserID)
	job.SetProgress("Compositing", "Rendering final video", 90)
	result, err := s.compositor.Compose(ctx, composite.Request{
		VideoPath:  job.SourcePath,
		AudioPath:  s.store.Path(mediastore.KindSpeech, job.Filename),
		OutputPath: s.store.Path(mediastore.KindFinal, job.Filename),
		Subtitles:  subtitles,
		Watermark:  plan != accounts.PlanPremium,
	})
	if err != nil {
		return err
	}
	job.OutputPath = result.OutputPath
	logger.Info("final video written",
		logging.String("output_path", result.OutputPath),
		logging.String("plan", string(plan)),
		logging.Int("cues", result.Cues),
		logging.Bool("subtitles_dropped", result.SubtitlesDropped),
	)
	return nil
}

func (s *Composite) plan(ctx context.Context, userID int64) accounts.Plan {
	if s.plans == nil {
		return accounts.PlanFree
	}
	plan, err := s.plans.GetPlan(ctx, userID)
	if err != nil {
		logging.WarnWithContext(s.log(ctx), "plan lookup failed; applying watermark", "plan_lookup_failed",
			logging.Int64(logging.FieldUserID, userID),
			logging.String(logging.FieldErrorHint, "check the accounts database"),
			logging.String(logging.FieldImpact, "final video carries the free-plan watermark"),
			logging.Error(err),
		)
		return accounts.PlanFree
	}
	return plan
}

func (s *Composite) HealthCheck(context.Context) stage.Health {
	if s.compositor == nil {
		return stage.Unhealthy(s.name, "compositor not configured")
	}
	return stage.RequireBinaries(s.name, s.binaries...)
}
