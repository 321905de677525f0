package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"echvid/internal/accounts"
	"echvid/internal/acquire"
	"echvid/internal/api"
	"echvid/internal/composite"
	"echvid/internal/config"
	"echvid/internal/daemon"
	"echvid/internal/deps"
	"echvid/internal/logging"
	"echvid/internal/mediastore"
	"echvid/internal/notifications"
	"echvid/internal/queue"
	"echvid/internal/stages"
	"echvid/internal/synthesize"
	"echvid/internal/transcribe"
	"echvid/internal/translate"
	"echvid/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
	// APIBind overrides paths.api_bind when set.
	APIBind string
}

// Run starts the echvid daemon: the worker pool and the HTTP API. It blocks
// until SIGINT, SIGTERM or cmdCtx cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if bind := strings.TrimSpace(opts.APIBind); bind != "" {
		cfg.Paths.APIBind = bind
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logDependencySnapshot(logger, cfg)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}

	users, err := accounts.Open(cfg)
	if err != nil {
		store.Close()
		return fmt.Errorf("open accounts: %w", err)
	}
	defer users.Close()

	media, err := mediastore.FromConfig(cfg)
	if err != nil {
		store.Close()
		return fmt.Errorf("open media store: %w", err)
	}

	set, err := BuildStages(signalCtx, cfg, media, users, logger)
	if err != nil {
		store.Close()
		return err
	}
	defer func() {
		if err := set.Close(); err != nil {
			logger.Warn("stage teardown failed",
				logging.String(logging.FieldEventType, "stage_teardown_failed"),
				logging.Error(err))
		}
	}()

	notifier := notifications.NewService(cfg)
	manager := workflow.NewManagerWithNotifier(cfg, store, logger, notifier)
	manager.ConfigureStages(set)

	d, err := daemon.New(cfg, store, logger, manager)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	acquirer := acquire.New(media, store, acquire.YTDLP{Binary: cfg.Tools.YTDLP}, cfg.Tools.FFprobe, logger)
	router, err := api.NewRouter(api.Deps{
		Config:   cfg,
		Queue:    store,
		Accounts: users,
		Media:    media,
		Acquirer: acquirer,
		Status:   d.APIStatus,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}
	apiServer := daemon.NewAPIServer(cfg.Paths.APIBind, router, logger)

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running daemon and queue database access"),
			logging.String(logging.FieldImpact, "no jobs will be processed"),
		)
		return err
	}
	if apiServer == nil {
		logger.Warn("api disabled; paths.api_bind is empty",
			logging.String(logging.FieldEventType, "api_disabled"))
	}
	if err := apiServer.Listen(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(signalCtx)
	g.Go(func() error {
		return apiServer.Serve(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("echvid daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
		d.Stop()
		return nil
	})
	return g.Wait()
}

// BuildStages constructs the five pipeline stages from configuration.
func BuildStages(ctx context.Context, cfg *config.Config, media *mediastore.Store, plans stages.PlanReader, logger *slog.Logger) (workflow.StageSet, error) {
	translator, err := translate.FromConfig(ctx, cfg, translate.WithLogger(logging.NewComponentLogger(logger, "translate")))
	if err != nil {
		return workflow.StageSet{}, fmt.Errorf("translation: %w", err)
	}
	synthesizer, err := synthesize.FromConfig(cfg, logger)
	if err != nil {
		_ = translator.Close()
		return workflow.StageSet{}, fmt.Errorf("synthesis: %w", err)
	}
	ffmpeg := toolOrDefault(cfg.Tools.FFmpeg, "ffmpeg")
	ffprobe := toolOrDefault(cfg.Tools.FFprobe, "ffprobe")
	compositor := composite.New(ffmpeg, composite.StyleFromConfig(cfg.Composite), composite.ExecRunner{}, logger)

	return workflow.StageSet{
		Extract:    stages.NewExtract(media, transcribe.Extractor{FFmpeg: ffmpeg, FFprobe: ffprobe}, logger, ffmpeg, ffprobe),
		Transcribe: stages.NewTranscribe(media, transcribe.SharedFromConfig(cfg), logger),
		Translate:  stages.NewTranslate(media, translator, logger),
		Synthesize: stages.NewSynthesize(media, synthesizer, logger),
		Composite:  stages.NewComposite(media, compositor, plans, logger, ffmpeg),
	}, nil
}

func toolOrDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("transcription_provider", cfg.Transcription.Provider),
		logging.String("translation_provider", cfg.Translation.Provider),
		logging.Bool("translation_key_present", strings.TrimSpace(cfg.Translation.APIKey) != ""),
		logging.String("synthesis_provider", cfg.Synthesis.Provider),
		logging.Bool("synthesis_key_present", strings.TrimSpace(cfg.Synthesis.APIKey) != ""),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	}
	statuses := deps.CheckTools(cfg.Tools)
	for _, status := range statuses {
		key := strings.ToLower(strings.ReplaceAll(status.Name, "-", ""))
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
	for _, status := range deps.MissingRequired(statuses) {
		logger.Warn("required tool unavailable; jobs needing it will fail",
			logging.String(logging.FieldEventType, "dependency_missing"),
			logging.String("tool", status.Name),
			logging.String(logging.FieldErrorHint, status.Detail),
		)
	}
}
