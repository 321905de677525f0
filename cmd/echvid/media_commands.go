package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"echvid/internal/acquire"
	"echvid/internal/api"
	"echvid/internal/logging"
	"echvid/internal/mediastore"
	"echvid/internal/queue"
)

func (c *commandContext) acquirer(store *queue.Store, media *mediastore.Store) (*acquire.Acquirer, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return acquire.New(media, store, acquire.YTDLP{Binary: cfg.Tools.YTDLP}, cfg.Tools.FFprobe, c.cliLogger()), nil
}

// cliLogger reports warnings from library code on stderr without the
// daemon's info-level chatter.
func (c *commandContext) cliLogger() *slog.Logger {
	logger, err := logging.New(logging.Options{Level: "warn", Format: "console", OutputPaths: []string{"stderr"}})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var userID int64
	var name string

	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Copy a local video into the media store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			media, err := ctx.mediaStore()
			if err != nil {
				return err
			}
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open video: %w", err)
			}
			defer file.Close()
			if name == "" {
				name = filepath.Base(args[0])
			}
			return ctx.withStore(func(store *queue.Store) error {
				acq, err := ctx.acquirer(store, media)
				if err != nil {
					return err
				}
				res, err := acq.Upload(cmd.Context(), name, userID, file)
				if err != nil {
					return err
				}
				return printAcquired(cmd, ctx, "Uploaded", res)
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "Owning user id")
	cmd.Flags().StringVar(&name, "name", "", "Store under this name instead of the file's base name")
	return cmd
}

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Download a video from a URL with yt-dlp",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			media, err := ctx.mediaStore()
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				acq, err := ctx.acquirer(store, media)
				if err != nil {
					return err
				}
				res, err := acq.Fetch(cmd.Context(), args[0], userID)
				if err != nil {
					return err
				}
				return printAcquired(cmd, ctx, "Downloaded", res)
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "Owning user id")
	return cmd
}

func printAcquired(cmd *cobra.Command, ctx *commandContext, message string, res acquire.Result) error {
	if ctx.JSONMode() {
		return writeJSON(cmd, api.AcquireResponse{Message: message, Filename: res.Filename, Duration: res.Duration, Size: res.Size})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s (%d bytes", message, res.Filename, res.Size)
	if res.Duration != "" {
		fmt.Fprintf(out, ", %s", res.Duration)
	}
	fmt.Fprintln(out, ")")
	fmt.Fprintf(out, "Submit it with: echvid submit %s --lang <code>\n", res.Filename)
	return nil
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var translationLang, sourceLang, targetLang string
	var userID int64

	cmd := &cobra.Command{
		Use:   "submit <filename>",
		Short: "Queue the full dubbing pipeline for an uploaded video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for flag, value := range map[string]string{"lang": translationLang, "source-lang": sourceLang, "target-lang": targetLang} {
				if err := validateLanguage(flag, value); err != nil {
					return err
				}
			}
			if strings.TrimSpace(translationLang) == "" {
				return errors.New("--lang is required")
			}
			filename, err := mediastore.SanitizeFilename(args[0])
			if err != nil || filename != args[0] {
				return fmt.Errorf("%q is not a valid upload name", args[0])
			}
			media, err := ctx.mediaStore()
			if err != nil {
				return err
			}
			if !media.Exists(mediastore.KindUpload, filename) {
				return fmt.Errorf("uploaded video %s not found in %s", filename, media.Dir(mediastore.KindUpload))
			}
			return ctx.withStore(func(store *queue.Store) error {
				owner := userID
				if owner == 0 {
					if record, err := store.GetMedia(cmd.Context(), filename); err != nil {
						return err
					} else if record != nil {
						owner = record.UserID
					}
				}
				job, err := store.Enqueue(cmd.Context(), queue.Submission{
					Filename:        filename,
					SourcePath:      media.Path(mediastore.KindUpload, filename),
					UserID:          owner,
					SourceLang:      strings.TrimSpace(sourceLang),
					TargetLang:      strings.TrimSpace(targetLang),
					TranslationLang: strings.TrimSpace(translationLang),
					CorrelationID:   uuid.NewString(),
				})
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.ProcessResponse{Message: "Full process started", JobID: job.ID, Status: string(job.Status)})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s for %s\n", job.ID, filename)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&translationLang, "lang", "l", "", "Translation language code (required)")
	cmd.Flags().StringVar(&sourceLang, "source-lang", "", "Spoken language of the source (blank to auto-detect)")
	cmd.Flags().StringVar(&targetLang, "target-lang", "", "Target language recorded on the job; speech is voiced in --lang")
	cmd.Flags().Int64Var(&userID, "user", 0, "Owning user id (defaults to the upload's owner)")
	return cmd
}

func validateLanguage(flag, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if _, err := language.Parse(value); err != nil {
		return fmt.Errorf("--%s: %q is not a language code", flag, value)
	}
	return nil
}

func newVideosCommand(ctx *commandContext) *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "videos",
		Short: "List acquired videos",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				media, err := store.ListMedia(cmd.Context(), userID)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					views := make([]api.MediaView, 0, len(media))
					for _, m := range media {
						views = append(views, api.FromMedia(m))
					}
					return writeJSON(cmd, views)
				}
				rows := make([][]string, 0, len(media))
				for _, m := range media {
					rows = append(rows, []string{m.Filename, strconv.FormatInt(m.UserID, 10), m.Source, m.Duration, formatDisplayTime(m.CreatedAt)})
				}
				printTable(cmd.OutOrStdout(), []string{"Filename", "User", "Source", "Duration", "Added"}, rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignLeft}, "No videos")
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "Only videos owned by this user id")
	return cmd
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete intermediate artifacts (audio, transcripts, translations, speech)",
		RunE: func(cmd *cobra.Command, args []string) error {
			media, err := ctx.mediaStore()
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				if !force {
					stats, err := store.Stats(cmd.Context())
					if err != nil {
						return err
					}
					active := 0
					for status, count := range stats {
						if !queue.IsTerminalStatus(status) {
							active += count
						}
					}
					if active > 0 {
						return fmt.Errorf("%d jobs are still active; wait for them or pass --force", active)
					}
				}
				removed, err := media.Cleanup(mediastore.IntermediateKinds()...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d intermediate files\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Clean up even while jobs are active")
	return cmd
}
