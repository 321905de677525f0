package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"echvid/internal/queue"
	"echvid/internal/testsupport"
)

func TestEnqueueAndFetch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "clip.mp4")
	if job.ID == "" {
		t.Fatal("expected job ID to be assigned")
	}
	if job.Status != queue.StatusPending {
		t.Fatalf("expected pending, got %s", job.Status)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.Filename != "clip.mp4" || fetched.TranslationLang != "es" {
		t.Fatalf("unexpected fetched job: %#v", fetched)
	}

	missing, err := store.GetByID(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing job, got %#v, %v", missing, err)
	}
}

func TestEnqueueRejectsDuplicateActiveFilename(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewJob(t, store, "clip.mp4")
	_, err := store.Enqueue(ctx, queue.Submission{Filename: "clip.mp4", SourcePath: "/x", TranslationLang: "fr"})
	if !errors.Is(err, queue.ErrDuplicateJob) {
		t.Fatalf("expected ErrDuplicateJob, got %v", err)
	}

	first.SetSucceeded()
	if err := store.Update(ctx, first); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := store.Enqueue(ctx, queue.Submission{Filename: "clip.mp4", SourcePath: "/x", TranslationLang: "fr"}); err != nil {
		t.Fatalf("expected enqueue after terminal job to succeed: %v", err)
	}
}

func TestEnqueueValidatesSubmission(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.Enqueue(ctx, queue.Submission{Filename: "a.mp4", SourcePath: "/a"}); !errors.Is(err, queue.ErrInvalidSubmission) {
		t.Fatalf("expected ErrInvalidSubmission without translation language, got %v", err)
	}
	if _, err := store.Enqueue(ctx, queue.Submission{SourcePath: "/a", TranslationLang: "es"}); !errors.Is(err, queue.ErrInvalidSubmission) {
		t.Fatalf("expected ErrInvalidSubmission without filename, got %v", err)
	}
}

func TestClaimAdvancesOldestJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewJob(t, store, "a.mp4")
	time.Sleep(2 * time.Millisecond)
	second := testsupport.NewJob(t, store, "b.mp4")

	claimed, err := store.Claim(ctx, "worker-1")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected first job, got %#v", claimed)
	}
	if claimed.Status != queue.StatusExtracting || claimed.Attempts != 1 || claimed.ClaimedBy != "worker-1" {
		t.Fatalf("unexpected claimed state: status=%s attempts=%d by=%q", claimed.Status, claimed.Attempts, claimed.ClaimedBy)
	}
	if claimed.LastHeartbeat == nil {
		t.Fatal("expected heartbeat on claim")
	}

	next, err := store.Claim(ctx, "worker-2")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if next == nil || next.ID != second.ID {
		t.Fatalf("expected second job, got %#v", next)
	}

	none, err := store.Claim(ctx, "worker-3")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no runnable job, got %#v", none)
	}
}

func TestClaimResumesFromRestingStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "a.mp4")
	job.Status = queue.StatusTranslated
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	claimed, err := store.Claim(ctx, "w")
	if err != nil || claimed == nil {
		t.Fatalf("Claim failed: %#v %v", claimed, err)
	}
	if claimed.Status != queue.StatusSynthesizing {
		t.Fatalf("expected synthesizing, got %s", claimed.Status)
	}
}

func TestScheduleRetryGatesClaim(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewJob(t, store, "a.mp4")
	claimed, err := store.Claim(ctx, "w")
	if err != nil || claimed == nil {
		t.Fatalf("Claim failed: %#v %v", claimed, err)
	}
	claimed.Status = queue.StatusTranscribing
	claimed.ScheduleRetry(time.Now().Add(time.Hour), "TranscriptionError", "service unavailable")
	if err := store.Update(ctx, claimed); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	stored, _ := store.GetByID(ctx, claimed.ID)
	if stored.Status != queue.StatusExtracted || stored.FailedStage != string(queue.StatusTranscribing) {
		t.Fatalf("unexpected retry state: status=%s failed_stage=%s", stored.Status, stored.FailedStage)
	}
	if stored.ClaimedBy != "" || stored.NextAttemptAt == nil {
		t.Fatalf("expected released job with next attempt, got %#v", stored)
	}

	if again, err := store.Claim(ctx, "w"); err != nil || again != nil {
		t.Fatalf("expected backoff to block claim, got %#v %v", again, err)
	}

	past := time.Now().Add(-time.Second)
	stored.NextAttemptAt = &past
	if err := store.Update(ctx, stored); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	again, err := store.Claim(ctx, "w")
	if err != nil || again == nil {
		t.Fatalf("expected claim after backoff, got %#v %v", again, err)
	}
	if again.Status != queue.StatusTranscribing || again.Attempts != 2 {
		t.Fatalf("unexpected reclaimed state: status=%s attempts=%d", again.Status, again.Attempts)
	}
	if again.NextAttemptAt != nil {
		t.Fatal("expected next_attempt_at cleared on claim")
	}
}

func TestResetStuckProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cases := []struct {
		initial  queue.Status
		expected queue.Status
	}{
		{queue.StatusExtracting, queue.StatusPending},
		{queue.StatusTranscribing, queue.StatusExtracted},
		{queue.StatusTranslating, queue.StatusTranscribed},
		{queue.StatusSynthesizing, queue.StatusTranslated},
		{queue.StatusCompositing, queue.StatusSynthesized},
	}
	var ids []string
	for _, tc := range cases {
		job := testsupport.NewJob(t, store, string(tc.initial)+".mp4")
		job.Status = tc.initial
		job.ClaimedBy = "worker"
		if err := store.Update(ctx, job); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		ids = append(ids, job.ID)
	}

	n, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing failed: %v", err)
	}
	if n != int64(len(cases)) {
		t.Fatalf("expected %d reset, got %d", len(cases), n)
	}
	for i, tc := range cases {
		job, err := store.GetByID(ctx, ids[i])
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if job.Status != tc.expected {
			t.Fatalf("%s: expected %s, got %s", tc.initial, tc.expected, job.Status)
		}
		if job.ClaimedBy != "" {
			t.Fatalf("%s: expected claim cleared", tc.initial)
		}
	}
}

func TestReclaimStaleProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	stale := testsupport.NewJob(t, store, "stale.mp4")
	fresh := testsupport.NewJob(t, store, "fresh.mp4")

	old := time.Now().Add(-10 * time.Minute)
	stale.Status = queue.StatusTranslating
	stale.ClaimedBy = "gone"
	stale.LastHeartbeat = &old
	if err := store.Update(ctx, stale); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	now := time.Now()
	fresh.Status = queue.StatusTranslating
	fresh.ClaimedBy = "alive"
	fresh.LastHeartbeat = &now
	if err := store.Update(ctx, fresh); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	n, err := store.ReclaimStaleProcessing(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStaleProcessing failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reclaimed, got %d", n)
	}
	got, _ := store.GetByID(ctx, stale.ID)
	if got.Status != queue.StatusTranscribed || got.ClaimedBy != "" {
		t.Fatalf("unexpected stale job state: %s by %q", got.Status, got.ClaimedBy)
	}
	got, _ = store.GetByID(ctx, fresh.ID)
	if got.Status != queue.StatusTranslating || got.ClaimedBy != "alive" {
		t.Fatalf("fresh job should be untouched: %s by %q", got.Status, got.ClaimedBy)
	}
}

func TestUpdateHeartbeat(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "a.mp4")
	if err := store.UpdateHeartbeat(ctx, job.ID); err != nil {
		t.Fatalf("UpdateHeartbeat failed: %v", err)
	}
	got, _ := store.GetByID(ctx, job.ID)
	if got.LastHeartbeat == nil {
		t.Fatal("expected heartbeat to be recorded")
	}
}

func TestRetryFailedResumesAtFailedStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "a.mp4")
	job.AudioPath = "/media/audio/a_audio.wav"
	job.TranscriptPath = "/media/subtitles/a_transcript.txt"
	job.Attempts = 3
	job.SetFailed(string(queue.StatusTranslating), "TranslationError", "quota")
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	n, err := store.RetryFailed(ctx, job.ID)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 retried, got %d", n)
	}
	got, _ := store.GetByID(ctx, job.ID)
	if got.Status != queue.StatusTranscribed {
		t.Fatalf("expected transcribed, got %s", got.Status)
	}
	if got.Attempts != 0 || got.ErrorKind != "" || got.CompletedAt != nil {
		t.Fatalf("expected failure state cleared, got %#v", got)
	}
	if got.TranscriptPath == "" {
		t.Fatal("expected completed artifacts retained")
	}
}

func TestRetryFailedRejectsWhenFilenameBusy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "a.mp4")
	job.SetFailed(string(queue.StatusExtracting), "NoAudioError", "no audio")
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	testsupport.NewJob(t, store, "a.mp4")

	if _, err := store.RetryFailed(ctx, job.ID); !errors.Is(err, queue.ErrDuplicateJob) {
		t.Fatalf("expected ErrDuplicateJob, got %v", err)
	}
}

func TestRequestCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	idle := testsupport.NewJob(t, store, "idle.mp4")
	outcome, err := store.RequestCancel(ctx, idle.ID)
	if err != nil {
		t.Fatalf("RequestCancel failed: %v", err)
	}
	if outcome != queue.CancelImmediate {
		t.Fatalf("expected immediate cancel, got %s", outcome)
	}
	got, _ := store.GetByID(ctx, idle.ID)
	if got.Status != queue.StatusCanceled || got.FailedStage != string(queue.StatusExtracting) {
		t.Fatalf("unexpected canceled state: %s %s", got.Status, got.FailedStage)
	}

	testsupport.NewJob(t, store, "busy.mp4")
	busy, err := store.Claim(ctx, "w")
	if err != nil || busy == nil {
		t.Fatalf("Claim failed: %#v %v", busy, err)
	}
	outcome, err = store.RequestCancel(ctx, busy.ID)
	if err != nil {
		t.Fatalf("RequestCancel failed: %v", err)
	}
	if outcome != queue.CancelRequested {
		t.Fatalf("expected requested, got %s", outcome)
	}
	flag, err := store.CancelRequested(ctx, busy.ID)
	if err != nil || !flag {
		t.Fatalf("expected cancel flag set: %v %v", flag, err)
	}

	outcome, _ = store.RequestCancel(ctx, idle.ID)
	if outcome != queue.CancelTerminal {
		t.Fatalf("expected already_terminal, got %s", outcome)
	}
	outcome, _ = store.RequestCancel(ctx, "missing")
	if outcome != queue.CancelNotFound {
		t.Fatalf("expected not_found, got %s", outcome)
	}

	n, err := store.RetryFailed(ctx, idle.ID)
	if err != nil || n != 1 {
		t.Fatalf("RetryFailed on canceled job: %d %v", n, err)
	}
	got, _ = store.GetByID(ctx, idle.ID)
	if got.Status != queue.StatusPending || got.CancelRequested {
		t.Fatalf("expected pending after retry, got %s cancel=%v", got.Status, got.CancelRequested)
	}
}

func TestListFiltersAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.NewJob(t, store, "a.mp4")
	testsupport.NewJob(t, store, "b.mp4")
	a.SetFailed(string(queue.StatusExtracting), "NoAudioError", "no audio")
	if err := store.Update(ctx, a); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	failed, err := store.List(ctx, queue.ListFilter{Statuses: []queue.Status{queue.StatusFailed}})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != a.ID {
		t.Fatalf("unexpected failed list: %#v", failed)
	}
	other, err := store.List(ctx, queue.ListFilter{UserID: 99})
	if err != nil || len(other) != 0 {
		t.Fatalf("expected no jobs for other user: %d %v", len(other), err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 2 || health.Failed != 1 || health.Pending != 1 {
		t.Fatalf("unexpected health: %#v", health)
	}

	db, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !db.DatabaseExists || !db.TableExists || !db.IntegrityCheck || len(db.MissingColumns) != 0 || db.TotalJobs != 2 {
		t.Fatalf("unexpected database health: %#v", db)
	}

	removed, err := store.ClearTerminal(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("ClearTerminal: %d %v", removed, err)
	}
}

func TestMediaRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	m, err := store.RecordMedia(ctx, queue.Media{Filename: "talk.mp4", UserID: 7, Source: "upload"})
	if err != nil {
		t.Fatalf("RecordMedia failed: %v", err)
	}
	if m.Duration != "unknown" {
		t.Fatalf("expected unknown duration default, got %q", m.Duration)
	}
	if _, err := store.RecordMedia(ctx, queue.Media{Filename: "talk.mp4", UserID: 7, Source: "url", SourceURL: "https://example.com/v", Duration: "00:01:00"}); err != nil {
		t.Fatalf("RecordMedia upsert failed: %v", err)
	}
	if _, err := store.RecordMedia(ctx, queue.Media{Filename: "other.mp4", UserID: 8, Source: "upload"}); err != nil {
		t.Fatalf("RecordMedia failed: %v", err)
	}

	mine, err := store.ListMedia(ctx, 7)
	if err != nil {
		t.Fatalf("ListMedia failed: %v", err)
	}
	if len(mine) != 1 || mine[0].Source != "url" || mine[0].Duration != "00:01:00" {
		t.Fatalf("unexpected media list: %#v", mine)
	}
	count, err := store.CountMedia(ctx, 0)
	if err != nil || count != 2 {
		t.Fatalf("CountMedia: %d %v", count, err)
	}
	removed, err := store.RemoveMedia(ctx, "talk.mp4")
	if err != nil || !removed {
		t.Fatalf("RemoveMedia: %v %v", removed, err)
	}
	gone, err := store.GetMedia(ctx, "talk.mp4")
	if err != nil || gone != nil {
		t.Fatalf("expected media removed: %#v %v", gone, err)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	_ = store.Close()

	db, err := sql.Open("sqlite", cfg.QueueDBPath())
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = version + 1"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	_, err = queue.Open(cfg)
	if err == nil {
		t.Fatal("expected schema mismatch")
	}
	if !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestCancelRequestedWhileClaimedFinishesAfterReset(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "talk.mp4")
	claimed, err := store.Claim(ctx, "w1")
	if err != nil || claimed == nil {
		t.Fatalf("Claim failed: %#v %v", claimed, err)
	}
	outcome, err := store.RequestCancel(ctx, job.ID)
	if err != nil || outcome != queue.CancelRequested {
		t.Fatalf("expected requested, got %s %v", outcome, err)
	}

	if n, err := store.ResetStuckProcessing(ctx); err != nil || n != 1 {
		t.Fatalf("ResetStuckProcessing: %d %v", n, err)
	}
	next, err := store.Claim(ctx, "w2")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if next != nil {
		t.Fatalf("expected nothing claimable, got %s", next.ID)
	}

	got, _ := store.GetByID(ctx, job.ID)
	if got.Status != queue.StatusCanceled || got.CompletedAt == nil {
		t.Fatalf("expected canceled with completion time, got %s", got.Status)
	}
	if got.FailedStage != string(queue.StatusExtracting) {
		t.Fatalf("expected extracting as the stage to resume, got %q", got.FailedStage)
	}

	// The filename slot is free again.
	testsupport.NewJob(t, store, "talk.mp4")
}

func TestCancelRequestedSurvivesRetrySchedule(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewJob(t, store, "talk.mp4")
	job, err := store.Claim(ctx, "w1")
	if err != nil || job == nil {
		t.Fatalf("Claim failed: %#v %v", job, err)
	}
	if _, err := store.RequestCancel(ctx, job.ID); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}

	job.ScheduleRetry(time.Now().Add(time.Hour), "TranscriptionError", "service unavailable")
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if next, err := store.Claim(ctx, "w2"); err != nil || next != nil {
		t.Fatalf("expected no claim, got %#v %v", next, err)
	}
	got, _ := store.GetByID(ctx, job.ID)
	if got.Status != queue.StatusCanceled {
		t.Fatalf("expected canceled, got %s", got.Status)
	}
}

func TestReclaimStaleFinishesRequestedCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewJob(t, store, "talk.mp4")
	job, err := store.Claim(ctx, "w1")
	if err != nil || job == nil {
		t.Fatalf("Claim failed: %#v %v", job, err)
	}
	if _, err := store.RequestCancel(ctx, job.ID); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}

	if n, err := store.ReclaimStaleProcessing(ctx, time.Now().Add(time.Minute)); err != nil || n != 1 {
		t.Fatalf("ReclaimStaleProcessing: %d %v", n, err)
	}
	got, _ := store.GetByID(ctx, job.ID)
	if got.Status != queue.StatusCanceled || got.ClaimedBy != "" {
		t.Fatalf("expected unclaimed canceled job, got %s claimed by %q", got.Status, got.ClaimedBy)
	}
}
