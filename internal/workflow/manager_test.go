package workflow_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"echvid/internal/config"
	"echvid/internal/logging"
	"echvid/internal/notifications"
	"echvid/internal/queue"
	"echvid/internal/services"
	"echvid/internal/stage"
	"echvid/internal/testsupport"
	"echvid/internal/workflow"
)

type stubStage struct {
	name string
	run  func(ctx context.Context, job *queue.Job) error

	mu    sync.Mutex
	calls int
}

func newStubStage(name string) *stubStage {
	return &stubStage{name: name}
}

func (s *stubStage) Prepare(context.Context, *queue.Job) error { return nil }

func (s *stubStage) Execute(ctx context.Context, job *queue.Job) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.run != nil {
		return s.run(ctx, job)
	}
	return nil
}

func (s *stubStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(s.name)
}

func (s *stubStage) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type pipelineStubs struct {
	extract, transcribe, translate, synthesize, composite *stubStage
}

func newPipelineStubs() *pipelineStubs {
	p := &pipelineStubs{
		extract:    newStubStage("extract"),
		transcribe: newStubStage("transcribe"),
		translate:  newStubStage("translate"),
		synthesize: newStubStage("synthesize"),
		composite:  newStubStage("composite"),
	}
	p.extract.run = func(_ context.Context, job *queue.Job) error {
		job.AudioPath = "/media/audio/" + job.Filename + "_audio.wav"
		return nil
	}
	p.composite.run = func(_ context.Context, job *queue.Job) error {
		job.OutputPath = "/media/output/" + job.Filename + "_final.mp4"
		return nil
	}
	return p
}

func (p *pipelineStubs) set() workflow.StageSet {
	return workflow.StageSet{
		Extract:    p.extract,
		Transcribe: p.transcribe,
		Translate:  p.translate,
		Synthesize: p.synthesize,
		Composite:  p.composite,
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	last   map[notifications.Event]notifications.Payload
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	if n.last == nil {
		n.last = make(map[notifications.Event]notifications.Payload)
	}
	n.last[event] = payload
	return nil
}

func (n *recordingNotifier) count(event notifications.Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, e := range n.events {
		if e == event {
			total++
		}
	}
	return total
}

func (n *recordingNotifier) payload(event notifications.Event) notifications.Payload {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last[event]
}

func startManager(t *testing.T, cfg *config.Config, store *queue.Store, set workflow.StageSet, notifier notifications.Service) *workflow.Manager {
	t.Helper()
	mgr := workflow.NewManagerWithNotifier(cfg, store, logging.NewNop(), notifier)
	mgr.ConfigureStages(set)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(mgr.Stop)
	return mgr
}

func waitForStatus(t *testing.T, store *queue.Store, id string, want queue.Status) *queue.Job {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if job != nil && job.Status == want && job.ClaimedBy == "" {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	job, _ := store.GetByID(context.Background(), id)
	t.Fatalf("timed out waiting for %s; job is %#v", want, job)
	return nil
}

func TestManagerRunsJobThroughEveryStage(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	store := testsupport.MustOpenStore(t, cfg)
	stubs := newPipelineStubs()

	var order []string
	var orderMu sync.Mutex
	for _, s := range []*stubStage{stubs.transcribe, stubs.translate, stubs.synthesize} {
		s := s
		s.run = func(context.Context, *queue.Job) error {
			orderMu.Lock()
			order = append(order, s.name)
			orderMu.Unlock()
			return nil
		}
	}

	job := testsupport.NewJob(t, store, "talk.mp4")
	notifier := &recordingNotifier{}
	startManager(t, cfg, store, stubs.set(), notifier)

	done := waitForStatus(t, store, job.ID, queue.StatusSucceeded)
	if done.OutputPath != "/media/output/talk.mp4_final.mp4" {
		t.Fatalf("unexpected output path %q", done.OutputPath)
	}
	if done.AudioPath == "" {
		t.Fatal("expected audio path from extract stage to persist")
	}
	if done.Attempts != 1 {
		t.Fatalf("expected one attempt, got %d", done.Attempts)
	}
	if done.ProgressPercent != 100 || done.CompletedAt == nil {
		t.Fatalf("expected completed progress, got %v %v", done.ProgressPercent, done.CompletedAt)
	}
	for _, s := range []*stubStage{stubs.extract, stubs.transcribe, stubs.translate, stubs.synthesize, stubs.composite} {
		if s.Calls() != 1 {
			t.Fatalf("stage %s ran %d times", s.name, s.Calls())
		}
	}
	orderMu.Lock()
	got := append([]string(nil), order...)
	orderMu.Unlock()
	want := []string{"transcribe", "translate", "synthesize"}
	if len(got) != len(want) {
		t.Fatalf("unexpected order %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v", got)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for notifier.count(notifications.EventQueueCompleted) == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if notifier.count(notifications.EventQueueStarted) != 1 {
		t.Fatalf("expected one queue start notification, got %d", notifier.count(notifications.EventQueueStarted))
	}
	if notifier.count(notifications.EventJobSucceeded) != 1 {
		t.Fatalf("expected one job success notification")
	}
	if notifier.count(notifications.EventQueueCompleted) != 1 {
		t.Fatalf("expected one queue completion notification")
	}
	if got := notifier.payload(notifications.EventJobSucceeded)["language"]; got != "es" {
		t.Fatalf("unexpected language in payload: %v", got)
	}

	if _, err := os.Stat(workflow.JobLogPath(cfg.Paths.LogDir, job.ID)); err != nil {
		t.Fatalf("expected job log file: %v", err)
	}
}

func TestManagerFailsJobOnStageError(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	store := testsupport.MustOpenStore(t, cfg)
	stubs := newPipelineStubs()
	stubs.translate.run = func(context.Context, *queue.Job) error {
		return services.Wrap(services.ErrTranslation, "translate", "translate", "Segment 1 of 1 failed", errors.New("quota exceeded"))
	}

	job := testsupport.NewJob(t, store, "talk.mp4")
	notifier := &recordingNotifier{}
	startManager(t, cfg, store, stubs.set(), notifier)

	failed := waitForStatus(t, store, job.ID, queue.StatusFailed)
	if failed.ErrorKind != "TranslationError" {
		t.Fatalf("unexpected error kind %q", failed.ErrorKind)
	}
	if failed.FailedStage != string(queue.StatusTranslating) {
		t.Fatalf("unexpected failed stage %q", failed.FailedStage)
	}
	if failed.ErrorMessage == "" {
		t.Fatal("expected error message")
	}
	if stubs.translate.Calls() != 1 {
		t.Fatalf("non-transient failure must not be retried, got %d calls", stubs.translate.Calls())
	}
	if stubs.synthesize.Calls() != 0 || stubs.composite.Calls() != 0 {
		t.Fatal("downstream stages must not run after a failure")
	}

	deadline := time.Now().Add(5 * time.Second)
	for notifier.count(notifications.EventJobFailed) == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	payload := notifier.payload(notifications.EventJobFailed)
	if payload["stage"] != "translate" || payload["kind"] != "TranslationError" {
		t.Fatalf("unexpected failure payload %#v", payload)
	}
}

func TestManagerRedeliversTransientFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	cfg.Workflow.RetryBackoffSeconds = 0
	store := testsupport.MustOpenStore(t, cfg)
	stubs := newPipelineStubs()
	stubs.synthesize.run = func(context.Context, *queue.Job) error {
		if stubs.synthesize.Calls() == 1 {
			return services.Transient(services.Wrap(services.ErrSynthesis, "synthesize", "request", "service unavailable", nil))
		}
		return nil
	}

	job := testsupport.NewJob(t, store, "talk.mp4")
	startManager(t, cfg, store, stubs.set(), &recordingNotifier{})

	done := waitForStatus(t, store, job.ID, queue.StatusSucceeded)
	if done.Attempts != 2 {
		t.Fatalf("expected two attempts, got %d", done.Attempts)
	}
	if stubs.synthesize.Calls() != 2 {
		t.Fatalf("expected synthesize to run twice, got %d", stubs.synthesize.Calls())
	}
	if stubs.translate.Calls() != 1 || stubs.extract.Calls() != 1 {
		t.Fatal("redelivery must resume from the last completed stage")
	}
	if done.ErrorKind != "" || done.ErrorMessage != "" {
		t.Fatalf("expected error cleared after success, got %q %q", done.ErrorKind, done.ErrorMessage)
	}
}

func TestManagerStopsRedeliveryAtMaxAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	cfg.Workflow.RetryBackoffSeconds = 0
	cfg.Workflow.MaxAttempts = 2
	store := testsupport.MustOpenStore(t, cfg)
	stubs := newPipelineStubs()
	stubs.transcribe.run = func(context.Context, *queue.Job) error {
		return services.Transient(services.Wrap(services.ErrTranscription, "transcribe", "request", "timeout", nil))
	}

	job := testsupport.NewJob(t, store, "talk.mp4")
	startManager(t, cfg, store, stubs.set(), &recordingNotifier{})

	failed := waitForStatus(t, store, job.ID, queue.StatusFailed)
	if failed.ErrorKind != "TranscriptionError" {
		t.Fatalf("unexpected error kind %q", failed.ErrorKind)
	}
	if stubs.transcribe.Calls() != 2 {
		t.Fatalf("expected two transcribe attempts, got %d", stubs.transcribe.Calls())
	}
	if failed.AudioPath == "" {
		t.Fatal("completed stage artifacts must be kept on failure")
	}
}

func TestManagerHonorsCancelBetweenStages(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	store := testsupport.MustOpenStore(t, cfg)
	stubs := newPipelineStubs()
	stubs.extract.run = func(ctx context.Context, job *queue.Job) error {
		outcome, err := store.RequestCancel(ctx, job.ID)
		if err != nil {
			return err
		}
		if outcome != queue.CancelRequested {
			t.Errorf("expected cooperative cancel, got %s", outcome)
		}
		return nil
	}

	job := testsupport.NewJob(t, store, "talk.mp4")
	startManager(t, cfg, store, stubs.set(), &recordingNotifier{})

	canceled := waitForStatus(t, store, job.ID, queue.StatusCanceled)
	if canceled.FailedStage != string(queue.StatusTranscribing) {
		t.Fatalf("expected cancel before transcribing, got %q", canceled.FailedStage)
	}
	if stubs.extract.Calls() != 1 || stubs.transcribe.Calls() != 0 {
		t.Fatal("the running stage finishes and the next one never starts")
	}
}

func TestManagerStopRollsBackRunningStage(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	store := testsupport.MustOpenStore(t, cfg)
	stubs := newPipelineStubs()
	started := make(chan struct{})
	stubs.transcribe.run = func(ctx context.Context, _ *queue.Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}

	job := testsupport.NewJob(t, store, "talk.mp4")
	mgr := workflow.NewManagerWithNotifier(cfg, store, logging.NewNop(), &recordingNotifier{})
	mgr.ConfigureStages(stubs.set())
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-started:
	case <-time.After(15 * time.Second):
		t.Fatal("transcribe stage never started")
	}
	mgr.Stop()

	stopped, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stopped.Status != queue.StatusExtracted {
		t.Fatalf("expected rollback to extracted, got %s", stopped.Status)
	}
	if stopped.ClaimedBy != "" {
		t.Fatalf("expected claim released, got %q", stopped.ClaimedBy)
	}
	if stopped.Attempts != 0 {
		t.Fatalf("shutdown must not consume an attempt, got %d", stopped.Attempts)
	}
	if stopped.ProgressMessage != queue.DaemonStopReason {
		t.Fatalf("unexpected progress message %q", stopped.ProgressMessage)
	}
}

func TestManagerStartRequiresStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManagerWithNotifier(cfg, store, logging.NewNop(), &recordingNotifier{})
	if err := mgr.Start(context.Background()); err == nil {
		t.Fatal("expected error without configured stages")
	}
}

func TestManagerStatusReportsStageHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	store := testsupport.MustOpenStore(t, cfg)
	stubs := newPipelineStubs()
	set := stubs.set()
	set.Composite = nil
	mgr := workflow.NewManagerWithNotifier(cfg, store, logging.NewNop(), &recordingNotifier{})
	mgr.ConfigureStages(set)

	summary := mgr.Status(context.Background())
	if summary.Running {
		t.Fatal("expected manager not running before Start")
	}
	if !summary.StageHealth["extract"].Ready {
		t.Fatal("expected extract stage healthy")
	}
	if summary.StageHealth["composite"].Ready {
		t.Fatal("expected missing composite handler to be unhealthy")
	}
}

type closableStage struct {
	*stubStage
	closed bool
	err    error
}

func (c *closableStage) Close() error {
	c.closed = true
	return c.err
}

func TestStageSetCloseReleasesHandlers(t *testing.T) {
	stubs := newPipelineStubs()
	translate := &closableStage{stubStage: stubs.translate}
	synthesize := &closableStage{stubStage: stubs.synthesize, err: errors.New("connection reset")}
	set := workflow.StageSet{
		Extract:    stubs.extract,
		Transcribe: stubs.transcribe,
		Translate:  translate,
		Synthesize: synthesize,
		Composite:  stubs.composite,
	}

	err := set.Close()
	if !translate.closed || !synthesize.closed {
		t.Fatalf("expected both closers to run: translate=%v synthesize=%v", translate.closed, synthesize.closed)
	}
	if err == nil || err.Error() != "connection reset" {
		t.Fatalf("expected the synthesize close error, got %v", err)
	}
}
