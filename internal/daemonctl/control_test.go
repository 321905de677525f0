package daemonctl_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"echvid/internal/daemon"
	"echvid/internal/daemonctl"
	"echvid/internal/logging"
	"echvid/internal/queue"
	"echvid/internal/stage"
	"echvid/internal/testsupport"
	"echvid/internal/workflow"
)

type noopStage struct{}

func (noopStage) Prepare(context.Context, *queue.Job) error { return nil }
func (noopStage) Execute(context.Context, *queue.Job) error { return nil }
func (noopStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("noop")
}

func TestProcessInfoWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	running, pid, err := daemonctl.ProcessInfo(cfg)
	if err != nil {
		t.Fatalf("ProcessInfo: %v", err)
	}
	if running || pid != 0 {
		t.Fatalf("expected no daemon, got running=%v pid=%d", running, pid)
	}

	if _, err := daemonctl.StopAndTerminate(cfg, 0); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestProcessInfoSeesRunningDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManagerWithNotifier(cfg, store, logger, nil)
	mgr.ConfigureStages(workflow.StageSet{Extract: noopStage{}})
	d, err := daemon.New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	running, pid, err := daemonctl.ProcessInfo(cfg)
	if err != nil {
		t.Fatalf("ProcessInfo: %v", err)
	}
	if !running || pid != os.Getpid() {
		t.Fatalf("expected running daemon with pid %d, got running=%v pid=%d", os.Getpid(), running, pid)
	}

	_, err = daemonctl.StopAndTerminate(cfg, 0)
	if err == nil || !strings.Contains(err.Error(), "refusing") {
		t.Fatalf("expected refusal to signal own process, got %v", err)
	}

	result, err := daemonctl.EnsureStarted(cfg, "/nonexistent/echvid", daemonctl.LaunchOptions{}, 0)
	if err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if result.State != daemonctl.StartStateAlreadyRunning {
		t.Fatalf("expected already running, got %s", result.State)
	}
}

func TestBuildSnapshotReadsQueueOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewJob(t, store, "talk.mp4")
	failed := testsupport.NewJob(t, store, "intro.mp4")
	failed.SetFailed("translate", "TranslationError", "quota exceeded")
	if err := store.Update(context.Background(), failed); err != nil {
		t.Fatalf("Update: %v", err)
	}

	snap, err := daemonctl.BuildSnapshot(context.Background(), cfg)
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}
	if snap.Running {
		t.Fatal("expected daemon to be reported stopped")
	}
	if snap.QueueErr != nil {
		t.Fatalf("queue stats: %v", snap.QueueErr)
	}
	if snap.QueueStats[queue.StatusPending] != 1 || snap.QueueStats[queue.StatusFailed] != 1 {
		t.Fatalf("unexpected stats %+v", snap.QueueStats)
	}
	if len(snap.Dependencies) == 0 {
		t.Fatal("expected dependency checks")
	}
}
