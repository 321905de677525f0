package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"echvid/internal/config"
	"echvid/internal/logging"
	"echvid/internal/notifications"
	"echvid/internal/queue"
)

// Manager coordinates queue processing using registered stage handlers.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	notifier notifications.Service

	heartbeat *HeartbeatMonitor
	stages    map[queue.Status]pipelineStage
	order     []pipelineStage

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *queue.Job

	queueActive bool
	queueStart  time.Time
}

// NewManager constructs a workflow manager that notifies through the
// configured ntfy topic.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a workflow manager with a custom notifier.
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		notifier: notifier,
		heartbeat: NewHeartbeatMonitor(
			store,
			logging.NewComponentLogger(logger, "workflow-heartbeat"),
			cfg.Workflow.Heartbeat(),
			cfg.Workflow.StaleAfter(),
		),
		stages: make(map[queue.Status]pipelineStage),
	}
}

// ConfigureStages registers the stage handlers. It must be called before Start.
func (m *Manager) ConfigureStages(set StageSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = set.pipeline()
	m.stages = make(map[queue.Status]pipelineStage, len(m.order))
	for _, stg := range m.order {
		m.stages[stg.processingStatus] = stg
	}
}

func (m *Manager) stageFor(status queue.Status) (pipelineStage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stg, ok := m.stages[status]
	return stg, ok
}

func (m *Manager) configured() bool {
	for _, stg := range m.order {
		if stg.handler != nil {
			return true
		}
	}
	return false
}
