package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"autoprint/internal/config"
	"autoprint/internal/ledger"
	"autoprint/internal/logging"
	"autoprint/internal/notifications"
	"autoprint/internal/schedule"
	"autoprint/internal/stage"
)

// Manager coordinates ledger processing using registered stage handlers.
type Manager struct {
	cfg          *config.Config
	store        *ledger.Store
	logger       *slog.Logger
	pollInterval time.Duration
	notifier     notifications.Service
	window       schedule.Window

	heartbeat *HeartbeatMonitor

	stages       []pipelineStage
	stageByStart map[ledger.Status]pipelineStage
	statusOrder  []ledger.Status

	mu             sync.RWMutex
	running        bool
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	lastErr        error
	lastEntry      *ledger.Entry
	deferralLogged map[int64]struct{}
}

// StageSet bundles the concrete pipeline handlers the manager orchestrates.
type StageSet struct {
	Printer  stage.Handler
	Archiver stage.Handler
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      ledger.Status
	processingStatus ledger.Status
	doneStatus       ledger.Status
}

// NewManager constructs a pipeline manager.
func NewManager(cfg *config.Config, store *ledger.Store, logger *slog.Logger) (*Manager, error) {
	return NewManagerWithNotifier(cfg, store, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a pipeline manager with a custom notifier (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *ledger.Store, logger *slog.Logger, notifier notifications.Service) (*Manager, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	window, err := schedule.Parse(cfg.Schedule.Enabled, cfg.Schedule.Start, cfg.Schedule.End)
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:            cfg,
		store:          store,
		logger:         logger.With(logging.String(logging.FieldComponent, "pipeline")),
		notifier:       notifier,
		window:         window,
		deferralLogged: make(map[int64]struct{}),
		pollInterval:   time.Duration(cfg.Pipeline.PollInterval) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Pipeline.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Pipeline.HeartbeatTimeout)*time.Second,
		),
	}, nil
}

// ConfigureStages registers the print and archive handlers.
func (m *Manager) ConfigureStages(set StageSet) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stages = []pipelineStage{
		{
			name:             "print",
			handler:          set.Printer,
			startStatus:      ledger.StatusPending,
			processingStatus: ledger.StatusPrinting,
			doneStatus:       ledger.StatusPrinted,
		},
		{
			name:             "archive",
			handler:          set.Archiver,
			startStatus:      ledger.StatusPrinted,
			processingStatus: ledger.StatusArchiving,
			doneStatus:       ledger.StatusArchived,
		},
	}

	m.stageByStart = make(map[ledger.Status]pipelineStage, len(m.stages))
	m.statusOrder = m.statusOrder[:0]
	for _, stg := range m.stages {
		m.stageByStart[stg.startStatus] = stg
		m.statusOrder = append(m.statusOrder, stg.startStatus)
	}
}
