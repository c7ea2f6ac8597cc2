package task

import (
	"github.com/haierkeys/sticky-note-canvas-service/internal/app"
	pkglogger "github.com/haierkeys/sticky-note-canvas-service/pkg/logger"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/safe_close"

	"go.uber.org/zap"
)

// Manager 任务管理器,负责创建和管理所有任务
type Manager struct {
	app       *app.App
	scheduler *Scheduler
	logger    *zap.Logger
}

// NewManager 创建任务管理器，任务通过 Worker Pool 执行
func NewManager(appContainer *app.App, sc *safe_close.SafeClose) *Manager {
	return &Manager{
		app:       appContainer,
		scheduler: NewScheduler(appContainer.Logger(), sc, appContainer.SubmitTask, appContainer.Metrics),
		logger:    appContainer.Logger(),
	}
}

// RegisterTasks 注册所有任务
func (m *Manager) RegisterTasks() error {
	for _, factory := range GetFactories() {
		t, err := factory(m.app)
		if err != nil {
			m.logger.Warn("failed to create task", zap.Error(err))
			return err
		}
		if t == nil {
			continue
		}
		if err := m.scheduler.AddTask(t); err != nil {
			return err
		}
		m.logger.Info("task registered",
			zap.String(pkglogger.FieldTask, t.Name()),
			zap.String("spec", t.Spec()))
	}
	return nil
}

// Scheduler 返回调度器
func (m *Manager) Scheduler() *Scheduler {
	return m.scheduler
}

// Start 启动所有已注册的任务
func (m *Manager) Start() {
	m.scheduler.Start()
}
