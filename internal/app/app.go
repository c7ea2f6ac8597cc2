package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haierkeys/sticky-note-canvas-service/internal/dao"
	"github.com/haierkeys/sticky-note-canvas-service/internal/domain"
	"github.com/haierkeys/sticky-note-canvas-service/internal/metrics"
	"github.com/haierkeys/sticky-note-canvas-service/internal/service"
	"github.com/haierkeys/sticky-note-canvas-service/internal/upgrade"
	pkgapp "github.com/haierkeys/sticky-note-canvas-service/pkg/app"
	pkglogger "github.com/haierkeys/sticky-note-canvas-service/pkg/logger"
	pkgvalidator "github.com/haierkeys/sticky-note-canvas-service/pkg/validator"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/workerpool"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/writequeue"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultShutdownTimeout 默认关闭超时时间
const DefaultShutdownTimeout = 30 * time.Second

// WriteFailure 最近一次写入失败
type WriteFailure struct {
	NoteID int64     `json:"noteId"`
	Action string    `json:"action"`
	Error  string    `json:"error"`
	At     time.Time `json:"at"`
}

// App 应用容器，封装所有依赖和服务
type App struct {
	// 基础设施（注入的依赖）
	config *AppConfig
	logger *zap.Logger
	DB     *gorm.DB

	// 并发控制组件
	workerPool    *workerpool.Pool
	writeQueueMgr *writequeue.Manager

	Store     *dao.NoteStore
	Metrics   *metrics.Metrics
	Validator *pkgvalidator.CustomValidator

	// Service 层
	Registry *service.NoteRegistry
	Canvas   *service.Canvas

	lastFailure  atomic.Pointer[WriteFailure]
	failureMu    sync.RWMutex
	failureHooks []func(domain.NoteEvent, error)

	// 关闭控制
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewApp 创建应用容器实例
// 打开存储、执行升级脚本并从存储重建画布状态
// cfg: 应用配置（必须）
// logger: zap 日志器（必须）
// db: 数据库连接（必须）
func NewApp(cfg *AppConfig, logger *zap.Logger, db *gorm.DB) (*App, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if db == nil {
		return nil, errors.New("database is required")
	}

	a := &App{
		config:     cfg,
		logger:     logger,
		DB:         db,
		Metrics:    metrics.New(),
		Validator:  pkgvalidator.NewCustomValidator(),
		shutdownCh: make(chan struct{}),
	}

	// 初始化 Worker Pool
	wpConfig := cfg.GetWorkerPoolConfig()
	a.workerPool = workerpool.New(&wpConfig, logger)

	// 初始化 Write Queue Manager
	wqConfig := cfg.GetWriteQueueConfig()
	a.writeQueueMgr = writequeue.New(&wqConfig, logger)

	a.Metrics.WatchWorkerPool(a.workerPool)
	a.Metrics.WatchWriteQueue(a.writeQueueMgr)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetContextTimeout())
	defer cancel()

	a.Store = dao.NewNoteStore(db,
		dao.WithLogger(logger),
		dao.WithAutoMigrate(cfg.Database.AutoMigrate),
	)
	if err := a.Store.Open(ctx); err != nil {
		a.abort()
		return nil, err
	}

	if _, err := upgrade.NewMigrationManager(db, logger).Run(ctx); err != nil {
		a.abort()
		return nil, errors.Wrap(err, "database upgrade failed")
	}

	attempts, backoff := cfg.GetWriteRetry()
	a.Registry = service.NewNoteRegistry(a.Store,
		service.WithLogger(logger),
		service.WithWriteQueue(a.writeQueueMgr),
		service.WithMetrics(a.Metrics),
		service.WithRetry(attempts, backoff),
		service.WithReporter(a.reportWriteFailure),
	)
	if err := a.Registry.Load(ctx); err != nil {
		a.abort()
		return nil, err
	}
	a.Canvas = service.NewCanvas(a.Registry, logger)

	logger.Info("App container initialized successfully",
		zap.String("canvas", cfg.App.CanvasName),
		zap.Int("notes", a.Registry.Count()),
		zap.Int64(pkglogger.FieldStackOrder, a.Registry.Counter()),
		zap.Int("workerPoolMaxWorkers", wpConfig.MaxWorkers),
		zap.Int("writeQueueCapacity", wqConfig.QueueCapacity))

	return a, nil
}

// abort 初始化失败时释放已创建的后台组件，数据库由调用方关闭
func (a *App) abort() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.workerPool.Shutdown(ctx)
	_ = a.writeQueueMgr.Shutdown(ctx)
}

// reportWriteFailure 记录写入失败并通知订阅者
func (a *App) reportWriteFailure(ev domain.NoteEvent, err error) {
	a.lastFailure.Store(&WriteFailure{
		NoteID: ev.NoteID,
		Action: string(ev.Type),
		Error:  err.Error(),
		At:     time.Now(),
	})

	a.failureMu.RLock()
	hooks := a.failureHooks
	a.failureMu.RUnlock()
	for _, fn := range hooks {
		fn(ev, err)
	}
}

// OnWriteFailure 注册写入失败回调，回调需尽快返回
func (a *App) OnWriteFailure(fn func(domain.NoteEvent, error)) {
	a.failureMu.Lock()
	defer a.failureMu.Unlock()
	hooks := make([]func(domain.NoteEvent, error), 0, len(a.failureHooks)+1)
	hooks = append(hooks, a.failureHooks...)
	a.failureHooks = append(hooks, fn)
}

// LastWriteFailure 返回最近一次写入失败，没有时为 nil
func (a *App) LastWriteFailure() *WriteFailure {
	return a.lastFailure.Load()
}

// Config 获取应用配置
func (a *App) Config() *AppConfig {
	return a.config
}

// Logger 获取日志器
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// SubmitTask 提交任务到 Worker Pool 并等待完成
func (a *App) SubmitTask(ctx context.Context, task func(context.Context) error) error {
	return a.workerPool.Submit(ctx, task)
}

// SubmitTaskAsync 异步提交任务到 Worker Pool（不等待结果）
func (a *App) SubmitTaskAsync(ctx context.Context, task func(context.Context) error) error {
	return a.workerPool.SubmitAsync(ctx, task)
}

// Version 获取版本信息
func (a *App) Version() pkgapp.VersionInfo {
	return pkgapp.VersionInfo{
		Version:   Version,
		GitTag:    GitTag,
		BuildTime: BuildTime,
	}
}

// IsProductionMode 是否为生产模式
func (a *App) IsProductionMode() bool {
	return a.config.Log.Production
}

// WorkerPool 获取 Worker Pool（用于高级操作）
func (a *App) WorkerPool() *workerpool.Pool {
	return a.workerPool
}

// WriteQueueManager 获取 Write Queue Manager（用于高级操作）
func (a *App) WriteQueueManager() *writequeue.Manager {
	return a.writeQueueMgr
}

// Shutdown 优雅关闭应用容器
// 按顺序关闭：刷新便签写入 -> Worker Pool -> Write Queue Manager -> Database
// ctx 用于控制关闭超时，如果为 nil 则使用默认 30 秒超时
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
	}

	first := false
	a.shutdownOnce.Do(func() {
		first = true
		close(a.shutdownCh)
	})
	if !first {
		return nil
	}

	a.logger.Info("App container shutting down...")
	var errs []error

	// 1. 等待已排队的便签写入落盘
	if a.Registry != nil {
		if err := a.Registry.Close(ctx); err != nil {
			a.logger.Warn("Note registry flush error", zap.Error(err))
			errs = append(errs, errors.Wrap(err, "note registry flush"))
		}
	}

	// 2. 关闭 Worker Pool（停止接受新任务，等待现有任务完成）
	if a.workerPool != nil {
		if err := a.workerPool.Shutdown(ctx); err != nil {
			a.logger.Warn("Worker pool shutdown error", zap.Error(err))
			errs = append(errs, errors.Wrap(err, "worker pool shutdown"))
		}
	}

	// 3. 关闭 Write Queue Manager（排空所有队列）
	if a.writeQueueMgr != nil {
		if err := a.writeQueueMgr.Shutdown(ctx); err != nil {
			a.logger.Warn("write queue manager shutdown error", zap.Error(err))
			errs = append(errs, errors.Wrap(err, "write queue manager shutdown"))
		}
	}

	// 4. 关闭数据库连接
	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		a.logger.Warn("App container shutdown completed with errors", zap.Int("errorCount", len(errs)))
		return errors.Errorf("shutdown completed with %d errors: %v", len(errs), errs)
	}

	a.logger.Info("App container shutdown completed successfully")
	return nil
}

// Close 释放数据库连接
func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	if err := dao.CloseDB(a.DB); err != nil {
		return errors.Wrap(err, "close database failed")
	}
	a.logger.Info("Database connection closed")
	return nil
}

// IsShuttingDown 检查应用是否正在关闭
func (a *App) IsShuttingDown() bool {
	select {
	case <-a.shutdownCh:
		return true
	default:
		return false
	}
}

// ShutdownCh 返回关闭信号通道（用于监听关闭事件）
func (a *App) ShutdownCh() <-chan struct{} {
	return a.shutdownCh
}
