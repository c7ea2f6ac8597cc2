package task

import (
	"context"
	"sync"
	"time"

	pkglogger "github.com/haierkeys/sticky-note-canvas-service/pkg/logger"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/safe_close"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task 定义任务接口
type Task interface {
	Name() string                  // 任务名称
	Spec() string                  // cron 表达式，为空时只在启动时执行
	IsStartupRun() bool            // 是否立即执行一次
	Run(ctx context.Context) error // 执行任务
}

// Observer 任务执行结果观察者
type Observer interface {
	ObserveTask(task string, err error)
}

// SubmitFunc 任务提交函数，通常为 Worker Pool 的 Submit
type SubmitFunc func(ctx context.Context, fn func(context.Context) error) error

// Scheduler 任务调度器
type Scheduler struct {
	logger   *zap.Logger
	cron     *cron.Cron
	sc       *safe_close.SafeClose
	submit   SubmitFunc
	observer Observer

	mu    sync.Mutex
	tasks []Task

	ctx    context.Context
	cancel context.CancelFunc
}

// cronLogger 适配 cron.Logger
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// NewScheduler 创建任务调度器
// submit 为 nil 时任务在 cron 的协程中直接执行
func NewScheduler(logger *zap.Logger, sc *safe_close.SafeClose, submit SubmitFunc, observer Observer) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{s: logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger: logger,
		cron: cron.New(
			cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
			cron.WithLogger(cl),
		),
		sc:       sc,
		submit:   submit,
		observer: observer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// AddTask 添加任务，cron 表达式非法时返回错误
func (s *Scheduler) AddTask(task Task) error {
	if spec := task.Spec(); spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { _ = s.RunOnce(task) }); err != nil {
			return errors.Wrapf(err, "task %s: invalid spec %q", task.Name(), spec)
		}
	}
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	return nil
}

// Tasks 返回已添加的任务
func (s *Scheduler) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Start 启动所有任务，收到关闭信号后停止调度并等待执行中的任务
func (s *Scheduler) Start() {
	tasks := s.Tasks()
	if len(tasks) == 0 {
		s.logger.Info("no tasks to schedule")
		return
	}

	s.logger.Info("tasks starting", zap.Int("count", len(tasks)))

	for _, task := range tasks {
		if task.IsStartupRun() {
			go func(t Task) { _ = s.RunOnce(t) }(task)
		}
	}
	s.cron.Start()

	if s.sc == nil {
		return
	}
	s.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		defer done()
		<-closeSignal
		s.Stop()
	})
}

// Stop 停止调度，取消执行中任务的 ctx 并等待其返回
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("tasks stopped")
}

// RunOnce 立即执行一次任务
func (s *Scheduler) RunOnce(task Task) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("task panic: %v", r)
			s.logger.Error("task panic",
				zap.String(pkglogger.FieldTask, task.Name()),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
		if s.observer != nil {
			s.observer.ObserveTask(task.Name(), err)
		}
		if err != nil {
			s.logger.Error("task running error",
				zap.String(pkglogger.FieldTask, task.Name()),
				zap.Duration(pkglogger.FieldDuration, time.Since(start)),
				zap.Error(err))
			return
		}
		s.logger.Info("task log",
			zap.String(pkglogger.FieldTask, task.Name()),
			zap.Duration(pkglogger.FieldDuration, time.Since(start)),
			zap.String("msg", "success"))
	}()

	if s.submit != nil {
		return s.submit(s.ctx, task.Run)
	}
	return task.Run(s.ctx)
}
