// Package writequeue provides per-key write queue implementation
// Package writequeue 提供按键（便签 id）串行化的写队列实现
// Writes for the same key run one at a time in submission order; different keys run concurrently
// 同一键的写操作按提交顺序逐个执行，不同键之间并发执行
package writequeue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Error definitions
// 错误定义
var (
	// ErrWriteQueueFull returned when key write queue is full
	// ErrWriteQueueFull 当键写队列已满时返回
	ErrWriteQueueFull = errors.New("write queue is full")
	// ErrWriteQueueClosed returned when write queue manager is closed
	// ErrWriteQueueClosed 当写队列管理器已关闭时返回
	ErrWriteQueueClosed = errors.New("write queue is closed")
	// ErrWriteTimeout returned when write operation timeout
	// ErrWriteTimeout 当写操作超时时返回
	ErrWriteTimeout = errors.New("write operation timeout")
)

// Config write queue configuration
// Config 写队列配置
type Config struct {
	// QueueCapacity per-key queue capacity, default 100
	// QueueCapacity 每个键的队列容量，默认 100
	QueueCapacity int
	// WriteTimeout how long Execute waits for a result, default 30 seconds
	// WriteTimeout Execute 等待结果的时间，默认 30 秒
	WriteTimeout time.Duration
	// IdleTimeout idle cleanup timeout, default 10 minutes
	// IdleTimeout 空闲清理超时时间，默认 10 分钟
	IdleTimeout time.Duration
}

// DefaultConfig returns default configuration
// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		QueueCapacity: 100,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   10 * time.Minute,
	}
}

// writeOp write operation
// writeOp 写操作
type writeOp struct {
	ctx    context.Context
	fn     func(context.Context) error
	result chan error
}

// keyWriteQueue single key write queue
// keyWriteQueue 单个键的写队列
type keyWriteQueue struct {
	key      int64
	ch       chan writeOp
	lastUsed atomic.Int64
	// pending counts queued plus running operations
	// pending 排队中和执行中的操作数
	pending atomic.Int64
	stopCh  chan struct{}
}

// Manager manages write queues for all keys
// Manager 管理所有键的写队列
type Manager struct {
	config Config
	logger *zap.Logger

	// mu guards queues and closed; enqueue and idle cleanup both hold it
	// mu 保护 queues 和 closed，入队与空闲清理都需要持有
	mu     sync.Mutex
	queues map[int64]*keyWriteQueue
	closed bool

	pending   atomic.Int64
	submitted atomic.Int64
	failed    atomic.Int64

	workerWg sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	// Cleanup goroutine control
	// 清理 goroutine 控制
	cleanupWg   sync.WaitGroup
	cleanupDone chan struct{}
}

// New creates write queue manager
// New 创建写队列管理器
// cfg: configuration, if nil use default configuration
// cfg: 配置，如果为 nil 则使用默认配置
// logger: zap logger, if nil use nop logger
// logger: zap 日志器，如果为 nil 则使用 nop logger
func New(cfg *Config, logger *zap.Logger) *Manager {
	if cfg == nil {
		defaultCfg := DefaultConfig()
		cfg = &defaultCfg
	}

	c := *cfg
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 100
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 10 * time.Minute
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		config:      c,
		logger:      logger,
		queues:      make(map[int64]*keyWriteQueue),
		ctx:         ctx,
		cancel:      cancel,
		cleanupDone: make(chan struct{}),
	}

	m.cleanupWg.Add(1)
	go m.cleanupIdleQueues()

	m.logger.Info("write queue manager started",
		zap.Int("queueCapacity", c.QueueCapacity),
		zap.Duration("writeTimeout", c.WriteTimeout),
		zap.Duration("idleTimeout", c.IdleTimeout))

	return m
}

// Submit enqueues fn for key without waiting
// The returned channel receives exactly one value: fn's error, or the reason it never ran.
// Submit 非阻塞提交写操作，返回的 channel 只会收到一个结果
func (m *Manager) Submit(ctx context.Context, key int64, fn func(context.Context) error) <-chan error {
	result := make(chan error, 1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		result <- ErrWriteQueueClosed
		return result
	}

	queue := m.getOrCreateQueueLocked(key)
	op := writeOp{ctx: ctx, fn: fn, result: result}

	select {
	case queue.ch <- op:
		queue.pending.Add(1)
		queue.lastUsed.Store(time.Now().UnixNano())
		m.pending.Add(1)
		m.submitted.Add(1)
	default:
		m.mu.Unlock()
		m.failed.Add(1)
		result <- ErrWriteQueueFull
		return result
	}
	m.mu.Unlock()

	return result
}

// Execute executes write operation and waits for its result
// Execute 执行写操作并等待结果，同一键的写操作按 FIFO 顺序处理
func (m *Manager) Execute(ctx context.Context, key int64, fn func(context.Context) error) error {
	result := m.Submit(ctx, key, fn)

	timeout := m.config.WriteTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrWriteTimeout
	case <-m.ctx.Done():
		return ErrWriteQueueClosed
	}
}

// getOrCreateQueueLocked gets or creates key write queue (lazy loading), caller holds m.mu
// getOrCreateQueueLocked 获取或创建键写队列（懒加载），调用方需持有 m.mu
func (m *Manager) getOrCreateQueueLocked(key int64) *keyWriteQueue {
	if queue, ok := m.queues[key]; ok {
		return queue
	}

	queue := &keyWriteQueue{
		key:    key,
		ch:     make(chan writeOp, m.config.QueueCapacity),
		stopCh: make(chan struct{}),
	}
	queue.lastUsed.Store(time.Now().UnixNano())
	m.queues[key] = queue

	m.workerWg.Add(1)
	go m.worker(queue)

	m.logger.Debug("created write queue",
		zap.Int64("key", key),
		zap.Int("capacity", m.config.QueueCapacity))

	return queue
}

// worker handles single key write queue
// worker 处理单个键写队列的 goroutine
func (m *Manager) worker(queue *keyWriteQueue) {
	defer m.workerWg.Done()
	defer m.logger.Debug("write queue worker stopped", zap.Int64("key", queue.key))

	for {
		select {
		case op := <-queue.ch:
			m.executeOp(queue, op)
		case <-queue.stopCh:
			// Stop only after everything already enqueued has run
			// 停止前先执行完已入队的操作
			m.drainQueue(queue)
			return
		}
	}
}

// executeOp executes single write operation
// executeOp 执行单个写操作
func (m *Manager) executeOp(queue *keyWriteQueue, op writeOp) {
	var err error
	select {
	case <-op.ctx.Done():
		err = op.ctx.Err()
	default:
		err = m.safeCall(op)
	}
	if err != nil {
		m.failed.Add(1)
	}

	// Counters settle before the result is visible to the submitter
	// 先更新计数，再把结果交给提交方
	queue.lastUsed.Store(time.Now().UnixNano())
	queue.pending.Add(-1)
	m.pending.Add(-1)

	select {
	case op.result <- err:
	default:
	}
}

// safeCall runs fn and turns a panic into an error
// safeCall 执行 fn，并把 panic 转换为错误
func (m *Manager) safeCall(op writeOp) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("write operation panic", zap.Any("panic", r))
			err = errors.New("write operation panic")
		}
	}()
	return op.fn(op.ctx)
}

// drainQueue drains remaining operations in queue
// drainQueue 排空队列中的剩余操作
func (m *Manager) drainQueue(queue *keyWriteQueue) {
	for {
		select {
		case op := <-queue.ch:
			m.executeOp(queue, op)
		default:
			return
		}
	}
}

// cleanupIdleQueues regularly cleans up idle queues
// cleanupIdleQueues 定期清理空闲队列
func (m *Manager) cleanupIdleQueues() {
	defer m.cleanupWg.Done()

	ticker := time.NewTicker(m.config.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-m.cleanupDone:
			return
		case <-ticker.C:
			m.doCleanup()
		}
	}
}

// doCleanup performs one cleanup
// doCleanup 执行一次清理
func (m *Manager) doCleanup() {
	now := time.Now().UnixNano()
	idleThreshold := m.config.IdleTimeout.Nanoseconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, queue := range m.queues {
		// A queue with nothing pending cannot receive more work without m.mu
		// 没有待处理操作的队列，在持有 m.mu 时不会再有新操作进入
		if queue.pending.Load() != 0 {
			continue
		}
		lastUsed := queue.lastUsed.Load()
		if now-lastUsed <= idleThreshold {
			continue
		}

		m.logger.Debug("cleaning up idle write queue",
			zap.Int64("key", key),
			zap.Duration("idleTime", time.Duration(now-lastUsed)))

		close(queue.stopCh)
		delete(m.queues, key)
	}
}

// Wait blocks until nothing is pending or ctx is done
// Wait 阻塞直到没有待处理的写操作或 ctx 结束
func (m *Manager) Wait(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if m.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Shutdown closes write queue manager, waits for all operations to complete
// ctx is used to control shutdown timeout
// Shutdown 关闭写队列管理器，等待所有操作完成
// ctx 用于控制关闭超时
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for key, queue := range m.queues {
		close(queue.stopCh)
		delete(m.queues, key)
	}
	m.mu.Unlock()

	m.logger.Info("write queue manager shutting down",
		zap.Int64("pending", m.pending.Load()))

	close(m.cleanupDone)

	done := make(chan struct{})
	go func() {
		m.workerWg.Wait()
		m.cleanupWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("write queue manager shutdown completed")
		m.cancel()
		return nil
	case <-ctx.Done():
		m.logger.Warn("write queue manager shutdown timeout, forcing cancellation",
			zap.Int64("pending", m.pending.Load()))
		m.cancel()
		return ctx.Err()
	}
}

// QueueCount returns current active queue count
// QueueCount 返回当前活跃队列数量
func (m *Manager) QueueCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues)
}

// QueuedCount returns number of operations pending for key
// QueuedCount 返回指定键待处理的操作数
func (m *Manager) QueuedCount(key int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if queue, ok := m.queues[key]; ok {
		return int(queue.pending.Load())
	}
	return 0
}

// Pending returns number of operations not yet finished across all keys
// Pending 返回所有键尚未完成的操作数
func (m *Manager) Pending() int64 {
	return m.pending.Load()
}

// IsClosed returns if manager is closed
// IsClosed 返回管理器是否已关闭
func (m *Manager) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Metrics write queue manager metrics
// Metrics 写队列管理器指标
type Metrics struct {
	QueueCapacity int
	ActiveQueues  int
	Pending       int64
	Submitted     int64
	Failed        int64
	IsClosed      bool
}

// GetMetrics gets current metrics
// GetMetrics 获取当前指标
func (m *Manager) GetMetrics() Metrics {
	m.mu.Lock()
	closed := m.closed
	active := len(m.queues)
	m.mu.Unlock()

	return Metrics{
		QueueCapacity: m.config.QueueCapacity,
		ActiveQueues:  active,
		Pending:       m.pending.Load(),
		Submitted:     m.submitted.Load(),
		Failed:        m.failed.Load(),
		IsClosed:      closed,
	}
}
