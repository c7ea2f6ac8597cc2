package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haierkeys/sticky-note-canvas-service/internal/domain"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/logger"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/writequeue"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Reporter 接收异步写入失败的回调（通常转发给 UI 层）
type Reporter func(ev domain.NoteEvent, err error)

// Metrics 注册表指标接口，由 internal/metrics 实现
type Metrics interface {
	ObserveIntent(action string)
	ObserveWrite(op string, err error, d time.Duration)
	SetNotes(n int)
	SetPendingWrites(n int64)
}

type nopMetrics struct{}

func (nopMetrics) ObserveIntent(string)                      {}
func (nopMetrics) ObserveWrite(string, error, time.Duration) {}
func (nopMetrics) SetNotes(int)                              {}
func (nopMetrics) SetPendingWrites(int64)                    {}

// noteEntry 内存中的便签及其生命周期状态
type noteEntry struct {
	note  *domain.Note
	state domain.NoteState
}

// NoteRegistry 便签注册表，内存中的唯一事实来源
// All mutations are serialized by mu. In-memory state changes before the store write is
// enqueued; writes for one note reach the store in the order the mutations were applied.
type NoteRegistry struct {
	store  domain.NoteStore
	logger *zap.Logger

	queue     *writequeue.Manager
	ownsQueue bool

	reporter     Reporter
	metrics      Metrics
	retryCount   int
	retryBackoff time.Duration

	mu      sync.Mutex
	stack   *StackAllocator
	notes   map[int64]*noteEntry
	deleted map[int64]struct{}
	// generation 每次内存变更加一，由 mu 保护
	generation uint64

	pending atomic.Int64

	subMu   sync.RWMutex
	subs    map[int]func(domain.NoteEvent)
	nextSub int
}

// RegistryOption 注册表可选项
type RegistryOption func(*NoteRegistry)

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *NoteRegistry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithWriteQueue 使用外部写队列（由 App 统一关闭）
func WithWriteQueue(q *writequeue.Manager) RegistryOption {
	return func(r *NoteRegistry) {
		if q != nil {
			r.queue = q
		}
	}
}

// WithReporter 设置写入失败回调
func WithReporter(fn Reporter) RegistryOption {
	return func(r *NoteRegistry) {
		r.reporter = fn
	}
}

// WithRetry 写入失败（ErrWrite）时的重试次数和退避间隔，0 表示不重试
func WithRetry(attempts int, backoff time.Duration) RegistryOption {
	return func(r *NoteRegistry) {
		if attempts > 0 {
			r.retryCount = attempts
		}
		if backoff > 0 {
			r.retryBackoff = backoff
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m Metrics) RegistryOption {
	return func(r *NoteRegistry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewNoteRegistry 创建注册表，store 需要已经 Open
func NewNoteRegistry(store domain.NoteStore, opts ...RegistryOption) *NoteRegistry {
	r := &NoteRegistry{
		store:        store,
		logger:       zap.NewNop(),
		metrics:      nopMetrics{},
		retryBackoff: 100 * time.Millisecond,
		stack:        NewStackAllocator(),
		notes:        make(map[int64]*noteEntry),
		deleted:      make(map[int64]struct{}),
		subs:         make(map[int]func(domain.NoteEvent)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.queue == nil {
		r.queue = writequeue.New(nil, r.logger)
		r.ownsQueue = true
	}
	return r
}

// Load 从存储读取全部记录并重建内存状态
func (r *NoteRegistry) Load(ctx context.Context) error {
	notes, err := r.store.ReadAllData(ctx)
	if err != nil {
		r.logger.Error("load notes failed", zap.Error(err))
		return err
	}
	r.ReconstructFromStore(notes)
	return nil
}

// ReconstructFromStore 用存储记录重建内存状态并播种层级计数器
// Records are ordered by stackOrder; ties keep input order. The counter becomes
// max(stackOrder)+1 with a floor of 1.
func (r *NoteRegistry) ReconstructFromStore(records []*domain.Note) {
	sorted := make([]*domain.Note, 0, len(records))
	for _, rec := range records {
		if rec != nil {
			sorted = append(sorted, rec)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StackOrder < sorted[j].StackOrder
	})

	r.mu.Lock()
	var maxSeen int64
	for _, rec := range sorted {
		n := rec.Clone()
		// 负值原样保留，只有计数器播种时按 0 处理
		if n.StackOrder > maxSeen {
			maxSeen = n.StackOrder
		}
		r.notes[n.ID] = &noteEntry{note: n, state: domain.NoteStatePersisted}
		delete(r.deleted, n.ID)
	}
	r.stack.Seed(maxSeen)
	r.generation++
	count := len(r.notes)
	counter := r.stack.Peek()
	r.mu.Unlock()

	r.metrics.SetNotes(count)
	r.logger.Info("notes reconstructed from store",
		zap.Int("count", len(sorted)),
		zap.Int64(logger.FieldStackOrder, counter))
}

// CreateNote 创建便签
// The store call is synchronous because the widget needs its id before the first render.
// mu is not held during the store call. The stackOrder is taken up front, so a failed
// create leaves a gap in the sequence; nothing else is kept.
func (r *NoteRegistry) CreateNote(ctx context.Context, color string) (*domain.Note, error) {
	r.metrics.ObserveIntent("create")

	r.mu.Lock()
	now := time.Now()
	note := &domain.Note{
		Position:      domain.Position{},
		StackOrder:    r.stack.Next(),
		Color:         color,
		Text:          "",
		SchemaVersion: domain.CurrentSchemaVersion,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.generation++
	r.mu.Unlock()

	start := time.Now()
	id, err := r.store.CreateData(ctx, note.Clone())
	r.metrics.ObserveWrite("create", err, time.Since(start))
	if err != nil {
		ev := domain.NoteEvent{Type: domain.NoteEventCreate, Note: note.Clone()}
		r.logger.Warn("create note failed",
			zap.String("color", color),
			zap.Int64(logger.FieldStackOrder, note.StackOrder),
			zap.Error(err))
		r.report(ev, err)
		return nil, err
	}

	r.mu.Lock()
	note.ID = id
	r.notes[id] = &noteEntry{note: note, state: domain.NoteStatePersisted}
	r.generation++
	snap := note.Clone()
	count := len(r.notes)
	r.mu.Unlock()

	r.metrics.SetNotes(count)
	r.logger.Debug("note created",
		zap.Int64(logger.FieldNoteID, id),
		zap.Int64(logger.FieldStackOrder, snap.StackOrder))
	r.publish(domain.NoteEvent{Type: domain.NoteEventCreate, NoteID: id, Note: snap.Clone()})
	return snap, nil
}

// UpdatePosition 更新便签位置
func (r *NoteRegistry) UpdatePosition(ctx context.Context, id int64, pos domain.Position) (*domain.Note, error) {
	return r.mutate(ctx, domain.NoteEventPosition, id, func(n *domain.Note) domain.NotePatch {
		n.Position = pos
		return domain.NotePatch{Position: &pos}
	})
}

// UpdateText 更新便签文本
func (r *NoteRegistry) UpdateText(ctx context.Context, id int64, text string) (*domain.Note, error) {
	return r.mutate(ctx, domain.NoteEventText, id, func(n *domain.Note) domain.NotePatch {
		n.Text = text
		return domain.NotePatch{Text: &text}
	})
}

// BringToFront 分配新的层级并持久化
func (r *NoteRegistry) BringToFront(ctx context.Context, id int64) (*domain.Note, error) {
	return r.mutate(ctx, domain.NoteEventFront, id, func(n *domain.Note) domain.NotePatch {
		so := r.stack.Next()
		n.StackOrder = so
		return domain.NotePatch{StackOrder: &so}
	})
}

// raise 只在内存中置顶，层级由拖拽结束时的写入一起持久化
func (r *NoteRegistry) raise(id int64) (*domain.Note, error) {
	r.mu.Lock()
	e, ok := r.notes[id]
	if !ok {
		r.mu.Unlock()
		return nil, errors.Wrapf(domain.ErrNotFound, "note %d", id)
	}
	e.note.StackOrder = r.stack.Next()
	e.note.UpdatedAt = time.Now()
	r.generation++
	snap := e.note.Clone()
	r.mu.Unlock()

	r.publish(domain.NoteEvent{Type: domain.NoteEventFront, NoteID: id, Note: snap.Clone()})
	return snap, nil
}

// commitDrag 拖拽结束：一次写入位置和层级
func (r *NoteRegistry) commitDrag(ctx context.Context, id int64, pos domain.Position) (*domain.Note, error) {
	return r.mutate(ctx, domain.NoteEventDrag, id, func(n *domain.Note) domain.NotePatch {
		so := n.StackOrder
		n.Position = pos
		return domain.NotePatch{Position: &pos, StackOrder: &so}
	})
}

// persistStackOrder 持久化当前层级（取消拖拽时使用）
func (r *NoteRegistry) persistStackOrder(ctx context.Context, id int64) (*domain.Note, error) {
	return r.mutate(ctx, domain.NoteEventFront, id, func(n *domain.Note) domain.NotePatch {
		so := n.StackOrder
		return domain.NotePatch{StackOrder: &so}
	})
}

// mutate 应用内存修改并把对应的写入排入该便签的写队列
func (r *NoteRegistry) mutate(ctx context.Context, typ domain.NoteEventType, id int64, apply func(n *domain.Note) domain.NotePatch) (*domain.Note, error) {
	r.metrics.ObserveIntent(string(typ))

	r.mu.Lock()
	e, ok := r.notes[id]
	if !ok {
		r.mu.Unlock()
		return nil, errors.Wrapf(domain.ErrNotFound, "note %d", id)
	}

	patch := apply(e.note)
	e.note.UpdatedAt = time.Now()
	r.generation++
	snap := e.note.Clone()
	ev := domain.NoteEvent{Type: typ, NoteID: id, Note: snap.Clone(), Patch: patch}

	// Enqueue while holding mu so queue order matches apply order
	r.enqueueLocked(ctx, ev, func(ctx context.Context) error {
		return r.store.UpdateData(ctx, id, patch)
	})
	r.mu.Unlock()

	r.publish(ev)
	return snap, nil
}

// DeleteNote 删除便签，内存立即移除，存储删除异步执行
func (r *NoteRegistry) DeleteNote(ctx context.Context, id int64) error {
	r.metrics.ObserveIntent(string(domain.NoteEventDelete))

	r.mu.Lock()
	if _, ok := r.notes[id]; !ok {
		r.mu.Unlock()
		return errors.Wrapf(domain.ErrNotFound, "note %d", id)
	}
	delete(r.notes, id)
	r.deleted[id] = struct{}{}
	r.generation++
	count := len(r.notes)

	ev := domain.NoteEvent{Type: domain.NoteEventDelete, NoteID: id}
	r.enqueueLocked(ctx, ev, func(ctx context.Context) error {
		return r.store.DeleteData(ctx, id)
	})
	r.mu.Unlock()

	r.metrics.SetNotes(count)
	r.publish(ev)
	return nil
}

// pendingWrite 一次排队中的写入，finish 只生效一次
type pendingWrite struct {
	once  sync.Once
	ev    domain.NoteEvent
	start time.Time
}

// enqueueLocked 提交写入，调用方需持有 r.mu
func (r *NoteRegistry) enqueueLocked(ctx context.Context, ev domain.NoteEvent, write func(context.Context) error) {
	w := &pendingWrite{ev: ev, start: time.Now()}
	r.metrics.SetPendingWrites(r.pending.Add(1))

	// Issued writes are never cancelled; keep only the values (trace id) from ctx
	wctx := context.WithoutCancel(ctx)
	result := r.queue.Submit(wctx, ev.NoteID, func(ctx context.Context) error {
		err := r.withRetry(ctx, ev, write)
		r.finish(w, err)
		return err
	})

	// 队列已满或已关闭时 write 不会执行，结果已同步写入 channel
	select {
	case err := <-result:
		if errors.Is(err, writequeue.ErrWriteQueueFull) || errors.Is(err, writequeue.ErrWriteQueueClosed) {
			r.finish(w, domain.NewStoreError(domain.ErrWrite, string(ev.Type), err))
		}
	default:
	}
}

// withRetry 对 ErrWrite 进行有限次重试，NotFound 等错误直接返回
func (r *NoteRegistry) withRetry(ctx context.Context, ev domain.NoteEvent, write func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= r.retryCount; attempt++ {
		if attempt > 0 {
			r.logger.Debug("retrying note write",
				zap.Int64(logger.FieldNoteID, ev.NoteID),
				zap.String(logger.FieldAction, string(ev.Type)),
				zap.Int("attempt", attempt))
			select {
			case <-ctx.Done():
				return err
			case <-time.After(r.retryBackoff * time.Duration(attempt)):
			}
		}
		err = write(ctx)
		if err == nil || !errors.Is(err, domain.ErrWrite) {
			return err
		}
	}
	return err
}

func (r *NoteRegistry) finish(w *pendingWrite, err error) {
	w.once.Do(func() {
		r.metrics.SetPendingWrites(r.pending.Add(-1))
		r.metrics.ObserveWrite(string(w.ev.Type), err, time.Since(w.start))
		if err == nil {
			return
		}
		r.logger.Warn("note write failed",
			zap.Int64(logger.FieldNoteID, w.ev.NoteID),
			zap.String(logger.FieldAction, string(w.ev.Type)),
			zap.Duration(logger.FieldDuration, time.Since(w.start)),
			zap.Error(err))
		r.report(w.ev, err)
	})
}

func (r *NoteRegistry) report(ev domain.NoteEvent, err error) {
	if r.reporter == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("note reporter panic", zap.Any("panic", rec))
		}
	}()
	r.reporter(ev, err)
}

// Subscribe 订阅已应用的变更事件，返回取消函数
// Handlers run synchronously after the registry lock is released and must not block.
func (r *NoteRegistry) Subscribe(fn func(domain.NoteEvent)) (cancel func()) {
	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.subMu.Unlock()

	return func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
}

func (r *NoteRegistry) publish(ev domain.NoteEvent) {
	r.subMu.RLock()
	handlers := make([]func(domain.NoteEvent), 0, len(r.subs))
	for _, fn := range r.subs {
		handlers = append(handlers, fn)
	}
	r.subMu.RUnlock()

	for _, fn := range handlers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("note subscriber panic", zap.Any("panic", rec))
				}
			}()
			fn(ev)
		}()
	}
}

// Get 获取便签快照
func (r *NoteRegistry) Get(id int64) (*domain.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.notes[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "note %d", id)
	}
	return e.note.Clone(), nil
}

// State 返回便签生命周期状态，未知 id 返回空字符串
func (r *NoteRegistry) State(id int64) domain.NoteState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.notes[id]; ok {
		return e.state
	}
	if _, ok := r.deleted[id]; ok {
		return domain.NoteStateDeleted
	}
	return ""
}

// List 返回全部便签快照，按层级升序（同层级按 id）
func (r *NoteRegistry) List() []*domain.Note {
	out, _ := r.Snapshot()
	return out
}

func sortNotes(out []*domain.Note) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].StackOrder != out[j].StackOrder {
			return out[i].StackOrder < out[j].StackOrder
		}
		return out[i].ID < out[j].ID
	})
}

// Snapshot 返回便签快照和对应的变更代数，两者在同一次加锁内读取
// A later Generation() that differs means the canvas changed after the snapshot.
func (r *NoteRegistry) Snapshot() ([]*domain.Note, uint64) {
	r.mu.Lock()
	out := make([]*domain.Note, 0, len(r.notes))
	for _, e := range r.notes {
		out = append(out, e.note.Clone())
	}
	gen := r.generation
	r.mu.Unlock()

	sortNotes(out)
	return out, gen
}

// Generation 返回当前变更代数
func (r *NoteRegistry) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// Count 返回内存中的便签数量
func (r *NoteRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notes)
}

// Counter 返回下一次分配的层级值
func (r *NoteRegistry) Counter() int64 {
	return r.stack.Peek()
}

// Pending 返回尚未落盘的写入数
func (r *NoteRegistry) Pending() int64 {
	return r.pending.Load()
}

// Flush 等待所有已排队的写入完成
func (r *NoteRegistry) Flush(ctx context.Context) error {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		if r.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "flush with %d pending writes", r.pending.Load())
		case <-ticker.C:
		}
	}
}

// Close 刷新写入并释放自有的写队列
func (r *NoteRegistry) Close(ctx context.Context) error {
	err := r.Flush(ctx)
	if r.ownsQueue {
		if qerr := r.queue.Shutdown(ctx); qerr != nil && err == nil {
			err = qerr
		}
	}
	return err
}
