package dao

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/haierkeys/sticky-note-canvas-service/internal/domain"
)

// StoreOp 存储操作名，用于故障注入和调用记录
type StoreOp string

const (
	OpOpen    StoreOp = "open"
	OpCreate  StoreOp = "create"
	OpReadAll StoreOp = "read"
	OpUpdate  StoreOp = "update"
	OpDelete  StoreOp = "delete"
)

// StoreCall 一次存储调用记录
type StoreCall struct {
	Op    StoreOp
	ID    int64
	Patch domain.NotePatch
	Err   error
}

// MemoryStore 内存便签存储
// Same error contract as NoteStore; used for tests, demos and the "memory" database type fallback.
type MemoryStore struct {
	mu       sync.Mutex
	opened   bool
	nextID   int64
	records  map[int64]*domain.Note
	failures map[StoreOp][]error
	calls    []StoreCall
	// blockers 在执行某操作前阻塞，直到 channel 被关闭
	blockers map[StoreOp]chan struct{}
	waiting  map[StoreOp]int
}

// NewMemoryStore 创建内存存储，可以预置记录（保留原 id）
func NewMemoryStore(seed ...*domain.Note) *MemoryStore {
	s := &MemoryStore{
		nextID:   1,
		records:  make(map[int64]*domain.Note),
		failures: make(map[StoreOp][]error),
		blockers: make(map[StoreOp]chan struct{}),
		waiting:  make(map[StoreOp]int),
	}
	for _, n := range seed {
		if n == nil {
			continue
		}
		s.records[n.ID] = n.Clone()
		if n.ID >= s.nextID {
			s.nextID = n.ID + 1
		}
	}
	return s
}

var _ domain.NoteStore = (*MemoryStore)(nil)

// FailNext 让下一次 op 操作返回 err，多次调用按顺序排队
func (s *MemoryStore) FailNext(op StoreOp, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], err)
}

// Block 让 op 操作阻塞，直到返回的函数被调用
func (s *MemoryStore) Block(op StoreOp) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.blockers[op] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.blockers[op] == ch {
				delete(s.blockers, op)
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Waiting 返回正被 Block 挡住的 op 调用数
func (s *MemoryStore) Waiting(op StoreOp) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting[op]
}

// Calls 返回调用记录副本
func (s *MemoryStore) Calls() []StoreCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StoreCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount 返回某操作的调用次数
func (s *MemoryStore) CallCount(op StoreOp) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Len 返回当前记录数
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// wait 等待阻塞器释放，ctx 取消时提前返回
func (s *MemoryStore) wait(ctx context.Context, op StoreOp) error {
	s.mu.Lock()
	ch := s.blockers[op]
	if ch != nil {
		s.waiting[op]++
	}
	s.mu.Unlock()
	if ch == nil {
		return nil
	}
	defer func() {
		s.mu.Lock()
		s.waiting[op]--
		s.mu.Unlock()
	}()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// takeFailure 取出注入的错误，调用方需持有锁
func (s *MemoryStore) takeFailure(op StoreOp) error {
	q := s.failures[op]
	if len(q) == 0 {
		return nil
	}
	err := q[0]
	s.failures[op] = q[1:]
	return err
}

func (s *MemoryStore) record(c StoreCall) {
	s.calls = append(s.calls, c)
}

func (s *MemoryStore) Open(ctx context.Context) error {
	if err := s.wait(ctx, OpOpen); err != nil {
		return domain.NewStoreError(domain.ErrStoreUnavailable, "open", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(OpOpen); err != nil {
		err = domain.NewStoreError(domain.ErrStoreUnavailable, "open", err)
		s.record(StoreCall{Op: OpOpen, Err: err})
		return err
	}
	s.opened = true
	s.record(StoreCall{Op: OpOpen})
	return nil
}

func (s *MemoryStore) CreateData(ctx context.Context, note *domain.Note) (int64, error) {
	if err := s.wait(ctx, OpCreate); err != nil {
		return 0, domain.NewStoreError(domain.ErrWrite, "create", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return 0, domain.NewStoreError(domain.ErrStoreUnavailable, "create", nil)
	}
	if err := s.takeFailure(OpCreate); err != nil {
		err = domain.NewStoreError(domain.ErrWrite, "create", err)
		s.record(StoreCall{Op: OpCreate, Err: err})
		return 0, err
	}
	if note == nil {
		return 0, domain.NewStoreError(domain.ErrWrite, "create", nil)
	}

	n := note.Clone()
	n.ID = s.nextID
	s.nextID++
	if n.SchemaVersion == 0 {
		n.SchemaVersion = domain.CurrentSchemaVersion
	}
	now := time.Now()
	n.CreatedAt, n.UpdatedAt = now, now
	s.records[n.ID] = n
	s.record(StoreCall{Op: OpCreate, ID: n.ID})
	return n.ID, nil
}

func (s *MemoryStore) ReadAllData(ctx context.Context) ([]*domain.Note, error) {
	if err := s.wait(ctx, OpReadAll); err != nil {
		return nil, domain.NewStoreError(domain.ErrRead, "read", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return nil, domain.NewStoreError(domain.ErrStoreUnavailable, "read", nil)
	}
	if err := s.takeFailure(OpReadAll); err != nil {
		err = domain.NewStoreError(domain.ErrRead, "read", err)
		s.record(StoreCall{Op: OpReadAll, Err: err})
		return nil, err
	}

	notes := make([]*domain.Note, 0, len(s.records))
	for _, n := range s.records {
		notes = append(notes, n.Clone())
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].ID < notes[j].ID })
	s.record(StoreCall{Op: OpReadAll})
	return notes, nil
}

func (s *MemoryStore) UpdateData(ctx context.Context, id int64, patch domain.NotePatch) error {
	if err := s.wait(ctx, OpUpdate); err != nil {
		return domain.NewStoreError(domain.ErrWrite, "update", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return domain.NewStoreError(domain.ErrStoreUnavailable, "update", nil)
	}
	if err := s.takeFailure(OpUpdate); err != nil {
		err = domain.NewStoreError(domain.ErrWrite, "update", err)
		s.record(StoreCall{Op: OpUpdate, ID: id, Patch: patch, Err: err})
		return err
	}
	n, ok := s.records[id]
	if !ok {
		err := domain.NewStoreError(domain.ErrNotFound, "update", nil)
		s.record(StoreCall{Op: OpUpdate, ID: id, Patch: patch, Err: err})
		return err
	}
	patch.ApplyTo(n)
	n.UpdatedAt = time.Now()
	s.record(StoreCall{Op: OpUpdate, ID: id, Patch: patch})
	return nil
}

func (s *MemoryStore) DeleteData(ctx context.Context, id int64) error {
	if err := s.wait(ctx, OpDelete); err != nil {
		return domain.NewStoreError(domain.ErrWrite, "delete", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return domain.NewStoreError(domain.ErrStoreUnavailable, "delete", nil)
	}
	if err := s.takeFailure(OpDelete); err != nil {
		err = domain.NewStoreError(domain.ErrWrite, "delete", err)
		s.record(StoreCall{Op: OpDelete, ID: id, Err: err})
		return err
	}
	if _, ok := s.records[id]; !ok {
		err := domain.NewStoreError(domain.ErrNotFound, "delete", nil)
		s.record(StoreCall{Op: OpDelete, ID: id, Err: err})
		return err
	}
	delete(s.records, id)
	s.record(StoreCall{Op: OpDelete, ID: id})
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = false
	return nil
}
