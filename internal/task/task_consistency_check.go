package task

import (
	"context"
	"sort"
	"time"

	"github.com/haierkeys/sticky-note-canvas-service/internal/app"
	"github.com/haierkeys/sticky-note-canvas-service/internal/domain"
	pkglogger "github.com/haierkeys/sticky-note-canvas-service/pkg/logger"

	"go.uber.org/zap"
)

// 差异原因
const (
	DiffMissingInStore  = "missing_in_store"
	DiffMissingInMemory = "missing_in_memory"
	DiffPosition        = "position"
	DiffStackOrder      = "stack_order"
	DiffText            = "text"
	DiffColor           = "color"
)

// NoteDiff 内存与存储之间的一处差异
type NoteDiff struct {
	NoteID int64
	Reason string
}

// DiffNotes 比较内存状态与存储记录，结果按 id 排序
func DiffNotes(memory, stored []*domain.Note) []NoteDiff {
	byID := make(map[int64]*domain.Note, len(stored))
	for _, n := range stored {
		byID[n.ID] = n
	}

	var diffs []NoteDiff
	for _, m := range memory {
		s, ok := byID[m.ID]
		if !ok {
			diffs = append(diffs, NoteDiff{NoteID: m.ID, Reason: DiffMissingInStore})
			continue
		}
		delete(byID, m.ID)
		switch {
		case m.Position != s.Position:
			diffs = append(diffs, NoteDiff{NoteID: m.ID, Reason: DiffPosition})
		case m.StackOrder != s.StackOrder:
			diffs = append(diffs, NoteDiff{NoteID: m.ID, Reason: DiffStackOrder})
		case m.Text != s.Text:
			diffs = append(diffs, NoteDiff{NoteID: m.ID, Reason: DiffText})
		case m.Color != s.Color:
			diffs = append(diffs, NoteDiff{NoteID: m.ID, Reason: DiffColor})
		}
	}
	for id := range byID {
		diffs = append(diffs, NoteDiff{NoteID: id, Reason: DiffMissingInMemory})
	}

	sort.Slice(diffs, func(i, j int) bool { return diffs[i].NoteID < diffs[j].NoteID })
	return diffs
}

// ConsistencyCheckTask 定期比较画布内存状态与存储记录
// Divergence is only reported, never repaired: a failed write stays visible until reload.
type ConsistencyCheckTask struct {
	app          *app.App
	spec         string
	flushTimeout time.Duration
	// beforeRead 在读取存储之前调用，测试用
	beforeRead func()
}

func (t *ConsistencyCheckTask) Name() string {
	return "ConsistencyCheck"
}

func (t *ConsistencyCheckTask) Spec() string {
	return t.spec
}

func (t *ConsistencyCheckTask) IsStartupRun() bool {
	return false
}

// Run 执行检查，写入仍在进行或检查期间画布有变更时跳过本轮
func (t *ConsistencyCheckTask) Run(ctx context.Context) error {
	reg := t.app.Registry
	lg := t.app.Logger()

	flushCtx, cancel := context.WithTimeout(ctx, t.flushTimeout)
	err := reg.Flush(flushCtx)
	cancel()
	if err != nil {
		lg.Info("consistency check skipped, writes in flight", zap.Int64("pending", reg.Pending()))
		return nil
	}

	memory, gen := reg.Snapshot()
	if reg.Pending() > 0 {
		lg.Info("consistency check skipped, writes in flight", zap.Int64("pending", reg.Pending()))
		return nil
	}
	if t.beforeRead != nil {
		t.beforeRead()
	}
	stored, err := t.app.Store.ReadAllData(ctx)
	if err != nil {
		return err
	}
	// Any mutation after the snapshot may already be in stored; comparing would be a false positive
	if reg.Generation() != gen || reg.Pending() > 0 {
		lg.Info("consistency check skipped, canvas changed during check")
		return nil
	}

	diffs := DiffNotes(memory, stored)
	t.app.Metrics.SetDivergentNotes(len(diffs))
	for _, d := range diffs {
		lg.Warn("note diverged from store",
			zap.String(pkglogger.FieldTask, t.Name()),
			zap.Int64(pkglogger.FieldNoteID, d.NoteID),
			zap.String("reason", d.Reason))
	}
	return nil
}

// NewConsistencyCheckTask 创建一致性检查任务，未配置 cron 表达式时返回 nil
func NewConsistencyCheckTask(appContainer *app.App) (Task, error) {
	spec := appContainer.Config().App.ConsistencyCheckSpec
	if spec == "" {
		return nil, nil
	}
	return &ConsistencyCheckTask{
		app:          appContainer,
		spec:         spec,
		flushTimeout: 5 * time.Second,
	}, nil
}

func init() {
	RegisterWithApp(NewConsistencyCheckTask)
}
