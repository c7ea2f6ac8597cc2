package service

import (
	"context"
	"sync"
	"time"

	"github.com/haierkeys/sticky-note-canvas-service/internal/domain"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/logger"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DragSession 当前拖拽会话
type DragSession struct {
	NoteID         int64           `json:"noteId"`
	OriginPointer  domain.Position `json:"originPointer"`
	OriginPosition domain.Position `json:"originPosition"`
	// Delta 自拖拽开始以来的累计位移
	Delta     domain.Position `json:"delta"`
	StartedAt time.Time       `json:"startedAt"`
	// Owner 发起拖拽的客户端，空字符串表示本地调用
	Owner string `json:"owner,omitempty"`
}

// Display 拖拽中的显示位置（不写入存储）
func (s DragSession) Display() domain.Position {
	return s.OriginPosition.Add(s.Delta)
}

// Canvas 画布交互状态机：Idle ⇄ Dragging
// At most one drag per canvas, owned by the client that started it. Moves never touch
// the store; DragEnd issues exactly one write carrying position and stackOrder and always
// returns to Idle.
type Canvas struct {
	registry *NoteRegistry
	logger   *zap.Logger

	mu   sync.Mutex
	drag *DragSession
}

// NewCanvas 创建画布
func NewCanvas(registry *NoteRegistry, lg *zap.Logger) *Canvas {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Canvas{registry: registry, logger: lg}
}

// Registry 返回底层注册表
func (c *Canvas) Registry() *NoteRegistry {
	return c.registry
}

// CreateNote 创建便签
func (c *Canvas) CreateNote(ctx context.Context, color string) (*domain.Note, error) {
	return c.registry.CreateNote(ctx, color)
}

// DragStart 开始拖拽：记录起点并置顶
func (c *Canvas) DragStart(ctx context.Context, id int64, pointer domain.Position) (*domain.Note, error) {
	return c.DragStartBy(ctx, "", id, pointer)
}

// DragStartBy 以 owner 的身份开始拖拽
func (c *Canvas) DragStartBy(ctx context.Context, owner string, id int64, pointer domain.Position) (*domain.Note, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.drag != nil {
		return nil, errors.Wrapf(domain.ErrDragInProgress, "note %d is being dragged", c.drag.NoteID)
	}

	note, err := c.registry.Get(id)
	if err != nil {
		return nil, err
	}

	raised, err := c.registry.raise(id)
	if err != nil {
		return nil, err
	}

	c.drag = &DragSession{
		NoteID:         id,
		OriginPointer:  pointer,
		OriginPosition: note.Position,
		StartedAt:      time.Now(),
		Owner:          owner,
	}

	c.logger.Debug("drag started",
		zap.Int64(logger.FieldNoteID, id),
		zap.String(logger.FieldClientID, owner),
		zap.Int64(logger.FieldStackOrder, raised.StackOrder))
	return raised, nil
}

// ownedLocked 返回 owner 持有的拖拽会话，调用方需持有 c.mu
func (c *Canvas) ownedLocked(owner string) (*DragSession, error) {
	if c.drag == nil {
		return nil, domain.ErrNoDrag
	}
	if c.drag.Owner != owner {
		return nil, errors.Wrapf(domain.ErrDragNotOwner, "note %d", c.drag.NoteID)
	}
	return c.drag, nil
}

// DragMove 累加一次指针位移，只更新显示位置
func (c *Canvas) DragMove(delta domain.Position) (DragSession, error) {
	return c.DragMoveBy("", delta)
}

// DragMoveBy 同 DragMove，只接受拖拽发起者的位移
func (c *Canvas) DragMoveBy(owner string, delta domain.Position) (DragSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.ownedLocked(owner); err != nil {
		return DragSession{}, err
	}
	c.drag.Delta = c.drag.Delta.Add(delta)
	return *c.drag, nil
}

// DragTo 以指针绝对坐标更新位移
func (c *Canvas) DragTo(pointer domain.Position) (DragSession, error) {
	return c.DragToBy("", pointer)
}

func (c *Canvas) DragToBy(owner string, pointer domain.Position) (DragSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.ownedLocked(owner); err != nil {
		return DragSession{}, err
	}
	c.drag.Delta = pointer.Sub(c.drag.OriginPointer)
	return *c.drag, nil
}

// DragEnd 结束拖拽并提交一次写入
// The canvas is Idle afterwards whatever the outcome.
func (c *Canvas) DragEnd(ctx context.Context) (*domain.Note, error) {
	return c.DragEndBy(ctx, "")
}

// DragEndBy 同 DragEnd；其他客户端调用时拖拽保持不变
func (c *Canvas) DragEndBy(ctx context.Context, owner string) (*domain.Note, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.ownedLocked(owner); err != nil {
		return nil, err
	}
	s := *c.drag
	c.drag = nil

	note, err := c.registry.commitDrag(ctx, s.NoteID, s.Display())
	if err != nil {
		c.logger.Warn("drag end on missing note",
			zap.Int64(logger.FieldNoteID, s.NoteID),
			zap.Error(err))
		return nil, err
	}

	c.logger.Debug("drag ended",
		zap.Int64(logger.FieldNoteID, s.NoteID),
		zap.Int("x", note.Position.X),
		zap.Int("y", note.Position.Y),
		zap.Duration(logger.FieldDuration, time.Since(s.StartedAt)))
	return note, nil
}

// CancelDrag 放弃拖拽，位置不变，仅持久化置顶后的层级
func (c *Canvas) CancelDrag(ctx context.Context) error {
	return c.CancelDragBy(ctx, "")
}

func (c *Canvas) CancelDragBy(ctx context.Context, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.ownedLocked(owner); err != nil {
		return err
	}
	return c.cancelLocked(ctx)
}

// ReleaseOwner 客户端断开时调用：若它持有拖拽会话则取消，返回是否取消
func (c *Canvas) ReleaseOwner(ctx context.Context, owner string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.drag == nil || c.drag.Owner != owner {
		return false, nil
	}
	c.logger.Info("drag cancelled, owner left",
		zap.Int64(logger.FieldNoteID, c.drag.NoteID),
		zap.String(logger.FieldClientID, owner))
	return true, c.cancelLocked(ctx)
}

// cancelLocked 结束会话并持久化置顶后的层级，调用方需持有 c.mu
func (c *Canvas) cancelLocked(ctx context.Context) error {
	id := c.drag.NoteID
	c.drag = nil

	if _, err := c.registry.persistStackOrder(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

// MoveNote 直接设置便签位置（非拖拽路径，一次写入）
func (c *Canvas) MoveNote(ctx context.Context, id int64, pos domain.Position) (*domain.Note, error) {
	return c.registry.UpdatePosition(ctx, id, pos)
}

// BringToFront 置顶便签
func (c *Canvas) BringToFront(ctx context.Context, id int64) (*domain.Note, error) {
	return c.registry.BringToFront(ctx, id)
}

// EditText 修改文本，与拖拽状态无关，每次调用一次写入
func (c *Canvas) EditText(ctx context.Context, id int64, text string) (*domain.Note, error) {
	return c.registry.UpdateText(ctx, id, text)
}

// DeleteNote 删除便签；如果正在拖拽该便签则直接结束拖拽，不写位置
func (c *Canvas) DeleteNote(ctx context.Context, id int64) error {
	c.mu.Lock()
	if c.drag != nil && c.drag.NoteID == id {
		c.logger.Debug("drag cancelled by delete", zap.Int64(logger.FieldNoteID, id))
		c.drag = nil
	}
	c.mu.Unlock()

	return c.registry.DeleteNote(ctx, id)
}

// Dragging 返回当前拖拽会话
func (c *Canvas) Dragging() (DragSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drag == nil {
		return DragSession{}, false
	}
	return *c.drag, true
}
