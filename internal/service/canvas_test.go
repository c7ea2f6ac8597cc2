package service

import (
	"context"
	"testing"

	"github.com/haierkeys/sticky-note-canvas-service/internal/dao"
	"github.com/haierkeys/sticky-note-canvas-service/internal/domain"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCanvas(t *testing.T) (*Canvas, *dao.MemoryStore) {
	t.Helper()
	reg, store := newMemoryRegistry(t)
	return NewCanvas(reg, nil), store
}

// 创建 -> 拖拽 -> 释放：一次写入，位置和层级同时落盘
func TestCanvas_CreateDragRelease(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCanvas(t)

	n, err := c.CreateNote(ctx, "#00ff00")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n.ID)
	assert.Equal(t, int64(1), n.StackOrder)

	raised, err := c.DragStart(ctx, n.ID, domain.Position{X: 10, Y: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), raised.StackOrder)

	s, err := c.DragMove(domain.Position{X: 5, Y: 5})
	require.NoError(t, err)
	assert.Equal(t, domain.Position{X: 5, Y: 5}, s.Display())

	// 拖拽过程中不写存储
	assert.Equal(t, 0, store.CallCount(dao.OpUpdate))

	ended, err := c.DragEnd(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Position{X: 5, Y: 5}, ended.Position)
	flush(t, c.Registry())

	assert.Equal(t, 1, store.CallCount(dao.OpUpdate))
	records, err := store.ReadAllData(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.Position{X: 5, Y: 5}, records[0].Position)
	assert.Equal(t, int64(2), records[0].StackOrder)
	assert.Equal(t, int64(3), c.Registry().Counter())

	_, dragging := c.Dragging()
	assert.False(t, dragging)
}

// 两个便签持久化后重新加载，计数器为 3
func TestCanvas_ReloadSeedsCounter(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCanvas(t)

	_, err := c.CreateNote(ctx, "#fff")
	require.NoError(t, err)
	_, err = c.CreateNote(ctx, "#000")
	require.NoError(t, err)
	flush(t, c.Registry())

	reloaded := NewNoteRegistry(store)
	defer reloaded.Close(ctx)
	require.NoError(t, reloaded.Load(ctx))

	assert.Equal(t, 2, reloaded.Count())
	assert.Equal(t, int64(3), reloaded.Counter())

	n, err := reloaded.CreateNote(ctx, "#111")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n.StackOrder)
}

func TestCanvas_DragTo(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCanvas(t)

	n, err := c.CreateNote(ctx, "#fff")
	require.NoError(t, err)
	_, err = c.MoveNote(ctx, n.ID, domain.Position{X: 100, Y: 50})
	require.NoError(t, err)

	_, err = c.DragStart(ctx, n.ID, domain.Position{X: 110, Y: 60})
	require.NoError(t, err)
	s, err := c.DragTo(domain.Position{X: 130, Y: 40})
	require.NoError(t, err)
	assert.Equal(t, domain.Position{X: 120, Y: 30}, s.Display())

	ended, err := c.DragEnd(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Position{X: 120, Y: 30}, ended.Position)
}

func TestCanvas_SecondDragRejected(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCanvas(t)

	a, err := c.CreateNote(ctx, "#a")
	require.NoError(t, err)
	b, err := c.CreateNote(ctx, "#b")
	require.NoError(t, err)

	_, err = c.DragStart(ctx, a.ID, domain.Position{})
	require.NoError(t, err)
	_, err = c.DragStart(ctx, b.ID, domain.Position{})
	assert.True(t, errors.Is(err, domain.ErrDragInProgress))

	s, ok := c.Dragging()
	require.True(t, ok)
	assert.Equal(t, a.ID, s.NoteID)
}

func TestCanvas_NoDrag(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCanvas(t)

	_, err := c.DragMove(domain.Position{X: 1})
	assert.True(t, errors.Is(err, domain.ErrNoDrag))
	_, err = c.DragTo(domain.Position{X: 1})
	assert.True(t, errors.Is(err, domain.ErrNoDrag))
	_, err = c.DragEnd(ctx)
	assert.True(t, errors.Is(err, domain.ErrNoDrag))
	assert.True(t, errors.Is(c.CancelDrag(ctx), domain.ErrNoDrag))
}

func TestCanvas_DragStartUnknownNote(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCanvas(t)

	_, err := c.DragStart(ctx, 42, domain.Position{})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, ok := c.Dragging()
	assert.False(t, ok)
}

func TestCanvas_DeleteDraggedNoteCancelsDrag(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCanvas(t)

	n, err := c.CreateNote(ctx, "#fff")
	require.NoError(t, err)
	_, err = c.DragStart(ctx, n.ID, domain.Position{})
	require.NoError(t, err)
	_, err = c.DragMove(domain.Position{X: 20})
	require.NoError(t, err)

	require.NoError(t, c.DeleteNote(ctx, n.ID))
	_, ok := c.Dragging()
	assert.False(t, ok)

	_, err = c.DragEnd(ctx)
	assert.True(t, errors.Is(err, domain.ErrNoDrag))
	flush(t, c.Registry())

	assert.Equal(t, 0, store.CallCount(dao.OpUpdate))
	assert.Equal(t, 0, store.Len())
}

func TestCanvas_CancelDragKeepsPositionPersistsStack(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCanvas(t)

	n, err := c.CreateNote(ctx, "#fff")
	require.NoError(t, err)
	_, err = c.DragStart(ctx, n.ID, domain.Position{})
	require.NoError(t, err)
	_, err = c.DragMove(domain.Position{X: 30, Y: 30})
	require.NoError(t, err)

	require.NoError(t, c.CancelDrag(ctx))
	flush(t, c.Registry())

	records, err := store.ReadAllData(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Position{}, records[0].Position)
	assert.Equal(t, int64(2), records[0].StackOrder)
}

func TestCanvas_EditTextIndependentOfDrag(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCanvas(t)

	a, err := c.CreateNote(ctx, "#a")
	require.NoError(t, err)
	b, err := c.CreateNote(ctx, "#b")
	require.NoError(t, err)

	_, err = c.DragStart(ctx, a.ID, domain.Position{})
	require.NoError(t, err)
	_, err = c.EditText(ctx, b.ID, "typing")
	require.NoError(t, err)
	_, err = c.EditText(ctx, b.ID, "typing more")
	require.NoError(t, err)
	flush(t, c.Registry())

	// 每次编辑一次写入
	assert.Equal(t, 2, store.CallCount(dao.OpUpdate))
	_, ok := c.Dragging()
	assert.True(t, ok)
}

func TestCanvas_DragOwnership(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCanvas(t)

	n, err := c.CreateNote(ctx, "#fff")
	require.NoError(t, err)
	_, err = c.DragStartBy(ctx, "client-a", n.ID, domain.Position{X: 10, Y: 10})
	require.NoError(t, err)

	_, err = c.DragMoveBy("client-b", domain.Position{X: 5})
	assert.True(t, errors.Is(err, domain.ErrDragNotOwner))
	_, err = c.DragToBy("client-b", domain.Position{X: 50})
	assert.True(t, errors.Is(err, domain.ErrDragNotOwner))
	_, err = c.DragEndBy(ctx, "client-b")
	assert.True(t, errors.Is(err, domain.ErrDragNotOwner))
	assert.True(t, errors.Is(c.CancelDragBy(ctx, "client-b"), domain.ErrDragNotOwner))

	// 非持有者的请求不改变会话
	s, ok := c.Dragging()
	require.True(t, ok)
	assert.Equal(t, "client-a", s.Owner)
	assert.Equal(t, domain.Position{}, s.Delta)

	s, err = c.DragMoveBy("client-a", domain.Position{X: 3, Y: 4})
	require.NoError(t, err)
	assert.Equal(t, domain.Position{X: 3, Y: 4}, s.Display())

	released, err := c.ReleaseOwner(ctx, "client-b")
	require.NoError(t, err)
	assert.False(t, released)

	released, err = c.ReleaseOwner(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, released)
	_, ok = c.Dragging()
	assert.False(t, ok)
	flush(t, c.Registry())

	// 取消不写位置，只持久化置顶后的层级
	records, err := store.ReadAllData(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Position{}, records[0].Position)
	assert.Equal(t, int64(2), records[0].StackOrder)

	_, err = c.DragStartBy(ctx, "client-b", n.ID, domain.Position{})
	assert.NoError(t, err)
}
