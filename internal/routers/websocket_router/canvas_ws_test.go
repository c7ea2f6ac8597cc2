package websocket_router

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/haierkeys/sticky-note-canvas-service/internal/app"
	"github.com/haierkeys/sticky-note-canvas-service/internal/dao"
	"github.com/haierkeys/sticky-note-canvas-service/internal/domain"
	"github.com/haierkeys/sticky-note-canvas-service/internal/dto"
	pkgapp "github.com/haierkeys/sticky-note-canvas-service/pkg/app"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/code"

	"github.com/gin-gonic/gin"
	"github.com/lxzan/gws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const frameTimeout = 3 * time.Second

type frame struct {
	Action string
	Code   int             `json:"code"`
	Data   json.RawMessage `json:"data"`
}

type clientHandler struct {
	gws.BuiltinEventHandler
	frames chan frame
}

func (h *clientHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	raw := message.Data.String()
	var f frame
	if i := strings.Index(raw, "|"); i > 0 {
		f.Action = raw[:i]
		raw = raw[i+1:]
	}
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return
	}
	h.frames <- f
}

// expect 等待指定 action 的帧，跳过其他广播
func (h *clientHandler) expect(t *testing.T, action string) frame {
	t.Helper()
	deadline := time.After(frameTimeout)
	for {
		select {
		case f := <-h.frames:
			if f.Action == action {
				return f
			}
		case <-deadline:
			t.Fatalf("no %s frame within %s", action, frameTimeout)
			return frame{}
		}
	}
}

type wsFixture struct {
	app    *app.App
	server *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg, err := app.ParseConfig([]byte("database:\n  type: memory\n"))
	require.NoError(t, err)
	db, err := dao.NewDBEngine(cfg.GetDatabaseConfig(), nil)
	require.NoError(t, err)
	a, err := app.NewApp(cfg, zap.NewNop(), db)
	require.NoError(t, err)

	wss := pkgapp.NewWebsocketServer(pkgapp.WebsocketServerConfig{Logger: zap.NewNop(), Validator: a.Validator})
	cancel := NewCanvasWSHandler(a, wss).Register()

	r := gin.New()
	r.GET("/ws", wss.Run())
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = a.Shutdown(context.Background())
	})
	return &wsFixture{app: a, server: srv}
}

func (f *wsFixture) dial(t *testing.T) (*gws.Conn, *clientHandler) {
	t.Helper()
	h := &clientHandler{frames: make(chan frame, 64)}
	socket, _, err := gws.NewClient(h, &gws.ClientOption{
		Addr: "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws",
	})
	require.NoError(t, err)
	go socket.ReadLoop()
	t.Cleanup(func() { socket.WriteClose(1000, []byte("bye")) })
	return socket, h
}

func send(t *testing.T, socket *gws.Conn, action string, body any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	require.NoError(t, socket.WriteMessage(gws.OpcodeText, []byte(action+"|"+string(data))))
}

func decodeNote(t *testing.T, f frame) dto.NoteDTO {
	t.Helper()
	var n dto.NoteDTO
	require.NoError(t, json.Unmarshal(f.Data, &n))
	return n
}

func TestCanvasWS_DragFlowBroadcastsAndPersistsOnce(t *testing.T) {
	fx := newWSFixture(t)
	dragger, dh := fx.dial(t)
	_, watcher := fx.dial(t)

	send(t, dragger, dto.NoteCreate, map[string]any{"color": "#ffeb3b"})
	created := decodeNote(t, dh.expect(t, dto.NoteCreate))
	require.Positive(t, created.ID)
	assert.Equal(t, created.ID, decodeNote(t, watcher.expect(t, dto.NoteChanged)).ID)

	send(t, dragger, dto.DragStart, map[string]any{"id": created.ID, "x": 100, "y": 100})
	dh.expect(t, dto.DragStart)

	send(t, dragger, dto.DragMove, map[string]any{"dx": 5, "dy": 0})
	send(t, dragger, dto.DragTo, map[string]any{"x": 130, "y": 90})
	var moved dto.DragStateDTO
	watcher.expect(t, dto.DragMoved)
	require.NoError(t, json.Unmarshal(watcher.expect(t, dto.DragMoved).Data, &moved))
	assert.Equal(t, domain.Position{X: 30, Y: -10}, moved.Display)

	// 拖拽过程中不写存储
	require.NoError(t, fx.app.Registry.Flush(context.Background()))
	stored, err := fx.app.Store.ReadAllData(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, domain.Position{}, stored[0].Position)

	send(t, dragger, dto.DragEnd, map[string]any{})
	ended := decodeNote(t, dh.expect(t, dto.DragEnd))
	assert.Equal(t, domain.Position{X: 30, Y: -10}, ended.Position)

	require.NoError(t, fx.app.Registry.Flush(context.Background()))
	stored, err = fx.app.Store.ReadAllData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Position{X: 30, Y: -10}, stored[0].Position)
}

func TestCanvasWS_Errors(t *testing.T) {
	fx := newWSFixture(t)
	socket, h := fx.dial(t)

	send(t, socket, dto.DragEnd, map[string]any{})
	assert.Equal(t, code.ErrorNoDrag.Code(), h.expect(t, dto.DragEnd).Code)

	send(t, socket, dto.NoteEditText, map[string]any{"id": 99, "text": "x"})
	assert.Equal(t, code.ErrorNoteNotFound.Code(), h.expect(t, dto.NoteEditText).Code)

	send(t, socket, dto.NoteCreate, map[string]any{})
	assert.Equal(t, code.ErrorInvalidParams.Code(), h.expect(t, dto.NoteCreate).Code)

	send(t, socket, "Nope", map[string]any{})
	assert.Equal(t, code.ErrorWSUnknownAction.Code(), h.expect(t, "Nope").Code)
}

func TestCanvasWS_DeleteDuringDrag(t *testing.T) {
	ctx := context.Background()
	fx := newWSFixture(t)
	socket, h := fx.dial(t)

	n, err := fx.app.Canvas.CreateNote(ctx, "#fff")
	require.NoError(t, err)
	_, err = fx.app.Canvas.DragStart(ctx, n.ID, domain.Position{})
	require.NoError(t, err)

	send(t, socket, dto.NoteDelete, map[string]any{"id": n.ID})
	h.expect(t, dto.NoteDeleted)
	assert.Equal(t, code.Success.Code(), h.expect(t, dto.NoteDelete).Code)

	_, dragging := fx.app.Canvas.Dragging()
	assert.False(t, dragging)

	send(t, socket, dto.NoteList, map[string]any{})
	var list []dto.NoteDTO
	require.NoError(t, json.Unmarshal(h.expect(t, dto.NoteList).Data, &list))
	assert.Empty(t, list)
}

func TestCanvasWS_DragOwnedByStartingClient(t *testing.T) {
	ctx := context.Background()
	fx := newWSFixture(t)
	owner, oh := fx.dial(t)
	other, xh := fx.dial(t)

	a, err := fx.app.Canvas.CreateNote(ctx, "#a")
	require.NoError(t, err)
	b, err := fx.app.Canvas.CreateNote(ctx, "#b")
	require.NoError(t, err)

	send(t, owner, dto.DragStart, map[string]any{"id": a.ID, "x": 0, "y": 0})
	raised := decodeNote(t, oh.expect(t, dto.DragStart))

	// 其他客户端不能移动、结束或取消别人的拖拽
	send(t, other, dto.DragMove, map[string]any{"dx": 50, "dy": 50})
	assert.Equal(t, code.ErrorDragNotOwner.Code(), xh.expect(t, dto.DragMove).Code)
	send(t, other, dto.DragEnd, map[string]any{})
	assert.Equal(t, code.ErrorDragNotOwner.Code(), xh.expect(t, dto.DragEnd).Code)
	send(t, other, dto.DragCancel, map[string]any{})
	assert.Equal(t, code.ErrorDragNotOwner.Code(), xh.expect(t, dto.DragCancel).Code)
	send(t, other, dto.DragStart, map[string]any{"id": b.ID})
	assert.Equal(t, code.ErrorDragInProgress.Code(), xh.expect(t, dto.DragStart).Code)

	s, dragging := fx.app.Canvas.Dragging()
	require.True(t, dragging)
	assert.Equal(t, domain.Position{}, s.Delta)

	// 持有者断开后拖拽被取消，置顶后的层级写入存储
	require.NoError(t, owner.WriteClose(1000, []byte("gone")))
	require.Eventually(t, func() bool {
		_, dragging := fx.app.Canvas.Dragging()
		return !dragging
	}, frameTimeout, 5*time.Millisecond)

	require.NoError(t, fx.app.Registry.Flush(ctx))
	stored, err := fx.app.Store.ReadAllData(ctx)
	require.NoError(t, err)
	for _, n := range stored {
		if n.ID == a.ID {
			assert.Equal(t, raised.StackOrder, n.StackOrder)
			assert.Equal(t, domain.Position{}, n.Position)
		}
	}

	send(t, other, dto.DragStart, map[string]any{"id": b.ID, "x": 1, "y": 1})
	started := xh.expect(t, dto.DragStart)
	assert.Equal(t, code.Success.Code(), started.Code)
	assert.Equal(t, b.ID, decodeNote(t, started).ID)
}
