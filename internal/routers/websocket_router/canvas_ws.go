package websocket_router

import (
	"context"

	"github.com/haierkeys/sticky-note-canvas-service/internal/app"
	"github.com/haierkeys/sticky-note-canvas-service/internal/domain"
	"github.com/haierkeys/sticky-note-canvas-service/internal/dto"
	"github.com/haierkeys/sticky-note-canvas-service/internal/service"
	pkgapp "github.com/haierkeys/sticky-note-canvas-service/pkg/app"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/code"
	pkglogger "github.com/haierkeys/sticky-note-canvas-service/pkg/logger"

	"go.uber.org/zap"
)

// CanvasWSHandler 画布 WebSocket 处理器
// 客户端意图经 Canvas 进入注册表，已应用的变更通过订阅广播给所有客户端
type CanvasWSHandler struct {
	*WSHandler
	wss *pkgapp.WebsocketServer
}

// NewCanvasWSHandler 创建 CanvasWSHandler 实例
func NewCanvasWSHandler(a *app.App, wss *pkgapp.WebsocketServer) *CanvasWSHandler {
	return &CanvasWSHandler{WSHandler: NewWSHandler(a), wss: wss}
}

// Register 注册消息处理函数和广播订阅，返回取消订阅函数
func (h *CanvasWSHandler) Register() (cancel func()) {
	h.wss.Use(dto.NoteCreate, h.NoteCreate)
	h.wss.Use(dto.NoteEditText, h.NoteEditText)
	h.wss.Use(dto.NoteDelete, h.NoteDelete)
	h.wss.Use(dto.NoteList, h.NoteList)
	h.wss.Use(dto.DragStart, h.DragStart)
	h.wss.Use(dto.DragMove, h.DragMove)
	h.wss.Use(dto.DragTo, h.DragTo)
	h.wss.Use(dto.DragEnd, h.DragEnd)
	h.wss.Use(dto.DragCancel, h.DragCancel)

	h.wss.OnClientClose(h.releaseDrag)

	h.App.OnWriteFailure(h.broadcastWriteFailure)
	return h.App.Registry.Subscribe(h.broadcastEvent)
}

// releaseDrag 断开的客户端若持有拖拽会话则取消，避免画布一直停在 Dragging
func (h *CanvasWSHandler) releaseDrag(c *pkgapp.WebsocketClient) {
	ctx, cancel := h.requestContext()
	defer cancel()

	if _, err := h.App.Canvas.ReleaseOwner(ctx, clientID(c)); err != nil {
		h.logError(c, "CanvasWSHandler.releaseDrag", err)
	}
}

// requestContext 连接升级后原始请求的 context 已结束，每条消息使用独立的超时 context
func (h *CanvasWSHandler) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.App.Config().GetContextTimeout())
}

// broadcastEvent 把已应用的变更广播给所有客户端
// 在注册表锁外同步调用，gws 广播为异步写入，保持事件顺序
func (h *CanvasWSHandler) broadcastEvent(ev domain.NoteEvent) {
	if ev.Type == domain.NoteEventDelete {
		h.wss.Broadcast(dto.NoteDeleted, code.Success.Clone().WithData(dto.NoteDeletedMessage{ID: ev.NoteID}))
		return
	}
	if ev.Note == nil {
		return
	}
	out, err := dto.NoteToDTO(ev.Note)
	if err != nil {
		h.App.Logger().Error("CanvasWSHandler.broadcastEvent", zap.Int64(pkglogger.FieldNoteID, ev.NoteID), zap.Error(err))
		return
	}
	h.wss.Broadcast(dto.NoteChanged, code.Success.Clone().WithData(out))
}

// broadcastWriteFailure 写入失败不回滚内存状态，只通知客户端
func (h *CanvasWSHandler) broadcastWriteFailure(ev domain.NoteEvent, cause error) {
	msg := dto.NoteWriteFailedMessage{ID: ev.NoteID, Action: string(ev.Type), Error: cause.Error()}
	send := func(context.Context) error {
		h.wss.Broadcast(dto.NoteWriteFailed, code.ErrorStoreWrite.Clone().WithData(msg))
		return nil
	}
	if err := h.App.SubmitTaskAsync(context.Background(), send); err != nil {
		_ = send(context.Background())
	}
}

func (h *CanvasWSHandler) replyNote(c *pkgapp.WebsocketClient, action string, n *domain.Note, method string) {
	out, err := dto.NoteToDTO(n)
	if err != nil {
		h.respondError(c, action, err, method)
		return
	}
	c.ToResponse(code.Success.Clone().WithData(out), action)
}

// NoteCreate 创建便签，回复带存储 id 的便签
func (h *CanvasWSHandler) NoteCreate(c *pkgapp.WebsocketClient, msg *pkgapp.WebSocketMessage) {
	params := &dto.NoteCreateRequest{}
	if !h.bind(c, msg, params, "CanvasWSHandler.NoteCreate") {
		return
	}
	ctx, cancel := h.requestContext()
	defer cancel()

	n, err := h.App.Canvas.CreateNote(ctx, params.Color)
	if err != nil {
		h.respondError(c, msg.Type, err, "CanvasWSHandler.NoteCreate")
		return
	}
	h.replyNote(c, msg.Type, n, "CanvasWSHandler.NoteCreate")
}

// NoteEditText 修改便签文本
func (h *CanvasWSHandler) NoteEditText(c *pkgapp.WebsocketClient, msg *pkgapp.WebSocketMessage) {
	params := &dto.NoteTextRequest{}
	if !h.bind(c, msg, params, "CanvasWSHandler.NoteEditText") {
		return
	}
	ctx, cancel := h.requestContext()
	defer cancel()

	n, err := h.App.Canvas.EditText(ctx, params.ID, params.Text)
	if err != nil {
		h.respondError(c, msg.Type, err, "CanvasWSHandler.NoteEditText")
		return
	}
	h.replyNote(c, msg.Type, n, "CanvasWSHandler.NoteEditText")
}

// NoteDelete 删除便签
func (h *CanvasWSHandler) NoteDelete(c *pkgapp.WebsocketClient, msg *pkgapp.WebSocketMessage) {
	params := &dto.NoteIDRequest{}
	if !h.bind(c, msg, params, "CanvasWSHandler.NoteDelete") {
		return
	}
	ctx, cancel := h.requestContext()
	defer cancel()

	if err := h.App.Canvas.DeleteNote(ctx, params.ID); err != nil {
		h.respondError(c, msg.Type, err, "CanvasWSHandler.NoteDelete")
		return
	}
	c.ToResponse(code.Success.Clone().WithData(dto.NoteDeletedMessage{ID: params.ID}), msg.Type)
}

// NoteList 回复全部便签，按层级从低到高
func (h *CanvasWSHandler) NoteList(c *pkgapp.WebsocketClient, msg *pkgapp.WebSocketMessage) {
	list, err := dto.NotesToDTO(h.App.Registry.List())
	if err != nil {
		h.respondError(c, msg.Type, err, "CanvasWSHandler.NoteList")
		return
	}
	c.ToResponse(code.Success.Clone().WithData(list), msg.Type)
}

// DragStart 开始拖拽
func (h *CanvasWSHandler) DragStart(c *pkgapp.WebsocketClient, msg *pkgapp.WebSocketMessage) {
	params := &dto.DragStartRequest{}
	if !h.bind(c, msg, params, "CanvasWSHandler.DragStart") {
		return
	}
	ctx, cancel := h.requestContext()
	defer cancel()

	n, err := h.App.Canvas.DragStartBy(ctx, clientID(c), params.ID, domain.Position{X: params.X, Y: params.Y})
	if err != nil {
		h.respondError(c, msg.Type, err, "CanvasWSHandler.DragStart")
		return
	}
	h.replyNote(c, msg.Type, n, "CanvasWSHandler.DragStart")
}

// DragMove 累加位移，广播显示位置，不写存储
func (h *CanvasWSHandler) DragMove(c *pkgapp.WebsocketClient, msg *pkgapp.WebSocketMessage) {
	params := &dto.DragMoveRequest{}
	if !h.bind(c, msg, params, "CanvasWSHandler.DragMove") {
		return
	}
	s, err := h.App.Canvas.DragMoveBy(clientID(c), domain.Position{X: params.DX, Y: params.DY})
	if err != nil {
		h.respondError(c, msg.Type, err, "CanvasWSHandler.DragMove")
		return
	}
	c.BroadcastResponse(code.Success.Clone().WithData(dragState(s)), false, dto.DragMoved)
}

// DragTo 以指针绝对坐标更新位移
func (h *CanvasWSHandler) DragTo(c *pkgapp.WebsocketClient, msg *pkgapp.WebSocketMessage) {
	params := &dto.DragToRequest{}
	if !h.bind(c, msg, params, "CanvasWSHandler.DragTo") {
		return
	}
	s, err := h.App.Canvas.DragToBy(clientID(c), domain.Position{X: params.X, Y: params.Y})
	if err != nil {
		h.respondError(c, msg.Type, err, "CanvasWSHandler.DragTo")
		return
	}
	c.BroadcastResponse(code.Success.Clone().WithData(dragState(s)), false, dto.DragMoved)
}

// DragEnd 结束拖拽，提交一次位置写入
func (h *CanvasWSHandler) DragEnd(c *pkgapp.WebsocketClient, msg *pkgapp.WebSocketMessage) {
	ctx, cancel := h.requestContext()
	defer cancel()

	n, err := h.App.Canvas.DragEndBy(ctx, clientID(c))
	if err != nil {
		h.respondError(c, msg.Type, err, "CanvasWSHandler.DragEnd")
		return
	}
	h.replyNote(c, msg.Type, n, "CanvasWSHandler.DragEnd")
}

// DragCancel 放弃拖拽
func (h *CanvasWSHandler) DragCancel(c *pkgapp.WebsocketClient, msg *pkgapp.WebSocketMessage) {
	ctx, cancel := h.requestContext()
	defer cancel()

	if err := h.App.Canvas.CancelDragBy(ctx, clientID(c)); err != nil {
		h.respondError(c, msg.Type, err, "CanvasWSHandler.DragCancel")
		return
	}
	c.ToResponse(code.Success, msg.Type)
}

func dragState(s service.DragSession) dto.DragStateDTO {
	return dto.DragStateDTO{
		NoteID:         s.NoteID,
		OriginPosition: s.OriginPosition,
		Delta:          s.Delta,
		Display:        s.Display(),
		Owner:          s.Owner,
	}
}
