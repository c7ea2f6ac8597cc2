package api_router

import (
	"github.com/haierkeys/sticky-note-canvas-service/internal/app"
	"github.com/haierkeys/sticky-note-canvas-service/internal/dto"
	pkgapp "github.com/haierkeys/sticky-note-canvas-service/pkg/app"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/code"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/convert"

	"github.com/gin-gonic/gin"
)

// CanvasHandler 画布状态处理器
type CanvasHandler struct {
	*Handler
}

// NewCanvasHandler 创建 CanvasHandler 实例
func NewCanvasHandler(a *app.App, wss *pkgapp.WebsocketServer) *CanvasHandler {
	return &CanvasHandler{Handler: NewHandler(a, wss)}
}

// Status 画布运行状态：层级计数器、未落盘写入、拖拽状态
// @Summary 画布状态
// @Tags 画布
// @Produce json
// @Success 200 {object} pkgapp.Res{data=dto.CanvasStatusDTO} "成功"
// @Router /api/canvas/status [get]
func (h *CanvasHandler) Status(c *gin.Context) {
	reg := h.App.Registry
	status := dto.CanvasStatusDTO{
		Canvas:        h.App.Config().App.CanvasName,
		Notes:         reg.Count(),
		Counter:       reg.Counter(),
		PendingWrites: reg.Pending(),
	}
	if s, ok := h.App.Canvas.Dragging(); ok {
		status.Dragging = true
		status.Drag = &dto.DragStateDTO{
			NoteID:         s.NoteID,
			OriginPosition: s.OriginPosition,
			Delta:          s.Delta,
			Display:        s.Display(),
			Owner:          s.Owner,
		}
	}
	if h.WSS != nil {
		status.WebsocketClients = h.WSS.ClientCount()
	}
	if f := h.App.LastWriteFailure(); f != nil {
		status.LastWriteFailure = &dto.WriteFailureDTO{}
		if err := convert.StructAssign(f, status.LastWriteFailure); err != nil {
			h.logError(c, "CanvasHandler.Status", err)
		}
	}
	pkgapp.NewResponse(c).ToResponse(code.Success.Clone().WithData(status))
}
