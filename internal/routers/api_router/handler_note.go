package api_router

import (
	"github.com/haierkeys/sticky-note-canvas-service/internal/app"
	"github.com/haierkeys/sticky-note-canvas-service/internal/domain"
	"github.com/haierkeys/sticky-note-canvas-service/internal/dto"
	pkgapp "github.com/haierkeys/sticky-note-canvas-service/pkg/app"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/code"
	apperrors "github.com/haierkeys/sticky-note-canvas-service/pkg/errors"

	"github.com/gin-gonic/gin"
)

// NoteHandler 便签 API 路由处理器
// 所有修改都经过 Canvas，因此删除正在拖拽的便签会取消拖拽
type NoteHandler struct {
	*Handler
}

// NewNoteHandler 创建 NoteHandler 实例
func NewNoteHandler(a *app.App, wss *pkgapp.WebsocketServer) *NoteHandler {
	return &NoteHandler{Handler: NewHandler(a, wss)}
}

func (h *NoteHandler) respondNote(c *gin.Context, method string, n *domain.Note, err error) {
	if err != nil {
		h.logError(c, method, err)
		apperrors.ErrorResponse(c, err)
		return
	}
	out, err := dto.NoteToDTO(n)
	if err != nil {
		h.logError(c, method, err)
		apperrors.ErrorResponse(c, err)
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.Success.Clone().WithData(out))
}

// List 获取全部便签，按层级从低到高
// @Summary 获取便签列表
// @Tags 便签
// @Produce json
// @Success 200 {object} pkgapp.Res{data=pkgapp.ListRes{list=[]dto.NoteDTO}} "成功"
// @Router /api/notes [get]
func (h *NoteHandler) List(c *gin.Context) {
	list, err := dto.NotesToDTO(h.App.Registry.List())
	if err != nil {
		h.logError(c, "NoteHandler.List", err)
		apperrors.ErrorResponse(c, err)
		return
	}
	pkgapp.NewResponse(c).ToResponseList(code.Success, list, len(list))
}

// Get 获取单个便签
// @Summary 获取便签
// @Tags 便签
// @Produce json
// @Param params query dto.NoteIDRequest true "便签 id"
// @Success 200 {object} pkgapp.Res{data=dto.NoteDTO} "成功"
// @Router /api/note [get]
func (h *NoteHandler) Get(c *gin.Context) {
	params := &dto.NoteIDRequest{}
	if !h.bind(c, "NoteHandler.Get", params) {
		return
	}
	n, err := h.App.Registry.Get(params.ID)
	h.respondNote(c, "NoteHandler.Get", n, err)
}

// Create 创建便签，返回存储分配的 id 和层级
// @Summary 创建便签
// @Tags 便签
// @Accept json
// @Produce json
// @Param params body dto.NoteCreateRequest true "颜色"
// @Success 200 {object} pkgapp.Res{data=dto.NoteDTO} "成功"
// @Router /api/note [post]
func (h *NoteHandler) Create(c *gin.Context) {
	params := &dto.NoteCreateRequest{}
	if !h.bind(c, "NoteHandler.Create", params) {
		return
	}
	n, err := h.App.Canvas.CreateNote(c.Request.Context(), params.Color)
	h.respondNote(c, "NoteHandler.Create", n, err)
}

// UpdateText 修改便签文本
// @Summary 修改便签文本
// @Tags 便签
// @Accept json
// @Produce json
// @Param params body dto.NoteTextRequest true "文本"
// @Success 200 {object} pkgapp.Res{data=dto.NoteDTO} "成功"
// @Router /api/note/text [put]
func (h *NoteHandler) UpdateText(c *gin.Context) {
	params := &dto.NoteTextRequest{}
	if !h.bind(c, "NoteHandler.UpdateText", params) {
		return
	}
	n, err := h.App.Canvas.EditText(c.Request.Context(), params.ID, params.Text)
	h.respondNote(c, "NoteHandler.UpdateText", n, err)
}

// UpdatePosition 移动便签
// @Summary 移动便签
// @Tags 便签
// @Accept json
// @Produce json
// @Param params body dto.NotePositionRequest true "坐标"
// @Success 200 {object} pkgapp.Res{data=dto.NoteDTO} "成功"
// @Router /api/note/position [put]
func (h *NoteHandler) UpdatePosition(c *gin.Context) {
	params := &dto.NotePositionRequest{}
	if !h.bind(c, "NoteHandler.UpdatePosition", params) {
		return
	}
	n, err := h.App.Canvas.MoveNote(c.Request.Context(), params.ID, domain.Position{X: params.X, Y: params.Y})
	h.respondNote(c, "NoteHandler.UpdatePosition", n, err)
}

// BringToFront 置顶便签
// @Summary 置顶便签
// @Tags 便签
// @Accept json
// @Produce json
// @Param params body dto.NoteIDRequest true "便签 id"
// @Success 200 {object} pkgapp.Res{data=dto.NoteDTO} "成功"
// @Router /api/note/front [put]
func (h *NoteHandler) BringToFront(c *gin.Context) {
	params := &dto.NoteIDRequest{}
	if !h.bind(c, "NoteHandler.BringToFront", params) {
		return
	}
	n, err := h.App.Canvas.BringToFront(c.Request.Context(), params.ID)
	h.respondNote(c, "NoteHandler.BringToFront", n, err)
}

// Delete 删除便签
// @Summary 删除便签
// @Tags 便签
// @Produce json
// @Param params query dto.NoteIDRequest true "便签 id"
// @Success 200 {object} pkgapp.Res "成功"
// @Router /api/note [delete]
func (h *NoteHandler) Delete(c *gin.Context) {
	params := &dto.NoteIDRequest{}
	if !h.bind(c, "NoteHandler.Delete", params) {
		return
	}
	if err := h.App.Canvas.DeleteNote(c.Request.Context(), params.ID); err != nil {
		h.logError(c, "NoteHandler.Delete", err)
		apperrors.ErrorResponse(c, err)
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.Success)
}
