// Package api_router 提供 HTTP API 路由处理器
package api_router

import (
	"github.com/haierkeys/sticky-note-canvas-service/internal/app"
	"github.com/haierkeys/sticky-note-canvas-service/internal/middleware"
	pkgapp "github.com/haierkeys/sticky-note-canvas-service/pkg/app"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/code"
	pkglogger "github.com/haierkeys/sticky-note-canvas-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 基础 Handler 结构体，封装 App Container
// 所有 API Handler 都应该嵌入此结构体以获得依赖注入能力
type Handler struct {
	App *app.App
	WSS *pkgapp.WebsocketServer
}

// NewHandler 创建基础 Handler 实例，wss 可以为 nil
func NewHandler(a *app.App, wss *pkgapp.WebsocketServer) *Handler {
	return &Handler{App: a, WSS: wss}
}

// logError 记录错误日志，包含 Trace ID
func (h *Handler) logError(c *gin.Context, method string, err error) {
	h.App.Logger().Error(method,
		zap.Error(err),
		zap.String(pkglogger.FieldTraceID, middleware.GetTraceIDFromGin(c)))
}

// bind 参数绑定和验证，失败时直接输出 ErrorInvalidParams
func (h *Handler) bind(c *gin.Context, method string, params any) bool {
	valid, errs := pkgapp.BindAndValid(c, params)
	if valid {
		return true
	}
	h.logError(c, method+".BindAndValid", errs)
	pkgapp.NewResponse(c).ToResponse(code.ErrorInvalidParams.Clone().WithDetails(errs.Errors()...))
	return false
}
