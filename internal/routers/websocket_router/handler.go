// Package websocket_router 提供 WebSocket 路由处理器
package websocket_router

import (
	"context"
	"strings"

	"github.com/haierkeys/sticky-note-canvas-service/internal/app"
	pkgapp "github.com/haierkeys/sticky-note-canvas-service/pkg/app"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/code"
	apperrors "github.com/haierkeys/sticky-note-canvas-service/pkg/errors"
	pkglogger "github.com/haierkeys/sticky-note-canvas-service/pkg/logger"

	"go.uber.org/zap"
)

// WSHandler WebSocket 基础 Handler 结构体，封装 App Container
type WSHandler struct {
	App *app.App
}

// NewWSHandler 创建 WebSocket 基础 Handler 实例
func NewWSHandler(a *app.App) *WSHandler {
	return &WSHandler{App: a}
}

// logError 记录错误日志，连接关闭导致的错误降级为 Debug
func (h *WSHandler) logError(c *pkgapp.WebsocketClient, method string, err error) {
	fields := []zap.Field{zap.Error(err), zap.String(pkglogger.FieldClientID, clientID(c))}
	if isNetworkClosedError(err) {
		h.App.Logger().Debug(method, fields...)
		return
	}
	h.App.Logger().Error(method, fields...)
}

// respondError 记录错误并把映射后的结果码回复给客户端
func (h *WSHandler) respondError(c *pkgapp.WebsocketClient, action string, err error, method string) {
	h.logError(c, method, err)
	c.ToResponse(apperrors.CodeOf(err).Clone().WithDetails(err.Error()), action)
}

// bind 解析并验证消息体，失败时回复 ErrorInvalidParams
func (h *WSHandler) bind(c *pkgapp.WebsocketClient, msg *pkgapp.WebSocketMessage, params any, method string) bool {
	valid, errs := c.BindAndValid(msg.Data, params)
	if valid {
		return true
	}
	h.logError(c, method+".BindAndValid", errs)
	c.ToResponse(code.ErrorInvalidParams.Clone().WithDetails(errs.Errors()...), msg.Type)
	return false
}

func clientID(c *pkgapp.WebsocketClient) string {
	if c == nil {
		return ""
	}
	return c.ID
}

// isNetworkClosedError 检查是否为网络关闭相关的错误
func isNetworkClosedError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "broken pipe") ||
		err == context.Canceled
}
