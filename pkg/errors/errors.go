// Package errors 统一错误响应
package errors

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/haierkeys/sticky-note-canvas-service/internal/domain"
	"github.com/haierkeys/sticky-note-canvas-service/internal/middleware"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/code"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/workerpool"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/writequeue"

	"github.com/gin-gonic/gin"
)

// AppError 统一应用错误结构体
// 包含错误码、消息、详情、追踪ID和时间戳
type AppError struct {
	// Code 错误码
	Code int `json:"code"`
	// Status 固定为 false
	Status bool `json:"status"`
	// Message 错误消息
	Message string `json:"message"`
	// Details 错误详情（可选）
	Details []string `json:"details,omitempty"`
	// TraceID 请求追踪ID
	TraceID string `json:"traceId,omitempty"`
	// Cause 原始错误（不序列化到JSON）
	Cause error `json:"-"`
	// Timestamp 错误发生时间
	Timestamp time.Time `json:"timestamp"`

	httpStatus int
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	return e.Message
}

// Unwrap 支持错误链路追踪
func (e *AppError) Unwrap() error {
	return e.Cause
}

// HTTPStatus 响应的 HTTP 状态码
func (e *AppError) HTTPStatus() int {
	if e.httpStatus == 0 {
		return http.StatusOK
	}
	return e.httpStatus
}

// NewAppError 从 Code 对象创建 AppError
func NewAppError(c *code.Code, cause error) *AppError {
	return &AppError{
		Code:       c.Code(),
		Message:    c.Msg(),
		Details:    c.Details(),
		Cause:      cause,
		Timestamp:  time.Now(),
		httpStatus: c.StatusCode(),
	}
}

// WithTraceID 设置 TraceID 并返回自身（链式调用）
func (e *AppError) WithTraceID(traceID string) *AppError {
	e.TraceID = traceID
	return e
}

// CodeOf maps a domain or transport error to its result code
// CodeOf 把领域错误映射为结果码
func CodeOf(err error) *code.Code {
	var codeErr *code.Code
	switch {
	case err == nil:
		return code.Success
	case errors.As(err, &codeErr):
		return codeErr
	case errors.Is(err, domain.ErrNotFound):
		return code.ErrorNoteNotFound
	case errors.Is(err, domain.ErrDragInProgress):
		return code.ErrorDragInProgress
	case errors.Is(err, domain.ErrNoDrag):
		return code.ErrorNoDrag
	case errors.Is(err, domain.ErrDragNotOwner):
		return code.ErrorDragNotOwner
	case errors.Is(err, domain.ErrStoreUnavailable):
		return code.ErrorStoreUnavailable
	case errors.Is(err, domain.ErrRead):
		return code.ErrorStoreRead
	case errors.Is(err, domain.ErrWrite):
		return code.ErrorStoreWrite
	case errors.Is(err, workerpool.ErrWorkerPoolClosed), errors.Is(err, writequeue.ErrWriteQueueClosed):
		return code.ErrorServiceShutdown
	case errors.Is(err, context.DeadlineExceeded):
		return code.ErrorRequestTimeout
	default:
		return code.ErrorServerInternal
	}
}

// FromError 将任意错误转换为 AppError
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	ae := NewAppError(CodeOf(err), err)
	if ae.Code != code.ErrorServerInternal.Code() && err != nil {
		ae.Details = []string{err.Error()}
	}
	return ae
}

// ErrorResponse 统一错误响应处理
// 从 gin.Context 获取 TraceID，将错误转换为 AppError 并返回 JSON 响应
func ErrorResponse(c *gin.Context, err error) {
	appErr := FromError(err).WithTraceID(middleware.GetTraceIDFromGin(c))
	c.Set("status_code", appErr.HTTPStatus())
	c.JSON(appErr.HTTPStatus(), appErr)
}

// IsAppError 检查错误是否为 AppError 类型
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}
