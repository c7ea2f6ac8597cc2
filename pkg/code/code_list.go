package code

import "net/http"

var (
	Success = NewSuss(1, lang{en: "Success", zh_cn: "成功"})

	ErrorServerInternal  = NewError(500, lang{en: "Internal server error", zh_cn: "服务器内部错误"}, http.StatusInternalServerError)
	ErrorInvalidParams   = NewError(501, lang{en: "Invalid parameters", zh_cn: "参数错误"}, http.StatusBadRequest)
	ErrorNotFoundAPI     = NewError(502, lang{en: "API not found", zh_cn: "接口不存在"}, http.StatusNotFound)
	ErrorTooManyRequests = NewError(503, lang{en: "Too many requests", zh_cn: "请求过多"}, http.StatusTooManyRequests)
	ErrorRequestTimeout  = NewError(504, lang{en: "Request timeout", zh_cn: "请求超时"}, http.StatusGatewayTimeout)
	ErrorWSUnknownAction = NewError(505, lang{en: "Unknown message type", zh_cn: "未知的消息类型"})
	ErrorWSMessageFormat = NewError(506, lang{en: "Invalid message format", zh_cn: "消息格式错误"})
	ErrorServiceShutdown = NewError(507, lang{en: "Service is shutting down", zh_cn: "服务正在关闭"}, http.StatusServiceUnavailable)

	// 便签
	ErrorNoteNotFound     = NewError(1001, lang{en: "Note not found", zh_cn: "便签不存在"}, http.StatusNotFound)
	ErrorDragInProgress   = NewError(1003, lang{en: "Another note is being dragged", zh_cn: "已有便签正在拖拽"}, http.StatusConflict)
	ErrorNoDrag           = NewError(1004, lang{en: "No drag in progress", zh_cn: "当前没有拖拽"}, http.StatusConflict)
	ErrorDragNotOwner     = NewError(1005, lang{en: "Note is being dragged by another client", zh_cn: "便签正被其他客户端拖拽"}, http.StatusConflict)

	// 存储
	ErrorStoreUnavailable = NewError(2001, lang{en: "Note store unavailable", zh_cn: "便签存储不可用"}, http.StatusServiceUnavailable)
	ErrorStoreRead        = NewError(2002, lang{en: "Note store read failed", zh_cn: "便签读取失败"})
	ErrorStoreWrite       = NewError(2003, lang{en: "Note store write failed", zh_cn: "便签写入失败"})
)
