package logger

// 统一的日志字段命名常量
// 用于确保整个项目中日志字段命名的一致性，便于日志查询和分析
const (
	// FieldTraceID 追踪 ID 字段
	FieldTraceID = "traceId"

	// FieldNoteID 便签 ID 字段
	FieldNoteID = "noteId"

	// FieldStackOrder 层级字段
	FieldStackOrder = "stackOrder"

	// FieldAction 操作类型字段
	FieldAction = "action"

	// FieldClientID websocket 客户端 ID 字段
	FieldClientID = "clientId"

	// FieldDuration 耗时字段
	FieldDuration = "duration"

	// FieldMethod 方法名称字段
	FieldMethod = "method"

	// FieldError 错误信息字段
	FieldError = "error"

	// FieldTask 定时任务名称字段
	FieldTask = "task"

	// FieldPath 文件路径字段
	FieldPath = "path"
)
