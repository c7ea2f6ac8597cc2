package dto

// WebSocketAction WebSocket text message type
// WebSocket 文本消息类型
type WebSocketAction = string

const (
	// Client intents
	// 客户端意图

	// NoteCreate 创建便签
	NoteCreate WebSocketAction = "NoteCreate"
	// NoteEditText 修改便签文本
	NoteEditText WebSocketAction = "NoteEditText"
	// NoteDelete 删除便签
	NoteDelete WebSocketAction = "NoteDelete"
	// NoteList 获取全部便签
	NoteList WebSocketAction = "NoteList"
	// DragStart 开始拖拽
	DragStart WebSocketAction = "DragStart"
	// DragMove 拖拽增量位移
	DragMove WebSocketAction = "DragMove"
	// DragTo 拖拽到绝对坐标
	DragTo WebSocketAction = "DragTo"
	// DragEnd 结束拖拽并保存
	DragEnd WebSocketAction = "DragEnd"
	// DragCancel 取消拖拽，位置不变
	DragCancel WebSocketAction = "DragCancel"

	// Server broadcasts
	// 服务端广播

	// NoteChanged 便签已变更
	NoteChanged WebSocketAction = "NoteChanged"
	// NoteDeleted 便签已删除
	NoteDeleted WebSocketAction = "NoteDeleted"
	// NoteWriteFailed 便签写入存储失败，内存状态未回滚
	NoteWriteFailed WebSocketAction = "NoteWriteFailed"
	// DragMoved 拖拽中的显示位置
	DragMoved WebSocketAction = "DragMoved"
)

// NoteDeletedMessage 删除广播
type NoteDeletedMessage struct {
	ID int64 `json:"id"`
}

// NoteWriteFailedMessage 写入失败广播
type NoteWriteFailedMessage struct {
	ID     int64  `json:"id"`
	Action string `json:"action"`
	Error  string `json:"error"`
}
