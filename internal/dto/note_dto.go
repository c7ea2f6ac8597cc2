// Package dto Defines data transfer objects (request parameters and response structs)
// Package dto 定义数据传输对象（请求参数和响应结构体）
package dto

import (
	"time"

	"github.com/haierkeys/sticky-note-canvas-service/internal/domain"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/convert"
)

// NoteDTO Note data transfer object
// NoteDTO 便签数据传输对象
type NoteDTO struct {
	ID            int64           `json:"id"`
	Position      domain.Position `json:"position"`
	StackOrder    int64           `json:"stackOrder"`
	Color         string          `json:"color"`
	Text          string          `json:"text"`
	SchemaVersion int             `json:"schemaVersion"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// NoteToDTO 领域模型转换为 DTO
func NoteToDTO(n *domain.Note) (*NoteDTO, error) {
	out := &NoteDTO{}
	if err := convert.StructAssign(n, out); err != nil {
		return nil, err
	}
	return out, nil
}

// NotesToDTO 批量转换，保持输入顺序
func NotesToDTO(list []*domain.Note) ([]*NoteDTO, error) {
	out := make([]*NoteDTO, 0, len(list))
	if err := convert.StructAssign(list, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NoteCreateRequest Request parameters for creating a note
// 创建便签的请求参数
type NoteCreateRequest struct {
	Color string `json:"color" form:"color" binding:"required,max=32" example:"#ffeb3b"`
}

// NoteTextRequest Request parameters for replacing note text
// 修改便签文本的请求参数
type NoteTextRequest struct {
	ID   int64  `json:"id" form:"id" binding:"required,gt=0" example:"1"`
	Text string `json:"text" form:"text" binding:"max=65535" example:"buy milk"`
}

// NotePositionRequest Request parameters for moving a note
// 移动便签的请求参数
type NotePositionRequest struct {
	ID int64 `json:"id" form:"id" binding:"required,gt=0" example:"1"`
	X  int   `json:"x" form:"x" example:"120"`
	Y  int   `json:"y" form:"y" example:"40"`
}

// NoteIDRequest Request parameters that only carry a note id
// 只包含便签 id 的请求参数
type NoteIDRequest struct {
	ID int64 `json:"id" form:"id" binding:"required,gt=0" example:"1"`
}

// WriteFailureDTO 最近一次写入失败
type WriteFailureDTO struct {
	NoteID int64     `json:"noteId"`
	Action string    `json:"action"`
	Error  string    `json:"error"`
	At     time.Time `json:"at"`
}

// CanvasStatusDTO 画布运行状态
type CanvasStatusDTO struct {
	Canvas           string           `json:"canvas"`
	Notes            int              `json:"notes"`
	Counter          int64            `json:"counter"`          // 下一次分配的层级
	PendingWrites    int64            `json:"pendingWrites"`    // 尚未落盘的写入
	Dragging         bool             `json:"dragging"`         // 是否有拖拽进行中
	Drag             *DragStateDTO    `json:"drag,omitempty"`   // 拖拽详情
	WebsocketClients int              `json:"websocketClients"` // WebSocket 连接数
	LastWriteFailure *WriteFailureDTO `json:"lastWriteFailure,omitempty"`
}
