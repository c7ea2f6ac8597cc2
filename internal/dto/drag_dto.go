package dto

import "github.com/haierkeys/sticky-note-canvas-service/internal/domain"

// DragStartRequest 开始拖拽，pointer 为按下时的指针坐标
type DragStartRequest struct {
	ID int64 `json:"id" form:"id" binding:"required,gt=0" example:"1"`
	X  int   `json:"x" form:"x" example:"10"`
	Y  int   `json:"y" form:"y" example:"10"`
}

// DragMoveRequest 拖拽增量位移
type DragMoveRequest struct {
	DX int `json:"dx" form:"dx" example:"5"`
	DY int `json:"dy" form:"dy" example:"-3"`
}

// DragToRequest 拖拽到指针的绝对坐标
type DragToRequest struct {
	X int `json:"x" form:"x" example:"130"`
	Y int `json:"y" form:"y" example:"40"`
}

// DragStateDTO 拖拽中的状态，Display 为当前显示位置
type DragStateDTO struct {
	NoteID         int64           `json:"noteId"`
	OriginPosition domain.Position `json:"originPosition"`
	Delta          domain.Position `json:"delta"`
	Display        domain.Position `json:"display"`
	// Owner 持有拖拽的客户端 id
	Owner string `json:"owner,omitempty"`
}
