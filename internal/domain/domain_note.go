// Package domain 定义领域模型和接口
package domain

import "time"

// CurrentSchemaVersion 当前便签记录结构版本
// Every record written by this service carries this tag so later migrations
// can tell old layouts apart.
const CurrentSchemaVersion = 1

// Position 画布坐标（整数像素）
type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Add 返回平移后的坐标
func (p Position) Add(d Position) Position {
	return Position{X: p.X + d.X, Y: p.Y + d.Y}
}

// Sub 返回两个坐标之差
func (p Position) Sub(o Position) Position {
	return Position{X: p.X - o.X, Y: p.Y - o.Y}
}

// Note 便签领域模型
type Note struct {
	ID            int64
	Position      Position
	StackOrder    int64
	Color         string
	Text          string
	SchemaVersion int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clone 返回便签副本，调用方可以自由修改
func (n *Note) Clone() *Note {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}

// NotePatch 便签部分更新，nil 字段表示不修改
type NotePatch struct {
	Position   *Position
	StackOrder *int64
	Text       *string
	Color      *string
}

// IsEmpty 判断补丁是否没有任何字段
func (p NotePatch) IsEmpty() bool {
	return p.Position == nil && p.StackOrder == nil && p.Text == nil && p.Color == nil
}

// Merge 合并另一个补丁，后者字段覆盖前者
func (p NotePatch) Merge(o NotePatch) NotePatch {
	if o.Position != nil {
		p.Position = o.Position
	}
	if o.StackOrder != nil {
		p.StackOrder = o.StackOrder
	}
	if o.Text != nil {
		p.Text = o.Text
	}
	if o.Color != nil {
		p.Color = o.Color
	}
	return p
}

// ApplyTo 把补丁应用到便签上
func (p NotePatch) ApplyTo(n *Note) {
	if p.Position != nil {
		n.Position = *p.Position
	}
	if p.StackOrder != nil {
		n.StackOrder = *p.StackOrder
	}
	if p.Text != nil {
		n.Text = *p.Text
	}
	if p.Color != nil {
		n.Color = *p.Color
	}
}

// NoteState 便签在会话内的生命周期状态
type NoteState string

const (
	// NoteStateUncommitted 已在内存中创建，尚未拿到存储分配的 id
	NoteStateUncommitted NoteState = "uncommitted"
	// NoteStatePersisted 已持久化（之后的修改仍保持该状态）
	NoteStatePersisted NoteState = "persisted"
	// NoteStateDeleted 已删除，终态
	NoteStateDeleted NoteState = "deleted"
)

// NoteEventType 便签事件类型
type NoteEventType string

const (
	NoteEventCreate   NoteEventType = "create"
	NoteEventPosition NoteEventType = "position"
	NoteEventText     NoteEventType = "text"
	NoteEventFront    NoteEventType = "front"
	NoteEventDrag     NoteEventType = "drag"
	NoteEventDelete   NoteEventType = "delete"
)

// NoteEvent 描述一次已应用到内存状态的变更
type NoteEvent struct {
	Type   NoteEventType
	NoteID int64
	// Note 变更后的快照，删除事件为 nil
	Note  *Note
	Patch NotePatch
}
