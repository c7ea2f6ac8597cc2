package model

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Note mapped from table <note>
// 表名由命名策略生成（单数 + 表前缀），因此不定义 TableName
type Note struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id" form:"id"`
	X             int       `gorm:"column:x;not null;default:0" json:"x" form:"x"`
	Y             int       `gorm:"column:y;not null;default:0" json:"y" form:"y"`
	StackOrder    *int64    `gorm:"column:stack_order;index:idx_note_stack_order" json:"stackOrder" form:"stackOrder"` // 旧数据可能缺失，读取时按 0 处理
	Color         string    `gorm:"column:color;not null" json:"color" form:"color"`
	Text          string    `gorm:"column:text;type:text" json:"text" form:"text"`
	SchemaVersion int       `gorm:"column:schema_version;not null;default:0" json:"schemaVersion" form:"schemaVersion"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt" form:"createdAt"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt" form:"updatedAt"`
}

// GetStackOrder 返回层级，缺失时为 0
func (n *Note) GetStackOrder() int64 {
	if n.StackOrder == nil {
		return 0
	}
	return *n.StackOrder
}

// CreateNoteTable 创建便签表
// SQLite 需要显式的 AUTOINCREMENT，否则删除最大 id 后新记录会复用该 id
func CreateNoteTable(db *gorm.DB) error {
	if db.Dialector.Name() != "sqlite" {
		return nil
	}

	table, err := tableName(db, &Note{})
	if err != nil {
		return err
	}

	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %q (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			x INTEGER NOT NULL DEFAULT 0,
			y INTEGER NOT NULL DEFAULT 0,
			stack_order INTEGER,
			color TEXT NOT NULL,
			text TEXT,
			schema_version INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME,
			updated_at DATETIME
		)
	`, table)
	return db.Exec(sql).Error
}

// tableName 解析模型在当前命名策略（含表前缀）下的表名
func tableName(db *gorm.DB, m any) (string, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(m); err != nil {
		return "", err
	}
	return stmt.Schema.Table, nil
}
