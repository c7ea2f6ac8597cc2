// Package model 定义数据模型
package model

import (
	"gorm.io/gorm"
)

// AutoMigrate 按模型名称迁移表结构
func AutoMigrate(db *gorm.DB, key string) error {
	switch key {

	case "Note":
		if err := CreateNoteTable(db); err != nil {
			return err
		}
		return db.AutoMigrate(Note{})

	}
	return nil
}
