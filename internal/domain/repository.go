// Package domain 定义领域模型和接口
package domain

import "context"

// NoteStore 便签持久化存储接口
// Implementations own id assignment: ids are unique, immutable and never reused.
type NoteStore interface {
	// Open 打开存储，失败返回 ErrStoreUnavailable；重复调用是安全的
	Open(ctx context.Context) error

	// CreateData 写入新记录并返回存储分配的 id
	CreateData(ctx context.Context, note *Note) (int64, error)

	// ReadAllData 读取全部记录，顺序不保证
	ReadAllData(ctx context.Context) ([]*Note, error)

	// UpdateData 只更新补丁中给出的字段，记录不存在返回 ErrNotFound
	UpdateData(ctx context.Context, id int64, patch NotePatch) error

	// DeleteData 删除记录，记录不存在返回 ErrNotFound
	DeleteData(ctx context.Context, id int64) error

	// Close 释放存储资源
	Close() error
}
