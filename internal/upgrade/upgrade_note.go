package upgrade

import (
	"context"

	"github.com/haierkeys/sticky-note-canvas-service/internal/domain"
	"github.com/haierkeys/sticky-note-canvas-service/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NoteSchemaVersionMigrate 旧记录没有 schema_version，统一标记为当前版本
type NoteSchemaVersionMigrate struct{}

func (m *NoteSchemaVersionMigrate) Version() string {
	return "0.1.0"
}

func (m *NoteSchemaVersionMigrate) Description() string {
	return "Backfill note.schema_version for legacy records"
}

func (m *NoteSchemaVersionMigrate) Up(ctx context.Context, tx *gorm.DB, logger *zap.Logger) error {
	res := tx.WithContext(ctx).Model(&model.Note{}).
		Where("schema_version < ?", domain.CurrentSchemaVersion).
		Update("schema_version", domain.CurrentSchemaVersion)
	if res.Error != nil {
		return res.Error
	}
	logger.Info("note schema version backfilled", zap.Int64("rows", res.RowsAffected))
	return nil
}

// NoteStackOrderMigrate 缺失层级的旧记录置为 0（最底层），与加载时的处理一致
type NoteStackOrderMigrate struct{}

func (m *NoteStackOrderMigrate) Version() string {
	return "0.2.0"
}

func (m *NoteStackOrderMigrate) Description() string {
	return "Set missing note.stack_order to 0"
}

func (m *NoteStackOrderMigrate) Up(ctx context.Context, tx *gorm.DB, logger *zap.Logger) error {
	res := tx.WithContext(ctx).Model(&model.Note{}).
		Where("stack_order IS NULL").
		Update("stack_order", 0)
	if res.Error != nil {
		return res.Error
	}
	logger.Info("note stack order backfilled", zap.Int64("rows", res.RowsAffected))
	return nil
}
