package dao

import (
	"context"
	"sync"

	"github.com/haierkeys/sticky-note-canvas-service/internal/domain"
	"github.com/haierkeys/sticky-note-canvas-service/internal/model"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// NoteStore 基于 gorm 的便签存储，实现 domain.NoteStore
type NoteStore struct {
	db          *gorm.DB
	logger      *zap.Logger
	autoMigrate bool

	sf     singleflight.Group
	mu     sync.RWMutex
	opened bool
}

// StoreOption 存储可选项
type StoreOption func(*NoteStore)

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *NoteStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAutoMigrate 打开时是否自动迁移表结构，默认开启
func WithAutoMigrate(enabled bool) StoreOption {
	return func(s *NoteStore) {
		s.autoMigrate = enabled
	}
}

// NewNoteStore 创建 gorm 便签存储，需要调用 Open 后才能读写
func NewNoteStore(db *gorm.DB, opts ...StoreOption) *NoteStore {
	s := &NoteStore{
		db:          db,
		logger:      zap.NewNop(),
		autoMigrate: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ domain.NoteStore = (*NoteStore)(nil)

// Open 检查连接并迁移表结构
// 并发调用只会执行一次，成功后重复调用直接返回
func (s *NoteStore) Open(ctx context.Context) error {
	if s.isOpened() {
		return nil
	}

	_, err, _ := s.sf.Do("open", func() (any, error) {
		if s.isOpened() {
			return nil, nil
		}
		if s.db == nil {
			return nil, domain.NewStoreError(domain.ErrStoreUnavailable, "open", nil)
		}

		sqlDB, err := s.db.DB()
		if err != nil {
			return nil, domain.NewStoreError(domain.ErrStoreUnavailable, "open", err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return nil, domain.NewStoreError(domain.ErrStoreUnavailable, "ping", err)
		}

		if s.autoMigrate {
			if err := model.AutoMigrate(s.db.WithContext(ctx), "Note"); err != nil {
				return nil, domain.NewStoreError(domain.ErrStoreUnavailable, "migrate", err)
			}
		}

		s.mu.Lock()
		s.opened = true
		s.mu.Unlock()

		s.logger.Info("note store opened", zap.String("dialect", s.db.Dialector.Name()))
		return nil, nil
	})
	return err
}

func (s *NoteStore) isOpened() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opened
}

// ready 未打开时返回 ErrStoreUnavailable
func (s *NoteStore) ready(op string) error {
	if !s.isOpened() {
		return domain.NewStoreError(domain.ErrStoreUnavailable, op, nil)
	}
	return nil
}

// toDomain 将数据库模型转换为领域模型
func (s *NoteStore) toDomain(m *model.Note) *domain.Note {
	if m == nil {
		return nil
	}
	return &domain.Note{
		ID:            m.ID,
		Position:      domain.Position{X: m.X, Y: m.Y},
		StackOrder:    m.GetStackOrder(),
		Color:         m.Color,
		Text:          m.Text,
		SchemaVersion: m.SchemaVersion,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// toModel 将领域模型转换为数据库模型，id 由数据库分配
func (s *NoteStore) toModel(n *domain.Note) *model.Note {
	stackOrder := n.StackOrder
	schemaVersion := n.SchemaVersion
	if schemaVersion == 0 {
		schemaVersion = domain.CurrentSchemaVersion
	}
	return &model.Note{
		X:             n.Position.X,
		Y:             n.Position.Y,
		StackOrder:    &stackOrder,
		Color:         n.Color,
		Text:          n.Text,
		SchemaVersion: schemaVersion,
	}
}

// CreateData 写入新便签，返回自增 id
func (s *NoteStore) CreateData(ctx context.Context, note *domain.Note) (int64, error) {
	if err := s.ready("create"); err != nil {
		return 0, err
	}
	if note == nil {
		return 0, domain.NewStoreError(domain.ErrWrite, "create", nil)
	}

	m := s.toModel(note)
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return 0, domain.NewStoreError(domain.ErrWrite, "create", err)
	}
	return m.ID, nil
}

// ReadAllData 读取全部便签，按 id 升序
func (s *NoteStore) ReadAllData(ctx context.Context) ([]*domain.Note, error) {
	if err := s.ready("read"); err != nil {
		return nil, err
	}

	var rows []*model.Note
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, domain.NewStoreError(domain.ErrRead, "read", err)
	}

	notes := make([]*domain.Note, 0, len(rows))
	for _, m := range rows {
		notes = append(notes, s.toDomain(m))
	}
	return notes, nil
}

// UpdateData 只更新补丁中给出的字段
func (s *NoteStore) UpdateData(ctx context.Context, id int64, patch domain.NotePatch) error {
	if err := s.ready("update"); err != nil {
		return err
	}

	values := patchToMap(patch)
	if len(values) == 0 {
		exists, err := s.exists(ctx, id)
		if err != nil {
			return domain.NewStoreError(domain.ErrWrite, "update", err)
		}
		if !exists {
			return domain.NewStoreError(domain.ErrNotFound, "update", nil)
		}
		return nil
	}

	result := s.db.WithContext(ctx).Model(&model.Note{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return domain.NewStoreError(domain.ErrWrite, "update", result.Error)
	}
	if result.RowsAffected == 0 {
		// MySQL 在值未变化时也会返回 0，需要再确认记录是否存在
		exists, err := s.exists(ctx, id)
		if err != nil {
			return domain.NewStoreError(domain.ErrWrite, "update", err)
		}
		if !exists {
			return domain.NewStoreError(domain.ErrNotFound, "update", nil)
		}
	}
	return nil
}

// DeleteData 物理删除便签
func (s *NoteStore) DeleteData(ctx context.Context, id int64) error {
	if err := s.ready("delete"); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Note{})
	if result.Error != nil {
		return domain.NewStoreError(domain.ErrWrite, "delete", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewStoreError(domain.ErrNotFound, "delete", nil)
	}
	return nil
}

// Close 标记存储关闭，数据库连接由调用方释放
func (s *NoteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = false
	return nil
}

// DB 返回底层连接，供迁移和任务使用
func (s *NoteStore) DB() *gorm.DB {
	return s.db
}

func (s *NoteStore) exists(ctx context.Context, id int64) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Note{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// patchToMap 把补丁转换为列名映射，只包含非 nil 字段
func patchToMap(p domain.NotePatch) map[string]any {
	values := make(map[string]any, 5)
	if p.Position != nil {
		values["x"] = p.Position.X
		values["y"] = p.Position.Y
	}
	if p.StackOrder != nil {
		values["stack_order"] = *p.StackOrder
	}
	if p.Text != nil {
		values["text"] = *p.Text
	}
	if p.Color != nil {
		values["color"] = *p.Color
	}
	return values
}
