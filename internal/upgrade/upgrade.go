// Package upgrade 按版本顺序执行数据库升级脚本
package upgrade

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"
	"gorm.io/gorm"
)

// SchemaVersion 数据库版本记录表
type SchemaVersion struct {
	ID          int       `gorm:"primaryKey;autoIncrement" json:"id"`
	Version     string    `gorm:"not null;uniqueIndex;type:varchar(64)" json:"version"`
	Description string    `gorm:"type:text" json:"description"`
	AppliedAt   time.Time `gorm:"not null" json:"applied_at"`
}

// TableName 指定表名
func (SchemaVersion) TableName() string {
	return "schema_version"
}

// Migration 定义升级接口
type Migration interface {
	Version() string
	Description() string
	Up(ctx context.Context, tx *gorm.DB, logger *zap.Logger) error
}

// MigrationManager 升级管理器
type MigrationManager struct {
	db         *gorm.DB
	logger     *zap.Logger
	migrations []Migration
}

// NewMigrationManager 创建升级管理器，migrations 为空时使用内置脚本
func NewMigrationManager(db *gorm.DB, logger *zap.Logger, migrations ...Migration) *MigrationManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(migrations) == 0 {
		migrations = []Migration{
			// 在这里注册所有的升级脚本
			&NoteSchemaVersionMigrate{},
			&NoteStackOrderMigrate{},
		}
	}
	return &MigrationManager{
		db:         db,
		logger:     logger,
		migrations: migrations,
	}
}

// normalize 补全 "v" 前缀，semver 库需要
func normalize(v string) string {
	if !strings.HasPrefix(v, "v") {
		return "v" + v
	}
	return v
}

// Run 按版本号从小到大执行未应用的升级，每个脚本在独立事务中执行
func (m *MigrationManager) Run(ctx context.Context) (int, error) {
	if m.db == nil {
		return 0, errors.New("database not initialized")
	}

	// 确保 schema_version 表存在
	if err := m.db.WithContext(ctx).AutoMigrate(&SchemaVersion{}); err != nil {
		return 0, errors.Wrap(err, "create schema_version table failed")
	}

	applied, err := m.AppliedVersions(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "get applied versions failed")
	}

	pending := make([]Migration, 0, len(m.migrations))
	for _, mg := range m.migrations {
		if !semver.IsValid(normalize(mg.Version())) {
			return 0, errors.Errorf("migration %q has an invalid version", mg.Version())
		}
		if applied[normalize(mg.Version())] {
			continue
		}
		pending = append(pending, mg)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return semver.Compare(normalize(pending[i].Version()), normalize(pending[j].Version())) < 0
	})

	executed := 0
	for _, mg := range pending {
		m.logger.Info("applying migration",
			zap.String("scriptVersion", mg.Version()),
			zap.String("desc", mg.Description()))

		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := mg.Up(ctx, tx, m.logger); err != nil {
				return errors.Wrap(err, "migration failed")
			}
			record := &SchemaVersion{
				Version:     normalize(mg.Version()),
				Description: mg.Description(),
				AppliedAt:   time.Now(),
			}
			return errors.Wrap(tx.Create(record).Error, "record version failed")
		})
		if err != nil {
			return executed, errors.Wrapf(err, "apply migration %s", mg.Version())
		}

		m.logger.Info("migration applied successfully", zap.String("scriptVersion", mg.Version()))
		executed++
	}

	if executed == 0 {
		m.logger.Info("database is already up to date")
	} else {
		m.logger.Info("upgrade completed", zap.Int("migrations_applied", executed))
	}
	return executed, nil
}

// AppliedVersions 获取已应用的数据库版本
func (m *MigrationManager) AppliedVersions(ctx context.Context) (map[string]bool, error) {
	var versions []SchemaVersion
	if err := m.db.WithContext(ctx).Find(&versions).Error; err != nil {
		return nil, err
	}

	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[normalize(v.Version)] = true
	}
	return applied, nil
}

// Current 返回已应用的最高版本，没有记录时返回 v0.0.0
func (m *MigrationManager) Current(ctx context.Context) (string, error) {
	applied, err := m.AppliedVersions(ctx)
	if err != nil {
		return "", err
	}
	current := "v0.0.0"
	for v := range applied {
		if semver.Compare(v, current) > 0 {
			current = v
		}
	}
	return current, nil
}
