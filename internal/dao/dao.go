// Package dao 实现数据访问层
package dao

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/haierkeys/sticky-note-canvas-service/pkg/fileurl"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/util"

	"github.com/glebarez/sqlite"
	"github.com/haierkeys/gormTracing"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// 支持的数据库类型
const (
	DBTypeSqlite   = "sqlite"
	DBTypeMysql    = "mysql"
	DBTypePostgres = "postgres"
	// DBTypeMemory 内存 SQLite，进程退出后数据丢失，用于测试和演示
	DBTypeMemory = "memory"
)

// DatabaseConfig 数据库配置（由 app.DatabaseConfig 转换而来，避免 dao 依赖 app 包）
type DatabaseConfig struct {
	Type            string
	Path            string
	UserName        string
	Password        string
	Host            string
	Port            int
	Name            string
	TablePrefix     string
	Charset         string
	ParseTime       bool
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime string
	ConnMaxIdleTime string
	RunMode         string
}

// NewDBEngine 根据配置创建数据库连接
func NewDBEngine(c DatabaseConfig, zl *zap.Logger) (*gorm.DB, error) {
	if zl == nil {
		zl = zap.NewNop()
	}

	dialector, err := useDialector(c)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   c.TablePrefix, // 表名前缀，`Note` 的表名应该是 `t_notes`
			SingularTable: true,          // 使用单数表名，启用该选项，此时，`Note` 的表名应该是 `t_note`
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database failed", c.Type)
	}

	if c.RunMode == "debug" {
		db.Config.Logger = logger.Default.LogMode(logger.Info)
	}

	// 获取通用数据库对象 sql.DB ，然后使用其提供的功能
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if c.Type == DBTypeMemory {
		// 每个连接都是独立的内存库，必须固定为单连接
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		// SetMaxIdleConns 用于设置连接池中空闲连接的最大数量。
		sqlDB.SetMaxIdleConns(c.MaxIdleConns)
		// SetMaxOpenConns 设置打开数据库连接的最大数量。
		sqlDB.SetMaxOpenConns(c.MaxOpenConns)
		// SetConnMaxLifetime 设置了连接可复用的最大时间。
		sqlDB.SetConnMaxLifetime(util.ParseDurationOr(c.ConnMaxLifetime, 30*time.Minute))
		sqlDB.SetConnMaxIdleTime(util.ParseDurationOr(c.ConnMaxIdleTime, 10*time.Minute))
	}

	if err := db.Use(&gormTracing.OpentracingPlugin{}); err != nil {
		zl.Warn("register gorm tracing plugin failed", zap.Error(err))
	}

	zl.Info("database engine ready",
		zap.String("type", c.Type),
		zap.String("tablePrefix", c.TablePrefix))

	return db, nil
}

// useDialector 根据数据库类型选择方言
func useDialector(c DatabaseConfig) (gorm.Dialector, error) {
	switch c.Type {
	case DBTypeMysql:
		charset := c.Charset
		if charset == "" {
			charset = "utf8mb4"
		}
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=%s&parseTime=%t&loc=Local",
			c.UserName,
			c.Password,
			c.Host,
			c.Name,
			charset,
			c.ParseTime,
		)), nil
	case DBTypePostgres:
		port := c.Port
		if port == 0 {
			port = 5432
		}
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=Local",
			c.Host,
			c.UserName,
			c.Password,
			c.Name,
			port,
			sslMode,
		)), nil
	case DBTypeSqlite, "":
		if c.Path == "" {
			return nil, errors.New("sqlite database path is empty")
		}
		dir := filepath.Dir(c.Path)
		if !fileurl.IsExist(dir) {
			if err := fileurl.CreatePath(dir, os.ModePerm); err != nil {
				return nil, errors.Wrap(err, "create sqlite directory failed")
			}
		}
		return sqlite.Open(c.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"), nil
	case DBTypeMemory:
		return sqlite.Open("file::memory:"), nil
	}
	return nil, errors.Errorf("unsupported database type: %s", c.Type)
}

// CloseDB 关闭数据库连接
func CloseDB(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get sql.DB")
	}
	return errors.Wrap(sqlDB.Close(), "failed to close database")
}
