// Package storage 备份快照的远端存储目标
package storage

import (
	"context"
	"time"

	"github.com/haierkeys/sticky-note-canvas-service/pkg/storage/aliyun_oss"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/storage/aws_s3"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/storage/local_fs"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/storage/webdav"

	"github.com/pkg/errors"
)

type Type = string

const (
	LOCAL  Type = "localfs"
	S3     Type = "s3"
	MinIO  Type = "minio"
	R2     Type = "r2"
	OSS    Type = "oss"
	WebDAV Type = "webdav"
)

// ErrInvalidType 不支持的存储类型
var ErrInvalidType = errors.New("invalid storage type")

// Config 统一存储配置，Type 为空表示不上传
type Config struct {
	Type Type `yaml:"type"`

	// CustomPath 对象键前缀
	CustomPath string `yaml:"custom-path"`

	// S3 / MinIO / R2 / OSS
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	BucketName      string `yaml:"bucket-name"`
	AccessKeyID     string `yaml:"access-key-id"`
	AccessKeySecret string `yaml:"access-key-secret"`
	AccountID       string `yaml:"account-id"` // Cloudflare R2

	// WebDAV
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// Local FS
	SavePath string `yaml:"save-path"`
}

// Enabled 是否配置了存储目标
func (c Config) Enabled() bool {
	return c.Type != ""
}

// Storager 存储目标
type Storager interface {
	// SendContent 上传内容，返回最终的对象键
	SendContent(ctx context.Context, key string, content []byte, modTime time.Time) (string, error)
	Delete(ctx context.Context, key string) error
}

// NewClient 按类型创建存储目标
func NewClient(c *Config) (Storager, error) {
	if c == nil {
		return nil, ErrInvalidType
	}

	switch c.Type {
	case LOCAL:
		return local_fs.NewClient(&local_fs.Config{SavePath: c.SavePath, CustomPath: c.CustomPath})
	case S3, MinIO, R2:
		cfg := &aws_s3.Config{
			Endpoint:        c.Endpoint,
			Region:          c.Region,
			BucketName:      c.BucketName,
			AccessKeyID:     c.AccessKeyID,
			AccessKeySecret: c.AccessKeySecret,
			CustomPath:      c.CustomPath,
			// MinIO / R2 只支持 path-style
			UsePathStyle: c.Type != S3,
		}
		if c.Type == R2 {
			cfg.Endpoint = "https://" + c.AccountID + ".r2.cloudflarestorage.com"
			cfg.Region = "auto"
		}
		return aws_s3.NewClient(cfg)
	case OSS:
		return aliyun_oss.NewClient(&aliyun_oss.Config{
			Endpoint:        c.Endpoint,
			BucketName:      c.BucketName,
			AccessKeyID:     c.AccessKeyID,
			AccessKeySecret: c.AccessKeySecret,
			CustomPath:      c.CustomPath,
		})
	case WebDAV:
		return webdav.NewClient(&webdav.Config{
			Endpoint:   c.Endpoint,
			User:       c.User,
			Password:   c.Password,
			CustomPath: c.CustomPath,
		})
	}
	return nil, errors.Wrapf(ErrInvalidType, "%q", c.Type)
}
