// Package webdav WebDAV 存储
package webdav

import (
	"context"
	"os"
	"path"
	"time"

	"github.com/pkg/errors"
	"github.com/studio-b12/gowebdav"
)

// Config WebDAV 连接信息
type Config struct {
	Endpoint   string `yaml:"endpoint"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	CustomPath string `yaml:"custom-path"`
}

// WebDAV 客户端
type WebDAV struct {
	Client *gowebdav.Client
	Config *Config
}

// NewClient 创建 WebDAV 客户端，连接在第一次请求时建立
func NewClient(conf *Config) (*WebDAV, error) {
	if conf.Endpoint == "" {
		return nil, errors.New("webdav: endpoint is required")
	}
	return &WebDAV{
		Client: gowebdav.NewClient(conf.Endpoint, conf.User, conf.Password),
		Config: conf,
	}, nil
}

func (w *WebDAV) key(key string) string {
	return path.Join("/", w.Config.CustomPath, key)
}

// SendContent 写入文件，目录不存在时先创建
func (w *WebDAV) SendContent(ctx context.Context, key string, content []byte, modTime time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fileKey := w.key(key)
	if err := w.Client.MkdirAll(path.Dir(fileKey), 0755); err != nil {
		return "", errors.Wrap(err, "webdav")
	}
	if err := w.Client.Write(fileKey, content, os.FileMode(0644)); err != nil {
		return "", errors.Wrap(err, "webdav")
	}
	return fileKey, nil
}

func (w *WebDAV) Delete(ctx context.Context, key string) error {
	return errors.Wrap(w.Client.Remove(w.key(key)), "webdav")
}
