// Package local_fs 本地目录存储
package local_fs

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/haierkeys/sticky-note-canvas-service/pkg/fileurl"

	"github.com/pkg/errors"
)

type Config struct {
	SavePath   string `yaml:"save-path"`
	CustomPath string `yaml:"custom-path"`
}

type LocalFS struct {
	Config *Config
}

func NewClient(conf *Config) (*LocalFS, error) {
	if conf.SavePath == "" {
		return nil, errors.New("localfs: save-path is required")
	}
	return &LocalFS{Config: conf}, nil
}

func (p *LocalFS) path(key string) string {
	return filepath.Join(p.Config.SavePath, p.Config.CustomPath, filepath.FromSlash(key))
}

// SendContent 原子写入本地文件并保留修改时间
func (p *LocalFS) SendContent(ctx context.Context, key string, content []byte, modTime time.Time) (string, error) {
	dst := p.path(key)
	if err := fileurl.WriteFileAtomic(dst, content, 0644); err != nil {
		return "", errors.Wrap(err, "localfs")
	}
	if !modTime.IsZero() {
		_ = os.Chtimes(dst, modTime, modTime)
	}
	return dst, nil
}

func (p *LocalFS) Delete(ctx context.Context, key string) error {
	dst := p.path(key)
	if fileurl.IsExist(dst) {
		return os.Remove(dst)
	}
	return nil
}
