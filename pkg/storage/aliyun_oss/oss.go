// Package aliyun_oss 阿里云 OSS
package aliyun_oss

import (
	"bytes"
	"context"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/pkg/errors"
)

type Config struct {
	Endpoint        string `yaml:"endpoint"`
	BucketName      string `yaml:"bucket-name"`
	AccessKeyID     string `yaml:"access-key-id"`
	AccessKeySecret string `yaml:"access-key-secret"`
	CustomPath      string `yaml:"custom-path"`
}

type OSS struct {
	Client *oss.Client
	Bucket *oss.Bucket
	Config *Config
}

func NewClient(conf *Config) (*OSS, error) {
	client, err := oss.New(conf.Endpoint, conf.AccessKeyID, conf.AccessKeySecret)
	if err != nil {
		return nil, errors.Wrap(err, "oss")
	}
	bucket, err := client.Bucket(conf.BucketName)
	if err != nil {
		return nil, errors.Wrap(err, "oss")
	}
	return &OSS{Client: client, Bucket: bucket, Config: conf}, nil
}

func (p *OSS) key(key string) string {
	if p.Config.CustomPath == "" {
		return key
	}
	return p.Config.CustomPath + "/" + key
}

// SendContent 上传对象；OSS SDK 不接受 context，ctx 只用于提前退出
func (p *OSS) SendContent(ctx context.Context, key string, content []byte, modTime time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	objectKey := p.key(key)
	var opts []oss.Option
	if !modTime.IsZero() {
		opts = append(opts, oss.Meta("modification-time", modTime.Format(time.RFC3339)))
	}
	if err := p.Bucket.PutObject(objectKey, bytes.NewReader(content), opts...); err != nil {
		return "", errors.Wrap(err, "oss")
	}
	return objectKey, nil
}

func (p *OSS) Delete(ctx context.Context, key string) error {
	return errors.Wrap(p.Bucket.DeleteObject(p.key(key)), "oss")
}
