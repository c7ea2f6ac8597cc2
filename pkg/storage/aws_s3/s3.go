// Package aws_s3 S3 兼容对象存储（AWS S3、MinIO、Cloudflare R2）
package aws_s3

import (
	"bytes"
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

type Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	BucketName      string `yaml:"bucket-name"`
	AccessKeyID     string `yaml:"access-key-id"`
	AccessKeySecret string `yaml:"access-key-secret"`
	CustomPath      string `yaml:"custom-path"`
	UsePathStyle    bool   `yaml:"use-path-style"`
}

type S3 struct {
	Client *s3.Client
	Config *Config
}

// NewClient 创建 S3 客户端，Endpoint 为空时使用 AWS 默认地址
func NewClient(conf *Config) (*S3, error) {
	if conf.BucketName == "" {
		return nil, errors.New("s3: bucket-name is required")
	}

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(conf.AccessKeyID, conf.AccessKeySecret, "")),
		config.WithRegion(conf.Region),
	)
	if err != nil {
		return nil, errors.Wrap(err, "s3")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = conf.UsePathStyle
		if conf.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Endpoint)
		}
	})
	return &S3{Client: client, Config: conf}, nil
}

func (p *S3) key(key string) string {
	if p.Config.CustomPath == "" {
		return key
	}
	return p.Config.CustomPath + "/" + key
}

// SendContent 上传对象，修改时间写入 metadata
func (p *S3) SendContent(ctx context.Context, key string, content []byte, modTime time.Time) (string, error) {
	objectKey := p.key(key)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(p.Config.BucketName),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("application/yaml"),
	}
	if !modTime.IsZero() {
		input.Metadata = map[string]string{
			"modification-time": modTime.Format(time.RFC3339),
		}
	}
	if _, err := p.Client.PutObject(ctx, input); err != nil {
		return "", errors.Wrap(err, "s3")
	}
	return p.Config.BucketName + "/" + objectKey, nil
}

func (p *S3) Delete(ctx context.Context, key string) error {
	_, err := p.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.Config.BucketName),
		Key:    aws.String(p.key(key)),
	})
	return errors.Wrap(err, "s3")
}
