package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

const ContentTypeZstdJSON = "application/zstd"

type Config struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
	UsePathStyle  bool
	Prefix        string
}

// Object is an uploaded object. URL is empty without a public base URL.
type Object struct {
	Key string
	URL string
}

type Uploader struct {
	cfg    Config
	client *s3.Client
	now    func() time.Time
}

func NewUploader(cfg Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials are required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "snapshots"
	}

	options := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		options.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return &Uploader{
		cfg:    cfg,
		client: s3.New(options),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Upload stores data as a private object under a dated, unique key.
func (u *Uploader) Upload(ctx context.Context, data []byte, contentType string) (Object, error) {
	if len(data) == 0 {
		return Object{}, fmt.Errorf("no data to upload")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := u.objectKey(contentType)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return Object{}, fmt.Errorf("upload to s3: %w", err)
	}

	obj := Object{Key: key}
	if u.cfg.PublicBaseURL != "" {
		obj.URL = strings.TrimRight(u.cfg.PublicBaseURL, "/") + "/" + key
	}
	return obj, nil
}

func (u *Uploader) objectKey(contentType string) string {
	now := u.now()
	prefix := strings.Trim(u.cfg.Prefix, "/")
	return path.Join(prefix, fmt.Sprintf("%04d/%02d/%02d", now.Year(), now.Month(), now.Day()), uuid.NewString()+extensionFromContentType(contentType))
}

func extensionFromContentType(contentType string) string {
	switch strings.ToLower(contentType) {
	case ContentTypeZstdJSON:
		return ".json.zst"
	case "application/json":
		return ".json"
	default:
		return ".bin"
	}
}
