package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig configures an S3-compatible backend (MinIO, AWS S3, R2, ...).
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool

	// Region skips the bucket location lookup when set.
	Region string

	// PublicBase is the browser-accessible base URL for objects, e.g.
	// "https://cdn.example.com". Defaults to {scheme}://{endpoint}/{bucket}.
	PublicBase string
}

// Minio stores objects in any S3-compatible bucket.
type Minio struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

// NewMinio creates the client. It does not contact the endpoint; use
// EnsureBucket for that.
func NewMinio(cfg MinioConfig) (*Minio, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: S3 bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: failed to create S3 client: %w", err)
	}

	publicBase := cfg.PublicBase
	if publicBase == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicBase = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	return &Minio{
		client:     client,
		bucket:     cfg.Bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
	}, nil
}

// Put streams content to the bucket under key. A Size of -1 makes the client
// buffer the content to find its length.
func (m *Minio) Put(ctx context.Context, req *PutRequest) (*PutResult, error) {
	info, err := m.client.PutObject(ctx, m.bucket, req.Key, req.Content, req.Size, minio.PutObjectOptions{
		ContentType: req.ContentType,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: put object %q: %w", req.Key, err)
	}

	writtenAt := info.LastModified
	if writtenAt.IsZero() {
		writtenAt = time.Now()
	}

	return &PutResult{
		Key:         req.Key,
		Size:        info.Size,
		ContentType: req.ContentType,
		WrittenAt:   writtenAt,
	}, nil
}

// SignUpload presigns a PUT with Content-Type as a signed header, so an
// upload declaring any other type is refused by the server.
func (m *Minio) SignUpload(ctx context.Context, req *SignRequest) (*Grant, error) {
	headers := http.Header{}
	headers.Set("Content-Type", req.ContentType)

	u, err := m.client.PresignHeader(ctx, http.MethodPut, m.bucket, req.Key, req.TTL, nil, headers)
	if err != nil {
		return nil, fmt.Errorf("storage: presign put %q: %w", req.Key, err)
	}

	return &Grant{
		URL:       u.String(),
		Key:       req.Key,
		ExpiresAt: req.ExpiresAt(),
	}, nil
}

func (m *Minio) PublicURL(key string) string {
	return m.publicBase + "/" + key
}

// EnsureBucket creates the bucket if it does not exist.
func (m *Minio) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("storage: check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("storage: create bucket %q: %w", m.bucket, err)
	}
	return nil
}
