package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Disk writes objects to a directory on the local filesystem. It has no way
// to hand out upload grants, so SignUpload always fails.
type Disk struct {
	baseDir string
}

// NewDisk creates a Disk backend rooted at baseDir. The directory is created
// if it does not already exist.
func NewDisk(baseDir string) (*Disk, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: failed to create local base directory %q: %w", baseDir, err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to resolve absolute path for %q: %w", baseDir, err)
	}
	return &Disk{baseDir: abs}, nil
}

// Put writes content to baseDir/key. Content type is not recorded.
func (d *Disk) Put(_ context.Context, req *PutRequest) (*PutResult, error) {
	dest, err := d.path(req.Key)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("storage: failed to create directory for %q: %w", req.Key, err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to create file %q: %w", dest, err)
	}

	n, err := io.Copy(f, req.Content)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("storage: failed to write file %q: %w", dest, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("storage: failed to close file %q: %w", dest, err)
	}

	return &PutResult{
		Key:         req.Key,
		Size:        n,
		ContentType: req.ContentType,
		WrittenAt:   time.Now(),
	}, nil
}

func (d *Disk) SignUpload(context.Context, *SignRequest) (*Grant, error) {
	return nil, ErrSigningUnsupported
}

func (d *Disk) PublicURL(key string) string {
	u := &url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(d.baseDir, filepath.FromSlash(key)))}
	return u.String()
}

// path keeps keys such as "../x" from escaping baseDir.
func (d *Disk) path(key string) (string, error) {
	dest := filepath.Join(d.baseDir, filepath.FromSlash(key))
	if dest != d.baseDir && !strings.HasPrefix(dest, d.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: key %q escapes base directory", key)
	}
	return dest, nil
}
