// Package storagetest provides an in-memory storage.Backend for tests.
package storagetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/fundood999/agentic-ai-backend/internal/storage"
)

// Object is a stored object as recorded by Memory.
type Object struct {
	Data        []byte
	ContentType string
	WrittenAt   time.Time
}

// Memory is a concurrency-safe storage.Backend that keeps objects in a map.
// Set PutErr or SignErr to make the corresponding call fail.
type Memory struct {
	Bucket  string
	PutErr  error
	SignErr error

	mu      sync.Mutex
	objects map[string]Object
	puts    int
	signs   int
}

func NewMemory(bucket string) *Memory {
	return &Memory{Bucket: bucket, objects: make(map[string]Object)}
}

func (m *Memory) Put(_ context.Context, req *storage.PutRequest) (*storage.PutResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.puts++
	if m.PutErr != nil {
		return nil, m.PutErr
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, req.Content)
	if err != nil {
		return nil, fmt.Errorf("storagetest: read content: %w", err)
	}

	obj := Object{Data: buf.Bytes(), ContentType: req.ContentType, WrittenAt: time.Now()}
	m.objects[req.Key] = obj

	return &storage.PutResult{
		Key:         req.Key,
		Size:        n,
		ContentType: req.ContentType,
		WrittenAt:   obj.WrittenAt,
	}, nil
}

// SignUpload returns a URL shaped like a V4 signed URL, with the expiry in
// seconds and the method in the query.
func (m *Memory) SignUpload(_ context.Context, req *storage.SignRequest) (*storage.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.signs++
	if m.SignErr != nil {
		return nil, m.SignErr
	}

	q := url.Values{}
	q.Set("X-Goog-Expires", strconv.Itoa(int(req.TTL/time.Second)))
	q.Set("X-Goog-Date", req.IssuedAt.UTC().Format("20060102T150405Z"))
	q.Set("X-Goog-Method", "PUT")
	q.Set("X-Goog-Content-Type", req.ContentType)

	u := &url.URL{
		Scheme:   "https",
		Host:     "signed.storage.test",
		Path:     "/" + m.Bucket + "/" + req.Key,
		RawQuery: q.Encode(),
	}

	return &storage.Grant{
		URL:       u.String(),
		Key:       req.Key,
		ExpiresAt: req.ExpiresAt(),
	}, nil
}

func (m *Memory) PublicURL(key string) string {
	u := &url.URL{Scheme: "https", Host: "public.storage.test", Path: "/" + m.Bucket + "/" + key}
	return u.String()
}

// Object returns the object stored under key.
func (m *Memory) Object(key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Len is the number of stored objects.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// Calls returns how many times Put and SignUpload were invoked.
func (m *Memory) Calls() (puts, signs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts, m.signs
}
