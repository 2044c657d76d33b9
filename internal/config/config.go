// Package config loads service configuration from a .env file and the
// environment. The resulting Config is built once at startup and handed to
// each component; nothing reads the environment after that.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendGCS  = "gcs"
	BackendS3   = "s3"
	BackendDisk = "disk"
)

const DefaultBucket = "image-upload-codecoast"

// Config holds all runtime configuration for the service.
type Config struct {
	Port string

	// Google Cloud Storage
	ProjectID string
	KeyFile   string // absolute path, or empty for application default credentials
	Bucket    string

	Backend      string
	EnsureBucket bool

	// S3-compatible storage
	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string
	S3Region     string
	S3UseSSL     bool
	S3PublicBase string

	DiskDir string

	// UniqueKeys inserts a random segment into object keys.
	UniqueKeys bool

	LogLevel  string
	LogFormat string
	Metrics   bool
}

// Load reads configuration from a .env file (if present) and environment
// variables.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: failed to get working directory: %w", err)
	}
	return FromLookup(os.Getenv, wd)
}

// FromLookup builds a Config using getenv for values and wd to resolve a
// relative KEY_FILE.
func FromLookup(getenv func(string) string, wd string) (*Config, error) {
	get := func(key, fallback string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		Port:      get("PORT", "8080"),
		ProjectID: get("PROJECT_ID", ""),
		KeyFile:   ResolveKeyFile(wd, get("KEY_FILE", "")),
		Bucket:    get("BUCKET", DefaultBucket),

		Backend:      get("STORAGE_BACKEND", BackendGCS),
		EnsureBucket: get("ENSURE_BUCKET", "false") == "true",

		S3Endpoint:   get("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:  get("S3_ACCESS_KEY", ""),
		S3SecretKey:  get("S3_SECRET_KEY", ""),
		S3Region:     get("S3_REGION", ""),
		S3UseSSL:     get("S3_USE_SSL", "false") == "true",
		S3PublicBase: get("S3_PUBLIC_BASE", ""),

		DiskDir: get("DISK_DIR", "./uploads"),

		UniqueKeys: get("UNIQUE_KEYS", "false") == "true",

		LogLevel:  get("LOG_LEVEL", "info"),
		LogFormat: get("LOG_FORMAT", "json"),
		Metrics:   get("METRICS", "true") == "true",
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first problem found in c.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("config: invalid PORT %q", c.Port)
	}
	switch c.Backend {
	case BackendGCS, BackendS3:
		if c.Bucket == "" {
			return errors.New("config: BUCKET must not be empty")
		}
	case BackendDisk:
		if c.DiskDir == "" {
			return errors.New("config: DISK_DIR must not be empty")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_BACKEND %q", c.Backend)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return "0.0.0.0:" + c.Port
}

// ResolveKeyFile makes a relative key file path absolute against wd.
func ResolveKeyFile(wd, keyFile string) string {
	if keyFile == "" || filepath.IsAbs(keyFile) {
		return keyFile
	}
	return filepath.Join(wd, keyFile)
}
