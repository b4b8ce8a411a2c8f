// Package storage keeps the artifacts of a synthesis run (datasets, provenance
// reports, workbooks) with local and S3 implementations.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Content types of the artifacts a run emits.
const (
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeJSON = "application/json"
)

// ErrNotFound is returned when a run has no artifact with the requested name.
var ErrNotFound = errors.New("artifact not found")

// ArtifactInfo contains metadata about a stored artifact
type ArtifactInfo struct {
	RunID       uuid.UUID `json:"run_id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Path        string    `json:"path"` // Internal storage path
	CreatedAt   time.Time `json:"created_at"`
}

// Storage defines the artifact operations. Artifacts are grouped by run ID and
// addressed by name; putting the same name twice replaces the artifact.
type Storage interface {
	// Put stores an artifact and returns its metadata
	Put(ctx context.Context, runID uuid.UUID, name string, contentType string, r io.Reader) (*ArtifactInfo, error)

	// Get opens an artifact for reading
	Get(ctx context.Context, runID uuid.UUID, name string) (io.ReadCloser, *ArtifactInfo, error)

	// List returns the artifacts of a run sorted by name
	List(ctx context.Context, runID uuid.UUID) ([]*ArtifactInfo, error)

	// Delete removes an artifact
	Delete(ctx context.Context, runID uuid.UUID, name string) error
}

// StorageType identifies the storage backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

// Config holds storage configuration
type Config struct {
	Type StorageType `yaml:"type"`

	// Local storage config
	LocalPath string `yaml:"local_path"`

	// S3 storage config
	S3Bucket          string `yaml:"s3_bucket"`
	S3Prefix          string `yaml:"s3_prefix"`
	S3Region          string `yaml:"s3_region"`
	S3AccessKeyID     string `yaml:"s3_access_key_id"`
	S3SecretAccessKey string `yaml:"s3_secret_access_key"`
	S3Endpoint        string `yaml:"s3_endpoint"` // For S3-compatible services (MinIO, etc.)
}

// New creates a new Storage implementation based on configuration
func New(ctx context.Context, cfg *Config) (Storage, error) {
	switch cfg.Type {
	case StorageTypeS3:
		return NewS3Storage(ctx, cfg)
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
