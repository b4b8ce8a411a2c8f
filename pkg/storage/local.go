package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const metaDir = ".meta"

// LocalStorage implements Storage using the local filesystem. Each run gets a
// directory; metadata lives next to the artifacts under .meta.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local filesystem storage
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if basePath == "" {
		basePath = "./artifacts"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Put writes the artifact to a temporary file and renames it into place, so a
// failed copy never leaves a truncated artifact behind.
func (s *LocalStorage) Put(ctx context.Context, runID uuid.UUID, name string, contentType string, r io.Reader) (*ArtifactInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	runDir := s.runDir(runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	stored := sanitizeFilename(name)
	tmp, err := os.CreateTemp(runDir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	size, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	filePath := filepath.Join(runDir, stored)
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	info := &ArtifactInfo{
		RunID:       runID,
		Name:        name,
		Size:        size,
		ContentType: contentType,
		Path:        filepath.Join(runID.String(), stored),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.saveMetadata(runID, stored, info); err != nil {
		os.Remove(filePath)
		return nil, err
	}
	return info, nil
}

// Get opens an artifact for reading
func (s *LocalStorage) Get(ctx context.Context, runID uuid.UUID, name string) (io.ReadCloser, *ArtifactInfo, error) {
	info, err := s.info(runID, sanitizeFilename(name))
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(s.basePath, info.Path))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, info, nil
}

// List returns the artifacts of a run sorted by name
func (s *LocalStorage) List(ctx context.Context, runID uuid.UUID) ([]*ArtifactInfo, error) {
	entries, err := os.ReadDir(filepath.Join(s.runDir(runID), metaDir))
	if errors.Is(err, fs.ErrNotExist) {
		return []*ArtifactInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}

	infos := make([]*ArtifactInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := s.info(runID, strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Delete removes an artifact and its metadata
func (s *LocalStorage) Delete(ctx context.Context, runID uuid.UUID, name string) error {
	stored := sanitizeFilename(name)
	info, err := s.info(runID, stored)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.basePath, info.Path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	os.Remove(s.metaPath(runID, stored))
	return nil
}

func (s *LocalStorage) runDir(runID uuid.UUID) string {
	return filepath.Join(s.basePath, runID.String())
}

func (s *LocalStorage) metaPath(runID uuid.UUID, stored string) string {
	return filepath.Join(s.runDir(runID), metaDir, stored+".json")
}

func (s *LocalStorage) info(runID uuid.UUID, stored string) (*ArtifactInfo, error) {
	data, err := os.ReadFile(s.metaPath(runID, stored))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, runID, stored)
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var info ArtifactInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &info, nil
}

// saveMetadata saves artifact metadata to a JSON file
func (s *LocalStorage) saveMetadata(runID uuid.UUID, stored string, info *ArtifactInfo) error {
	dir := filepath.Join(s.runDir(runID), metaDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(runID, stored), data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// sanitizeFilename removes unsafe characters from artifact names
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}
