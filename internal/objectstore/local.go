package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LocalBackend keeps objects as files below a base directory.
type LocalBackend struct {
	basePath string
	logger   zerolog.Logger

	// dirs already created, so concurrent writers in the same partition do
	// not all hit MkdirAll.
	dirCache map[string]struct{}
	dirMu    sync.RWMutex
}

// NewLocalBackend returns a backend rooted at basePath.
func NewLocalBackend(basePath string, logger zerolog.Logger) (*LocalBackend, error) {
	if basePath == "" {
		return nil, errors.New("local base path is required")
	}
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	return &LocalBackend{
		basePath: absPath,
		logger:   logger.With().Str("component", "local-objectstore").Logger(),
		dirCache: make(map[string]struct{}),
	}, nil
}

// Ensure creates the base directory.
func (b *LocalBackend) Ensure(ctx context.Context) error {
	if err := os.MkdirAll(b.basePath, 0700); err != nil {
		return fmt.Errorf("failed to create base path: %w", err)
	}
	return nil
}

// Create writes a temp file in the target directory and hard-links it into
// place. The link fails if the target exists, so an object is never replaced.
func (b *LocalBackend) Create(ctx context.Context, path string, data []byte) error {
	fullPath, err := b.resolve(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(fullPath)
	if err := b.ensureDir(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tablebench-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", closeErr)
	}

	defer os.Remove(tmpPath)
	if err := os.Link(tmpPath, fullPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s: %w", path, ErrExists)
		}
		return fmt.Errorf("failed to link temp file: %w", err)
	}
	return nil
}

func (b *LocalBackend) ensureDir(dir string) error {
	b.dirMu.RLock()
	_, ok := b.dirCache[dir]
	b.dirMu.RUnlock()
	if ok {
		return nil
	}

	b.dirMu.Lock()
	defer b.dirMu.Unlock()
	if _, ok := b.dirCache[dir]; ok {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	b.dirCache[dir] = struct{}{}
	return nil
}

// Get reads the file at path.
func (b *LocalBackend) Get(ctx context.Context, path string) ([]byte, error) {
	fullPath, err := b.resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// Delete removes the file at path.
func (b *LocalBackend) Delete(ctx context.Context, path string) error {
	fullPath, err := b.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (b *LocalBackend) Close() error {
	return nil
}

func (b *LocalBackend) Type() string {
	return "local"
}

// BasePath returns the absolute root directory.
func (b *LocalBackend) BasePath() string {
	return b.basePath
}

// resolve maps path below basePath and rejects anything that escapes it.
func (b *LocalBackend) resolve(path string) (string, error) {
	clean := strings.ReplaceAll(strings.TrimPrefix(path, "/"), "\x00", "")
	full := filepath.Join(b.basePath, filepath.FromSlash(clean))

	rel, err := filepath.Rel(b.basePath, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path %q: escapes base directory", path)
	}
	return full, nil
}
