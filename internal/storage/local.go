// Package storage persists uploaded attachments on the local filesystem.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type LocalStore struct {
	baseDir string
	log     *zap.Logger
}

func NewLocalStore(baseDir string, log *zap.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{baseDir: baseDir, log: log}, nil
}

// Save writes the reader's contents under a generated name and returns
// the stored path relative to the base directory.
func (s *LocalStore) Save(originalName string, r io.Reader) (string, int64, error) {
	ext := filepath.Ext(originalName)
	name := uuid.New().String() + sanitizeExt(ext)

	f, err := os.Create(filepath.Join(s.baseDir, name))
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		_ = os.Remove(f.Name())
		return "", 0, err
	}

	s.log.Debug("file stored", zap.String("name", name), zap.Int64("size", n))
	return name, n, nil
}

// Open returns a reader for a previously stored file.
func (s *LocalStore) Open(storedName string) (io.ReadCloser, error) {
	// Reject anything that could escape the base directory.
	if storedName != filepath.Base(storedName) {
		return nil, os.ErrNotExist
	}
	return os.Open(filepath.Join(s.baseDir, storedName))
}

func sanitizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}
