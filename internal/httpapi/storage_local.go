package httpapi

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// localObjectStore keeps attachment blobs on disk for development and test
// environments without a bucket.
type localObjectStore struct {
	rootDir   string
	keyPrefix string
}

func newLocalObjectStore(rootDir, keyPrefix string) (*localObjectStore, error) {
	trimmedRoot := strings.TrimSpace(rootDir)
	if trimmedRoot == "" {
		return nil, errors.New("upload dir is required")
	}
	if err := os.MkdirAll(trimmedRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &localObjectStore{rootDir: trimmedRoot, keyPrefix: keyPrefix}, nil
}

func (s *localObjectStore) Backend() string {
	return "local"
}

func (s *localObjectStore) ObjectKey(userID, fileID, filename string) string {
	return userScopedKey(s.keyPrefix, userID, fileID, filename)
}

func (s *localObjectStore) PutObject(_ context.Context, objectPath, _ string, data []byte) error {
	fullPath, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return fmt.Errorf("write object %q: %w", objectPath, err)
	}
	return nil
}

func (s *localObjectStore) DeleteObject(_ context.Context, objectPath string) error {
	fullPath, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object %q: %w", objectPath, err)
	}
	return nil
}

// resolve rejects keys that would escape the root directory.
func (s *localObjectStore) resolve(objectPath string) (string, error) {
	cleanPath := strings.Trim(strings.TrimSpace(objectPath), "/")
	if cleanPath == "" {
		return "", errors.New("object path is required")
	}
	fullPath := filepath.Join(s.rootDir, filepath.FromSlash(cleanPath))
	root := filepath.Clean(s.rootDir) + string(filepath.Separator)
	if !strings.HasPrefix(fullPath, root) {
		return "", fmt.Errorf("object path %q escapes upload dir", objectPath)
	}
	return fullPath, nil
}
