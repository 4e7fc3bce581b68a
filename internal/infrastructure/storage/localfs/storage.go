package localfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Storage keeps staged uploads and finalized documents on the local
// filesystem under a single base path. Keys are slash-separated and mapped
// to subdirectories.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) Save(_ context.Context, key string, data io.Reader) error {
	path := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path := filepath.Join(s.basePath, filepath.FromSlash(key))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Promote moves a staged object to its final key, computing the SHA-256
// checksum and size on the way. Re-running after a crash is safe: when the
// staged object is gone but the final one exists, the final object's
// checksum and size are returned.
func (s *Storage) Promote(_ context.Context, stagedKey, finalKey string) (string, int64, error) {
	stagedPath := filepath.Join(s.basePath, filepath.FromSlash(stagedKey))
	finalPath := filepath.Join(s.basePath, filepath.FromSlash(finalKey))

	if _, err := os.Stat(stagedPath); os.IsNotExist(err) {
		if _, finalErr := os.Stat(finalPath); finalErr == nil {
			return hashFile(finalPath)
		}
		return "", 0, fmt.Errorf("staged object missing: %s", stagedKey)
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return "", 0, fmt.Errorf("create final dir: %w", err)
	}
	if err := os.Rename(stagedPath, finalPath); err != nil {
		return "", 0, fmt.Errorf("promote object: %w", err)
	}
	return hashFile(finalPath)
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("checksum object: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}
