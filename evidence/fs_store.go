package evidence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore keeps blobs under a local directory, served statically at publicBase.
type FileStore struct {
	baseDir    string
	publicBase string
	now        func() time.Time
}

func NewFileStore(baseDir, publicBase string) (*FileStore, error) {
	//nolint:gosec // G301: uploads are served publicly
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure upload dir: %w", err)
	}
	return &FileStore{baseDir: baseDir, publicBase: publicBase, now: time.Now}, nil
}

func (s *FileStore) Upload(ctx context.Context, ownerID string, data []byte, ext string) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref, err := NewKey(ownerID, ext, s.now())
	if err != nil {
		return "", err
	}
	path, err := s.path(ref)
	if err != nil {
		return "", err
	}
	//nolint:gosec // G301
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create owner dir: %w", err)
	}

	// Write to temp, then rename
	tmp := path + ".tmp"
	//nolint:gosec // G306: blobs are public
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to commit blob: %w", err)
	}
	return ref, nil
}

func (s *FileStore) PublicURL(ref Ref) string { return joinURL(s.publicBase, ref) }

func (s *FileStore) Delete(ctx context.Context, ref Ref) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func (s *FileStore) Exists(ctx context.Context, ref Ref) (bool, error) {
	path, err := s.path(ref)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// path resolves ref inside baseDir, refusing keys that escape it.
func (s *FileStore) path(ref Ref) (string, error) {
	p := filepath.Join(s.baseDir, filepath.FromSlash(string(ref)))
	rel, err := filepath.Rel(s.baseDir, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid object key: %s", ref)
	}
	return p, nil
}
