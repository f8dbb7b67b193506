package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Filesystem keeps objects as plain files under baseDir/bucket/key. It is
// meant for offline triage where evidence must stay on the host.
type Filesystem struct {
	baseDir string
}

type FilesystemConfig struct {
	BaseDirectory string `json:"baseDir"`
}

func NewFilesystem(cfg FilesystemConfig) (*Filesystem, error) {
	if cfg.BaseDirectory == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(cfg.BaseDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	abs, err := filepath.Abs(cfg.BaseDirectory)
	if err != nil {
		return nil, err
	}
	return &Filesystem{baseDir: abs}, nil
}

// getPath joins bucket and key under baseDir, refusing keys that climb out.
func (fs *Filesystem) getPath(bucket, key string) (string, error) {
	path := filepath.Join(fs.baseDir, bucket, key)
	if path != fs.baseDir && !strings.HasPrefix(path, fs.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("key escapes base directory: %s", key)
	}
	return path, nil
}

func (fs *Filesystem) PutObject(_ context.Context, in PutObjectInput) error {
	path, err := fs.getPath(in.Bucket, in.Key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory structure: %w", err)
	}

	// write to a sibling then rename so readers never see a partial object
	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(tmp, in.Data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write data: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// GetSignedURL returns a file:// URL; there is nothing to sign locally.
func (fs *Filesystem) GetSignedURL(_ context.Context, in SignedURLInput) (string, error) {
	path, err := fs.getPath(in.Bucket, in.Key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("file does not exist: %w", err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String(), nil
}
