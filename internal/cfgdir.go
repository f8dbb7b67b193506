package internal

import (
	"fmt"
	"os"
	"path/filepath"
)

// StateDirEnv overrides the directory returned by StateDir.
const StateDirEnv = "UTMPSCAN_STATE_DIR"

// StateDir returns the directory holding high-watermark files, creating it
// if needed. It prefers $UTMPSCAN_STATE_DIR, then the user cache directory,
// then the system temp directory.
func StateDir() (string, error) {
	dir := os.Getenv(StateDirEnv)
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		dir = filepath.Join(base, "utmpscan")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("state dir: %w", err)
	}
	return dir, nil
}
