// Package fsutil holds small-file helpers shared by the marker and plan
// review stores.
package fsutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RenameRetries bounds rename retries on Windows, where another process
// holding the target open makes the rename fail transiently.
const RenameRetries = 3

// WriteFileAtomic replaces path with data so that readers observe either the
// old or the new content, never a partial write. The parent directory is
// created when missing.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	return RenameWithRetry(tmpName, path)
}

// WriteJSONAtomic writes v as indented JSON through WriteFileAtomic.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return WriteFileAtomic(path, append(data, '\n'), 0o644)
}

// RenameWithRetry renames oldPath to newPath, retrying with exponential
// backoff on Windows only. Elsewhere a failed rename is permanent.
func RenameWithRetry(oldPath, newPath string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := os.Rename(oldPath, newPath)
		if err != nil && runtime.GOOS != "windows" {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithMaxRetries(b, RenameRetries))
	if err != nil {
		return fmt.Errorf("rename failed after %d attempt(s): %w", attempts, err)
	}
	return nil
}
