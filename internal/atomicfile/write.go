// Package atomicfile provides crash-safe file writing using temporary files
// and atomic renames.

package atomicfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// Write atomically writes data to path using a temporary-file-and-rename
// strategy. It is [WriteVerified] without a verification step.
func Write(path string, data []byte, perm os.FileMode) error {
	return WriteVerified(path, data, perm, nil)
}

// WriteVerified writes data to a temp file in the same directory as path,
// calls [os.File.Sync], reads the temp file back, and only renames it over
// path if the bytes on disk match data and verify (when non-nil) accepts
// them. A crash or failed check at any point leaves the previous file at
// path untouched; the temp file is removed via a deferred [os.Remove].
func WriteVerified(path string, data []byte, perm os.FileMode, verify func([]byte) error) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	f, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := f.Name()
	var success bool
	defer func() {
		if !success {
			os.Remove(tmpName)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if verify != nil {
		written, err := os.ReadFile(tmpName)
		if err != nil {
			return fmt.Errorf("read back temp file: %w", err)
		}
		if !bytes.Equal(written, data) {
			return fmt.Errorf("read back temp file: %d bytes on disk, want %d", len(written), len(data))
		}
		if err := verify(written); err != nil {
			return fmt.Errorf("verify temp file: %w", err)
		}
	}

	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	success = true
	return nil
}
