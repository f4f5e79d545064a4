// Package tempfile provides atomic file writes, grounded on the
// WriteFileAtomic helper cometbft's FilePV relies on
// (tendermint/tendermint/libs/tempfile, referenced from
// 1170300606-obrs/privval/file.go). Reimplemented locally rather than
// importing the whole tendermint module for one function.
package tempfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to outFile by first writing to a temp file
// in the same directory and then renaming it into place, so a crash
// mid-write never leaves outFile partially written or truncated.
func WriteFileAtomic(outFile string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(outFile)
	tmp, err := os.CreateTemp(dir, filepath.Base(outFile)+".tmp-*")
	if err != nil {
		return fmt.Errorf("tempfile: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("tempfile: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("tempfile: syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("tempfile: closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("tempfile: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, outFile); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("tempfile: renaming into place: %w", err)
	}
	return nil
}
