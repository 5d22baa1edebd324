// Package writeback replaces files on disk atomically. New content is written
// to a temp file in the same directory and renamed over the original, so a
// reader sees either the old file or the new one, never a partial write.
package writeback

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Stream produces the new content of path through fill and renames it into
// place once fill and the close succeed. An existing file keeps its mode; a
// new one gets perm. On any error path is left untouched.
func Stream(path string, perm os.FileMode, fill func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName) // best-effort cleanup
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("close temp: %w", err)
	}

	mode := perm
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode()
	}
	_ = os.Chmod(tmpName, mode) // best-effort permission sync

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("rename temp to %s: %w", path, err)
	}
	return nil
}

// WriteFile atomically sets the content of path.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	return Stream(path, perm, func(w io.Writer) error {
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write temp: %w", err)
		}
		return nil
	})
}

// Splice replaces the byte range [start, end) of the file at path with
// content.
func Splice(path string, start, end int, content []byte) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read source %s: %w", path, err)
	}
	if start < 0 || start > end || end > len(src) {
		return fmt.Errorf("invalid byte range [%d:%d] for file of length %d", start, end, len(src))
	}

	// result = prefix + content + suffix
	result := make([]byte, 0, start+len(content)+len(src)-end)
	result = append(result, src[:start]...)
	result = append(result, content...)
	result = append(result, src[end:]...)

	return WriteFile(path, result, 0o644)
}
