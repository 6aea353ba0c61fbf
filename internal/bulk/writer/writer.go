// Package writer implements atomic artifact rotation and writing (spec
// §4.7, C8): readers always observe either the previous complete artifact
// or the new complete one, never a partial file.
package writer

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

const rotationTimeFormat = "2006-01-02-15-04"

// WriteAtomic implements spec §4.7's write_atomic contract: if path already
// exists it is first rotated to a timestamped name using its own mtime,
// then value is gzip-JSON-encoded to path.tmp and renamed onto path.
func WriteAtomic(path string, value any) error {
	if info, err := os.Stat(path); err == nil {
		rotated := rotatedName(path, info.ModTime())
		if err := os.Rename(path, rotated); err != nil {
			return fmt.Errorf("writer: rotate %s: %w", path, err)
		}
	}

	plain, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("writer: encode json: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(plain); err != nil {
		return fmt.Errorf("writer: gzip write: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("writer: gzip close: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writer: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writer: rename temp file: %w", err)
	}
	return nil
}

// rotatedName renames <base>.json.gz to <base>-YYYY-MM-DD-HH-MM.json.gz
// using mtime, per spec §4.7.
func rotatedName(path string, mtime time.Time) string {
	const ext = ".json.gz"
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s-%s%s", base, mtime.Format(rotationTimeFormat), ext)
}
