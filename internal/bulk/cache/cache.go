// Package cache implements the request-keyed, TTL-gated on-disk memo
// described in spec §4.2 (DiskCache, C3): at most one file per (key, kind),
// atomic write-then-rename, and a DoNotPersist escape hatch for producers
// that fail and should be retried rather than cached empty.
package cache

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bulkfeed/internal/bulk/requestkey"
)

// Kind selects the encoding and filename suffix for a cache entry.
type Kind string

const (
	KindJSON  Kind = "json"
	KindHTML  Kind = "html"
	KindText  Kind = "text"
	KindBytes Kind = "bytes"
)

// ErrDoNotPersist is returned by a Producer to signal that its result must
// not be written to disk — the next caller should invoke the producer again
// rather than reuse a failed result.
var ErrDoNotPersist = errors.New("cache: do not persist")

// Producer computes the value for a cache miss. Returning ErrDoNotPersist
// (optionally wrapped) tells the cache to hand back a zero value for kind
// without creating a file.
type Producer func() (any, error)

// Cache is a directory-backed, request-keyed memo with single-flight
// coalescing of concurrent producers for the same fingerprint. The
// coalescing is a generalisation, to one call per cache key, of the
// process-wide single-flight gate the teacher codebase uses for its
// scheduler (a capacity-1 gate guarding one piece of work at a time).
type Cache struct {
	dir    string
	logger arbor.ILogger

	mu    sync.Mutex
	calls map[uint64]*call
}

type call struct {
	wg  sync.WaitGroup
	val any
	err error
}

// New creates a Cache rooted at dir, creating the directory if necessary.
func New(dir string, logger arbor.ILogger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create dir %s: %w", dir, err)
	}
	return &Cache{
		dir:    dir,
		logger: logger,
		calls:  make(map[uint64]*call),
	}, nil
}

// GetOrCompute implements spec §4.2's get_or_compute contract.
func (c *Cache) GetOrCompute(key requestkey.Key, kind Kind, ttl time.Duration, produce Producer) (any, error) {
	fp := key.Fingerprint()
	path := c.pathFor(fp, kind)

	if v, ok := c.readFresh(path, kind, ttl); ok {
		return v, nil
	}

	return c.singleflight(fp, func() (any, error) {
		// Re-check now that we hold the flight: another caller may have
		// just written a fresh entry while we were waiting for the lock.
		if v, ok := c.readFresh(path, kind, ttl); ok {
			return v, nil
		}

		val, err := produce()
		if errors.Is(err, ErrDoNotPersist) {
			c.logger.Debug().Str("path", path).Msg("producer signalled do-not-persist")
			return zeroValue(kind), nil
		}
		if err != nil {
			return nil, err
		}

		if werr := c.writeAtomic(path, kind, val); werr != nil {
			c.logger.Warn().Err(werr).Str("path", path).Msg("failed to persist cache entry")
		}
		return val, nil
	})
}

func (c *Cache) singleflight(key uint64, fn func() (any, error)) (any, error) {
	c.mu.Lock()
	if existing, ok := c.calls[key]; ok {
		c.mu.Unlock()
		existing.wg.Wait()
		return existing.val, existing.err
	}

	cl := &call{}
	cl.wg.Add(1)
	c.calls[key] = cl
	c.mu.Unlock()

	cl.val, cl.err = fn()
	cl.wg.Done()

	c.mu.Lock()
	delete(c.calls, key)
	c.mu.Unlock()

	return cl.val, cl.err
}

func (c *Cache) pathFor(fp uint64, kind Kind) string {
	return filepath.Join(c.dir, fmt.Sprintf("%016x%s", fp, suffixFor(kind)))
}

func suffixFor(kind Kind) string {
	switch kind {
	case KindJSON:
		return ".json.gz"
	case KindHTML:
		return ".html.gz"
	case KindText:
		return ".txt"
	case KindBytes:
		return ".bin"
	default:
		return ".bin"
	}
}

func zeroValue(kind Kind) any {
	switch kind {
	case KindJSON:
		return map[string]any{}
	case KindHTML, KindText:
		return ""
	case KindBytes:
		return []byte{}
	default:
		return nil
	}
}

// readFresh returns the decoded value at path if the file exists and
// now - mtime <= ttl. A CacheCorruption (unreadable/undecodable file) is
// treated as a miss, per spec §7.
func (c *Cache) readFresh(path string, kind Kind, ttl time.Duration) (any, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > ttl {
		return nil, false
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("cache file unreadable, treating as miss")
		return nil, false
	}

	v, err := decode(kind, raw)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("cache file corrupt, treating as miss")
		return nil, false
	}
	return v, true
}

func decode(kind Kind, raw []byte) (any, error) {
	switch kind {
	case KindJSON:
		plain, err := gunzip(raw)
		if err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal(plain, &v); err != nil {
			return nil, err
		}
		return v, nil
	case KindHTML:
		plain, err := gunzip(raw)
		if err != nil {
			return nil, err
		}
		return string(plain), nil
	case KindText:
		return string(raw), nil
	case KindBytes:
		return raw, nil
	default:
		return nil, fmt.Errorf("cache: unknown kind %q", kind)
	}
}

// writeAtomic writes value to path via a temp-file-then-rename on the same
// filesystem, so readers never observe a partial file (spec §4.2.5).
func (c *Cache) writeAtomic(path string, kind Kind, value any) error {
	raw, err := encode(kind, value)
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("cache: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cache: rename temp file: %w", err)
	}
	return nil
}

func encode(kind Kind, value any) ([]byte, error) {
	switch kind {
	case KindJSON:
		plain, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		return gzipBytes(plain)
	case KindHTML:
		s, _ := value.(string)
		return gzipBytes([]byte(s))
	case KindText:
		s, _ := value.(string)
		return []byte(s), nil
	case KindBytes:
		b, _ := value.([]byte)
		return b, nil
	default:
		return nil, fmt.Errorf("cache: unknown kind %q", kind)
	}
}

func gzipBytes(plain []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(plain); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzip(raw []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
