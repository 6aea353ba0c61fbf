// Package serve implements the thin HTTP static-artifact collaborator spec
// §6 specifies "only as contract": artifact requests are served straight
// off disk with no templating or buffering, grounded on the original's
// sanic static_gzip handler (sanic_app/static_gzip.py) and the
// Cache-Control/Age header pairing from bulk/bulk_data.py.
package serve

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bulkfeed/internal/bulk/requestkey"
)

// ArtifactHandler serves gzip-compressed JSON artifacts out of root, per
// spec §6's HTTP serving surface contract.
type ArtifactHandler struct {
	Root        string
	CachePeriod time.Duration
	Logger      arbor.ILogger
}

// ServeHTTP implements GET/HEAD for "/<path>.json": the on-disk
// "<path>.json.gz" is returned verbatim (already gzip-encoded) when the
// client advertises gzip support, never re-encoded here.
func (h *ArtifactHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		http.Error(w, "gzip encoding required", http.StatusBadRequest)
		return
	}

	reqPath := strings.TrimSuffix(r.URL.Path, ".json")
	gzPath := filepath.Join(h.Root, filepath.Clean(reqPath)+".json.gz")

	info, err := os.Stat(gzPath)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Age", strconv.Itoa(int(time.Since(info.ModTime()).Seconds())))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "max-age="+strconv.Itoa(int(h.CachePeriod.Seconds())))

	if r.Method == http.MethodHead {
		return
	}

	f, err := os.Open(gzPath)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	if _, err := copyBuffered(w, f); err != nil {
		h.Logger.Warn().Err(err).Str("path", gzPath).Msg("failed writing artifact response body")
	}
}

func copyBuffered(w http.ResponseWriter, f *os.File) (int64, error) {
	buf := make([]byte, 64*1024)
	var total int64
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return total, nil
			}
			return total, rerr
		}
	}
}

// FetchRedirectHandler implements spec §6's "/fetch?url=&method=&header.X="
// endpoint: it computes the RequestKey fingerprint for the query and
// redirects to the corresponding static cache path, letting the caller
// fetch the pre-cached body through the normal artifact route.
type FetchRedirectHandler struct {
	CacheRoot string
}

func (h *FetchRedirectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	url := q.Get("url")
	if url == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}

	headers := make(map[string]string)
	for name, values := range q {
		const prefix = "header."
		if strings.HasPrefix(name, prefix) && len(values) > 0 {
			headers[strings.TrimPrefix(name, prefix)] = values[0]
		}
	}

	method := q.Get("method")
	key := requestkey.New(url, headers)
	if method != "" {
		key.Method = strings.ToUpper(method)
	}

	cachePath := filepath.Join(h.CacheRoot, fmt.Sprintf("%016x.json", key.Fingerprint()))
	http.Redirect(w, r, "/"+strings.TrimPrefix(cachePath, "/"), http.StatusFound)
}
