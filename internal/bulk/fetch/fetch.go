// Package fetch implements the Fetcher (spec §4.1, C1) and the fetch_json
// helper the Crawler is driven by: Fetcher plus DiskCache plus JSON
// decoding plus the DoNotPersist failure policy from spec §7's error
// taxonomy (TransportError, NonSuccessStatus, DecodeError all fold into
// DoNotPersist here).
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bulkfeed/internal/bulk/cache"
	"github.com/ternarybob/bulkfeed/internal/bulk/requestkey"
)

// TransportError wraps a network, TLS, or timeout failure (spec §7).
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error fetching %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Fetcher executes one HTTP request described by a RequestKey. It never
// decodes and never retries — retry policy belongs to the caller, per spec
// §4.1.
type Fetcher struct {
	client *http.Client
	logger arbor.ILogger
}

// New builds a Fetcher around an already-configured client (see
// internal/httpclient.NewInsecureClient for the client spec §4.1 expects).
func New(client *http.Client, logger arbor.ILogger) *Fetcher {
	return &Fetcher{client: client, logger: logger}
}

// Fetch issues the request described by key and returns its status code and
// raw body. A network/TLS/timeout failure returns a *TransportError.
func (f *Fetcher) Fetch(ctx context.Context, key requestkey.Key) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, key.Method, key.URL, bytes.NewReader(key.Body))
	if err != nil {
		return 0, nil, &TransportError{URL: key.URL, Err: err}
	}
	for name, value := range key.Headers {
		req.Header.Set(name, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, &TransportError{URL: key.URL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &TransportError{URL: key.URL, Err: err}
	}
	return resp.StatusCode, body, nil
}

// JSONFunc is the fetch_json collaborator the Crawler (C6) is driven by:
// given a RequestKey, return its decoded JSON payload. Failures never
// surface as errors here — they surface as empty payloads, per spec §4.5's
// "Per-fetch failures propagate as empty payloads."
type JSONFunc func(ctx context.Context, key requestkey.Key) any

// NewJSONFunc composes a Fetcher and a Cache into the fetch_json
// collaborator, implementing spec §4.2's DiskCache semantics plus the
// TransportError/NonSuccessStatus/DecodeError -> DoNotPersist folding from
// spec §7.
func NewJSONFunc(f *Fetcher, c *cache.Cache, ttl func() time.Duration, logger arbor.ILogger) JSONFunc {
	return func(ctx context.Context, key requestkey.Key) any {
		v, err := c.GetOrCompute(key, cache.KindJSON, ttl(), func() (any, error) {
			status, body, ferr := f.Fetch(ctx, key)
			if ferr != nil {
				logger.Debug().Err(ferr).Str("url", key.URL).Msg("fetch failed, not persisting")
				return nil, cache.ErrDoNotPersist
			}
			if status < 200 || status >= 300 {
				logger.Debug().Int("status", status).Str("url", key.URL).Msg("non-success status, not persisting")
				return nil, cache.ErrDoNotPersist
			}
			var decoded any
			if derr := json.Unmarshal(body, &decoded); derr != nil {
				logger.Warn().Err(derr).Str("url", key.URL).Msg("invalid JSON payload, not persisting")
				return nil, cache.ErrDoNotPersist
			}
			return decoded, nil
		})
		if err != nil {
			logger.Warn().Err(err).Str("url", key.URL).Msg("unexpected cache error, treating as empty payload")
			return map[string]any{}
		}
		return v
	}
}
