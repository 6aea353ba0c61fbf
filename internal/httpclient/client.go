// Package httpclient builds the shared HTTP client used by the Fetcher.
package httpclient

import (
	"crypto/tls"
	"net/http"
	"time"
)

// NewInsecureClient creates an HTTP client with the given timeout that
// ignores TLS verification errors. Per spec §4.1 this is caller-observed
// behaviour, not a security boundary: the sites this pipeline crawls are
// expected to be localhost/internal-only.
func NewInsecureClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // spec §4.1
		},
	}
}
