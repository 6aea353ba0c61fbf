// Package requestkey implements the canonical, hashable descriptor of one
// HTTP request used throughout bulkfeed as a disk-cache key (spec §3, C2).
package requestkey

import (
	"encoding/json"
	"hash/fnv"
	"sort"
)

// Key is an immutable value type describing one HTTP request. Equality and
// hashing are structural: two Keys are equal iff URL, Method, Headers (as a
// set) and Body all compare equal.
type Key struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
}

// New builds a GET Key with the given headers. Headers may be nil.
func New(url string, headers map[string]string) Key {
	return Key{
		URL:     url,
		Method:  "GET",
		Headers: cloneHeaders(headers),
	}
}

// WithJSONBody returns a copy of k with method overridden (defaulting to
// POST if method is empty), body set to the JSON encoding of v, and
// Content-Type: application/json added to the header set — per spec §3,
// "If body is empty and caller supplies a JSON value, the value is encoded
// and Content-Type: application/json is added to headers."
func (k Key) WithJSONBody(method string, v any) (Key, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Key{}, err
	}
	if method == "" {
		method = "POST"
	}
	headers := cloneHeaders(k.Headers)
	headers["Content-Type"] = "application/json"
	return Key{
		URL:     k.URL,
		Method:  method,
		Headers: headers,
		Body:    body,
	}, nil
}

func cloneHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for name, value := range h {
		out[name] = value
	}
	return out
}

// Equal reports whether k and other are structurally equal, comparing
// Headers as an unordered set of (name, value) pairs.
func (k Key) Equal(other Key) bool {
	if k.URL != other.URL || k.Method != other.Method || string(k.Body) != string(other.Body) {
		return false
	}
	if len(k.Headers) != len(other.Headers) {
		return false
	}
	for name, value := range k.Headers {
		if other.Headers[name] != value {
			return false
		}
	}
	return true
}

// Fingerprint returns a stable 64-bit hash of k, used as a cache filename
// root. Two Keys that are Equal always produce the same Fingerprint, and the
// converse holds for any inputs this package constructs (spec §8 invariant).
func (k Key) Fingerprint() uint64 {
	h := fnv.New64a()
	h.Write([]byte(k.Method))
	h.Write([]byte{0})
	h.Write([]byte(k.URL))
	h.Write([]byte{0})

	// Canonicalise headers by sorting on name so iteration order of the
	// original map never affects the hash.
	names := make([]string, 0, len(k.Headers))
	for name := range k.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{'='})
		h.Write([]byte(k.Headers[name]))
		h.Write([]byte{0})
	}

	h.Write(k.Body)
	return h.Sum64()
}
