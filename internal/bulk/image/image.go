// Package image implements the ImageModel (spec §4.6, C7): harvesting image
// URLs from a bulk map and resolving each to a cached base64 preview,
// grounded on the original's AbstractImageModel.image_previews
// (bulk/image_model.py) and select_subset_of_image_url_from_bulk_data
// (bulk/bulk_images.py).
package image

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bulkfeed/internal/bulk/fetch"
	"github.com/ternarybob/bulkfeed/internal/bulk/walk"
	"github.com/ternarybob/bulkfeed/internal/common"
)

// Model selects image URLs from a BulkMap and resolves their previews.
type Model struct {
	skipRegexes   []*regexp.Regexp
	allowedSubstr []string
	logger        arbor.ILogger
}

// New compiles the configured skip-path regexes, logging and discarding any
// that fail to compile rather than failing startup — mirrors the teacher's
// link_extractor.go pattern of compiling once and warning on bad patterns.
func New(cfg common.ImageConfig, logger arbor.ILogger) *Model {
	m := &Model{
		allowedSubstr: cfg.AllowedURLSubstr,
		logger:        logger,
	}
	for _, pattern := range cfg.SkipPathRegexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			logger.Warn().Err(err).Str("pattern", pattern).Msg("failed to compile image skip-path pattern, ignoring it")
			continue
		}
		m.skipRegexes = append(m.skipRegexes, re)
	}
	return m
}

// ImagePreviews implements spec §4.6: for each non-skipped path in bulk,
// harvest every url value that contains an allowed substring, then resolve
// each distinct URL to a base64 preview via preview. Failures surface as
// empty-string entries (spec §4.6's last paragraph).
func (m *Model) ImagePreviews(ctx context.Context, bulk map[string]any, preview fetch.PreviewFunc) map[string]string {
	urls := make(map[string]struct{})
	for path, payload := range bulk {
		if m.skip(path) {
			continue
		}
		for _, v := range walk.CrawlForKey(payload, "url") {
			s, ok := v.(string)
			if !ok || s == "" {
				continue
			}
			if m.allowed(s) {
				urls[s] = struct{}{}
			}
		}
	}

	result := make(map[string]string, len(urls))
	for u := range urls {
		result[u] = preview(ctx, u)
	}
	return result
}

func (m *Model) skip(path string) bool {
	for _, re := range m.skipRegexes {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func (m *Model) allowed(url string) bool {
	for _, substr := range m.allowedSubstr {
		if strings.Contains(url, substr) {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer for debug logging of a Model's configured
// filters.
func (m *Model) String() string {
	return fmt.Sprintf("image.Model{skip=%d allowed_substrings=%v}", len(m.skipRegexes), m.allowedSubstr)
}
