// Package crawl implements the bounded BFS orchestrator (spec §4.5, C6),
// transcribed from the original's AbstractSiteModel.crawl (bulk/site_model.py)
// pseudocode the same way spec §4.5 derives it.
package crawl

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bulkfeed/internal/bulk/fetch"
	"github.com/ternarybob/bulkfeed/internal/bulk/requestkey"
	"github.com/ternarybob/bulkfeed/internal/bulk/site"
)

// Crawl performs the bounded BFS described in spec §4.5 and returns the
// resulting BulkMap. fetchJSON never errors (spec §4.1/§4.2 fold failures
// into an empty payload); PolicyError (a panicking ExtractCrawlPaths) is
// caught here and treated the same way — log, skip that node's children,
// keep crawling, per spec §7.
func Crawl(ctx context.Context, s site.Model, fetchJSON fetch.JSONFunc, logger arbor.ILogger) map[string]any {
	frontier := map[string]int{s.RootPath(): 0}
	bulk := make(map[string]any)

	for len(frontier) > 0 {
		path, depth := popAny(frontier)
		delete(frontier, path)

		key := requestkey.New(s.Endpoint()+path, s.Headers())
		payload := fetchJSON(ctx, key)
		bulk[path] = payload

		if !s.ContinueCrawl(path, depth, payload) {
			continue
		}

		for _, child := range safeExtract(s, path, payload, logger) {
			if _, already := bulk[child]; already {
				continue
			}
			if _, queued := frontier[child]; !queued {
				// Depth is fixed at first insertion and is never lowered on
				// later discovery — spec §4.5/§9's documented quirk.
				frontier[child] = depth + 1
			}
		}

		for k := range frontier {
			if _, already := bulk[k]; already {
				delete(frontier, k)
			}
		}
	}

	return bulk
}

// popAny returns an arbitrary (path, depth) pair from frontier. BFS order is
// unspecified by spec §4.5 — Go map iteration order already satisfies that.
func popAny(frontier map[string]int) (string, int) {
	for path, depth := range frontier {
		return path, depth
	}
	return "", 0
}

func safeExtract(s site.Model, path string, payload any, logger arbor.ILogger) (children []string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn().
				Str("path", path).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("site policy failed extracting crawl paths, skipping this node's children")
			children = nil
		}
	}()
	return s.ExtractCrawlPaths(path, payload)
}
