package crawl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bulkfeed/internal/bulk/requestkey"
)

// fakeSite is a minimal site.Model driven entirely by a path->payload table,
// used to exercise the BFS orchestrator against the seed scenarios from
// spec §8 without any real HTTP or site policy.
type fakeSite struct {
	root     string
	payloads map[string]any
	extract  func(path string, payload any) []string
}

func (s *fakeSite) Name() string                 { return "fake" }
func (s *fakeSite) Endpoint() string              { return "https://example.com" }
func (s *fakeSite) RootPath() string              { return s.root }
func (s *fakeSite) Headers() map[string]string    { return nil }
func (s *fakeSite) CachePeriod() time.Duration    { return time.Hour }
func (s *fakeSite) ContinueCrawl(_ string, _ int, _ any) bool { return true }
func (s *fakeSite) ExtractCrawlPaths(path string, payload any) []string {
	if s.extract != nil {
		return s.extract(path, payload)
	}
	return nil
}

func fakeFetchJSON(payloads map[string]any) func(ctx context.Context, key requestkey.Key) any {
	return func(_ context.Context, key requestkey.Key) any {
		path := key.URL[len("https://example.com"):]
		if v, ok := payloads[path]; ok {
			return v
		}
		return map[string]any{}
	}
}

func TestCrawl_EmptySite(t *testing.T) {
	s := &fakeSite{
		root:     "/root",
		payloads: map[string]any{"/root": []any{}},
	}
	bulk := Crawl(context.Background(), s, fakeFetchJSON(s.payloads), arbor.NewLogger())
	assert.Equal(t, map[string]any{"/root": []any{}}, bulk)
}

func TestCrawl_FeaturesSlugFanOut(t *testing.T) {
	s := &fakeSite{
		root: "/features",
		payloads: map[string]any{
			"/features":   []any{map[string]any{"slug": "a"}, map[string]any{"slug": "b"}},
			"/features/a": map[string]any{},
			"/features/b": map[string]any{},
		},
		extract: func(path string, payload any) []string {
			list, ok := payload.([]any)
			if !ok {
				return nil
			}
			var children []string
			for _, item := range list {
				obj := item.(map[string]any)
				children = append(children, path+"/"+obj["slug"].(string))
			}
			return children
		},
	}
	bulk := Crawl(context.Background(), s, fakeFetchJSON(s.payloads), arbor.NewLogger())
	assert.ElementsMatch(t, []string{"/features", "/features/a", "/features/b"}, keys(bulk))
}

func TestCrawl_SingleLinkFanOut(t *testing.T) {
	s := &fakeSite{
		root: "/root",
		payloads: map[string]any{
			"/root": map[string]any{"href": "/x"},
			"/x":    map[string]any{},
		},
		extract: func(_ string, payload any) []string {
			obj, ok := payload.(map[string]any)
			if !ok {
				return nil
			}
			if href, ok := obj["href"].(string); ok {
				return []string{href}
			}
			return nil
		},
	}
	bulk := Crawl(context.Background(), s, fakeFetchJSON(s.payloads), arbor.NewLogger())
	assert.ElementsMatch(t, []string{"/root", "/x"}, keys(bulk))
}

func TestCrawl_CycleTerminatesWithoutInfiniteLoop(t *testing.T) {
	s := &fakeSite{
		root: "/root",
		payloads: map[string]any{
			"/root": map[string]any{"href": "/root"},
		},
		extract: func(_ string, payload any) []string {
			obj := payload.(map[string]any)
			if href, ok := obj["href"].(string); ok {
				return []string{href}
			}
			return nil
		},
	}
	done := make(chan map[string]any, 1)
	go func() {
		done <- Crawl(context.Background(), s, fakeFetchJSON(s.payloads), arbor.NewLogger())
	}()
	select {
	case bulk := <-done:
		assert.Equal(t, []string{"/root"}, keys(bulk))
	case <-time.After(2 * time.Second):
		t.Fatal("crawl did not terminate on a self-referencing cycle")
	}
}

func TestCrawl_FetchFailureMidCrawlYieldsEmptyPayloadAndFinishes(t *testing.T) {
	s := &fakeSite{
		root: "/root",
		payloads: map[string]any{
			"/root": map[string]any{"href": "/a"},
			// "/a" deliberately absent: fakeFetchJSON returns {} for it, as if
			// the underlying fetch had failed and folded to DoNotPersist.
		},
		extract: func(_ string, payload any) []string {
			obj, ok := payload.(map[string]any)
			if !ok {
				return nil
			}
			if href, ok := obj["href"].(string); ok {
				return []string{href}
			}
			return nil
		},
	}
	bulk := Crawl(context.Background(), s, fakeFetchJSON(s.payloads), arbor.NewLogger())
	assert.Equal(t, map[string]any{}, bulk["/a"])
	assert.Contains(t, bulk, "/root")
}

func TestCrawl_PolicyErrorSkipsOnlyThatNodesChildren(t *testing.T) {
	s := &fakeSite{
		root: "/root",
		payloads: map[string]any{
			"/root": map[string]any{"href": "/a"},
			"/a":    map[string]any{"href": "/b"},
		},
		extract: func(path string, payload any) []string {
			if path == "/a" {
				panic("malformed payload")
			}
			obj := payload.(map[string]any)
			if href, ok := obj["href"].(string); ok {
				return []string{href}
			}
			return nil
		},
	}
	bulk := Crawl(context.Background(), s, fakeFetchJSON(s.payloads), arbor.NewLogger())
	assert.Contains(t, bulk, "/root")
	assert.Contains(t, bulk, "/a")
	assert.NotContains(t, bulk, "/b")
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
