package walk

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestCrawlForKey_MatchesNestedMapsAndLists(t *testing.T) {
	doc := map[string]any{
		"k": "top",
		"children": []any{
			map[string]any{"k": "child1"},
			map[string]any{"other": map[string]any{"k": "child2"}},
		},
	}
	got := CrawlForKey(doc, "k")
	assert.Len(t, got, 3)
	assert.Contains(t, got, "top")
	assert.Contains(t, got, "child1")
	assert.Contains(t, got, "child2")
}

func TestCrawlForKey_BeginsWithDirectMatch(t *testing.T) {
	got := CrawlForKey(map[string]any{"k": "x"}, "k")
	assert.NotEmpty(t, got)
	assert.Equal(t, "x", got[0])
}

func TestCrawlForKey_NoMatchesReturnsEmpty(t *testing.T) {
	got := CrawlForKey(map[string]any{"other": 1}, "k")
	assert.Empty(t, got)
}

func TestGetPath_EmptyPathReturnsValueUnchanged(t *testing.T) {
	v := map[string]any{"a": 1}
	if diff := cmp.Diff(v, GetPath(v, "")); diff != "" {
		t.Fatalf("GetPath with empty path mismatch (-want +got):\n%s", diff)
	}
}

func TestGetPath_NilValueIsNilForAnyPath(t *testing.T) {
	assert.Nil(t, GetPath(nil, "a.b.c"))
}

func TestGetPath_WalksDottedPath(t *testing.T) {
	v := map[string]any{
		"payload": map[string]any{
			"link": map[string]any{"href": "/x"},
		},
	}
	assert.Equal(t, "/x", GetPath(v, "payload.link.href"))
}

func TestGetPath_MissingSegmentIsNil(t *testing.T) {
	v := map[string]any{"a": map[string]any{"b": 1}}
	assert.Nil(t, GetPath(v, "a.missing.c"))
}
