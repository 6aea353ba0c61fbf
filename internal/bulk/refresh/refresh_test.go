package refresh

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bulkfeed/internal/bulk/requestkey"
)

type staticSite struct{ root string }

func (s *staticSite) Name() string                               { return "static" }
func (s *staticSite) Endpoint() string                            { return "https://example.com" }
func (s *staticSite) RootPath() string                            { return s.root }
func (s *staticSite) Headers() map[string]string                  { return nil }
func (s *staticSite) CachePeriod() time.Duration                  { return time.Hour }
func (s *staticSite) ContinueCrawl(_ string, _ int, _ any) bool   { return true }
func (s *staticSite) ExtractCrawlPaths(_ string, _ any) []string  { return nil }

func TestLoop_RefreshesStaleArtifactOnFirstTick(t *testing.T) {
	dir := t.TempDir()
	dataFile := filepath.Join(dir, "static.json.gz")

	// Seed a stale artifact: mtime older than cache_period.
	require.NoError(t, os.WriteFile(dataFile, []byte("stale"), 0o644))
	stale := time.Now().Add(-2 * time.Second)
	require.NoError(t, os.Chtimes(dataFile, stale, stale))

	loop := &Loop{
		Site: &staticSite{root: "/root"},
		FetchJSON: func(_ context.Context, _ requestkey.Key) any {
			return map[string]any{}
		},
		Gate:        NewGate(),
		DataFile:    dataFile,
		ImagesFile:  filepath.Join(dir, "static-images.json.gz"),
		CachePeriod: time.Second,
		RetryPeriod: 50 * time.Millisecond,
		Logger:      arbor.NewLogger(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	loop.Run(ctx)

	info, err := os.Stat(dataFile)
	require.NoError(t, err)
	assert.True(t, info.ModTime().After(stale), "expected refresh to rewrite the stale artifact")
}

func TestLoop_GateContentionSleepsRetryPeriod(t *testing.T) {
	dir := t.TempDir()
	gate := NewGate()
	require.True(t, gate.TryAcquire()) // simulate another site's refresh holding the gate

	var fetchCalls int
	loop := &Loop{
		Site: &staticSite{root: "/root"},
		FetchJSON: func(_ context.Context, _ requestkey.Key) any {
			fetchCalls++
			return map[string]any{}
		},
		Gate:        gate,
		DataFile:    filepath.Join(dir, "static.json.gz"),
		ImagesFile:  filepath.Join(dir, "static-images.json.gz"),
		CachePeriod: time.Millisecond,
		RetryPeriod: 500 * time.Millisecond,
		Logger:      arbor.NewLogger(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	loop.Run(ctx)

	assert.Zero(t, fetchCalls, "gate held by another holder must prevent this loop from crawling")
}

func TestGate_TryAcquireBlocksSecondHolder(t *testing.T) {
	g := NewGate()
	assert.True(t, g.TryAcquire())
	assert.False(t, g.TryAcquire())

	g.Release()
	assert.True(t, g.TryAcquire())
}

func TestGate_ReleaseOnUnheldGateIsNoOp(t *testing.T) {
	g := NewGate()
	g.Release()
	assert.True(t, g.TryAcquire())
}

func TestFileAge_MissingFileIsEffectivelyInfinite(t *testing.T) {
	age := fileAge("/nonexistent/path/does-not-exist.json.gz")
	assert.Greater(t, age, 365*24*time.Hour)
}

func TestSleep_ReturnsTrueWhenTimerElapses(t *testing.T) {
	assert.True(t, sleep(context.Background(), 5*time.Millisecond))
}

func TestSleep_ZeroDurationDoesNotBlock(t *testing.T) {
	done := make(chan bool, 1)
	go func() { done <- sleep(context.Background(), 0) }()
	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("sleep(0) blocked")
	}
}
