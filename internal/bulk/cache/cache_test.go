package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bulkfeed/internal/bulk/requestkey"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), arbor.NewLogger())
	require.NoError(t, err)
	return c
}

func TestGetOrCompute_SecondCallDoesNotInvokeProducer(t *testing.T) {
	c := newTestCache(t)
	key := requestkey.New("https://example.com/a", nil)

	var calls int32
	produce := func() (any, error) {
		atomic.AddInt32(&calls, 1)
		return map[string]any{"n": float64(1)}, nil
	}

	v1, err := c.GetOrCompute(key, KindJSON, time.Hour, produce)
	require.NoError(t, err)
	v2, err := c.GetOrCompute(key, KindJSON, time.Hour, produce)
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestGetOrCompute_DoNotPersistIsNotCached(t *testing.T) {
	c := newTestCache(t)
	key := requestkey.New("https://example.com/b", nil)

	var calls int32
	produce := func() (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, ErrDoNotPersist
	}

	_, err := c.GetOrCompute(key, KindJSON, time.Hour, produce)
	require.NoError(t, err)
	_, err = c.GetOrCompute(key, KindJSON, time.Hour, produce)
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "producer must run again after DoNotPersist")
}

func TestGetOrCompute_ExpiredTTLRecomputes(t *testing.T) {
	c := newTestCache(t)
	key := requestkey.New("https://example.com/c", nil)

	var calls int32
	produce := func() (any, error) {
		atomic.AddInt32(&calls, 1)
		return "fresh", nil
	}

	_, err := c.GetOrCompute(key, KindText, time.Millisecond, produce)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = c.GetOrCompute(key, KindText, time.Millisecond, produce)
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestGetOrCompute_ConcurrentCallsCoalesce(t *testing.T) {
	c := newTestCache(t)
	key := requestkey.New("https://example.com/d", nil)

	var calls int32
	release := make(chan struct{})
	produce := func() (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "value", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.GetOrCompute(key, KindText, time.Hour, produce)
		}()
	}

	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestGetOrCompute_ProducerErrorPropagates(t *testing.T) {
	c := newTestCache(t)
	key := requestkey.New("https://example.com/e", nil)

	wantErr := errors.New("boom")
	_, err := c.GetOrCompute(key, KindJSON, time.Hour, func() (any, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}
