package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bulkfeed/internal/bulk/cache"
	"github.com/ternarybob/bulkfeed/internal/bulk/requestkey"
)

func TestFetcher_Fetch_ReturnsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := New(srv.Client(), arbor.NewLogger())
	status, body, err := f.Fetch(context.Background(), requestkey.New(srv.URL, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestFetcher_Fetch_TransportErrorOnUnreachableHost(t *testing.T) {
	f := New(&http.Client{Timeout: 50 * time.Millisecond}, arbor.NewLogger())
	_, _, err := f.Fetch(context.Background(), requestkey.New("http://127.0.0.1:1", nil))
	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
}

func TestNewJSONFunc_NonSuccessStatusFoldsToEmptyPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(srv.Client(), arbor.NewLogger())
	c, err := cache.New(t.TempDir(), arbor.NewLogger())
	require.NoError(t, err)

	jsonFunc := NewJSONFunc(f, c, func() time.Duration { return time.Hour }, arbor.NewLogger())
	got := jsonFunc(context.Background(), requestkey.New(srv.URL, nil))
	assert.Equal(t, map[string]any{}, got)
}

func TestNewJSONFunc_InvalidJSONFoldsToEmptyPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	f := New(srv.Client(), arbor.NewLogger())
	c, err := cache.New(t.TempDir(), arbor.NewLogger())
	require.NoError(t, err)

	jsonFunc := NewJSONFunc(f, c, func() time.Duration { return time.Hour }, arbor.NewLogger())
	got := jsonFunc(context.Background(), requestkey.New(srv.URL, nil))
	assert.Equal(t, map[string]any{}, got)
}

func TestNewJSONFunc_SuccessIsCachedAcrossCalls(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`{"n":1}`))
	}))
	defer srv.Close()

	f := New(srv.Client(), arbor.NewLogger())
	c, err := cache.New(t.TempDir(), arbor.NewLogger())
	require.NoError(t, err)

	jsonFunc := NewJSONFunc(f, c, func() time.Duration { return time.Hour }, arbor.NewLogger())
	key := requestkey.New(srv.URL, nil)

	first := jsonFunc(context.Background(), key)
	second := jsonFunc(context.Background(), key)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, hits)
}
