package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leapstack-labs/galsynth/internal/testutil"
	"github.com/leapstack-labs/galsynth/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.BackoffBase = time.Millisecond
	cfg.Timeout = 2 * time.Second
	return cfg
}

func TestClient_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c := New(fastConfig(), WithLogger(testutil.NewTestLogger(t)))
	resp, err := c.Get(context.Background(), srv.URL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.MaxRetries = 2
	_, err := New(cfg).Get(context.Background(), srv.URL, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTransient)
	assert.True(t, IsStatus(err, http.StatusTooManyRequests))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_NonRetryableStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantKind  error
		wantCalls int32
	}{
		{name: "not found", status: http.StatusNotFound, wantCalls: 1},
		{name: "forbidden", status: http.StatusForbidden, wantKind: core.ErrExternalService, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := New(fastConfig()).Get(context.Background(), srv.URL, nil, nil)
			require.Error(t, err)
			assert.True(t, IsStatus(err, tt.status))
			if tt.wantKind != nil {
				assert.ErrorIs(t, err, tt.wantKind)
			}
			assert.NotErrorIs(t, err, core.ErrTransient)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestClient_SendsQueryHeadersAndForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "galsynth", r.Header.Get("User-Agent"))
		assert.Equal(t, "token abc", r.Header.Get("Authorization"))
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "1", r.URL.Query().Get("a"))
			assert.Equal(t, "x y", r.URL.Query().Get("b"))
		case http.MethodPost:
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "SELECT 1", r.PostForm.Get("QUERY"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(fastConfig())
	h := http.Header{"Authorization": []string{"token abc"}}

	_, err := c.Get(context.Background(), srv.URL+"?a=1", url.Values{"b": {"x y"}}, h)
	require.NoError(t, err)

	_, err = c.PostForm(context.Background(), srv.URL, url.Values{"QUERY": {"SELECT 1"}}, h)
	require.NoError(t, err)
}

func TestClient_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	cfg := fastConfig()
	cfg.MaxRetries = 1
	_, err := New(cfg).Get(context.Background(), addr, nil, nil)
	assert.ErrorIs(t, err, core.ErrTransient)
}
