package interop

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckReady(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "no content", status: http.StatusNoContent},
		{name: "client error", status: http.StatusNotFound, wantErr: true},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/status", r.URL.Path)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := CheckReady(context.Background(), srv.Client(), srv.URL+"/", DefaultReadyOptions())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrServerNotReady)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCheckReady_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := CheckReady(context.Background(), nil, url, ReadyOptions{Timeout: time.Second})
	require.ErrorIs(t, err, ErrServerNotReady)
	assert.Contains(t, err.Error(), url)
	assert.Contains(t, err.Error(), "Start it with: "+DefaultStartCommand)
}

func TestCheckReady_Retries(t *testing.T) {
	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if probes.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	opts := ReadyOptions{Timeout: time.Second, Retries: 5, Backoff: 5 * time.Millisecond}
	require.NoError(t, CheckReady(context.Background(), srv.Client(), srv.URL, opts))
	assert.Equal(t, int32(3), probes.Load())
}

func TestCheckReady_RetriesExhausted(t *testing.T) {
	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	opts := ReadyOptions{Timeout: time.Second, Retries: 2, Backoff: 5 * time.Millisecond, StartCommand: "make peer"}
	err := CheckReady(context.Background(), srv.Client(), srv.URL, opts)
	require.ErrorIs(t, err, ErrServerNotReady)
	assert.Contains(t, err.Error(), "returned 503")
	assert.Contains(t, err.Error(), "Start it with: make peer")
	assert.Equal(t, int32(3), probes.Load())
}

func TestResetServer_IsBestEffort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	assert.NotPanics(t, func() {
		ResetServer(context.Background(), srv.Client(), srv.URL, zerolog.New(&buf))
	})
	assert.Contains(t, buf.String(), "server reset failed")
}
