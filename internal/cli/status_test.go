package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/fleetwatch/internal/errors"
)

const snapshotBody = `{"cycle_id":"abc","timestamp":"2026-03-01T12:00:00Z","duration_ns":1000000,"hosts":{"web1":{"host":"web1","timestamp":"2026-03-01T12:00:00Z","duration_ns":500,"metrics":{"cpu":{"kind":"cpu","busy_percent":7,"idle_percent":93,"user_percent":5,"system_percent":2}},"failures":{}}}}`

func TestFetchSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/metrics", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(snapshotBody))
	}))
	defer srv.Close()

	snap, err := fetchSnapshot(context.Background(), srv.URL+"/", time.Second, 0)
	require.NoError(t, err)
	assert.Equal(t, "abc", snap.CycleID)
	require.Contains(t, snap.Hosts, "web1")
	assert.Contains(t, snap.Hosts["web1"].Metrics, "cpu")
}

func TestFetchSnapshot_NotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"no snapshot yet"}`))
	}))
	defer srv.Close()

	_, err := fetchSnapshot(context.Background(), srv.URL, time.Second, 0)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrAggregation))
}

func TestFetchSnapshot_WaitsForFirstSnapshot(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(snapshotBody))
	}))
	defer srv.Close()

	snap, err := fetchSnapshot(context.Background(), srv.URL, time.Second, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "abc", snap.CycleID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchSnapshot_Errors(t *testing.T) {
	t.Run("server error is not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := fetchSnapshot(context.Background(), srv.URL, time.Second, 10*time.Second)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "500")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("bad json", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{not json"))
		}))
		defer srv.Close()

		_, err := fetchSnapshot(context.Background(), srv.URL, time.Second, 0)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrParse))
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := fetchSnapshot(context.Background(), url, time.Second, 0)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrConnection))
	})
}
