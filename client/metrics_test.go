package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/occasio/occasio/storage"
	"github.com/occasio/occasio/storage/memory"
)

func TestMetricsRecordRefreshAndRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	store := memory.NewStore()
	require.NoError(t, store.Set(storage.KeyAccess, "stale"))

	c, err := New(srv.URL, store, WithMetrics(m), WithRefresher(RefreshFunc(func(ctx context.Context) (string, error) {
		return "good", nil
	})))
	require.NoError(t, err)

	require.NoError(t, c.Get(internalTestContext(t), "ping/", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "401")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues(refreshSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries))

	count, err := testutil.GatherAndCount(reg, "occasio_client_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeRequest(http.MethodGet, "200")
		m.observeRefresh(refreshEmpty)
		m.observeRetry()
	})
}
