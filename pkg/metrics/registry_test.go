package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/scalarorg/xtransfer/pkg/metrics"
	"github.com/stretchr/testify/require"
)

func TestRegistryCounters(t *testing.T) {
	m := metrics.NewRegistry()
	m.IncSubmission("lock", "sent")
	m.IncSubmission("lock", "sent")
	m.IncSubmission("redeem", "failed")
	m.SetObservedTransfers(4)

	count, err := testutil.GatherAndCount(m.Gatherer(), "xtransfer_submissions_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	expected := `
# HELP xtransfer_observed_transfers Non-terminal transfers polled in the last reconcile round
# TYPE xtransfer_observed_transfers gauge
xtransfer_observed_transfers 4
`
	require.NoError(t, testutil.GatherAndCompare(m.Gatherer(), strings.NewReader(expected), "xtransfer_observed_transfers"))
}

func TestRegistryHandler(t *testing.T) {
	m := metrics.NewRegistry()
	m.IncTransition("Locked")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), `xtransfer_status_transitions_total{status="Locked"} 1`)
}

func TestNilRegistry(t *testing.T) {
	var m *metrics.Registry
	require.NotPanics(t, func() {
		m.IncSubmission("lock", "sent")
		m.IncTransition("Locked")
		m.SetObservedTransfers(1)
	})
}
