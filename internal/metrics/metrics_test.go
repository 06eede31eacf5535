package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveImport(t *testing.T) {
	before := testutil.ToFloat64(eventsProcessed.WithLabelValues("sync", "updated"))
	ObserveImport("sync", 3, 1)
	assert.Equal(t, before+3, testutil.ToFloat64(eventsProcessed.WithLabelValues("sync", "updated")))
}

func TestHandlerExposesCounters(t *testing.T) {
	ObserveUnauthorized("locked")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/prometheus", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tracker_unauthorized_responses_total{reason="locked"}`)
}
