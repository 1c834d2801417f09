package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Verification("valid")
	m.Refresh("success")
	m.LegacySyncFailed()
	m.Revocation("failed")
	assert.Nil(t, m.Registry())
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Verification("expired")
	m.Verification("expired")
	m.Refresh("success")
	m.LegacySyncFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.verifications.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.legacySyncFailure))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "coachconnect_session_verifications_total"))
}
