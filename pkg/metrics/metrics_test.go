package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordFetch(t *testing.T) {
	before := testutil.ToFloat64(fetches.WithLabelValues("gas_today", "unreachable"))
	RecordFetch("gas_today", "unreachable", 120*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(fetches.WithLabelValues("gas_today", "unreachable")))
}

func TestRecordSlot(t *testing.T) {
	RecordSlot("electricity_today", 3, time.Unix(1710000000, 0))
	assert.Equal(t, 3.0, testutil.ToFloat64(consecutiveFailures.WithLabelValues("electricity_today")))
	assert.Equal(t, 1710000000.0, testutil.ToFloat64(lastSuccess.WithLabelValues("electricity_today")))

	SetRequestsThisMonth(42)
	assert.Equal(t, 42.0, testutil.ToFloat64(requestsThisMonth))
}

func TestHandler(t *testing.T) {
	SetRequestsThisMonth(7)
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "enever_api_requests_month 7")
}
