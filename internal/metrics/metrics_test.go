package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesa-digital/api/internal/metrics"
)

func TestHandler_ExposesCollectors(t *testing.T) {
	metrics.OrderCreated()
	metrics.TableTransition("OCCUPIED")
	metrics.RequestStarted()
	metrics.RequestFinished("GET", "/api/tables", 200, 12*time.Millisecond)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rr.Code)

	body, _ := io.ReadAll(rr.Body)
	out := string(body)
	assert.Contains(t, out, "mesa_orders_created_total")
	assert.Contains(t, out, `mesa_tables_transitions_total{status="OCCUPIED"}`)
	assert.Contains(t, out, `mesa_http_requests_total{method="GET",route="/api/tables",status="200"}`)
}
