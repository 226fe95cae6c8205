package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSaleDefaultsReason(t *testing.T) {
	before := testutil.ToFloat64(salesCommitted.WithLabelValues("100", "paid"))
	RecordSale(100, "", 5*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(salesCommitted.WithLabelValues("100", "paid")))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/api/v1/denominations/:value/tickets", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(Handler()))

	counter := httpRequests.WithLabelValues(http.MethodGet, "/api/v1/denominations/:value/tickets", "200")
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/denominations/200/tickets", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "raffle_http_requests_total")
}
