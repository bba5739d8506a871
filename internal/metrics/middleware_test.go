package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_RecordsRouteAndStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewWithRegistry(prometheus.NewRegistry())

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/api/payments/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/payments/abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, float64(1), counterValue(t, m.HTTPRequestsTotal, http.MethodGet, "/api/payments/:id", "200"))
}
