package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/peterldowns/testy/check"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHealthz_ReportsFirstFailingDependency(t *testing.T) {
	h := Handler(
		HealthCheck{Name: "pg", Check: func(context.Context) error { return nil }},
		HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("down") }},
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	check.Equal(t, http.StatusServiceUnavailable, rec.Code)
	check.Equal(t, "redis unhealthy: down", rec.Body.String())
}

func TestHealthz_OK(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	check.Equal(t, http.StatusOK, rec.Code)
}

func TestNewAuction_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAuction(reg)
	m.SettlementOutcomes.WithLabelValues("succeeded").Inc()

	check.Equal(t, 1.0, testutil.ToFloat64(m.SettlementOutcomes.WithLabelValues("succeeded")))
}
