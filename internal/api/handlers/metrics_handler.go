package handlers

import (
	"context"
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/procurement/internal/metrics"
)

// HealthProbe checks one dependency's liveness.
type HealthProbe func(ctx context.Context) error

// MetricsHandler handles metrics-related HTTP requests.
type MetricsHandler struct {
	metrics *metrics.Metrics
	probes  map[string]HealthProbe
}

// NewMetricsHandler creates a new metrics handler. Probes run on every health
// request so the report reflects current dependency state.
func NewMetricsHandler(metricsCollector *metrics.Metrics, probes map[string]HealthProbe) *MetricsHandler {
	return &MetricsHandler{metrics: metricsCollector, probes: probes}
}

// HandleGetMetrics returns all metrics.
func (h *MetricsHandler) HandleGetMetrics(c *gin.Context) {
	h.metrics.SetGauge("goroutines", int64(runtime.NumGoroutine()))
	c.JSON(http.StatusOK, h.metrics.GetAllMetrics())
}

// HandleGetHealthCheck probes each dependency and returns the combined status.
func (h *MetricsHandler) HandleGetHealthCheck(c *gin.Context) {
	for name, probe := range h.probes {
		err := probe(c.Request.Context())
		if err != nil {
			log.Warn().Err(err).Str("component", name).Msg("Health probe failed")
		}
		h.metrics.SetHealth(name, err == nil)
	}

	healthChecks := h.metrics.GetHealthChecks()

	healthy := true
	for _, status := range healthChecks {
		if !status {
			healthy = false
			break
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":  healthy,
		"details": healthChecks,
	})
}

// RegisterRoutes registers the handler's routes.
func (h *MetricsHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/metrics", h.HandleGetMetrics)
	router.GET("/health", h.HandleGetHealthCheck)
}
