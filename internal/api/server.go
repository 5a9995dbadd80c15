package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/procurement/config"
	"example.com/procurement/internal/api/handlers"
	"example.com/procurement/internal/api/middleware"
	"example.com/procurement/internal/metrics"
	"example.com/procurement/internal/services"
)

// Server represents the HTTP server
type Server struct {
	config              config.Config
	router              *gin.Engine
	httpServer          *http.Server
	orderService        *services.OrderService
	receiptService      *services.ReceiptService
	notificationService *services.NotificationService
	metrics             *metrics.Metrics
	healthProbes        map[string]handlers.HealthProbe
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.Config,
	orderService *services.OrderService,
	receiptService *services.ReceiptService,
	notificationService *services.NotificationService,
	metricsCollector *metrics.Metrics,
	healthProbes map[string]handlers.HealthProbe,
) *Server {
	server := &Server{
		config:              cfg,
		orderService:        orderService,
		receiptService:      receiptService,
		notificationService: notificationService,
		metrics:             metricsCollector,
		healthProbes:        healthProbes,
	}

	server.router = server.setupRouter()
	server.httpServer = &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: server.router,
	}

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())

	ordersHandler := handlers.NewOrdersHandler(s.orderService, s.receiptService)
	ordersHandler.RegisterRoutes(router)

	notificationsHandler := handlers.NewNotificationsHandler(s.notificationService, s.config.Scan.StaleAfter)
	notificationsHandler.RegisterRoutes(router)

	metricsHandler := handlers.NewMetricsHandler(s.metrics, s.healthProbes)
	metricsHandler.RegisterRoutes(router)

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
