package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/procurement/config"
	"example.com/procurement/internal/api"
	"example.com/procurement/internal/api/handlers"
	"example.com/procurement/internal/cache"
	"example.com/procurement/internal/database"
	"example.com/procurement/internal/metrics"
	"example.com/procurement/internal/repositories"
	"example.com/procurement/internal/search"
	"example.com/procurement/internal/services"
	"example.com/procurement/internal/tracing"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server for purchase orders, receipt confirmation and notifications`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis, continuing without per-order locks")
		redisCache = nil
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		return err
	}

	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search")
		elasticClient = nil
	}

	metricsCollector := metrics.NewMetrics()

	orderRepo := repositories.NewOrderRepository(db)
	notificationRepo := repositories.NewNotificationRepository(db)

	orderService := services.NewOrderService(orderRepo, tracer)
	receiptService := services.NewReceiptService(orderRepo, redisCache, metricsCollector, tracer)
	notificationService := services.NewNotificationService(
		orderRepo, notificationRepo, elasticClient, metricsCollector, tracer)

	healthProbes := map[string]handlers.HealthProbe{
		"database": func(ctx context.Context) error {
			return database.Ping(ctx, db)
		},
	}

	server := api.NewServer(cfg, orderService, receiptService, notificationService, metricsCollector, healthProbes)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	<-ctx.Done()

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}
