package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/procurement/config"
	"example.com/procurement/internal/cache"
	"example.com/procurement/internal/database"
	"example.com/procurement/internal/messaging"
	"example.com/procurement/internal/metrics"
	"example.com/procurement/internal/repositories"
	"example.com/procurement/internal/search"
	"example.com/procurement/internal/services"
	"example.com/procurement/internal/tracing"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker: the scheduled pending-order scan and the delivery event queue consumer`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
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

	g, ctx := errgroup.WithContext(ctx)

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

	receiptService := services.NewReceiptService(orderRepo, redisCache, metricsCollector, tracer)
	notificationService := services.NewNotificationService(
		orderRepo, notificationRepo, elasticClient, metricsCollector, tracer)

	// Delivery events arriving over the queue go through the same reconciler
	// as the HTTP API.
	if cfg.Azure.QueueConnStr != "" {
		azureBus, err := messaging.NewAzureServiceBus(cfg.Azure)
		if err != nil {
			return err
		}
		g.Go(func() error {
			log.Info().Str("queue", cfg.Azure.QueueName).Msg("Starting delivery event consumer")
			return azureBus.ProcessMessages(ctx, receiptService.ProcessDeliveryMessage)
		})
	} else {
		log.Warn().Msg("No Service Bus connection string configured, queue consumer disabled")
	}

	g.Go(func() error {
		log.Info().
			Dur("interval", cfg.Scan.Interval).
			Dur("stale_after", cfg.Scan.StaleAfter).
			Msg("Starting scheduled pending-order scan")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Scan.Interval),
			gocron.NewTask(func() {
				created, err := notificationService.ScanPendingOrders(
					ctx, time.Now().UTC(), cfg.Scan.StaleAfter)
				if err != nil {
					log.Error().Err(err).Msg("Scheduled pending-order scan failed")
					return
				}
				log.Info().Int("notifications_created", created).Msg("Scheduled pending-order scan complete")
			}),
		)
		if err != nil {
			return err
		}

		scheduler.Start()

		<-ctx.Done()

		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil && !isShutdownErr(err) {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}

func isShutdownErr(err error) bool {
	return errors.Is(err, context.Canceled)
}
