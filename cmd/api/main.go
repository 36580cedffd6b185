package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"celestia/internal/api"
	"celestia/internal/config"
	"celestia/internal/database"
	"celestia/internal/domain"
	"celestia/internal/events"
	"celestia/internal/export"
	"celestia/internal/google"
	"celestia/internal/logging"
	"celestia/internal/metrics"
	"celestia/internal/notify"
	"celestia/internal/repository"
	"celestia/internal/service"
	"celestia/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	defer func() { _ = repository.Close(redisClient) }()
	state := initState(redisClient, &logger)

	var wg sync.WaitGroup
	goRun := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	eventBus := events.NewEventBus()
	eventBus.OnError(func(event *events.Event, err error) {
		logger.Warn().Err(err).Str("event_type", event.Type).Msg("event handler failed")
	})
	if forwarder := initKafka(cfg, &logger); forwarder != nil {
		eventBus.SubscribeAll(forwarder.Handle)
		goRun(forwarder.Run)
		defer func() { _ = forwarder.Close() }()
	}

	outbox := worker.NewOutboxWorker(
		db,
		initSheets(ctx, cfg, &logger),
		initNotifier(cfg, &logger),
		worker.PolicyFromConfig(cfg.Worker),
		&logger,
		worker.WithRedis(redisClient, cfg.Worker.QueueKey),
		worker.WithPollInterval(cfg.Worker.PollInterval),
	)

	availability := service.NewAvailabilityService(db, &logger)
	users := service.NewUserService(db, state, eventBus, &logger)
	svc := api.Services{
		Users:        users,
		Bookings:     service.NewBookingService(db, state, availability, eventBus, outbox, cfg.Payments.IdempotencyTTL, &logger),
		WorkItems:    service.NewWorkItemService(db, eventBus, outbox, &logger),
		Availability: availability,
		Reports:      service.NewReportService(db, export.NewExporter(cfg.Exports.Path, &logger)),
	}

	if err := availability.EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("seed availability: %w", err)
	}
	if err := users.RebuildRoleIndex(ctx); err != nil {
		return fmt.Errorf("rebuild role index: %w", err)
	}

	goRun(outbox.Run)
	goRun(database.NewBackupService(db, cfg.Backup, &logger).Start)
	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, svc, state, db, &logger)
	err = serve(ctx, httpServer, &logger)

	stop()
	wg.Wait()
	logger.Info().Msg("API server stopped")
	return err
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := *logging.Component(baseLogger, "api-main")

	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("create database directory")
		return err
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("create exports directory")
		return err
	}
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing with in-memory state")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initState prefers Redis and falls back to process memory while it is down.
func initState(client *redis.Client, logger *zerolog.Logger) domain.StateRepository {
	memory := repository.NewMemoryStateRepository()
	if client == nil {
		return memory
	}
	return repository.NewFailoverStateRepository(repository.NewRedisStateRepository(client), memory, logger)
}

func initKafka(cfg *config.Config, logger *zerolog.Logger) *events.KafkaForwarder {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil
	}
	logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka forwarder enabled")
	return events.NewKafkaForwarder(events.NewKafkaWriter(cfg.Kafka), 0, logger)
}

func initSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) domain.SheetsWriter {
	if cfg.Google.CredentialsFile == "" || cfg.Google.BookingSpreadsheetID == "" {
		return nil
	}

	sheet, err := google.NewBookingSheet(ctx, cfg.Google.CredentialsFile, cfg.Google.BookingSpreadsheetID, cfg.Google.BookingSheetName)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheet.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without sheets")
		return nil
	}
	if err := sheet.EnsureHeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to write sheet header")
	}
	if err := sheet.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to warm up sheet row cache")
	}

	logger.Info().Msg("google sheets connected")
	return sheet
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) domain.AssignmentNotifier {
	if cfg.Telegram.BotToken == "" {
		return nil
	}

	notifier, err := notify.NewTelegram(cfg.Telegram, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without staff notifications")
		return nil
	}
	return notifier
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
