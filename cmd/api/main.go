package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatbook/internal/api"
	"chatbook/internal/capacity"
	"chatbook/internal/config"
	"chatbook/internal/database"
	"chatbook/internal/domain"
	"chatbook/internal/events"
	"chatbook/internal/google"
	"chatbook/internal/logging"
	"chatbook/internal/metrics"
	"chatbook/internal/notify"
	"chatbook/internal/repository"
	"chatbook/internal/service"
	"chatbook/internal/suggest"
	"chatbook/internal/tenant"
	"chatbook/internal/worker"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const sheetsCacheRefresh = 10 * time.Minute

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

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}

	drafts := initDrafts(cfg, redisClient, &logger)
	oracle := capacity.NewOracle(initCalendar(ctx, cfg, &logger), cfg.Google.CalendarTimeout, logging.Component(&logger, "calendar"))

	eventBus := events.NewEventBus()
	if nc := initNATS(cfg, &logger); nc != nil {
		defer nc.Drain()
		events.NewNATSForwarder(nc, cfg.NATS.SubjectPrefix, &logger).SubscribeTo(eventBus)
	}

	tenants := tenant.NewRegistry(cfg.Bots)
	reportTenants(ctx, tenants, &logger)

	deps := service.Dependencies{
		Tenants:   tenants,
		Repo:      db,
		Oracle:    oracle,
		Suggester: suggest.NewEngine(db, oracle, logging.Component(&logger, "suggest")),
		Notifier:  notify.NewNotifier(notify.NewMailer(cfg.Mail), cfg.Mail.Timeout, logging.Component(&logger, "notify")),
		Drafts:    drafts,
		EventBus:  eventBus,
	}
	if sheetsWorker := initSheetsWorker(ctx, cfg, db, redisClient, &logger); sheetsWorker != nil {
		deps.SheetsWorker = sheetsWorker
	}
	bookingService := service.NewBookingService(deps, logging.Component(&logger, "booking"))

	httpServer := api.NewHTTPServer(&cfg.API, api.Dependencies{
		Bookings: bookingService,
		Tenants:  deps.Tenants,
		Ledger:   db,
		Drafts:   drafts,
	}, &logger)

	startMetrics(ctx, cfg, &logger)
	startBackups(ctx, cfg, db, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
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
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initDrafts keeps drafts in memory when redis is absent, and falls back to
// memory while redis is down otherwise.
func initDrafts(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) *service.DraftService {
	memory := repository.NewMemoryDraftRepository(cfg.Drafts.TTL)
	var repo domain.DraftRepository = memory
	if redisClient != nil {
		repo = repository.NewFailoverDraftRepository(
			repository.NewRedisDraftRepository(redisClient, cfg.Drafts.TTL),
			memory,
			logging.Component(logger, "drafts"),
		)
	}
	return service.NewDraftService(repo, logging.Component(logger, "drafts"))
}

func initCalendar(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) domain.CalendarProvider {
	if cfg.Google.GoogleCredentialsFile == "" {
		logger.Warn().Msg("google credentials not configured, calendar disabled")
		return capacity.NopProvider{}
	}

	cal, err := google.NewCalendarService(ctx, cfg.Google.GoogleCredentialsFile)
	if err != nil {
		logger.Warn().Err(err).Msg("google calendar init failed, continuing without calendar")
		return capacity.NopProvider{}
	}

	if email, err := google.ServiceAccountEmail(cfg.Google.GoogleCredentialsFile); err == nil {
		logger.Info().Str("service_account", email).Msg("google calendar connected; share calendars with this account")
	}
	return cal
}

func initSheetsWorker(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) *worker.SheetsWorker {
	if !cfg.Sheets.Enabled {
		return nil
	}
	if cfg.Google.GoogleCredentialsFile == "" {
		logger.Warn().Msg("sheets enabled without google credentials, journal mirror disabled")
		return nil
	}

	sheetsLogger := logging.Component(logger, "sheets")
	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Sheets.SpreadsheetID, sheetsLogger)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets not reachable, tasks will retry")
	}
	go sheetsService.RunCacheRefresh(ctx, sheetsCacheRefresh)

	sheetsWorker := worker.NewSheetsWorker(db, sheetsService, redisClient, worker.DefaultRetryPolicy(), sheetsLogger)
	go sheetsWorker.Start(ctx)

	logger.Info().Msg("google sheets connected")
	return sheetsWorker
}

func initNATS(cfg *config.Config, logger *zerolog.Logger) *nats.Conn {
	if cfg.NATS.URL == "" {
		return nil
	}

	nc, err := events.ConnectNATS(cfg.NATS.URL, cfg.App.Name, logging.Component(logger, "nats"))
	if err != nil {
		logger.Warn().Err(err).Msg("nats connection failed, events stay in-process")
		return nil
	}
	return nc
}

func startBackups(ctx context.Context, cfg *config.Config, db *database.DB, logger *zerolog.Logger) {
	if !cfg.Backup.Enabled {
		return
	}
	backupService := database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup"))
	go func() {
		if err := backupService.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("backup service stopped")
		}
	}()
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Int("bots", len(cfg.Bots)).Msg("API server started")

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error().Err(serveErr).Msg("http server stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return serveErr
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
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

// reportTenants logs the configured bots and any that cannot take bookings.
func reportTenants(ctx context.Context, tenants *tenant.Registry, logger *zerolog.Logger) {
	ids := tenants.IDs()
	logger.Info().Strs("bots", ids).Msg("Tenants loaded")
	for _, id := range ids {
		if _, err := tenants.Get(ctx, id); err != nil {
			logger.Warn().Err(err).Str("bot_id", id).Msg("Tenant unavailable for booking")
		}
	}
}
