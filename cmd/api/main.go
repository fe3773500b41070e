package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/reminder-api/config"
	"github.com/jwalitptl/reminder-api/internal/cronsync"
	"github.com/jwalitptl/reminder-api/internal/handler"
	"github.com/jwalitptl/reminder-api/internal/handler/health"
	reminderHandler "github.com/jwalitptl/reminder-api/internal/handler/reminder"
	"github.com/jwalitptl/reminder-api/internal/lock"
	"github.com/jwalitptl/reminder-api/internal/middleware"
	"github.com/jwalitptl/reminder-api/internal/notify"
	"github.com/jwalitptl/reminder-api/internal/repository/mysql"
	"github.com/jwalitptl/reminder-api/internal/repository/postgres"
	"github.com/jwalitptl/reminder-api/internal/repository/sqlite"
	"github.com/jwalitptl/reminder-api/internal/repository/sqlstore"
	"github.com/jwalitptl/reminder-api/internal/router"
	reminderService "github.com/jwalitptl/reminder-api/internal/service/reminder"
	"github.com/jwalitptl/reminder-api/pkg/logger"
	"github.com/jwalitptl/reminder-api/pkg/messaging"
	"github.com/jwalitptl/reminder-api/pkg/messaging/redis"
	"github.com/jwalitptl/reminder-api/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
	})
	log.Logger = appLog.Zerolog()
	zerolog.SetGlobalLevel(logger.ParseLevel(cfg.Log.Level))

	loc := cfg.Location()
	m := metrics.NewMetrics(cfg.Monitoring.Namespace, prometheus.DefaultRegisterer)

	ctx := context.Background()

	// Initialize database
	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("failed to connect to database")
	}
	defer db.Close()

	reminderRepo := sqlstore.NewReminderRepository(db, m)

	// Redis is optional; without it locks and events stay in process
	var (
		locker lock.Locker      = lock.NewLocal()
		broker messaging.Broker = messaging.NopBroker{}
	)
	if cfg.Redis.URL != "" {
		client, err := redis.NewClient(ctx, cfg.Redis.ToBrokerConfig())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		locker = lock.NewRedis(client, "reminder-api:lock:", cfg.Trigger.LockTTL)
		broker = redis.NewRedisBroker(client)
	}
	defer broker.Close()

	// Notification channels
	channels, err := notify.Build(cfg.Channels, &http.Client{Timeout: cfg.Channels.Timeout})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure notification channels")
	}
	if len(channels) == 0 {
		log.Warn().Msg("no notification channels configured")
	}
	dispatcher := notify.NewDispatcher(channels, loc, cfg.Channels.Timeout, m, appLog)

	scheduler, err := cronsync.NewClient(cfg.Scheduler, cfg.Security.CronSecret, nil, m, appLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure scheduler client")
	}
	if !scheduler.Enabled() {
		log.Warn().Msg("CRONJOB_API_KEY not set, reminders will not be registered externally")
	}

	// Initialize services
	reminderSvc := reminderService.NewService(
		reminderRepo,
		dispatcher,
		scheduler,
		locker,
		broker,
		m,
		appLog,
		reminderService.Config{
			Secret:    cfg.Security.CronSecret,
			PublicURL: cfg.Server.PublicURL,
			Location:  loc,
		},
	)

	// Initialize handlers
	h := handler.NewHandler(prometheus.DefaultGatherer)
	reminderH := reminderHandler.NewHandler(reminderSvc)
	healthH := health.NewHandler(reminderRepo)

	gin.SetMode(gin.ReleaseMode)

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.Security.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Security.AllowedOrigins
	}

	metricsPath := ""
	if cfg.Monitoring.PrometheusEnabled {
		metricsPath = cfg.Monitoring.MetricsPath
	}

	// Setup router
	r := router.NewRouter(reminderH, healthH, h, router.RouterConfig{
		RateLimit:     rate.Limit(cfg.Security.RequestsPerSecond),
		RateBurst:     cfg.Security.Burst,
		CORSConfig:    corsConfig,
		MetricsPrefix: cfg.Monitoring.Namespace + "_http",
		MetricsPath:   metricsPath,
		Registerer:    prometheus.DefaultRegisterer,
	})
	r.Setup()

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Int("channels", len(channels)).
			Str("timezone", loc.String()).
			Msg("reminder API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.NewDB(ctx, cfg)
	case "mysql":
		return mysql.NewDB(ctx, cfg.URL)
	case "sqlite":
		dsn := cfg.URL
		if dsn == "" {
			dsn = cfg.Path
		}
		return sqlite.NewDB(ctx, dsn)
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}
