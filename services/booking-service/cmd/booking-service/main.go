package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/hourbook/libs/config"
	"github.com/md-rashed-zaman/hourbook/libs/db"
	"github.com/md-rashed-zaman/hourbook/libs/httpx"
	"github.com/md-rashed-zaman/hourbook/libs/kafkax"
	"github.com/md-rashed-zaman/hourbook/libs/locale"
	otelx "github.com/md-rashed-zaman/hourbook/libs/otel"
	"github.com/md-rashed-zaman/hourbook/libs/runtime"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/directory"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/jobs"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/hourbook/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type settings struct {
	service      string
	port         string
	databaseURL  string
	dbMaxConns   int
	loc          *time.Location
	locale       locale.Locale
	redisAddr    string
	userCacheTTL time.Duration
	ratePerMin   int
	kafkaBrokers string
	jwtSecret    string
	trustGateway bool
	jobBuffer    int
	jobAttempts  int
	openHour     int
	closeHour    int
}

func loadSettings() (settings, error) {
	config.LoadDotEnv()

	s := settings{
		service:      config.String("SERVICE_NAME", "booking-service"),
		locale:       locale.Parse(config.String("NOTIFICATION_LOCALE", "pt-BR")),
		redisAddr:    config.String("REDIS_ADDR", ""),
		kafkaBrokers: config.String("KAFKA_BROKERS", ""),
		jwtSecret:    config.String("JWT_SECRET", ""),
		trustGateway: config.Bool("TRUST_GATEWAY_HEADER", false),
	}
	var err error
	if s.port, err = config.Port("PORT", "8083"); err != nil {
		return s, err
	}
	if s.databaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return s, err
	}
	if s.loc, err = config.Location("APP_TIMEZONE", "America/Sao_Paulo"); err != nil {
		return s, err
	}
	ints := []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"DB_MAX_CONNS", 10, &s.dbMaxConns},
		{"RATE_LIMIT_PER_MINUTE", 30, &s.ratePerMin},
		{"JOB_BUFFER", 256, &s.jobBuffer},
		{"JOB_MAX_ATTEMPTS", 5, &s.jobAttempts},
		{"SCHEDULE_OPEN_HOUR", 8, &s.openHour},
		{"SCHEDULE_CLOSE_HOUR", 20, &s.closeHour},
	}
	for _, i := range ints {
		if *i.dst, err = config.Int(i.key, i.fallback); err != nil {
			return s, err
		}
	}
	if s.userCacheTTL, err = config.Duration("USER_CACHE_TTL", 5*time.Minute); err != nil {
		return s, err
	}
	return s, nil
}

func main() {
	cfg, err := loadSettings()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.databaseURL, db.PoolConfig{MaxConns: int32(cfg.dbMaxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	collector := metrics.NewCollector("hourbook")
	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	var users directory.Directory = directory.NewUserRepository(pool)
	var limiter httpx.Limiter = httpx.NewMemoryLimiter(cfg.ratePerMin, time.Minute)
	if cfg.redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
		defer rdb.Close()
		users = directory.NewCached(users, rdb, cfg.userCacheTTL, logger)
		limiter = httpx.NewRedisLimiter(rdb, cfg.ratePerMin, time.Minute, "hourbook:ratelimit:book")
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	var transport jobs.Transport = jobs.LogTransport{Logger: logger}
	if cfg.kafkaBrokers != "" {
		kt := jobs.NewKafkaTransport(cfg.kafkaBrokers)
		defer kt.Close()
		transport = kt
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.kafkaBrokers)})
	} else {
		logger.Warn("no kafka brokers configured; jobs go to the log")
	}
	dispatcher := jobs.NewDispatcher(transport, logger, collector, jobs.DispatcherConfig{
		Buffer:      cfg.jobBuffer,
		MaxAttempts: cfg.jobAttempts,
	})
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Run(ctx)
	}()

	notifier := notify.NewDispatcher(notify.NewPostgresSink(pool), logger, notify.Options{
		Locale:   cfg.locale,
		Location: cfg.loc,
		Failures: collector.NotificationErrors,
	})

	svc := booking.NewService(
		storage.NewAppointmentRepository(pool),
		users,
		clock.NewSystem(cfg.loc),
		notifier,
		dispatcher,
		collector,
		logger,
		booking.Config{Location: cfg.loc, OpenHour: cfg.openHour, CloseHour: cfg.closeHour},
	)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("GET /metrics", collector.Handler())

	requester := httpx.WithRequester(httpx.RequesterConfig{
		JWTSecret:          cfg.jwtSecret,
		TrustGatewayHeader: cfg.trustGateway,
	}, logger)
	rateLimit := httpx.WithRateLimit(limiter, logger, true)

	handlers.NewAppointmentHandler(svc, logger, cfg.loc).Register(mux, func(pattern string, h http.Handler) http.Handler {
		if pattern == "POST /appointments" {
			h = rateLimit(h)
		}
		return collector.Instrument(pattern, requester(h))
	})

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(64<<10),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.Serve(ctx, srv, logger, 10*time.Second)
	<-dispatcherDone
}
