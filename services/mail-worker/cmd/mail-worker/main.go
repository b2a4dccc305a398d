package main

import (
	"context"
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
	"github.com/md-rashed-zaman/hourbook/services/mail-worker/internal/consumer"
	"github.com/md-rashed-zaman/hourbook/services/mail-worker/internal/email"
	"github.com/md-rashed-zaman/hourbook/services/mail-worker/internal/inbox"
	"github.com/md-rashed-zaman/hourbook/services/mail-worker/internal/mail"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "mail-worker")
	logger := runtime.NewLogger(service)

	port, err := config.Port("PORT", "8090")
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	brokers, err := config.RequiredString("KAFKA_BROKERS")
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	loc, err := config.Location("APP_TIMEZONE", "America/Sao_Paulo")
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	maxAttempts, err := config.Int("MAIL_MAX_ATTEMPTS", 3)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, dbURL, db.PoolConfig{MaxConns: 4})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	sender := email.NewSMTPSender(
		config.String("SMTP_HOST", "mailpit"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@hourbook.local"),
		config.String("SMTP_FROM_NAME", "Hourbook"),
	)
	handler := mail.CancellationHandler(sender, logger, locale.Parse(config.String("NOTIFICATION_LOCALE", "pt-BR")), loc)

	c := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
		Brokers:     brokers,
		GroupID:     config.String("KAFKA_GROUP_ID", "mail-worker"),
		Topic:       config.String("KAFKA_TOPIC", "jobs.cancellation-mail"),
		MaxAttempts: maxAttempts,
	}, handler)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		c.Run(ctx)
	}()

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(httpHandler, "mail-worker"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.Serve(ctx, srv, logger, 5*time.Second)
	<-consumerDone
	logger.Info("mail worker stopped")
}
