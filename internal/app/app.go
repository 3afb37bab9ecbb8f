package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	healthcheck "github.com/vladislavdragonenkov/vfoody/internal/health"
	"github.com/vladislavdragonenkov/vfoody/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/vfoody/internal/metrics"
	"github.com/vladislavdragonenkov/vfoody/internal/notification"
	"github.com/vladislavdragonenkov/vfoody/internal/service/checkout"
	"github.com/vladislavdragonenkov/vfoody/internal/service/idempotency"
	"github.com/vladislavdragonenkov/vfoody/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/vfoody/internal/service/outbox"
	"github.com/vladislavdragonenkov/vfoody/internal/service/query"
	"github.com/vladislavdragonenkov/vfoody/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/vfoody/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run поднимает HTTP API, сервер метрик и фоновые воркеры и блокируется до отмены ctx.
// После отмены сначала останавливается приём запросов, затем воркеры дорабатывают очередь.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	orderMetrics := metrics.NewOrderMetrics()

	gateway, err := initPaymentGateway(cfg, logger)
	if err != nil {
		return err
	}
	notifier, err := initNotifier(ctx, cfg, deps.directory, logger)
	if err != nil {
		return err
	}

	producer, _ := initKafkaProducer(cfg.KafkaBrokers, cfg.KafkaClientID, logger)
	defer closeKafka(producer, logger)

	dispatcher := notification.NewDispatcher(notifier,
		notification.WithLogger(logger.WithField("component", "notification")),
		notification.WithMetrics(orderMetrics),
		notification.WithQueueSize(cfg.NotificationQueueSize),
		notification.WithWorkers(cfg.NotificationWorkers),
		notification.WithSendTimeout(cfg.NotificationSendTimeout),
	)

	checkoutSvc := checkout.NewService(deps.catalog, deps.promotions, deps.uow, dispatcher,
		checkout.WithLogger(logger.WithField("component", "checkout")),
		checkout.WithMetrics(orderMetrics),
	)
	engine := lifecycle.NewEngine(deps.orders, deps.uow, gateway, dispatcher,
		lifecycle.WithLogger(logger.WithField("component", "lifecycle")),
		lifecycle.WithMetrics(orderMetrics),
		lifecycle.WithGatewayTimeout(cfg.PaymentTimeout),
		lifecycle.WithCurrency(cfg.PaymentCurrency),
	)
	queries := query.NewService(deps.orders, deps.timelineRepo, logger.WithField("component", "query"))

	auth, err := httpapi.NewAuthenticator(cfg.JWTSecret)
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Checkout:       checkoutSvc,
		Lifecycle:      engine,
		Queries:        queries,
		Auth:           auth,
		Idempotency:    httpapi.NewIdempotency(deps.idempotencyRepo, cfg.IdempotencyTTL, logger.WithField("component", "http-idempotency")),
		Logger:         logger.WithField("component", "httpapi"),
		RequestTimeout: cfg.RequestTimeout,
	})

	healthHandler := healthcheck.NewHandler(version.GetVersion(), logger.WithField("component", "health"))
	healthHandler.Register("storage", healthcheck.NewPingChecker("storage", deps.storage, 0), true)
	healthHandler.Register("outbox", healthcheck.NewOutboxBacklogChecker(deps.outboxRepo, cfg.OutboxMaxPendingAge), false)

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	apiSrv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	}

	// Воркеры живут дольше HTTP-сервера: уведомления и события последних запросов не теряются.
	workersCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorkers()
	workers, workersCtx := errgroup.WithContext(workersCtx)
	workers.Go(func() error {
		dispatcher.Run(workersCtx)
		return nil
	})
	workers.Go(func() error {
		newOutboxWorker(cfg, deps, producer, logger).Run(workersCtx)
		return nil
	})
	workers.Go(func() error {
		idempotency.NewCleanupWorker(deps.idempotencyRepo,
			idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
			idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
			idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		).Run(workersCtx)
		return nil
	})

	server, serverCtx := errgroup.WithContext(ctx)
	server.Go(func() error {
		logger.Infof("HTTP API слушает %s", lis.Addr())
		if err := apiSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	server.Go(func() error {
		<-serverCtx.Done()
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		shutdownHTTP(apiSrv, logger)
		return nil
	})

	serveErr := server.Wait()
	shutdownHTTP(metricsSrv, logger)

	stopWorkers()
	_ = workers.Wait()
	logger.Info("фоновые воркеры остановлены")

	if serveErr != nil {
		return serveErr
	}
	return ctx.Err()
}

// newOutboxWorker собирает публикатор outbox. Без Kafka воркер не запускается, события копятся в outbox.
func newOutboxWorker(cfg Config, deps *runtimeDependencies, producer *kafka.Producer, logger *log.Entry) *outbox.Worker {
	options := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if producer == nil {
		return outbox.NewWorker(deps.outboxRepo, nil, options...)
	}
	options = append(options, outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)))
	return outbox.NewWorker(deps.outboxRepo, kafka.NewOutboxPublisher(producer, cfg.KafkaTopic), options...)
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
