package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
	"github.com/vladislavdragonenkov/vfoody/internal/notification"
	"github.com/vladislavdragonenkov/vfoody/internal/notification/firebase"
	"github.com/vladislavdragonenkov/vfoody/internal/payment"
	"github.com/vladislavdragonenkov/vfoody/internal/payment/payos"
	"github.com/vladislavdragonenkov/vfoody/internal/payment/stripe"
	"github.com/vladislavdragonenkov/vfoody/internal/storage/memory"
	"github.com/vladislavdragonenkov/vfoody/internal/storage/postgres"
)

// runtimeDependencies: хранилища, выбранные по StorageDriver.
type runtimeDependencies struct {
	orders          domain.OrderRepository
	catalog         domain.CatalogRepository
	promotions      domain.PromotionRepository
	uow             domain.UnitOfWork
	timelineRepo    domain.TimelineRepository
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	directory       domain.AccountDirectory
	storage         domain.HealthChecker
	close           func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StorageDriver)) {
	case "", StorageDriverMemory:
		store := memory.NewStore()
		if cfg.SeedDemoData {
			store.SeedDemo(time.Now().UTC())
			logger.Info("in-memory storage seeded with demo catalog")
		}
		return &runtimeDependencies{
			orders:          store,
			catalog:         store,
			promotions:      store,
			uow:             store,
			timelineRepo:    memory.NewTimelineRepository(store),
			outboxRepo:      store,
			idempotencyRepo: memory.NewIdempotencyRepository(),
			directory:       store,
			storage:         store,
			close:           func() error { return nil },
		}, nil
	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, errors.New("postgres dsn is required")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			applied, err := store.Migrator(logger.WithField("component", "postgres-migrator")).Up(ctx, 0)
			if err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
			logger.WithField("applied", len(applied)).Info("postgres schema is up to date")
		}
		catalog := postgres.NewCatalogRepository(store)
		return &runtimeDependencies{
			orders:          postgres.NewOrderRepository(store),
			catalog:         catalog,
			promotions:      catalog,
			uow:             store,
			timelineRepo:    postgres.NewTimelineRepository(store),
			outboxRepo:      postgres.NewOutboxRepository(store),
			idempotencyRepo: postgres.NewIdempotencyRepository(store),
			directory:       catalog,
			storage:         store,
			close:           store.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// initPaymentGateway выбирает платёжного провайдера.
func initPaymentGateway(cfg Config, logger *log.Entry) (domain.PaymentGateway, error) {
	switch cfg.PaymentProvider {
	case "", PaymentProviderMock:
		logger.Warn("using mock payment gateway")
		return payment.NewMockGateway(), nil
	case PaymentProviderPayOS:
		return payos.NewClient(payos.Config{
			BaseURL:     cfg.PayOSBaseURL,
			ClientID:    cfg.PayOSClientID,
			APIKey:      cfg.PayOSAPIKey,
			ChecksumKey: cfg.PayOSChecksumKey,
			ReturnURL:   cfg.PaymentReturnURL,
			CancelURL:   cfg.PaymentCancelURL,
		}, &http.Client{Timeout: cfg.PaymentTimeout}, logger.WithField("component", "payos"))
	case PaymentProviderStripe:
		return stripe.NewGateway(stripe.Config{
			APIKey:     cfg.StripeAPIKey,
			SuccessURL: cfg.PaymentReturnURL,
			CancelURL:  cfg.PaymentCancelURL,
		}, logger.WithField("component", "stripe"))
	default:
		return nil, fmt.Errorf("unsupported payment provider %q", cfg.PaymentProvider)
	}
}

const (
	notifierBreakerFailures = 5
	notifierBreakerReset    = 30 * time.Second
)

// initNotifier выбирает канал доставки push-уведомлений.
func initNotifier(ctx context.Context, cfg Config, directory domain.AccountDirectory, logger *log.Entry) (domain.Notifier, error) {
	switch cfg.NotificationProvider {
	case "", NotificationProviderLog:
		return notification.NewLogNotifier(logger.WithField("component", "notifier")), nil
	case NotificationProviderFirebase:
		client, err := firebase.NewClient(ctx, firebase.Config{
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsFile: cfg.FirebaseCredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("init firebase messaging: %w", err)
		}
		fcm := firebase.NewNotifier(client, directory, logger.WithField("component", "fcm"))
		breaker := notification.NewCircuitBreaker(notifierBreakerFailures, notifierBreakerReset, logger.WithField("component", "fcm-breaker"))
		return notification.NewResilientNotifier(fcm, notification.DefaultRetryConfig(), breaker, logger.WithField("component", "fcm-retry")), nil
	default:
		return nil, fmt.Errorf("unsupported notification provider %q", cfg.NotificationProvider)
	}
}
