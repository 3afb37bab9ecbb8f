package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vfoody/internal/messaging/kafka"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	PaymentProviderMock   = "mock"
	PaymentProviderPayOS  = "payos"
	PaymentProviderStripe = "stripe"

	NotificationProviderLog      = "log"
	NotificationProviderFirebase = "firebase"

	LogFormatText = "text"
	LogFormatJSON = "json"
)

const (
	envHTTPAddr                    = "VFOODY_HTTP_ADDR"
	envMetricsAddr                 = "VFOODY_METRICS_ADDR"
	envRequestTimeout              = "VFOODY_REQUEST_TIMEOUT"
	envStorageDriver               = "VFOODY_STORAGE_DRIVER"
	envPostgresDSN                 = "VFOODY_POSTGRES_DSN"
	envPostgresAutoMigrate         = "VFOODY_POSTGRES_AUTO_MIGRATE"
	envSeedDemoData                = "VFOODY_SEED_DEMO_DATA"
	envJWTSecret                   = "VFOODY_JWT_SECRET"
	envAllowMockIntegrations       = "VFOODY_ALLOW_MOCK_INTEGRATIONS"
	envKafkaBrokers                = "VFOODY_KAFKA_BROKERS"
	envKafkaClientID               = "VFOODY_KAFKA_CLIENT_ID"
	envKafkaTopic                  = "VFOODY_KAFKA_TOPIC"
	envKafkaDLQTopic               = "VFOODY_KAFKA_DLQ_TOPIC"
	envOutboxPollInterval          = "VFOODY_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "VFOODY_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "VFOODY_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "VFOODY_OUTBOX_RETRY_DELAY"
	envOutboxMaxPendingAge         = "VFOODY_OUTBOX_MAX_PENDING_AGE"
	envIdempotencyTTL              = "VFOODY_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "VFOODY_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "VFOODY_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envPaymentProvider             = "VFOODY_PAYMENT_PROVIDER"
	envPaymentTimeout              = "VFOODY_PAYMENT_TIMEOUT"
	envPaymentCurrency             = "VFOODY_PAYMENT_CURRENCY"
	envPaymentReturnURL            = "VFOODY_PAYMENT_RETURN_URL"
	envPaymentCancelURL            = "VFOODY_PAYMENT_CANCEL_URL"
	envPayOSBaseURL                = "VFOODY_PAYOS_BASE_URL"
	envPayOSClientID               = "VFOODY_PAYOS_CLIENT_ID"
	envPayOSAPIKey                 = "VFOODY_PAYOS_API_KEY"
	envPayOSChecksumKey            = "VFOODY_PAYOS_CHECKSUM_KEY"
	envStripeAPIKey                = "VFOODY_STRIPE_API_KEY"
	envNotificationProvider        = "VFOODY_NOTIFICATION_PROVIDER"
	envFirebaseProjectID           = "VFOODY_FIREBASE_PROJECT_ID"
	envFirebaseCredentialsFile     = "VFOODY_FIREBASE_CREDENTIALS_FILE"
	envNotificationQueueSize       = "VFOODY_NOTIFICATION_QUEUE_SIZE"
	envNotificationWorkers         = "VFOODY_NOTIFICATION_WORKERS"
	envNotificationSendTimeout     = "VFOODY_NOTIFICATION_SEND_TIMEOUT"
	envLogLevel                    = "VFOODY_LOG_LEVEL"
	envLogFormat                   = "VFOODY_LOG_FORMAT"
)

// Config описывает настройки запуска сервиса. Все поля сравнимы,
// поэтому две конфигурации можно сравнивать через ==.
type Config struct {
	HTTPAddr       string
	MetricsAddr    string
	RequestTimeout time.Duration

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	// SeedDemoData наполняет in-memory хранилище демонстрационным каталогом.
	SeedDemoData bool

	JWTSecret string
	// AllowMockIntegrations разрешает mock-платежи вместе с postgres.
	AllowMockIntegrations bool

	// KafkaBrokers: список брокеров через запятую; пусто: Kafka выключена.
	KafkaBrokers  string
	KafkaClientID string
	KafkaTopic    string
	KafkaDLQTopic string

	OutboxPollInterval  time.Duration
	OutboxBatchSize     int
	OutboxMaxAttempts   int
	OutboxRetryDelay    time.Duration
	OutboxMaxPendingAge time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	PaymentProvider  string
	PaymentTimeout   time.Duration
	PaymentCurrency  string
	PaymentReturnURL string
	PaymentCancelURL string
	PayOSBaseURL     string
	PayOSClientID    string
	PayOSAPIKey      string
	PayOSChecksumKey string
	StripeAPIKey     string

	NotificationProvider    string
	FirebaseProjectID       string
	FirebaseCredentialsFile string
	NotificationQueueSize   int
	NotificationWorkers     int
	NotificationSendTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// DefaultConfig возвращает настройки для локального запуска в памяти.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:       ":8080",
		MetricsAddr:    ":9090",
		RequestTimeout: 30 * time.Second,

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		SeedDemoData:        true,

		KafkaClientID: "vfoody-order-service",
		KafkaTopic:    kafka.TopicOrderEvents,
		KafkaDLQTopic: kafka.TopicDeadLetterQueue,

		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
		OutboxMaxPendingAge: 5 * time.Minute,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,

		PaymentProvider: PaymentProviderMock,
		PaymentTimeout:  10 * time.Second,
		PaymentCurrency: "VND",

		NotificationProvider:    NotificationProviderLog,
		NotificationQueueSize:   256,
		NotificationWorkers:     4,
		NotificationSendTimeout: 5 * time.Second,

		LogLevel:  "info",
		LogFormat: LogFormatText,
	}
}

// Validate сообщает обо всех несовместимых настройках сразу.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http addr is required"))
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, fmt.Errorf("%s is required", envJWTSecret))
	}

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, fmt.Errorf("%s is required for postgres storage", envPostgresDSN))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	switch c.PaymentProvider {
	case PaymentProviderMock:
		if c.StorageDriver == StorageDriverPostgres && !c.AllowMockIntegrations {
			errs = append(errs, fmt.Errorf("mock payments with postgres storage require %s", envAllowMockIntegrations))
		}
	case PaymentProviderPayOS:
		if c.PayOSClientID == "" || c.PayOSAPIKey == "" || c.PayOSChecksumKey == "" {
			errs = append(errs, errors.New("payos client id, api key and checksum key are required"))
		}
	case PaymentProviderStripe:
		if c.StripeAPIKey == "" {
			errs = append(errs, fmt.Errorf("%s is required for stripe payments", envStripeAPIKey))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported payment provider %q", c.PaymentProvider))
	}

	switch c.NotificationProvider {
	case NotificationProviderLog:
	case NotificationProviderFirebase:
		if c.FirebaseProjectID == "" {
			errs = append(errs, fmt.Errorf("%s is required for firebase notifications", envFirebaseProjectID))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported notification provider %q", c.NotificationProvider))
	}

	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		errs = append(errs, fmt.Errorf("unsupported log format %q", c.LogFormat))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level: %w", err))
	}

	return errors.Join(errs...)
}

// EnvLookup читает переменную окружения; сигнатура совпадает с os.LookupEnv.
type EnvLookup func(key string) (string, bool)

// LoadConfigFromEnv накладывает переменные VFOODY_* на DefaultConfig.
// Некорректные значения не применяются и возвращаются как предупреждения.
func LoadConfigFromEnv() (Config, []error) {
	return ReadConfig(os.LookupEnv)
}

// ReadConfig: LoadConfigFromEnv с произвольным источником переменных.
func ReadConfig(lookup EnvLookup) (Config, []error) {
	cfg := DefaultConfig()
	r := envReader{lookup: lookup}

	r.str(envHTTPAddr, &cfg.HTTPAddr)
	r.str(envMetricsAddr, &cfg.MetricsAddr)
	r.duration(envRequestTimeout, &cfg.RequestTimeout, positive[time.Duration])

	r.lower(envStorageDriver, &cfg.StorageDriver)
	r.str(envPostgresDSN, &cfg.PostgresDSN)
	r.boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	r.boolean(envSeedDemoData, &cfg.SeedDemoData)

	r.str(envJWTSecret, &cfg.JWTSecret)
	r.boolean(envAllowMockIntegrations, &cfg.AllowMockIntegrations)

	r.str(envKafkaBrokers, &cfg.KafkaBrokers)
	r.str(envKafkaClientID, &cfg.KafkaClientID)
	r.str(envKafkaTopic, &cfg.KafkaTopic)
	r.str(envKafkaDLQTopic, &cfg.KafkaDLQTopic)

	r.duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positive[time.Duration])
	r.integer(envOutboxBatchSize, &cfg.OutboxBatchSize, positive[int])
	r.integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive[int])
	r.duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegative[time.Duration])
	r.duration(envOutboxMaxPendingAge, &cfg.OutboxMaxPendingAge, nonNegative[time.Duration])

	r.duration(envIdempotencyTTL, &cfg.IdempotencyTTL, positive[time.Duration])
	r.duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positive[time.Duration])
	r.integer(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positive[int])

	r.lower(envPaymentProvider, &cfg.PaymentProvider)
	r.duration(envPaymentTimeout, &cfg.PaymentTimeout, positive[time.Duration])
	r.str(envPaymentCurrency, &cfg.PaymentCurrency)
	r.str(envPaymentReturnURL, &cfg.PaymentReturnURL)
	r.str(envPaymentCancelURL, &cfg.PaymentCancelURL)
	r.str(envPayOSBaseURL, &cfg.PayOSBaseURL)
	r.str(envPayOSClientID, &cfg.PayOSClientID)
	r.str(envPayOSAPIKey, &cfg.PayOSAPIKey)
	r.str(envPayOSChecksumKey, &cfg.PayOSChecksumKey)
	r.str(envStripeAPIKey, &cfg.StripeAPIKey)

	r.lower(envNotificationProvider, &cfg.NotificationProvider)
	r.str(envFirebaseProjectID, &cfg.FirebaseProjectID)
	r.str(envFirebaseCredentialsFile, &cfg.FirebaseCredentialsFile)
	r.integer(envNotificationQueueSize, &cfg.NotificationQueueSize, positive[int])
	r.integer(envNotificationWorkers, &cfg.NotificationWorkers, positive[int])
	r.duration(envNotificationSendTimeout, &cfg.NotificationSendTimeout, positive[time.Duration])

	r.lower(envLogLevel, &cfg.LogLevel)
	r.lower(envLogFormat, &cfg.LogFormat)

	return cfg, r.warnings
}

type envReader struct {
	lookup   EnvLookup
	warnings []error
}

func (r *envReader) value(key string) (string, bool) {
	raw, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.value(key); ok {
		*dst = v
	}
}

func (r *envReader) lower(key string, dst *string) {
	if v, ok := r.value(key); ok {
		*dst = strings.ToLower(v)
	}
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	parsed, err := parseBool(v)
	if err != nil {
		r.warnings = append(r.warnings, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = parsed
}

func (r *envReader) integer(key string, dst *int, valid func(int) bool) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	parsed, err := parseInt(v, valid, "must be > 0")
	if err != nil {
		r.warnings = append(r.warnings, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = parsed
}

func (r *envReader) duration(key string, dst *time.Duration, valid func(time.Duration) bool) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	parsed, err := parseDuration(v, valid, "out of range")
	if err != nil {
		r.warnings = append(r.warnings, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = parsed
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if valid != nil && !valid(v) {
		return 0, fmt.Errorf("value %d %s", v, rule)
	}
	return v, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if valid != nil && !valid(v) {
		return 0, fmt.Errorf("duration %s %s", v, rule)
	}
	return v, nil
}

func positive[T int | time.Duration](v T) bool    { return v > 0 }
func nonNegative[T int | time.Duration](v T) bool { return v >= 0 }

// ConfigureLogger применяет уровень и формат логов к стандартному logrus.
func ConfigureLogger(cfg Config) {
	if cfg.LogFormat == LogFormatJSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
