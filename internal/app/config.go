package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	// StorageDriverMemory хранит корзины и заказы в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres использует PostgreSQL.
	StorageDriverPostgres = "postgres"

	// GatewayMock подписывает callback локально, без сети.
	GatewayMock = "mock"
	// GatewayRazorpay ходит в API шлюза.
	GatewayRazorpay = "razorpay"

	mockSigningSecret = "mock-gateway-secret"
)

// Config описывает настройки запуска приложения. Загружается один раз в main.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	RedisAddr string
	IntentTTL time.Duration

	Gateway          string
	GatewayKeyID     string
	GatewayKeySecret string
	GatewayURL       string
	GatewayTimeout   time.Duration

	Currency     string
	AmountPolicy domain.AmountMismatchPolicy

	JWTSecret string
	JWTIssuer string

	KafkaBrokers  string
	KafkaClientID string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию для локального запуска: память, mock-шлюз, без Kafka.
// JWTSecret намеренно пустой и должен прийти из окружения.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		IntentTTL:                   30 * time.Minute,
		Gateway:                     GatewayMock,
		GatewayTimeout:              10 * time.Second,
		Currency:                    "INR",
		AmountPolicy:                domain.AmountMismatchReject,
		KafkaClientID:               "checkout-service",
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            50 * time.Millisecond,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
		RequestTimeout:              15 * time.Second,
		ShutdownTimeout:             5 * time.Second,
	}
}

// Validate проверяет согласованность настроек до открытия соединений.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	switch c.Gateway {
	case GatewayMock:
	case GatewayRazorpay:
		if c.GatewayKeyID == "" || c.GatewayKeySecret == "" {
			errs = append(errs, errors.New("razorpay key id and secret are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported payment gateway %q", c.Gateway))
	}

	if !c.AmountPolicy.Valid() {
		errs = append(errs, fmt.Errorf("unknown amount mismatch policy %q", c.AmountPolicy))
	}
	if strings.TrimSpace(c.Currency) == "" {
		errs = append(errs, domain.ErrCurrencyRequired)
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}

	return errors.Join(errs...)
}

// KafkaBrokerList разбирает список брокеров через запятую.
func (c Config) KafkaBrokerList() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// signingSecret — секрет HMAC подписи callback. Для mock-шлюза допускается встроенный.
func (c Config) signingSecret() string {
	if c.GatewayKeySecret == "" && c.Gateway == GatewayMock {
		return mockSigningSecret
	}
	return c.GatewayKeySecret
}
