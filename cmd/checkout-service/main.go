package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/app"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/version"
)

const (
	envHTTPAddr    = "CHECKOUT_HTTP_ADDR"
	envGRPCAddr    = "CHECKOUT_GRPC_ADDR"
	envMetricsAddr = "CHECKOUT_METRICS_ADDR"

	envStorageDriver       = "CHECKOUT_STORAGE_DRIVER"
	envPostgresDSN         = "CHECKOUT_POSTGRES_DSN"
	envPostgresAutoMigrate = "CHECKOUT_POSTGRES_AUTO_MIGRATE"

	envRedisAddr = "CHECKOUT_REDIS_ADDR"
	envIntentTTL = "CHECKOUT_INTENT_TTL"

	envGateway        = "CHECKOUT_GATEWAY"
	envGatewayKeyID   = "RAZORPAY_KEY"
	envGatewaySecret  = "RAZORPAY_SECRET"
	envGatewayURL     = "CHECKOUT_GATEWAY_URL"
	envGatewayTimeout = "CHECKOUT_GATEWAY_TIMEOUT"

	envCurrency     = "CHECKOUT_CURRENCY"
	envAmountPolicy = "CHECKOUT_AMOUNT_MISMATCH_POLICY"

	envJWTSecret = "CHECKOUT_JWT_SECRET"
	envJWTIssuer = "CHECKOUT_JWT_ISSUER"

	envKafkaBrokers = "KAFKA_BROKERS"

	envOutboxPollInterval          = "CHECKOUT_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "CHECKOUT_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "CHECKOUT_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "CHECKOUT_OUTBOX_RETRY_DELAY"
	envIdempotencyCleanupInterval  = "CHECKOUT_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "CHECKOUT_IDEMPOTENCY_CLEANUP_BATCH_SIZE"

	envRequestTimeout = "CHECKOUT_REQUEST_TIMEOUT"

	envLogFormat = "CHECKOUT_LOG_FORMAT"
	envLogLevel  = "CHECKOUT_LOG_LEVEL"
)

type envLookup func(string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) {
	if format, ok := lookup(envLogFormat); ok && strings.EqualFold(strings.TrimSpace(format), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level := log.InfoLevel
	if raw, ok := lookup(envLogLevel); ok && strings.TrimSpace(raw) != "" {
		parsed, err := log.ParseLevel(strings.TrimSpace(raw))
		if err != nil {
			log.WithError(err).Warnf("invalid %s, using info", envLogLevel)
		} else {
			level = parsed
		}
	}
	log.SetLevel(level)
}

// readConfigFromEnv применяет переменные окружения поверх app.DefaultConfig.
// Некорректные значения не валят старт: остаётся значение по умолчанию и возвращается предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, value string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, value, err))
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}
	positive := func(d time.Duration) bool { return d > 0 }

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)

	str(envStorageDriver, &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	str(envPostgresDSN, &cfg.PostgresDSN)
	if v, ok := lookup(envPostgresAutoMigrate); ok && strings.TrimSpace(v) != "" {
		parsed, err := parseBool(v)
		if err != nil {
			warn(envPostgresAutoMigrate, v, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	str(envRedisAddr, &cfg.RedisAddr)
	dur(envIntentTTL, &cfg.IntentTTL, positive, "must be > 0")

	str(envGateway, &cfg.Gateway)
	cfg.Gateway = strings.ToLower(cfg.Gateway)
	str(envGatewayKeyID, &cfg.GatewayKeyID)
	str(envGatewaySecret, &cfg.GatewayKeySecret)
	str(envGatewayURL, &cfg.GatewayURL)
	dur(envGatewayTimeout, &cfg.GatewayTimeout, positive, "must be > 0")

	str(envCurrency, &cfg.Currency)
	cfg.Currency = strings.ToUpper(cfg.Currency)
	if v, ok := lookup(envAmountPolicy); ok && strings.TrimSpace(v) != "" {
		policy := domain.AmountMismatchPolicy(strings.ToLower(strings.TrimSpace(v)))
		if !policy.Valid() {
			warn(envAmountPolicy, v, errors.New("must be reject|accept"))
		} else {
			cfg.AmountPolicy = policy
		}
	}

	str(envJWTSecret, &cfg.JWTSecret)
	str(envJWTIssuer, &cfg.JWTIssuer)
	str(envKafkaBrokers, &cfg.KafkaBrokers)

	dur(envOutboxPollInterval, &cfg.OutboxPollInterval, positive, "must be > 0")
	num(envOutboxBatchSize, &cfg.OutboxBatchSize)
	num(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	dur(envOutboxRetryDelay, &cfg.OutboxRetryDelay, func(d time.Duration) bool { return d >= 0 }, "must be >= 0")
	dur(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positive, "must be > 0")
	num(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize)

	dur(envRequestTimeout, &cfg.RequestTimeout, positive, "must be > 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}

func main() {
	setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range warnings {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":      version.String(),
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"gateway":      cfg.Gateway,
	}).Info("запускаем checkout-service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("checkout-service остановлен")
}
