package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/version"
)

// DefaultRazorpayURL — базовый адрес API шлюза.
const DefaultRazorpayURL = "https://api.razorpay.com"

// RazorpayConfig содержит настройки HTTP-клиента шлюза.
type RazorpayConfig struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	// Timeout ограничивает один HTTP-запрос; общий дедлайн задаёт вызывающий через ctx.
	Timeout time.Duration

	// Настройки circuit breaker.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// DefaultRazorpayConfig возвращает настройки по умолчанию без ключей.
func DefaultRazorpayConfig() RazorpayConfig {
	return RazorpayConfig{
		BaseURL:         DefaultRazorpayURL,
		Timeout:         10 * time.Second,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// StatusError — ответ шлюза с неуспешным HTTP-статусом.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway responded with status %d: %s", e.StatusCode, e.Body)
}

type createOrderRequest struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
	PaymentCapture int    `json:"payment_capture"`
}

type createOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// RazorpayGateway создаёт заказы шлюза через POST /v1/orders.
// Открытый breaker отклоняет вызов сразу, без обращения к сети; повторов нет.
type RazorpayGateway struct {
	cfg     RazorpayConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[domain.PaymentIntent]
	logger  *log.Entry
}

// NewRazorpayGateway создаёт клиента. Ключи обязательны.
func NewRazorpayGateway(cfg RazorpayConfig, logger *log.Entry) (*RazorpayGateway, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, errors.New("razorpay key id and secret are required")
	}
	defaults := DefaultRazorpayConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaults.BreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = defaults.BreakerCooldown
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = log.New().WithField("component", "razorpay-gateway")
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker[domain.PaymentIntent](gobreaker.Settings{
		Name:        "razorpay",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(log.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("gateway circuit breaker state changed")
		},
	})

	return &RazorpayGateway{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breaker,
		logger:  logger,
	}, nil
}

// CreateIntent регистрирует заказ шлюза с автоматическим захватом платежа.
func (g *RazorpayGateway) CreateIntent(ctx context.Context, req domain.CreateIntentRequest) (domain.PaymentIntent, error) {
	capture := 0
	if req.Capture {
		capture = 1
	}
	body, err := json.Marshal(createOrderRequest{
		Amount:         req.AmountMinor,
		Currency:       req.Currency,
		Receipt:        req.Receipt,
		PaymentCapture: capture,
	})
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("encode gateway request: %w", err)
	}

	return g.breaker.Execute(func() (domain.PaymentIntent, error) {
		return g.createOrder(ctx, body)
	})
}

// breakerSuccess отделяет недоступность шлюза от ошибок вызывающего:
// 4xx и отменённый клиентом запрос не приближают размыкание.
func breakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode < http.StatusInternalServerError
	}
	return false
}

// State возвращает текущее состояние breaker (для health и тестов).
func (g *RazorpayGateway) State() gobreaker.State {
	return g.breaker.State()
}

func (g *RazorpayGateway) createOrder(ctx context.Context, body []byte) (domain.PaymentIntent, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("build gateway request: %w", err)
	}
	httpReq.SetBasicAuth(g.cfg.KeyID, g.cfg.KeySecret)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("call gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.PaymentIntent{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out createOrderResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("decode gateway response: %w", err)
	}

	g.logger.WithFields(log.Fields{
		"intent_id": out.ID,
		"status":    out.Status,
	}).Debug("gateway order created")

	return domain.PaymentIntent{
		IntentID:    out.ID,
		AmountMinor: out.Amount,
		Currency:    out.Currency,
		Receipt:     out.Receipt,
	}, nil
}

var _ domain.PaymentGateway = (*RazorpayGateway)(nil)
