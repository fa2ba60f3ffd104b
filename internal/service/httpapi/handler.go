package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vladislavdragonenkov/checkout/internal/auth"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
)

const (
	defaultRequestTimeout = 30 * time.Second
	// IdempotencyKeyHeader повторяет ответ первой попытки initiate.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotencyReplayedHeader выставляется, когда ответ взят из сохранённой попытки.
	IdempotencyReplayedHeader = "Idempotency-Replayed"
)

// CheckoutService — операции оформления заказа, доступные по HTTP.
type CheckoutService interface {
	Initiate(ctx context.Context, userID string) (checkout.InitiateResult, error)
	InitiateIdempotent(ctx context.Context, userID, key string) (checkout.InitiateResult, bool, error)
	Verify(ctx context.Context, userID string, cb domain.PaymentCallback) (checkout.VerifyResult, error)
	Summary(ctx context.Context, userID string) (checkout.Summary, error)
	History(ctx context.Context, userID string) ([]domain.Order, error)
	AllOrders(ctx context.Context, limit int) ([]domain.Order, error)
}

// SessionParser проверяет заголовок Authorization.
type SessionParser interface {
	ParseBearer(header string) (auth.Session, error)
}

// Options задаёт необязательные параметры HTTP API.
type Options struct {
	RequestTimeout time.Duration
	Logger         *log.Entry
}

// Handler — HTTP API checkout поверх chi.
type Handler struct {
	svc      CheckoutService
	sessions SessionParser
	validate *validator.Validate
	logger   *log.Entry
	timeout  time.Duration
}

// NewHandler создаёт HTTP API.
func NewHandler(svc CheckoutService, sessions SessionParser, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Handler{
		svc:      svc,
		sessions: sessions,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		timeout:  timeout,
	}
}

// Router собирает маршруты с middleware и трассировкой otelhttp.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(h.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(h.timeout))

	r.Group(func(pr chi.Router) {
		pr.Use(h.authenticate)

		pr.Post("/checkout/initiate", h.handleInitiate)
		pr.Post("/checkout/verify", h.handleVerify)
		pr.Get("/checkout", h.handleSummary)
		pr.Get("/orders/history", h.handleHistory)

		pr.With(h.requireRole(auth.RoleAdmin)).Get("/admin/orders", h.handleAdminOrders)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, string(domain.KindNotFound), "route not found")
	})

	return otelhttp.NewHandler(r, "checkout.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
