package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

// Config — неизменяемые настройки оформления заказа, загружаются один раз при старте.
type Config struct {
	Currency          string
	MinorUnitExponent int32
	SigningSecret     string
	AmountPolicy      domain.AmountMismatchPolicy

	CartReadTimeout time.Duration
	GatewayTimeout  time.Duration
	FinalizeTimeout time.Duration

	IntentTTL      time.Duration
	IdempotencyTTL time.Duration
	HistoryLimit   int
}

// DefaultConfig возвращает настройки по умолчанию (INR, fail-closed при расхождении суммы).
func DefaultConfig() Config {
	return Config{
		Currency:          "INR",
		MinorUnitExponent: domain.DefaultMinorUnitExponent,
		AmountPolicy:      domain.AmountMismatchReject,
		CartReadTimeout:   3 * time.Second,
		GatewayTimeout:    10 * time.Second,
		FinalizeTimeout:   10 * time.Second,
		IntentTTL:         30 * time.Minute,
		IdempotencyTTL:    24 * time.Hour,
		HistoryLimit:      100,
	}
}

// Deps — внешние зависимости оркестратора. Ledger, Idempotency, Outbox и Metrics опциональны.
type Deps struct {
	Store       domain.CheckoutStore
	Orders      domain.OrderRepository
	Gateway     domain.PaymentGateway
	Ledger      domain.IntentLedger
	Idempotency domain.IdempotencyRepository
	Outbox      domain.OutboxRepository
	Metrics     *metrics.CheckoutMetrics
	Logger      *log.Entry
}

// InitiateResult — ответ фазы 1: данные для клиентского платёжного окна шлюза.
type InitiateResult struct {
	IntentID    string `json:"intent_id"`
	AmountMinor int64  `json:"amount_minor_units"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
}

// VerifyResult — ответ фазы 2.
type VerifyResult struct {
	Order    domain.Order
	Replayed bool
}

// Summary — содержимое корзины с итоговой суммой для страницы оформления.
type Summary struct {
	Lines       []domain.CartLine
	Total       decimal.Decimal
	AmountMinor int64
	Currency    string
	ItemCount   int
}

// Orchestrator связывает чтение корзины, шлюз, проверку подписи и финализацию в двухфазный поток.
// Между запросами состояние в памяти не разделяется: координация идёт через хранилище.
type Orchestrator struct {
	cfg         Config
	reader      *CartReader
	initiator   *GatewayInitiator
	verifier    *Verifier
	finalizer   *Finalizer
	orders      domain.OrderRepository
	ledger      domain.IntentLedger
	idempotency domain.IdempotencyRepository
	outbox      domain.OutboxRepository
	metrics     *metrics.CheckoutMetrics
	logger      *log.Entry
	now         func() time.Time
}

// NewOrchestrator проверяет зависимости и собирает оркестратор.
func NewOrchestrator(deps Deps, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("checkout store is required")
	case deps.Orders == nil:
		return nil, errors.New("order repository is required")
	case deps.Gateway == nil:
		return nil, errors.New("payment gateway is required")
	case cfg.SigningSecret == "":
		return nil, errors.New("signing secret is required")
	case cfg.Currency == "":
		return nil, domain.ErrCurrencyRequired
	}
	if cfg.AmountPolicy == "" {
		cfg.AmountPolicy = domain.AmountMismatchReject
	}
	if !cfg.AmountPolicy.Valid() {
		return nil, fmt.Errorf("unknown amount mismatch policy %q", cfg.AmountPolicy)
	}

	logger := deps.Logger
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}

	return &Orchestrator{
		cfg:       cfg,
		reader:    NewCartReader(deps.Store, cfg.CartReadTimeout),
		initiator: NewGatewayInitiator(deps.Gateway, cfg.Currency, cfg.MinorUnitExponent, cfg.GatewayTimeout),
		verifier:  NewVerifier(cfg.SigningSecret),
		finalizer: NewFinalizer(
			deps.Store,
			cfg.Currency,
			cfg.MinorUnitExponent,
			cfg.AmountPolicy,
			cfg.FinalizeTimeout,
			logger.WithField("component", "order-finalizer"),
			deps.Metrics,
		),
		orders:      deps.Orders,
		ledger:      deps.Ledger,
		idempotency: deps.Idempotency,
		outbox:      deps.Outbox,
		metrics:     deps.Metrics,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Verifier возвращает проверяющего подписи (нужен mock-шлюзу и тестам для выпуска подписей).
func (o *Orchestrator) Verifier() *Verifier {
	return o.verifier
}

// Initiate — фаза 1: снимок корзины → намерение в шлюзе. Пустая корзина не доходит до шлюза.
func (o *Orchestrator) Initiate(ctx context.Context, userID string) (InitiateResult, error) {
	if userID == "" {
		return InitiateResult{}, domain.ErrUserRequired
	}
	o.metrics.InFlightStarted()
	defer o.metrics.InFlightFinished()

	logger := o.logger.WithField("user_id", userID)
	a := o.newAttempt(domain.CheckoutStateNone, "initiate", logger)

	start := time.Now()
	snapshot, err := o.reader.Read(ctx, userID)
	o.metrics.RecordStepDuration(string(domain.CheckoutStepCartRead), time.Since(start))
	if err != nil {
		a.fail(err)
		return InitiateResult{}, err
	}

	receipt := buildReceipt(userID, o.now())
	start = time.Now()
	intent, err := o.initiator.Initiate(ctx, snapshot.Total(), receipt)
	o.metrics.RecordStepDuration(string(domain.CheckoutStepGateway), time.Since(start))
	if err != nil {
		a.fail(err)
		return InitiateResult{}, err
	}

	if o.ledger != nil {
		rec := domain.IntentRecord{
			IntentID:    intent.IntentID,
			UserID:      userID,
			AmountMinor: intent.AmountMinor,
			Currency:    intent.Currency,
			Receipt:     intent.Receipt,
			CreatedAt:   o.now().UTC(),
		}
		if err := o.ledger.Put(ctx, rec, o.cfg.IntentTTL); err != nil {
			// Журнал вспомогательный: без записи verify работает по исходному сценарию.
			logger.WithError(err).WithField("intent_id", intent.IntentID).Warn("failed to record payment intent")
		}
	}

	a.moveTo(domain.CheckoutStateInitiated)
	o.metrics.RecordInitiated()
	logger.WithFields(log.Fields{
		"intent_id":    intent.IntentID,
		"amount_minor": intent.AmountMinor,
		"currency":     intent.Currency,
	}).Info("payment intent created")

	return InitiateResult{
		IntentID:    intent.IntentID,
		AmountMinor: intent.AmountMinor,
		Currency:    intent.Currency,
		Receipt:     intent.Receipt,
	}, nil
}

// InitiateIdempotent повторяет ответ Initiate для того же Idempotency-Key вместо создания второго намерения.
// replayed=true, если ответ взят из сохранённой записи.
func (o *Orchestrator) InitiateIdempotent(ctx context.Context, userID, key string) (InitiateResult, bool, error) {
	if o.idempotency == nil || key == "" {
		res, err := o.Initiate(ctx, userID)
		return res, false, err
	}
	if userID == "" {
		return InitiateResult{}, false, domain.ErrUserRequired
	}

	storageKey := userID + ":" + key
	requestHash := hashRequest("initiate", userID)
	ttlAt := o.now().UTC().Add(o.cfg.IdempotencyTTL)

	record, err := o.idempotency.CreateProcessing(ctx, storageKey, requestHash, ttlAt)
	if err != nil {
		if errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) && record.Status == domain.IdempotencyStatusDone {
			var res InitiateResult
			if uerr := json.Unmarshal(record.ResponseBody, &res); uerr != nil {
				return InitiateResult{}, false, fmt.Errorf("decode stored response: %w", uerr)
			}
			return res, true, nil
		}
		return InitiateResult{}, false, err
	}

	res, err := o.Initiate(ctx, userID)
	// Ответ сохраняем даже если клиент уже отключился.
	saveCtx := context.WithoutCancel(ctx)
	if err != nil {
		body, _ := json.Marshal(map[string]string{"code": string(domain.Classify(err)), "message": err.Error()})
		if merr := o.idempotency.MarkFailed(saveCtx, storageKey, body, 0); merr != nil {
			o.logger.WithError(merr).WithField("idempotency_key", key).Warn("failed to mark idempotency key as failed")
		}
		return InitiateResult{}, false, err
	}

	body, err := json.Marshal(res)
	if err != nil {
		return InitiateResult{}, false, fmt.Errorf("encode response: %w", err)
	}
	if merr := o.idempotency.MarkDone(saveCtx, storageKey, body, 201); merr != nil {
		o.logger.WithError(merr).WithField("idempotency_key", key).Warn("failed to mark idempotency key as done")
	}
	return res, false, nil
}

// Verify — фаза 2: подпись → (журнал намерений) → финализация.
// После успешной проверки подписи деньги уже списаны, поэтому любая неудача
// финализации без существующего заказа превращается в ErrPaymentRecordedOrderMissing.
func (o *Orchestrator) Verify(ctx context.Context, userID string, cb domain.PaymentCallback) (VerifyResult, error) {
	if userID == "" {
		return VerifyResult{}, domain.ErrUserRequired
	}
	o.metrics.InFlightStarted()
	defer o.metrics.InFlightFinished()

	logger := o.logger.WithFields(log.Fields{
		"user_id":    userID,
		"intent_id":  cb.IntentID,
		"payment_id": cb.PaymentID,
	})
	a := o.newAttempt(domain.CheckoutStateInitiated, "verify", logger)

	start := time.Now()
	err := o.verifier.Verify(cb)
	o.metrics.RecordStepDuration(string(domain.CheckoutStepVerify), time.Since(start))
	if err != nil {
		if errors.Is(err, domain.ErrSignatureMismatch) {
			o.metrics.RecordSignatureMismatch()
			logger.WithField("security_event", true).Warn("payment callback rejected: signature mismatch")
		}
		a.fail(err)
		return VerifyResult{}, err
	}

	expected, err := o.expectedAmount(ctx, userID, cb.IntentID, logger)
	if err != nil {
		a.fail(err)
		return VerifyResult{}, err
	}
	a.moveTo(domain.CheckoutStateVerified)

	start = time.Now()
	order, err := o.finalizer.Finalize(ctx, FinalizeRequest{
		UserID:              userID,
		Status:              domain.OrderStatusPaid,
		IntentID:            cb.IntentID,
		PaymentID:           cb.PaymentID,
		ExpectedAmountMinor: expected,
	})
	o.metrics.RecordStepDuration(string(domain.CheckoutStepFinalize), time.Since(start))

	switch {
	case err == nil:
		a.moveTo(domain.CheckoutStateFinalized)
		o.metrics.RecordFinalized(false)
		logger.WithFields(log.Fields{
			"order_id":     order.ID,
			"total_amount": order.TotalAmount.StringFixed(2),
		}).Info("order finalized")
		return VerifyResult{Order: order}, nil

	case errors.Is(err, domain.ErrDuplicatePayment):
		return o.replay(a, userID, order, logger)

	case errors.Is(err, domain.ErrEmptyCart):
		// Корзину могла очистить параллельная финализация того же платежа.
		existing, lerr := o.orders.GetByPayment(context.WithoutCancel(ctx), cb.PaymentID)
		if lerr == nil {
			return o.replay(a, userID, existing, logger)
		}
		if !errors.Is(lerr, domain.ErrOrderNotFound) {
			logger.WithError(lerr).Error("failed to look up order by payment after empty cart")
		}
		return VerifyResult{}, o.paymentUnrecorded(ctx, a, userID, cb, err, logger)

	default:
		return VerifyResult{}, o.paymentUnrecorded(ctx, a, userID, cb, err, logger)
	}
}

// Summary возвращает содержимое корзины с итогом. Пустая корзина даёт нулевой итог без ошибки:
// ErrEmptyCart относится только к Initiate.
func (o *Orchestrator) Summary(ctx context.Context, userID string) (Summary, error) {
	snapshot, err := o.reader.Read(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrEmptyCart) {
		return Summary{}, err
	}
	minor, err := domain.ToMinorUnits(snapshot.Total(), o.cfg.MinorUnitExponent)
	if err != nil {
		return Summary{}, err
	}
	lines := snapshot.Lines
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return Summary{
		Lines:       lines,
		Total:       domain.FromMinorUnits(minor, o.cfg.MinorUnitExponent),
		AmountMinor: minor,
		Currency:    o.cfg.Currency,
		ItemCount:   snapshot.ItemCount(),
	}, nil
}

// History возвращает заказы пользователя, новые первыми.
func (o *Orchestrator) History(ctx context.Context, userID string) ([]domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrUserRequired
	}
	return o.orders.ListByUser(ctx, userID, o.cfg.HistoryLimit)
}

// AllOrders возвращает все заказы для административного просмотра.
func (o *Orchestrator) AllOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 || limit > o.cfg.HistoryLimit {
		limit = o.cfg.HistoryLimit
	}
	return o.orders.ListAll(ctx, limit)
}

func (o *Orchestrator) expectedAmount(ctx context.Context, userID, intentID string, logger *log.Entry) (*int64, error) {
	if o.ledger == nil {
		return nil, nil
	}

	rec, err := o.ledger.Get(ctx, intentID)
	switch {
	case errors.Is(err, domain.ErrIntentNotFound):
		logger.Warn("payment intent not found in ledger, amount check skipped")
		return nil, nil
	case err != nil:
		logger.WithError(err).Warn("intent ledger unavailable, amount check skipped")
		return nil, nil
	}

	if rec.UserID != userID {
		o.metrics.RecordOwnerMismatch()
		logger.WithFields(log.Fields{
			"security_event": true,
			"intent_owner":   rec.UserID,
		}).Warn("payment callback rejected: intent belongs to another user")
		return nil, domain.ErrIntentOwnerMismatch
	}

	amount := rec.AmountMinor
	return &amount, nil
}

func (o *Orchestrator) replay(a *attempt, userID string, order domain.Order, logger *log.Entry) (VerifyResult, error) {
	if order.UserID != userID {
		o.metrics.RecordOwnerMismatch()
		logger.WithFields(log.Fields{
			"security_event": true,
			"order_id":       order.ID,
		}).Warn("payment already recorded for another user")
		a.fail(domain.ErrIntentOwnerMismatch)
		return VerifyResult{}, domain.ErrIntentOwnerMismatch
	}

	// FINALIZED для этой пары уже достигнут первой попыткой; повтор не переходит в него снова.
	o.metrics.RecordFinalized(true)
	logger.WithField("order_id", order.ID).Info("payment already finalized, returning existing order")
	return VerifyResult{Order: order, Replayed: true}, nil
}

func (o *Orchestrator) paymentUnrecorded(
	ctx context.Context,
	a *attempt,
	userID string,
	cb domain.PaymentCallback,
	cause error,
	logger *log.Entry,
) error {
	err := fmt.Errorf("%w: %w", domain.ErrPaymentRecordedOrderMissing, cause)
	o.metrics.RecordPaymentRecordedOrderMissing()
	logger.WithError(cause).WithField("severity", "critical").
		Error("payment captured but order was not recorded, manual reconciliation required")
	a.fail(err)

	if o.outbox != nil {
		payload, merr := json.Marshal(kafka.NewPaymentUnrecordedEvent(userID, cb.IntentID, cb.PaymentID, cause.Error()))
		if merr == nil {
			_, merr = o.outbox.Enqueue(context.WithoutCancel(ctx), domain.OutboxMessage{
				AggregateType: "payment",
				AggregateID:   cb.PaymentID,
				EventType:     string(kafka.EventTypePaymentUnrecorded),
				Payload:       payload,
			})
		}
		if merr != nil {
			logger.WithError(merr).Error("failed to enqueue reconciliation event")
		}
	}
	return err
}

// attempt отслеживает состояние одной попытки. Живёт только в рамках запроса.
type attempt struct {
	state   domain.CheckoutState
	phase   string
	metrics *metrics.CheckoutMetrics
	logger  *log.Entry
}

func (o *Orchestrator) newAttempt(state domain.CheckoutState, phase string, logger *log.Entry) *attempt {
	return &attempt{state: state, phase: phase, metrics: o.metrics, logger: logger}
}

func (a *attempt) moveTo(next domain.CheckoutState) {
	if !a.state.CanTransitionTo(next) {
		a.logger.WithFields(log.Fields{
			"from": a.state.String(),
			"to":   next.String(),
		}).Error("illegal checkout state transition")
		return
	}
	a.metrics.RecordTransition(a.state.String(), next.String())
	a.logger.WithFields(log.Fields{
		"from": a.state.String(),
		"to":   next.String(),
	}).Debug("checkout state changed")
	a.state = next
}

func (a *attempt) fail(err error) {
	kind := domain.Classify(err)
	a.metrics.RecordFailed(a.phase, string(kind))
	a.moveTo(domain.CheckoutStateFailed)

	entry := a.logger.WithError(err).WithField("error_kind", kind)
	switch kind {
	case domain.KindEmptyCart, domain.KindMalformedCallback:
		entry.Info("checkout attempt failed")
	case domain.KindPaymentRecordedOrderMissing:
		// уже залогировано с severity=critical
	default:
		entry.Warn("checkout attempt failed")
	}
}

// buildReceipt формирует receipt_<user>_<millis>. Шлюз ограничивает длину 40 символами,
// поэтому длинный идентификатор пользователя заменяется префиксом его хэша.
func buildReceipt(userID string, now time.Time) string {
	receipt := fmt.Sprintf("receipt_%s_%d", userID, now.UnixMilli())
	if len(receipt) <= maxReceiptLen {
		return receipt
	}
	sum := sha256.Sum256([]byte(userID))
	return fmt.Sprintf("receipt_%s_%d", hex.EncodeToString(sum[:])[:12], now.UnixMilli())
}

const maxReceiptLen = 40

func hashRequest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
