package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

// FinalizeRequest описывает фиксацию заказа после подтверждённой оплаты.
type FinalizeRequest struct {
	UserID    string
	Status    domain.OrderStatus
	IntentID  string
	PaymentID string
	// ExpectedAmountMinor — сумма намерения, если она известна; nil отключает сверку.
	ExpectedAmountMinor *int64
}

// Finalizer записывает заказ и очищает корзину в одной транзакции.
type Finalizer struct {
	store    domain.CheckoutStore
	currency string
	exponent int32
	policy   domain.AmountMismatchPolicy
	timeout  time.Duration
	logger   *log.Entry
	metrics  *metrics.CheckoutMetrics
}

// NewFinalizer создаёт финализатор. Пустая политика трактуется как reject.
func NewFinalizer(
	store domain.CheckoutStore,
	currency string,
	exponent int32,
	policy domain.AmountMismatchPolicy,
	timeout time.Duration,
	logger *log.Entry,
	m *metrics.CheckoutMetrics,
) *Finalizer {
	if logger == nil {
		logger = log.New().WithField("component", "order-finalizer")
	}
	if policy == "" {
		policy = domain.AmountMismatchReject
	}
	return &Finalizer{
		store:    store,
		currency: currency,
		exponent: exponent,
		policy:   policy,
		timeout:  timeout,
		logger:   logger,
		metrics:  m,
	}
}

// Finalize выполняет: проверку payment_id → перечитывание и блокировку корзины → расчёт суммы →
// вставку заказа и позиций → очистку корзины → событие в outbox → коммит.
//
// ErrEmptyCart, ErrDuplicatePayment и ErrAmountMismatch возвращаются как есть; при
// ErrDuplicatePayment вместе с ошибкой возвращается уже существующий заказ.
// Остальные ошибки оборачиваются в ErrFinalizationFailed. В любом случае ошибки транзакция откатывается.
func (f *Finalizer) Finalize(ctx context.Context, req FinalizeRequest) (domain.Order, error) {
	if req.UserID == "" {
		return domain.Order{}, domain.ErrUserRequired
	}
	if req.Status == "" {
		req.Status = domain.OrderStatusPaid
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	var result domain.Order
	err := f.store.WithinTx(ctx, func(ctx context.Context, tx domain.CheckoutTx) error {
		if req.PaymentID != "" {
			existing, err := tx.FindOrderByPayment(ctx, req.PaymentID)
			switch {
			case err == nil:
				result = existing
				return domain.ErrDuplicatePayment
			case !errors.Is(err, domain.ErrOrderNotFound):
				return fmt.Errorf("check payment reference: %w", err)
			}
		}

		snapshot, err := tx.LockCart(ctx, req.UserID)
		if err != nil {
			return fmt.Errorf("lock cart: %w", err)
		}
		if snapshot.Empty() {
			return domain.ErrEmptyCart
		}
		snapshot.UserID = req.UserID

		order := domain.OrderFromSnapshot(snapshot, req.Status, f.currency)
		order.IntentID = req.IntentID
		order.PaymentID = req.PaymentID

		if err := f.checkAmount(order, req); err != nil {
			return err
		}

		created, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		items, err := tx.InsertOrderItems(ctx, created.ID, order.Items)
		if err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
		created.Items = items

		if errs := created.ValidateInvariants(); len(errs) > 0 {
			return fmt.Errorf("order invariants: %w", errors.Join(errs...))
		}

		if _, err := tx.ClearCart(ctx, req.UserID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		payload, err := json.Marshal(kafka.NewOrderPlacedEvent(created))
		if err != nil {
			return fmt.Errorf("marshal order event: %w", err)
		}
		if err := tx.EnqueueOutbox(ctx, domain.OutboxMessage{
			AggregateType: kafka.AggregateOrder,
			AggregateID:   created.ID,
			EventType:     string(kafka.EventTypeOrderPlaced),
			Payload:       payload,
		}); err != nil {
			return fmt.Errorf("enqueue order event: %w", err)
		}

		result = created
		return nil
	})

	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, domain.ErrDuplicatePayment):
		return result, err
	case errors.Is(err, domain.ErrEmptyCart), errors.Is(err, domain.ErrAmountMismatch):
		return domain.Order{}, err
	default:
		return domain.Order{}, fmt.Errorf("%w: %w", domain.ErrFinalizationFailed, err)
	}
}

func (f *Finalizer) checkAmount(order domain.Order, req FinalizeRequest) error {
	if req.ExpectedAmountMinor == nil {
		return nil
	}
	recomputed, err := domain.ToMinorUnits(order.TotalAmount, f.exponent)
	if err != nil {
		return fmt.Errorf("convert total: %w", err)
	}
	if recomputed == *req.ExpectedAmountMinor {
		return nil
	}

	f.metrics.RecordAmountMismatch(string(f.policy))
	entry := f.logger.WithFields(log.Fields{
		"user_id":          req.UserID,
		"intent_id":        req.IntentID,
		"payment_id":       req.PaymentID,
		"quoted_minor":     *req.ExpectedAmountMinor,
		"recomputed_minor": recomputed,
		"policy":           f.policy,
	})
	if f.policy == domain.AmountMismatchAccept {
		entry.Warn("recomputed cart total differs from quoted amount, accepting recomputed total")
		return nil
	}
	entry.Error("recomputed cart total differs from quoted amount, rejecting finalization")
	return fmt.Errorf("%w: quoted %d, recomputed %d", domain.ErrAmountMismatch, *req.ExpectedAmountMinor, recomputed)
}
