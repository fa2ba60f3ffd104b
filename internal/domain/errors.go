package domain

import "errors"

var (
	// ErrEmptyCart — корзина пуста; заказ из пустой корзины не создаётся.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrGatewayUnavailable — платёжный шлюз недоступен или вернул ошибку; автоматических ретраев нет.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrMalformedCallback — в callback шлюза отсутствуют обязательные поля.
	ErrMalformedCallback = errors.New("malformed payment callback")
	// ErrSignatureMismatch — подпись callback не совпала с ожидаемой (событие безопасности).
	ErrSignatureMismatch = errors.New("payment signature mismatch")
	// ErrFinalizationFailed — транзакция фиксации заказа откатилась, состояние не изменилось.
	ErrFinalizationFailed = errors.New("order finalization failed")
	// ErrPaymentRecordedOrderMissing — деньги списаны, а заказ не записан; нужна ручная сверка.
	ErrPaymentRecordedOrderMissing = errors.New("payment captured, order not recorded")
	// ErrDuplicatePayment — заказ по этому payment_id уже существует.
	ErrDuplicatePayment = errors.New("order for payment already exists")
	// ErrAmountMismatch — пересчитанная сумма корзины не совпала с суммой платёжного намерения.
	ErrAmountMismatch = errors.New("recomputed amount does not match quoted amount")
	// ErrIntentOwnerMismatch — платёжное намерение создано другим пользователем.
	ErrIntentOwnerMismatch = errors.New("payment intent belongs to another user")
	// ErrIntentNotFound — намерение отсутствует в журнале (истёк TTL или не создавалось).
	ErrIntentNotFound = errors.New("payment intent not found")
	// ErrInvalidAmount — сумма к оплате должна быть положительной.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrUserRequired — не передан идентификатор пользователя.
	ErrUserRequired = errors.New("user_id is required")
	// ErrCurrencyRequired — не передан код валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// ErrItemsRequired — заказ должен содержать хотя бы одну позицию.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// ErrItemQtyInvalid — количество в позиции должно быть больше нуля.
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// ErrItemPriceInvalid — цена позиции не может быть отрицательной.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// ErrTotalMismatch — total_amount заказа не равен сумме позиций.
	ErrTotalMismatch = errors.New("order total does not match items sum")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ErrorKind — стабильный машиночитаемый код ошибки для транспорта и метрик.
type ErrorKind string

const (
	KindNone                        ErrorKind = ""
	KindEmptyCart                   ErrorKind = "empty_cart"
	KindGatewayUnavailable          ErrorKind = "gateway_unavailable"
	KindMalformedCallback           ErrorKind = "malformed_callback"
	KindSignatureMismatch           ErrorKind = "signature_mismatch"
	KindIntentOwnerMismatch         ErrorKind = "intent_owner_mismatch"
	KindFinalizationFailed          ErrorKind = "finalization_failed"
	KindPaymentRecordedOrderMissing ErrorKind = "payment_recorded_order_missing"
	KindIdempotencyConflict         ErrorKind = "idempotency_conflict"
	KindInvalidArgument             ErrorKind = "invalid_argument"
	KindNotFound                    ErrorKind = "not_found"
	KindInternal                    ErrorKind = "internal"
)

// Classify сводит ошибку к одному ErrorKind.
// Порядок проверок важен: тяжёлый случай "оплачено, но не записано" оборачивает
// исходную причину и должен распознаваться раньше неё.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrPaymentRecordedOrderMissing):
		return KindPaymentRecordedOrderMissing
	case errors.Is(err, ErrSignatureMismatch):
		return KindSignatureMismatch
	case errors.Is(err, ErrIntentOwnerMismatch):
		return KindIntentOwnerMismatch
	case errors.Is(err, ErrMalformedCallback):
		return KindMalformedCallback
	case errors.Is(err, ErrEmptyCart):
		return KindEmptyCart
	case errors.Is(err, ErrGatewayUnavailable):
		return KindGatewayUnavailable
	case errors.Is(err, ErrFinalizationFailed):
		return KindFinalizationFailed
	case IsIdempotencyConflict(err):
		return KindIdempotencyConflict
	case errors.Is(err, ErrIdempotencyKeyRequired),
		errors.Is(err, ErrUserRequired),
		errors.Is(err, ErrInvalidAmount):
		return KindInvalidArgument
	case errors.Is(err, ErrOrderNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

// IsSecurityEvent сообщает, что ошибку нужно логировать и считать как событие безопасности,
// а не как обычную ошибку валидации.
func IsSecurityEvent(err error) bool {
	return errors.Is(err, ErrSignatureMismatch) || errors.Is(err, ErrIntentOwnerMismatch)
}
