package domain

import (
	"context"
	"time"
)

// CartStore — внешнее хранилище корзин и товаров; ядро только читает из него вне транзакции.
type CartStore interface {
	// ReadCart возвращает снимок корзины, упорядоченный по product_id. Пустая корзина — не ошибка.
	ReadCart(ctx context.Context, userID string) (CartSnapshot, error)
}

// CheckoutTx — операции, доступные внутри одной транзакции финализации.
type CheckoutTx interface {
	// FindOrderByPayment ищет заказ по внешнему payment_id, иначе ErrOrderNotFound.
	FindOrderByPayment(ctx context.Context, paymentID string) (Order, error)
	// LockCart перечитывает корзину и блокирует её строки до конца транзакции.
	LockCart(ctx context.Context, userID string) (CartSnapshot, error)
	// InsertOrder вставляет заголовок заказа и возвращает его со сгенерированным ID.
	// Повтор payment_id возвращает ErrDuplicatePayment.
	InsertOrder(ctx context.Context, order Order) (Order, error)
	// InsertOrderItems вставляет позиции заказа.
	InsertOrderItems(ctx context.Context, orderID string, items []OrderItem) ([]OrderItem, error)
	// ClearCart удаляет все строки корзины пользователя и возвращает их число.
	ClearCart(ctx context.Context, userID string) (int, error)
	// EnqueueOutbox кладёт событие в outbox в рамках той же транзакции.
	EnqueueOutbox(ctx context.Context, msg OutboxMessage) error
}

// CheckoutStore объединяет чтение корзины и транзакционную финализацию.
type CheckoutStore interface {
	CartStore
	// WithinTx выполняет fn в одной транзакции: ошибка, паника или отмена ctx приводят к откату.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx CheckoutTx) error) error
}

// OrderRepository — чтение уже записанных заказов.
type OrderRepository interface {
	Get(ctx context.Context, id string) (Order, error)
	GetByPayment(ctx context.Context, paymentID string) (Order, error)
	// ListByUser возвращает заказы пользователя, новые первыми.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// ListAll возвращает все заказы, новые первыми.
	ListAll(ctx context.Context, limit int) ([]Order, error)
}

// PaymentGateway описывает внешний платёжный шлюз.
type PaymentGateway interface {
	// CreateIntent регистрирует платёжное намерение; вызывается ровно один раз на попытку.
	CreateIntent(ctx context.Context, req CreateIntentRequest) (PaymentIntent, error)
}

// IntentLedger — короткоживущий журнал выданных намерений (intent → пользователь, сумма).
type IntentLedger interface {
	Put(ctx context.Context, rec IntentRecord, ttl time.Duration) error
	// Get возвращает запись или ErrIntentNotFound.
	Get(ctx context.Context, intentID string) (IntentRecord, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// CheckoutStep задаёт константы шагов для метрик и логов.
type CheckoutStep string

const (
	CheckoutStepCartRead CheckoutStep = "cart_read"
	CheckoutStepGateway  CheckoutStep = "gateway"
	CheckoutStepVerify   CheckoutStep = "verify"
	CheckoutStepFinalize CheckoutStep = "finalize"
)
