package kafka

import (
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// EventType определяет тип события
type EventType string

const (
	// EventTypeOrderPlaced — заказ записан и корзина очищена в одной транзакции.
	EventTypeOrderPlaced EventType = "order.placed"
	// EventTypePaymentUnrecorded — шлюз списал деньги, а заказ не записан; нужен reconcile.
	EventTypePaymentUnrecorded EventType = "payment.unrecorded"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "checkout.order-events"
	TopicDeadLetterQueue = "checkout.order-events.dlq"
)

// Kafka headers для сообщений из outbox
const (
	HeaderEventType     = "x-event-type"
	HeaderOutboxID      = "x-outbox-id"
	HeaderOriginalTopic = "x-original-topic"
)

// AggregateOrder — тип агрегата для событий заказа в outbox.
const AggregateOrder = "order"

// OrderPlacedItem — позиция заказа в событии.
type OrderPlacedItem struct {
	ProductID       int64  `json:"product_id"`
	Quantity        int    `json:"quantity"`
	PriceAtPurchase string `json:"price_at_purchase"`
}

// OrderPlacedEvent публикуется после успешной финализации заказа.
type OrderPlacedEvent struct {
	EventType   EventType         `json:"event_type"`
	OrderID     string            `json:"order_id"`
	UserID      string            `json:"user_id"`
	Status      string            `json:"status"`
	TotalAmount string            `json:"total_amount"`
	Currency    string            `json:"currency"`
	IntentID    string            `json:"intent_id"`
	PaymentID   string            `json:"payment_id"`
	Items       []OrderPlacedItem `json:"items"`
	Timestamp   time.Time         `json:"timestamp"`
}

// PaymentUnrecordedEvent — сигнал для ручной сверки списания без заказа.
type PaymentUnrecordedEvent struct {
	EventType EventType `json:"event_type"`
	UserID    string    `json:"user_id"`
	IntentID  string    `json:"intent_id"`
	PaymentID string    `json:"payment_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewOrderPlacedEvent строит событие из записанного заказа. Суммы передаются строками без потери точности.
func NewOrderPlacedEvent(order domain.Order) *OrderPlacedEvent {
	items := make([]OrderPlacedItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderPlacedItem{
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			PriceAtPurchase: item.PriceAtPurchase.StringFixed(2),
		})
	}

	return &OrderPlacedEvent{
		EventType:   EventTypeOrderPlaced,
		OrderID:     order.ID,
		UserID:      order.UserID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount.StringFixed(2),
		Currency:    order.Currency,
		IntentID:    order.IntentID,
		PaymentID:   order.PaymentID,
		Items:       items,
		Timestamp:   time.Now().UTC(),
	}
}

// NewPaymentUnrecordedEvent создаёт событие для сверки.
func NewPaymentUnrecordedEvent(userID, intentID, paymentID, reason string) *PaymentUnrecordedEvent {
	return &PaymentUnrecordedEvent{
		EventType: EventTypePaymentUnrecorded,
		UserID:    userID,
		IntentID:  intentID,
		PaymentID: paymentID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}
