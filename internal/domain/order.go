package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает статус заказа. После создания заказ меняется только через статус.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid — оплата подтверждена шлюзом.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusFailed — оплата или исполнение заказа не удались.
	OrderStatusFailed OrderStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	ID        int64
	OrderID   string
	ProductID int64
	Quantity  int
	// PriceAtPurchase фиксируется в момент финализации и больше не пересчитывается.
	PriceAtPurchase decimal.Decimal
}

// Subtotal возвращает quantity × price_at_purchase.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.PriceAtPurchase.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order агрегирует заказ и его позиции.
type Order struct {
	ID          string
	UserID      string
	Status      OrderStatus
	Currency    string
	TotalAmount decimal.Decimal
	// IntentID и PaymentID — внешние ссылки платёжного шлюза; PaymentID уникален.
	IntentID  string
	PaymentID string
	Items     []OrderItem
	CreatedAt time.Time
}

// ItemsTotal считает сумму quantity × price_at_purchase по всем позициям.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceAtPurchase.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	if !o.TotalAmount.Equal(o.ItemsTotal()) {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}

// OrderFromSnapshot строит заказ из снимка корзины: сумма и цены берутся только из снимка.
func OrderFromSnapshot(snapshot CartSnapshot, status OrderStatus, currency string) Order {
	items := make([]OrderItem, 0, len(snapshot.Lines))
	for _, line := range snapshot.Lines {
		items = append(items, OrderItem{
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			PriceAtPurchase: line.UnitPrice,
		})
	}

	return Order{
		UserID:      snapshot.UserID,
		Status:      status,
		Currency:    currency,
		TotalAmount: snapshot.Total(),
		Items:       items,
	}
}
