package domain

import "time"

// PaymentIntent — платёжное намерение, созданное на стороне шлюза.
// Сам сервис его не хранит: идентификатор ходит через клиента и шлюз.
type PaymentIntent struct {
	IntentID    string
	AmountMinor int64
	Currency    string
	Receipt     string
}

// PaymentCallback — данные, которые клиент получает от шлюза после оплаты.
type PaymentCallback struct {
	IntentID  string
	PaymentID string
	Signature string
}

// Complete сообщает, что все обязательные поля заполнены.
func (c PaymentCallback) Complete() bool {
	return c.IntentID != "" && c.PaymentID != "" && c.Signature != ""
}

// CreateIntentRequest — запрос к шлюзу на создание намерения с захватом в один шаг.
type CreateIntentRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Capture     bool
}

// IntentRecord — запись журнала намерений: кто и на какую сумму инициировал оплату.
type IntentRecord struct {
	IntentID    string    `json:"intent_id"`
	UserID      string    `json:"user_id"`
	AmountMinor int64     `json:"amount_minor"`
	Currency    string    `json:"currency"`
	Receipt     string    `json:"receipt"`
	CreatedAt   time.Time `json:"created_at"`
}

// AmountMismatchPolicy определяет реакцию на расхождение суммы намерения и пересчитанной корзины.
type AmountMismatchPolicy string

const (
	// AmountMismatchReject откатывает финализацию при расхождении.
	AmountMismatchReject AmountMismatchPolicy = "reject"
	// AmountMismatchAccept принимает пересчитанную сумму и только логирует расхождение.
	AmountMismatchAccept AmountMismatchPolicy = "accept"
)

// Valid проверяет, что политика известна.
func (p AmountMismatchPolicy) Valid() bool {
	return p == AmountMismatchReject || p == AmountMismatchAccept
}
