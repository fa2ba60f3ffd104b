package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Signer выпускает подпись callback так же, как это делает настоящий шлюз.
type Signer interface {
	Sign(intentID, paymentID string) string
}

// MockGateway — конфигурируемая заглушка PaymentGateway для локальной разработки и тестов.
// Идентификаторы детерминированы: order_mock_<n> и pay_mock_<n>.
type MockGateway struct {
	mu sync.Mutex

	CreateErr error
	// QuoteDelta искажает сумму ответа, имитируя некорректный шлюз.
	QuoteDelta int64

	CreateCalls int
	LastRequest domain.CreateIntentRequest

	signer   Signer
	intents  int
	payments int
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию. signer может быть nil,
// тогда Pay недоступен.
func NewMockGateway(signer Signer) *MockGateway {
	return &MockGateway{signer: signer}
}

// CreateIntent возвращает намерение на запрошенную сумму и считает вызовы.
func (m *MockGateway) CreateIntent(ctx context.Context, req domain.CreateIntentRequest) (domain.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	m.LastRequest = req
	if err := ctx.Err(); err != nil {
		return domain.PaymentIntent{}, err
	}
	if m.CreateErr != nil {
		return domain.PaymentIntent{}, m.CreateErr
	}

	m.intents++
	return domain.PaymentIntent{
		IntentID:    fmt.Sprintf("order_mock_%d", m.intents),
		AmountMinor: req.AmountMinor + m.QuoteDelta,
		Currency:    req.Currency,
		Receipt:     req.Receipt,
	}, nil
}

// Pay имитирует успешную оплату в окне шлюза и возвращает подписанный callback.
func (m *MockGateway) Pay(intentID string) (domain.PaymentCallback, error) {
	if m.signer == nil {
		return domain.PaymentCallback{}, fmt.Errorf("mock gateway: signer is not configured")
	}

	m.mu.Lock()
	m.payments++
	paymentID := fmt.Sprintf("pay_mock_%d", m.payments)
	m.mu.Unlock()

	return domain.PaymentCallback{
		IntentID:  intentID,
		PaymentID: paymentID,
		Signature: m.signer.Sign(intentID, paymentID),
	}, nil
}

// Calls возвращает число вызовов CreateIntent.
func (m *MockGateway) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CreateCalls
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
