package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// GatewayInitiator создаёт платёжное намерение на стороне шлюза. Ретраев нет:
// при ошибке пользователь начинает оформление заново и корзина перечитывается.
type GatewayInitiator struct {
	gateway  domain.PaymentGateway
	currency string
	exponent int32
	timeout  time.Duration
}

// NewGatewayInitiator создаёт инициатор для заданной валюты.
func NewGatewayInitiator(gateway domain.PaymentGateway, currency string, exponent int32, timeout time.Duration) *GatewayInitiator {
	return &GatewayInitiator{
		gateway:  gateway,
		currency: currency,
		exponent: exponent,
		timeout:  timeout,
	}
}

// Initiate переводит сумму в минимальные единицы и регистрирует намерение с захватом в один шаг.
func (i *GatewayInitiator) Initiate(ctx context.Context, total decimal.Decimal, receipt string) (domain.PaymentIntent, error) {
	if !total.IsPositive() {
		return domain.PaymentIntent{}, domain.ErrInvalidAmount
	}
	amountMinor, err := domain.ToMinorUnits(total, i.exponent)
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("%w: %w", domain.ErrInvalidAmount, err)
	}
	if amountMinor <= 0 {
		return domain.PaymentIntent{}, domain.ErrInvalidAmount
	}

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	intent, err := i.gateway.CreateIntent(ctx, domain.CreateIntentRequest{
		AmountMinor: amountMinor,
		Currency:    i.currency,
		Receipt:     receipt,
		Capture:     true,
	})
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
	}
	if intent.IntentID == "" {
		return domain.PaymentIntent{}, fmt.Errorf("%w: gateway returned empty intent id", domain.ErrGatewayUnavailable)
	}
	if intent.AmountMinor != amountMinor {
		return domain.PaymentIntent{}, fmt.Errorf("%w: gateway quoted %d, requested %d",
			domain.ErrGatewayUnavailable, intent.AmountMinor, amountMinor)
	}
	if intent.Currency == "" {
		intent.Currency = i.currency
	}
	if intent.Receipt == "" {
		intent.Receipt = receipt
	}

	return intent, nil
}
