package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

const testSecret = "test-signing-secret"

// seedStore создаёт корзину на 599.50: 2 x 250.00 + 1 x 99.50.
func seedStore(t *testing.T) (*memory.Store, *memory.OutboxRepository) {
	t.Helper()

	outbox := memory.NewOutboxRepository()
	store := memory.NewStore(outbox)
	store.PutProduct(1, "Keyboard", decimal.RequireFromString("250.00"))
	store.PutProduct(2, "Mouse", decimal.RequireFromString("99.50"))
	store.SetCartItem("user-1", 1, 2)
	store.SetCartItem("user-1", 2, 1)
	return store, outbox
}

func newTestLogger() (*log.Entry, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	return logger.WithField("component", "checkout-test"), hook
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelsMatch(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	for key, want := range labels {
		found := false
		for _, pair := range metric.GetLabel() {
			if pair.GetName() == key && pair.GetValue() == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// faultyStore подменяет один шаг транзакции, чтобы проверить откат.
type faultyStore struct {
	*memory.Store
	failClear error
}

func (s *faultyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.CheckoutTx) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx domain.CheckoutTx) error {
		return fn(ctx, &faultyTx{CheckoutTx: tx, store: s})
	})
}

type faultyTx struct {
	domain.CheckoutTx
	store *faultyStore
}

func (tx *faultyTx) ClearCart(ctx context.Context, userID string) (int, error) {
	if tx.store.failClear != nil {
		return 0, tx.store.failClear
	}
	return tx.CheckoutTx.ClearCart(ctx, userID)
}

var errInjected = errors.New("injected failure")
