package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// CartReader читает снимок корзины вне транзакции.
type CartReader struct {
	store   domain.CartStore
	timeout time.Duration
}

// NewCartReader создаёт читателя; timeout <= 0 отключает собственный дедлайн.
func NewCartReader(store domain.CartStore, timeout time.Duration) *CartReader {
	return &CartReader{store: store, timeout: timeout}
}

// Read возвращает непустой снимок корзины или ErrEmptyCart.
func (r *CartReader) Read(ctx context.Context, userID string) (domain.CartSnapshot, error) {
	if userID == "" {
		return domain.CartSnapshot{}, domain.ErrUserRequired
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	snapshot, err := r.store.ReadCart(ctx, userID)
	if err != nil {
		return domain.CartSnapshot{}, fmt.Errorf("read cart: %w", err)
	}
	if snapshot.Empty() {
		return domain.CartSnapshot{}, domain.ErrEmptyCart
	}
	return snapshot, nil
}
