package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (s *Store) Get(ctx context.Context, id string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// GetByPayment ищет заказ по внешнему payment_id.
func (s *Store) GetByPayment(ctx context.Context, paymentID string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPayment[paymentID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(s.orders[id]), nil
}

// ListByUser возвращает заказы пользователя, ограничивая выборку limit (если >0).
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	return s.list(ctx, limit, func(o domain.Order) bool { return o.UserID == userID })
}

// ListAll возвращает все заказы, новые первыми.
func (s *Store) ListAll(ctx context.Context, limit int) ([]domain.Order, error) {
	return s.list(ctx, limit, func(domain.Order) bool { return true })
}

func (s *Store) list(ctx context.Context, limit int, match func(domain.Order) bool) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if !match(order) {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

var _ domain.OrderRepository = (*Store)(nil)
