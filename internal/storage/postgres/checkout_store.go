package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const cartSelect = `
	SELECT c.product_id, p.name, p.price, c.quantity
	FROM cart c
	JOIN products p ON p.product_id = c.product_id
	WHERE c.user_id = $1
	ORDER BY c.product_id ASC`

// ReadCart читает снимок корзины без блокировок.
func (s *Store) ReadCart(ctx context.Context, userID string) (domain.CartSnapshot, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	return readCart(ctx, s.db, cartSelect, userID)
}

// WithinTx выполняет fn в транзакции READ COMMITTED. Ошибка, паника или отмена ctx откатывают её.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.CheckoutTx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		_ = sqlTx.Rollback()
		if p := recover(); p != nil {
			panic(p)
		}
	}()

	if err := fn(ctx, &checkoutTx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// UpsertProduct добавляет товар в каталог и возвращает его идентификатор.
func (s *Store) UpsertProduct(ctx context.Context, name string, price decimal.Decimal) (int64, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var id int64
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, price) VALUES ($1, $2)
		RETURNING product_id
	`, name, price).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert product: %w", err)
	}
	return id, nil
}

// SetCartItem задаёт количество товара в корзине; qty <= 0 удаляет строку.
func (s *Store) SetCartItem(ctx context.Context, userID string, productID int64, qty int) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	if qty <= 0 {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM cart WHERE user_id = $1 AND product_id = $2`, userID, productID); err != nil {
			return fmt.Errorf("delete cart item: %w", err)
		}
		return nil
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO cart (user_id, product_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity
	`, userID, productID, qty); err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	return nil
}

type checkoutTx struct {
	tx *sql.Tx
}

func (t *checkoutTx) FindOrderByPayment(ctx context.Context, paymentID string) (domain.Order, error) {
	return selectOrder(ctx, t.tx, `WHERE payment_id = $1`, paymentID)
}

func (t *checkoutTx) LockCart(ctx context.Context, userID string) (domain.CartSnapshot, error) {
	// Блокируются только строки корзины: параллельная финализация того же пользователя ждёт коммита.
	return readCart(ctx, t.tx, cartSelect+` FOR UPDATE OF c`, userID)
}

func (t *checkoutTx) InsertOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	order.ID = uuid.NewString()
	order.Items = nil

	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO orders (order_id, user_id, total_amount, currency, status, intent_id, payment_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at
	`,
		order.ID, order.UserID, order.TotalAmount, order.Currency, string(order.Status),
		nullString(order.IntentID), nullString(order.PaymentID),
	).Scan(&order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Order{}, domain.ErrDuplicatePayment
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}
	order.CreatedAt = order.CreatedAt.UTC()
	return order, nil
}

func (t *checkoutTx) InsertOrderItems(ctx context.Context, orderID string, items []domain.OrderItem) ([]domain.OrderItem, error) {
	inserted := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		item.OrderID = orderID
		if err := t.tx.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, price_at_purchase)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, orderID, item.ProductID, item.Quantity, item.PriceAtPurchase).Scan(&item.ID); err != nil {
			return nil, fmt.Errorf("insert order item %d: %w", item.ProductID, err)
		}
		inserted = append(inserted, item)
	}
	return inserted, nil
}

func (t *checkoutTx) ClearCart(ctx context.Context, userID string) (int, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM cart WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete cart: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cart rows affected: %w", err)
	}
	return int(affected), nil
}

func (t *checkoutTx) EnqueueOutbox(ctx context.Context, msg domain.OutboxMessage) error {
	_, err := insertOutbox(ctx, t.tx, msg)
	return err
}

func readCart(ctx context.Context, q queryer, query, userID string) (domain.CartSnapshot, error) {
	if userID == "" {
		return domain.CartSnapshot{}, errors.New("user id is required")
	}

	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return domain.CartSnapshot{}, fmt.Errorf("select cart: %w", err)
	}
	defer rows.Close()

	snapshot := domain.CartSnapshot{UserID: userID}
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ProductID, &line.Name, &line.UnitPrice, &line.Quantity); err != nil {
			return domain.CartSnapshot{}, fmt.Errorf("scan cart line: %w", err)
		}
		snapshot.Lines = append(snapshot.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return domain.CartSnapshot{}, fmt.Errorf("iterate cart rows: %w", err)
	}
	return snapshot, nil
}

var _ domain.CheckoutStore = (*Store)(nil)
