package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type product struct {
	id    int64
	name  string
	price decimal.Decimal
}

// Store — in-memory реализация корзин, товаров и заказов для локальной разработки и тестов.
// Транзакция держит эксклюзивную блокировку до коммита, поэтому финализации сериализуются.
type Store struct {
	mu         sync.RWMutex
	products   map[int64]product
	carts      map[string]map[int64]int
	orders     map[string]domain.Order
	byPayment  map[string]string
	nextItemID int64
	outbox     *OutboxRepository
}

// NewStore создаёт пустое хранилище. outbox может быть nil — тогда события не сохраняются.
func NewStore(outbox *OutboxRepository) *Store {
	return &Store{
		products:  make(map[int64]product),
		carts:     make(map[string]map[int64]int),
		orders:    make(map[string]domain.Order),
		byPayment: make(map[string]string),
		outbox:    outbox,
	}
}

// PutProduct добавляет или обновляет товар каталога.
func (s *Store) PutProduct(id int64, name string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id] = product{id: id, name: name, price: price}
}

// SetCartItem задаёт количество товара в корзине; qty <= 0 удаляет строку.
func (s *Store) SetCartItem(userID string, productID int64, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[userID]
	if !ok {
		cart = make(map[int64]int)
		s.carts[userID] = cart
	}
	if qty <= 0 {
		delete(cart, productID)
		return
	}
	cart[productID] = qty
}

// ReadCart возвращает снимок корзины без блокировки строк.
func (s *Store) ReadCart(ctx context.Context, userID string) (domain.CartSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.CartSnapshot{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshotLocked(userID), nil
}

func (s *Store) snapshotLocked(userID string) domain.CartSnapshot {
	snapshot := domain.CartSnapshot{UserID: userID}
	for productID, qty := range s.carts[userID] {
		p, ok := s.products[productID]
		if !ok {
			// Как и JOIN в SQL: строка без товара в выборку не попадает.
			continue
		}
		snapshot.Lines = append(snapshot.Lines, domain.CartLine{
			ProductID: p.id,
			Name:      p.name,
			UnitPrice: p.price,
			Quantity:  qty,
		})
	}
	sort.Slice(snapshot.Lines, func(i, j int) bool {
		return snapshot.Lines[i].ProductID < snapshot.Lines[j].ProductID
	})
	return snapshot
}

// WithinTx выполняет fn под эксклюзивной блокировкой. Изменения копятся в tx
// и применяются только если fn вернул nil, а ctx не отменён.
// fn не должен вызывать методы Store напрямую.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.CheckoutTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store:   s,
		cleared: make(map[string]bool),
		orders:  make(map[string]domain.Order),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx.commitLocked(ctx)
	return nil
}

type memoryTx struct {
	store   *Store
	cleared map[string]bool
	orders  map[string]domain.Order
	outbox  []domain.OutboxMessage
}

func (tx *memoryTx) FindOrderByPayment(ctx context.Context, paymentID string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	for _, order := range tx.orders {
		if order.PaymentID == paymentID {
			return cloneOrder(order), nil
		}
	}
	if id, ok := tx.store.byPayment[paymentID]; ok {
		return cloneOrder(tx.store.orders[id]), nil
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

func (tx *memoryTx) LockCart(ctx context.Context, userID string) (domain.CartSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.CartSnapshot{}, err
	}
	if tx.cleared[userID] {
		return domain.CartSnapshot{UserID: userID}, nil
	}
	return tx.store.snapshotLocked(userID), nil
}

func (tx *memoryTx) InsertOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	if order.PaymentID != "" {
		if _, err := tx.FindOrderByPayment(ctx, order.PaymentID); err == nil {
			return domain.Order{}, domain.ErrDuplicatePayment
		}
	}

	order.ID = uuid.NewString()
	order.CreatedAt = time.Now().UTC()
	order.Items = nil
	tx.orders[order.ID] = order
	return cloneOrder(order), nil
}

func (tx *memoryTx) InsertOrderItems(ctx context.Context, orderID string, items []domain.OrderItem) ([]domain.OrderItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	order, ok := tx.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}

	inserted := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		tx.store.nextItemID++
		item.ID = tx.store.nextItemID
		item.OrderID = orderID
		inserted = append(inserted, item)
	}
	order.Items = append(order.Items, inserted...)
	tx.orders[orderID] = order
	return append([]domain.OrderItem(nil), inserted...), nil
}

func (tx *memoryTx) ClearCart(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if tx.cleared[userID] {
		return 0, nil
	}
	tx.cleared[userID] = true
	return len(tx.store.carts[userID]), nil
}

func (tx *memoryTx) EnqueueOutbox(ctx context.Context, msg domain.OutboxMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.outbox = append(tx.outbox, msg)
	return nil
}

func (tx *memoryTx) commitLocked(ctx context.Context) {
	s := tx.store
	for userID := range tx.cleared {
		delete(s.carts, userID)
	}
	for id, order := range tx.orders {
		s.orders[id] = order
		if order.PaymentID != "" {
			s.byPayment[order.PaymentID] = id
		}
	}
	if s.outbox != nil {
		for _, msg := range tx.outbox {
			// In-memory Enqueue не возвращает ошибок, кроме отмены контекста,
			// а контекст проверен перед коммитом.
			_, _ = s.outbox.Enqueue(context.WithoutCancel(ctx), msg)
		}
	}
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.OrderItem(nil), src.Items...)
	return dst
}

var _ domain.CheckoutStore = (*Store)(nil)
