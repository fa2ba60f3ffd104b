package domain

import "github.com/shopspring/decimal"

// CartLine — строка снимка корзины: товар, его текущая цена и количество.
type CartLine struct {
	ProductID int64
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Subtotal возвращает quantity × unit_price.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartSnapshot — упорядоченный по product_id снимок корзины пользователя.
type CartSnapshot struct {
	UserID string
	Lines  []CartLine
}

// Empty сообщает, что в снимке нет ни одной строки.
func (s CartSnapshot) Empty() bool {
	return len(s.Lines) == 0
}

// Total считает сумму по всем строкам снимка.
func (s CartSnapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range s.Lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// ItemCount возвращает общее количество единиц товара в корзине.
func (s CartSnapshot) ItemCount() int {
	var n int
	for _, line := range s.Lines {
		n += line.Quantity
	}
	return n
}
