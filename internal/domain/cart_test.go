package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCartSnapshotTotal(t *testing.T) {
	snapshot := CartSnapshot{
		UserID: "user-1",
		Lines: []CartLine{
			{ProductID: 1, Name: "A", UnitPrice: decimal.RequireFromString("250.00"), Quantity: 2},
			{ProductID: 2, Name: "B", UnitPrice: decimal.RequireFromString("99.50"), Quantity: 1},
		},
	}

	if snapshot.Empty() {
		t.Fatal("snapshot must not be empty")
	}
	if got := snapshot.Total(); !got.Equal(decimal.RequireFromString("599.50")) {
		t.Fatalf("Total() = %s, want 599.50", got)
	}
	if got := snapshot.ItemCount(); got != 3 {
		t.Fatalf("ItemCount() = %d, want 3", got)
	}
}

func TestCartSnapshotEmpty(t *testing.T) {
	var snapshot CartSnapshot
	if !snapshot.Empty() {
		t.Fatal("zero snapshot must be empty")
	}
	if !snapshot.Total().IsZero() {
		t.Fatalf("empty total must be zero, got %s", snapshot.Total())
	}
}
