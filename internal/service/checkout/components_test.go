package checkout

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/payment"
)

func TestCartReader_Read(t *testing.T) {
	store, _ := seedStore(t)
	reader := NewCartReader(store, time.Second)

	snapshot, err := reader.Read(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(snapshot.Lines) != 2 || snapshot.Lines[0].ProductID != 1 {
		t.Fatalf("unexpected lines: %+v", snapshot.Lines)
	}
	if !snapshot.Total().Equal(decimal.RequireFromString("599.50")) {
		t.Fatalf("unexpected total %s", snapshot.Total())
	}

	if _, err := reader.Read(context.Background(), "user-2"); !errors.Is(err, domain.ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
	if _, err := reader.Read(context.Background(), ""); !errors.Is(err, domain.ErrUserRequired) {
		t.Fatalf("expected ErrUserRequired, got %v", err)
	}
}

func TestGatewayInitiator_Initiate(t *testing.T) {
	gateway := payment.NewMockGateway(nil)
	initiator := NewGatewayInitiator(gateway, "INR", 2, time.Second)

	intent, err := initiator.Initiate(context.Background(), decimal.RequireFromString("599.50"), "receipt_user-1_1")
	if err != nil {
		t.Fatalf("Initiate failed: %v", err)
	}
	if intent.AmountMinor != 59950 {
		t.Fatalf("expected 59950 minor units, got %d", intent.AmountMinor)
	}
	if !gateway.LastRequest.Capture || gateway.LastRequest.Currency != "INR" {
		t.Fatalf("unexpected gateway request: %+v", gateway.LastRequest)
	}
}

func TestGatewayInitiator_Errors(t *testing.T) {
	tests := []struct {
		name      string
		total     string
		createErr error
		delta     int64
		wantErr   error
		wantCalls int
	}{
		{name: "zero total", total: "0", wantErr: domain.ErrInvalidAmount},
		{name: "negative total", total: "-1.00", wantErr: domain.ErrInvalidAmount},
		{name: "gateway error", total: "10.00", createErr: errors.New("connection refused"), wantErr: domain.ErrGatewayUnavailable, wantCalls: 1},
		{name: "gateway quotes other amount", total: "10.00", delta: 1, wantErr: domain.ErrGatewayUnavailable, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := payment.NewMockGateway(nil)
			gateway.CreateErr = tt.createErr
			gateway.QuoteDelta = tt.delta
			initiator := NewGatewayInitiator(gateway, "INR", 2, time.Second)

			_, err := initiator.Initiate(context.Background(), decimal.RequireFromString(tt.total), "r")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if gateway.Calls() != tt.wantCalls {
				t.Fatalf("expected %d gateway calls, got %d", tt.wantCalls, gateway.Calls())
			}
		})
	}
}

func TestVerifier_Verify(t *testing.T) {
	v := NewVerifier(testSecret)
	sig := v.Sign("order_1", "pay_1")

	if err := v.Verify(domain.PaymentCallback{IntentID: "order_1", PaymentID: "pay_1", Signature: sig}); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	// Одна и та же пара всегда даёт одну подпись.
	if v.Sign("order_1", "pay_1") != sig {
		t.Fatal("signature must be deterministic")
	}

	flipped := []byte(sig)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}

	tests := []struct {
		name    string
		cb      domain.PaymentCallback
		wantErr error
	}{
		{name: "missing intent", cb: domain.PaymentCallback{PaymentID: "pay_1", Signature: sig}, wantErr: domain.ErrMalformedCallback},
		{name: "missing payment", cb: domain.PaymentCallback{IntentID: "order_1", Signature: sig}, wantErr: domain.ErrMalformedCallback},
		{name: "missing signature", cb: domain.PaymentCallback{IntentID: "order_1", PaymentID: "pay_1"}, wantErr: domain.ErrMalformedCallback},
		{name: "flipped character", cb: domain.PaymentCallback{IntentID: "order_1", PaymentID: "pay_1", Signature: string(flipped)}, wantErr: domain.ErrSignatureMismatch},
		{name: "other intent", cb: domain.PaymentCallback{IntentID: "order_2", PaymentID: "pay_1", Signature: sig}, wantErr: domain.ErrSignatureMismatch},
		{name: "not hex", cb: domain.PaymentCallback{IntentID: "order_1", PaymentID: "pay_1", Signature: "zz"}, wantErr: domain.ErrSignatureMismatch},
		{name: "uppercase hex", cb: domain.PaymentCallback{IntentID: "order_1", PaymentID: "pay_1", Signature: strings.ToUpper(sig)}, wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.cb)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if NewVerifier("other-secret").Verify(domain.PaymentCallback{IntentID: "order_1", PaymentID: "pay_1", Signature: sig}) == nil {
		t.Fatal("signature from another secret must be rejected")
	}
}

func TestFinalizer_Finalize(t *testing.T) {
	ctx := context.Background()
	store, outbox := seedStore(t)
	logger, _ := newTestLogger()
	f := NewFinalizer(store, "INR", 2, domain.AmountMismatchReject, time.Second, logger, nil)

	order, err := f.Finalize(ctx, FinalizeRequest{UserID: "user-1", IntentID: "order_1", PaymentID: "pay_1"})
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if !order.TotalAmount.Equal(decimal.RequireFromString("599.50")) {
		t.Fatalf("unexpected total %s", order.TotalAmount)
	}
	if order.Status != domain.OrderStatusPaid || order.PaymentID != "pay_1" || len(order.Items) != 2 {
		t.Fatalf("unexpected order: %+v", order)
	}
	if !order.Items[0].PriceAtPurchase.Equal(decimal.RequireFromString("250.00")) || order.Items[0].Quantity != 2 {
		t.Fatalf("unexpected first item: %+v", order.Items[0])
	}

	snapshot, _ := store.ReadCart(ctx, "user-1")
	if !snapshot.Empty() {
		t.Fatal("cart must be cleared after finalize")
	}
	stats, _ := outbox.Stats(ctx)
	if stats.PendingCount != 1 {
		t.Fatalf("expected one outbox event, got %d", stats.PendingCount)
	}

	dup, err := f.Finalize(ctx, FinalizeRequest{UserID: "user-1", IntentID: "order_1", PaymentID: "pay_1"})
	if !errors.Is(err, domain.ErrDuplicatePayment) {
		t.Fatalf("expected ErrDuplicatePayment, got %v", err)
	}
	if dup.ID != order.ID {
		t.Fatalf("duplicate must return existing order %s, got %s", order.ID, dup.ID)
	}

	if _, err := f.Finalize(ctx, FinalizeRequest{UserID: "user-1", PaymentID: "pay_2"}); !errors.Is(err, domain.ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestFinalizer_RollbackOnFailure(t *testing.T) {
	ctx := context.Background()
	base, outbox := seedStore(t)
	store := &faultyStore{Store: base, failClear: errInjected}
	f := NewFinalizer(store, "INR", 2, domain.AmountMismatchReject, time.Second, nil, nil)

	_, err := f.Finalize(ctx, FinalizeRequest{UserID: "user-1", PaymentID: "pay_1"})
	if !errors.Is(err, domain.ErrFinalizationFailed) || !errors.Is(err, errInjected) {
		t.Fatalf("expected wrapped ErrFinalizationFailed, got %v", err)
	}

	if _, err := base.GetByPayment(ctx, "pay_1"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("order must not survive rollback, got %v", err)
	}
	snapshot, _ := base.ReadCart(ctx, "user-1")
	if len(snapshot.Lines) != 2 {
		t.Fatalf("cart must be intact after rollback, got %+v", snapshot.Lines)
	}
	stats, _ := outbox.Stats(ctx)
	if stats.PendingCount != 0 {
		t.Fatalf("outbox must be empty after rollback, got %d", stats.PendingCount)
	}
}

func TestFinalizer_AmountPolicy(t *testing.T) {
	quoted := int64(50000)

	t.Run("reject", func(t *testing.T) {
		store, _ := seedStore(t)
		f := NewFinalizer(store, "INR", 2, "", time.Second, nil, nil)

		_, err := f.Finalize(context.Background(), FinalizeRequest{UserID: "user-1", PaymentID: "pay_1", ExpectedAmountMinor: &quoted})
		if !errors.Is(err, domain.ErrAmountMismatch) {
			t.Fatalf("expected ErrAmountMismatch, got %v", err)
		}
		snapshot, _ := store.ReadCart(context.Background(), "user-1")
		if snapshot.Empty() {
			t.Fatal("cart must be intact when amount check rejects")
		}
	})

	t.Run("accept", func(t *testing.T) {
		store, _ := seedStore(t)
		f := NewFinalizer(store, "INR", 2, domain.AmountMismatchAccept, time.Second, nil, nil)

		order, err := f.Finalize(context.Background(), FinalizeRequest{UserID: "user-1", PaymentID: "pay_1", ExpectedAmountMinor: &quoted})
		if err != nil {
			t.Fatalf("accept policy must commit, got %v", err)
		}
		if !order.TotalAmount.Equal(decimal.RequireFromString("599.50")) {
			t.Fatalf("accept policy commits recomputed total, got %s", order.TotalAmount)
		}
	})

	t.Run("match", func(t *testing.T) {
		store, _ := seedStore(t)
		f := NewFinalizer(store, "INR", 2, domain.AmountMismatchReject, time.Second, nil, nil)
		exact := int64(59950)

		if _, err := f.Finalize(context.Background(), FinalizeRequest{UserID: "user-1", PaymentID: "pay_1", ExpectedAmountMinor: &exact}); err != nil {
			t.Fatalf("matching amount must commit, got %v", err)
		}
	})
}

func TestBuildReceipt(t *testing.T) {
	now := time.UnixMilli(1700000000000)

	if got := buildReceipt("user-1", now); got != "receipt_user-1_1700000000000" {
		t.Fatalf("unexpected receipt %q", got)
	}

	long := buildReceipt(strings.Repeat("x", 64), now)
	if len(long) > maxReceiptLen {
		t.Fatalf("receipt exceeds %d chars: %q", maxReceiptLen, long)
	}
	if long != buildReceipt(strings.Repeat("x", 64), now) {
		t.Fatal("receipt must be deterministic for the same user and time")
	}
}
