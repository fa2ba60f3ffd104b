package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func setupLedger(t *testing.T) (*IntentLedger, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewIntentLedger(client), mr
}

func TestIntentLedger_PutGet(t *testing.T) {
	ledger, mr := setupLedger(t)
	ctx := context.Background()

	rec := domain.IntentRecord{
		IntentID:    "order_1",
		UserID:      "user-1",
		AmountMinor: 59950,
		Currency:    "INR",
		Receipt:     "receipt_user-1_1",
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, ledger.Put(ctx, rec, 30*time.Minute))
	require.True(t, mr.Exists("checkout:intent:order_1"))
	require.Equal(t, 30*time.Minute, mr.TTL("checkout:intent:order_1"))

	got, err := ledger.Get(ctx, "order_1")
	require.NoError(t, err)
	require.Equal(t, rec, got)

	require.NoError(t, ledger.Ping(ctx))
}

func TestIntentLedger_NotFoundAndExpiry(t *testing.T) {
	ledger, mr := setupLedger(t)
	ctx := context.Background()

	_, err := ledger.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrIntentNotFound)

	require.NoError(t, ledger.Put(ctx, domain.IntentRecord{IntentID: "order_2", UserID: "user-1"}, time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err = ledger.Get(ctx, "order_2")
	require.ErrorIs(t, err, domain.ErrIntentNotFound)
}

func TestIntentLedger_RedisDown(t *testing.T) {
	ledger, mr := setupLedger(t)
	mr.Close()

	_, err := ledger.Get(context.Background(), "order_1")
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrIntentNotFound)
}

func TestIntentLedger_RequiresIntentID(t *testing.T) {
	ledger, _ := setupLedger(t)
	require.Error(t, ledger.Put(context.Background(), domain.IntentRecord{UserID: "user-1"}, time.Minute))
}
