package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

// integrationTables очищаются перед каждым тестом; порядок не важен благодаря CASCADE.
var integrationTables = []string{
	"idempotency_keys",
	"outbox_messages",
	"order_items",
	"orders",
	"cart",
	"products",
}

// integrationDSN берёт DSN из окружения; без него интеграционные тесты пропускаются.
func integrationDSN(t *testing.T) string {
	t.Helper()

	for _, key := range []string{"CHECKOUT_POSTGRES_TEST_DSN", "CHECKOUT_POSTGRES_DSN"} {
		if dsn := strings.TrimSpace(os.Getenv(key)); dsn != "" {
			return dsn
		}
	}
	t.Skip("CHECKOUT_POSTGRES_TEST_DSN is not set")
	return ""
}

func openRawPostgresStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	dsn := integrationDSN(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	store, err := Open(ctx, dsn)
	if err != nil {
		t.Skipf("postgres is not available for integration tests: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// openPostgresStoreForIntegrationTest возвращает хранилище с актуальной схемой и пустыми таблицами.
func openPostgresStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	store := openRawPostgresStoreForIntegrationTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	stmt := "TRUNCATE TABLE " + strings.Join(integrationTables, ", ") + " RESTART IDENTITY CASCADE"
	if _, err := store.DB().ExecContext(ctx, stmt); err != nil {
		t.Fatalf("truncate integration tables: %v", err)
	}
	return store
}
