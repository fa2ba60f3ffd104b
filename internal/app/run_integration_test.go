package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vladislavdragonenkov/checkout/internal/auth"
	healthcheck "github.com/vladislavdragonenkov/checkout/internal/health"
	grpcsvc "github.com/vladislavdragonenkov/checkout/internal/service/grpc"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
}

func TestRun_ServesAndShutsDown(t *testing.T) {
	cfg := validConfig()
	cfg.HTTPAddr = freeAddr(t)
	cfg.GRPCAddr = freeAddr(t)
	cfg.MetricsAddr = freeAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, cfg)
	}()
	waitForServer(t, cfg.HTTPAddr)
	waitForServer(t, cfg.GRPCAddr)
	waitForServer(t, cfg.MetricsAddr)

	tokens, err := auth.NewTokenService(cfg.JWTSecret, time.Hour, "")
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	token, err := tokens.Issue("user-1", auth.RoleCustomer)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, "http://"+cfg.HTTPAddr+"/checkout/initiate", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty cart, got %d", resp.StatusCode)
	}

	conn, err := grpc.NewClient(cfg.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc client: %v", err)
	}
	defer conn.Close()

	checkCtx, checkCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer checkCancel()
	health, err := healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{Service: grpcsvc.ServiceName})
	if err != nil {
		t.Fatalf("grpc health: %v", err)
	}
	if health.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", health.GetStatus())
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := validConfig()
	cfg.StorageDriver = "invalid-driver"

	err := Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Fatalf("expected unsupported storage driver error, got %v", err)
	}

	cfg = DefaultConfig()
	err = Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "jwt secret is required") {
		t.Fatalf("expected jwt secret error, got %v", err)
	}
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("CHECKOUT_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("CHECKOUT_POSTGRES_TEST_DSN is not set")
	}

	cfg := validConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.PostgresAutoMigrate = true

	logger := log.WithField("test", "postgres-init")
	deps, err := initRuntimeDependencies(context.Background(), cfg, logger)
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer deps.close(logger)

	if deps.store == nil || deps.orders == nil || deps.outboxRepo == nil || deps.idempotencyRepo == nil {
		t.Fatalf("postgres dependencies must be initialized: %+v", deps)
	}
	checker, ok := deps.checkers["postgres"]
	if !ok {
		t.Fatal("expected postgres checker")
	}
	check := checker.Check(context.Background())
	if check.Status != healthcheck.StatusHealthy || !check.Critical {
		t.Fatalf("expected healthy critical postgres check, got %+v", check)
	}
}
