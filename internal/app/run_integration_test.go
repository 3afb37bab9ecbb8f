package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/vfoody/internal/health"
	"github.com/vladislavdragonenkov/vfoody/internal/transport/httpapi"
)

const testJWTSecret = "run-test-secret"

func testRunConfig(t *testing.T) Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.HTTPAddr = fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	cfg.MetricsAddr = fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	cfg.StorageDriver = StorageDriverMemory
	cfg.JWTSecret = testJWTSecret
	cfg.IdempotencyCleanupInterval = time.Hour
	return cfg
}

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := testRunConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := testRunConfig(t)
	cfg.StorageDriver = "invalid-driver"

	err := Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Fatalf("expected unsupported storage driver error, got %v", err)
	}

	cfg = testRunConfig(t)
	cfg.JWTSecret = ""
	if err := Run(context.Background(), cfg); err == nil {
		t.Fatal("expected error without jwt secret")
	}
}

func TestRun_ServesOrderAPI(t *testing.T) {
	cfg := testRunConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()
	defer func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("Run did not stop in time")
		}
	}()

	auth, err := httpapi.NewAuthenticator(testJWTSecret)
	if err != nil {
		t.Fatalf("NewAuthenticator failed: %v", err)
	}
	token, err := auth.IssueToken(domain.Actor{AccountID: 5, Role: domain.RoleCustomer}, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	body, _ := json.Marshal(map[string]any{
		"shopId": 7,
		"items":  []map[string]any{{"productId": 2, "quantity": 3}},
	})
	url := fmt.Sprintf("http://%s/api/v1/customer/order", cfg.HTTPAddr)

	var resp *http.Response
	deadline := time.Now().Add(3 * time.Second)
	for {
		req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		resp, err = http.DefaultClient.Do(req)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("create order request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var envelope struct {
		IsSuccess bool `json:"isSuccess"`
		Value     struct {
			Status string `json:"status"`
			Total  int64  `json:"total"`
		} `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.IsSuccess || envelope.Value.Status != string(domain.OrderStatusPending) || envelope.Value.Total != 15000 {
		t.Fatalf("unexpected response: %+v", envelope)
	}

	health, err := http.Get(fmt.Sprintf("http://%s/healthz", cfg.MetricsAddr))
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	defer health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("expected healthy service, got %d", health.StatusCode)
	}
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := postgresTestDSNCandidate()
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.PostgresAutoMigrate = true

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer func() { _ = deps.close() }()

	if deps.orders == nil || deps.outboxRepo == nil || deps.timelineRepo == nil || deps.idempotencyRepo == nil {
		t.Fatalf("postgres dependencies must be initialized: %+v", deps)
	}
	check := healthcheck.NewPingChecker("storage", deps.storage, time.Second).Check(context.Background())
	if check.Status != healthcheck.StatusHealthy {
		t.Fatalf("expected healthy storage checker, got %+v", check)
	}
}

func postgresTestDSNCandidate() string {
	return strings.TrimSpace(os.Getenv("VFOODY_POSTGRES_TEST_DSN"))
}
