package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

const (
	jwtSecretEnv  = "VFOODY_JWT_SECRET"
	cancelReason  = "load-test cancel"
	stepScenario  = "scenario"
	stepCreate    = "CreateOrder"
	stepConfirm   = "ShopConfirm"
	stepDelivery  = "ShopDelivering"
	stepDelivered = "ShopSuccessful"
	stepCancel    = "CustomerCancel"
)

type loadMode string

const (
	modeCreate              loadMode = "create"
	modeCreateConfirm       loadMode = "create-confirm"
	modeCreateConfirmCancel loadMode = "create-confirm-cancel"
	modeFull                loadMode = "full"
)

type config struct {
	baseURL       string
	secret        string
	total         int
	totalSet      bool
	duration      time.Duration
	concurrency   int
	timeout       time.Duration
	mode          loadMode
	cancelRate    int
	shopID        int64
	shopAccountID int64
	productID     int64
	quantity      int
	customers     int
	customerBase  int64
	outputPath    string
}

func parseConfig(fs *flag.FlagSet, args []string, getenv func(string) string) (config, error) {
	var (
		cfg       config
		modeValue string
		quantity  int
	)

	fs.StringVar(&cfg.baseURL, "addr", "http://localhost:8080", "order service base URL")
	fs.StringVar(&cfg.secret, "jwt-secret", "", "JWT secret shared with the service (fallback: "+jwtSecretEnv+")")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m, 15m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-confirm | create-confirm-cancel | full")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel probability in percent for create-confirm mode (0..100)")
	fs.Int64Var(&cfg.shopID, "shop-id", 7, "shop that receives the orders")
	fs.Int64Var(&cfg.shopAccountID, "shop-account-id", 70, "account id of the shop operator")
	fs.Int64Var(&cfg.productID, "product-id", 2, "product to order")
	fs.IntVar(&quantity, "quantity", 1, "quantity per order")
	fs.IntVar(&cfg.customers, "customers", 100, "number of distinct customer accounts")
	fs.Int64Var(&cfg.customerBase, "customer-base", 100000, "first customer account id")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})
	if strings.TrimSpace(cfg.secret) == "" {
		cfg.secret = getenv(jwtSecretEnv)
	}

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	if strings.TrimSpace(cfg.baseURL) == "" {
		return cfg, errors.New("addr is required")
	}
	if strings.TrimSpace(cfg.secret) == "" {
		return cfg, fmt.Errorf("jwt secret is required (-jwt-secret or %s)", jwtSecretEnv)
	}
	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.cancelRate < 0 || cfg.cancelRate > 100 {
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	}
	if cfg.shopID <= 0 || cfg.shopAccountID <= 0 || cfg.productID <= 0 {
		return cfg, errors.New("shop-id, shop-account-id and product-id must be > 0")
	}
	if quantity <= 0 || quantity > math.MaxInt32 {
		return cfg, errors.New("quantity must be > 0")
	}
	cfg.quantity = quantity
	if cfg.customers <= 0 || cfg.customerBase <= 0 {
		return cfg, errors.New("customers and customer-base must be > 0")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCreate, modeCreateConfirm, modeCreateConfirmCancel, modeFull:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// run прогоняет сценарии, печатает сводку и при необходимости пишет JSON-отчёт.
func run(ctx context.Context, cfg config) (report, error) {
	client, err := newAPIClient(cfg.baseURL, cfg.secret, cfg.timeout)
	if err != nil {
		return report{}, err
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for worker := 0; worker < cfg.concurrency; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				if runErr := runScenario(ctx, client, cfg, index, runID, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	dispatchJobs(ctx, jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			return result, fmt.Errorf("write report: %w", err)
		}
	}
	return result, nil
}

func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}
	limited := cfg.duration <= 0 || cfg.totalSet

	for i := 0; !limited || i < cfg.total; i++ {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case jobs <- i:
		}
	}
}

func runScenario(ctx context.Context, client *apiClient, cfg config, index int, runID string, col *collector) (err error) {
	scenarioStart := time.Now()
	scenarioResult := outcome{status: 200}
	defer func() {
		col.record(stepScenario, time.Since(scenarioStart), scenarioResult)
	}()

	step := func(name string, call func(context.Context) outcome) bool {
		stepCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
		defer cancel()

		start := time.Now()
		res := call(stepCtx)
		col.record(name, time.Since(start), res)
		if !res.ok() {
			scenarioResult = res
			err = res.asError(name)
			return false
		}
		return true
	}

	customer := domain.Actor{
		AccountID: cfg.customerBase + int64(index%cfg.customers),
		Role:      domain.RoleCustomer,
	}
	shop := domain.Actor{AccountID: cfg.shopAccountID, Role: domain.RoleShop, ShopID: cfg.shopID}

	var orderID int64
	created := step(stepCreate, func(ctx context.Context) outcome {
		var res outcome
		orderID, res = client.createOrder(ctx, customer, fmt.Sprintf("lt-create-%s-%d", runID, index), createOrderBody{
			ShopID: cfg.shopID,
			Items:  []createItemBody{{ProductID: cfg.productID, Quantity: int32(cfg.quantity)}},
			Note:   "load-test",
		})
		return res
	})
	if !created || cfg.mode == modeCreate {
		return err
	}

	if !step(stepConfirm, func(ctx context.Context) outcome { return client.confirm(ctx, shop, orderID) }) {
		return err
	}

	switch {
	case cfg.mode == modeCreateConfirmCancel,
		cfg.mode == modeCreateConfirm && shouldCancelScenario(index, cfg.cancelRate):
		step(stepCancel, func(ctx context.Context) outcome { return client.cancel(ctx, customer, orderID, cancelReason) })
	case cfg.mode == modeFull:
		if step(stepDelivery, func(ctx context.Context) outcome { return client.startDelivery(ctx, shop, orderID) }) {
			step(stepDelivered, func(ctx context.Context) outcome { return client.markDelivered(ctx, shop, orderID) })
		}
	}
	return err
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}
