package health

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

const defaultPingTimeout = 2 * time.Second

// PingChecker проверяет хранилище через Ping с таймаутом.
type PingChecker struct {
	name    string
	target  domain.HealthChecker
	timeout time.Duration
}

// NewPingChecker создаёт проверку доступности хранилища.
func NewPingChecker(name string, target domain.HealthChecker, timeout time.Duration) *PingChecker {
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	return &PingChecker{name: name, target: target, timeout: timeout}
}

func (c *PingChecker) Check(ctx context.Context) Check {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	check := Check{Name: c.name, Status: StatusHealthy}
	if err := c.target.Ping(ctx); err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	check.DurationMs = time.Since(start).Milliseconds()
	return check
}

// OutboxBacklogChecker переводит сервис в degraded, если самое старое
// неотправленное событие ждёт дольше maxAge.
type OutboxBacklogChecker struct {
	repo   domain.OutboxRepository
	maxAge time.Duration
	now    func() time.Time
}

func NewOutboxBacklogChecker(repo domain.OutboxRepository, maxAge time.Duration) *OutboxBacklogChecker {
	return &OutboxBacklogChecker{repo: repo, maxAge: maxAge, now: time.Now}
}

func (c *OutboxBacklogChecker) Check(ctx context.Context) Check {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	check := Check{Name: "outbox", Status: StatusHealthy}
	stats, err := c.repo.Stats(ctx)
	if err != nil {
		check.Status = StatusDegraded
		check.Message = err.Error()
		check.DurationMs = time.Since(start).Milliseconds()
		return check
	}

	check.Details = map[string]any{"pending": stats.PendingCount}
	if stats.PendingCount > 0 {
		age := c.now().Sub(stats.OldestPendingAt)
		check.Details["oldest_pending_at"] = stats.OldestPendingAt.UTC().Format(time.RFC3339)
		check.Details["oldest_pending_age_seconds"] = int64(age.Seconds())
		if c.maxAge > 0 && age > c.maxAge {
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("%d pending events, oldest waits longer than %s", stats.PendingCount, c.maxAge)
		}
	}
	check.DurationMs = time.Since(start).Milliseconds()
	return check
}
