package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

// ErrCircuitOpen возвращается, пока провайдер уведомлений считается недоступным.
var ErrCircuitOpen = errors.New("notification circuit breaker is open")

// RetryConfig конфигурация повторных отправок.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
	}
}

// CircuitState: состояние circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker размыкается после maxFailures подряд и пропускает пробный вызов через resetTimeout.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time
	logger       *log.Entry

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       CircuitState
}

// NewCircuitBreaker создаёт новый circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.WithField("component", "notification-breaker")
	}
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
		logger:       logger,
		state:        CircuitClosed,
	}
}

// State возвращает текущее состояние.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// allow решает, можно ли выполнить вызов сейчас.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return true
	}
	if cb.now().Sub(cb.lastFailure) <= cb.resetTimeout {
		return false
	}
	cb.state = CircuitHalfOpen
	cb.logger.Info("notification circuit breaker half-open")
	return true
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == CircuitHalfOpen {
			cb.logger.Info("notification circuit breaker closed")
		}
		cb.state = CircuitClosed
		cb.failures = 0
		return
	}

	cb.failures++
	cb.lastFailure = cb.now()
	if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
		if cb.state != CircuitOpen {
			cb.logger.WithField("failures", cb.failures).Warn("notification circuit breaker opened")
		}
		cb.state = CircuitOpen
	}
}

// ResilientNotifier повторяет временные сбои отправки и отсекает вызовы при недоступном провайдере.
type ResilientNotifier struct {
	next    domain.Notifier
	config  RetryConfig
	breaker *CircuitBreaker
	logger  *log.Entry
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewResilientNotifier оборачивает notifier. breaker может быть nil.
func NewResilientNotifier(next domain.Notifier, config RetryConfig, breaker *CircuitBreaker, logger *log.Entry) *ResilientNotifier {
	if logger == nil {
		logger = log.WithField("component", "notification-retry")
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.BackoffFactor < 1 {
		config.BackoffFactor = 1
	}
	return &ResilientNotifier{
		next:    next,
		config:  config,
		breaker: breaker,
		logger:  logger,
		sleep:   sleepContext,
	}
}

// Send отправляет уведомление с повторами.
func (r *ResilientNotifier) Send(ctx context.Context, n domain.Notification) error {
	if r.breaker != nil && !r.breaker.allow() {
		return ErrCircuitOpen
	}

	var lastErr error
	delay := r.config.InitialDelay
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		lastErr = r.next.Send(ctx, n)
		if lastErr == nil || !retryable(lastErr) {
			break
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		r.logger.WithError(lastErr).WithFields(log.Fields{
			"order_id": n.OrderID,
			"attempt":  attempt,
			"delay":    delay,
		}).Debug("notification send failed, retrying")

		if err := r.sleep(ctx, delay); err != nil {
			break
		}
		delay = time.Duration(float64(delay) * r.config.BackoffFactor)
		if r.config.MaxDelay > 0 && delay > r.config.MaxDelay {
			delay = r.config.MaxDelay
		}
	}

	if r.breaker != nil {
		// Отсутствие токена: не сбой провайдера.
		if errors.Is(lastErr, domain.ErrDeviceTokenMissing) {
			r.breaker.record(nil)
		} else {
			r.breaker.record(lastErr)
		}
	}
	return lastErr
}

func retryable(err error) bool {
	return !errors.Is(err, domain.ErrDeviceTokenMissing) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
