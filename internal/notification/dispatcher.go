package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
	"github.com/vladislavdragonenkov/vfoody/internal/metrics"
)

const (
	defaultQueueSize   = 256
	defaultWorkers     = 4
	defaultSendTimeout = 5 * time.Second
)

// Результаты доставки для метрик.
const (
	ResultSent    = "sent"
	ResultFailed  = "failed"
	ResultNoToken = "no_token"
	ResultDropped = "dropped"

	// ResultSuppressed: отправка не выполнялась, пока разомкнут circuit breaker.
	ResultSuppressed = "suppressed"
)

// DispatcherOptions задаёт параметры диспетчера уведомлений.
type DispatcherOptions struct {
	Logger      *log.Entry
	Metrics     *metrics.OrderMetrics
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

// Option настраивает Dispatcher.
type Option func(*DispatcherOptions)

// WithLogger задаёт logger для диспетчера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *DispatcherOptions) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики доставки.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(opts *DispatcherOptions) {
		opts.Metrics = m
	}
}

// WithQueueSize задаёт размер буфера очереди.
func WithQueueSize(size int) Option {
	return func(opts *DispatcherOptions) {
		opts.QueueSize = size
	}
}

// WithWorkers задаёт число воркеров доставки.
func WithWorkers(workers int) Option {
	return func(opts *DispatcherOptions) {
		opts.Workers = workers
	}
}

// WithSendTimeout ограничивает время одной отправки.
func WithSendTimeout(timeout time.Duration) Option {
	return func(opts *DispatcherOptions) {
		opts.SendTimeout = timeout
	}
}

// Dispatcher доставляет уведомления в фоне.
// Dispatch не блокирует вызывающего: при заполненной очереди уведомление отбрасывается.
type Dispatcher struct {
	notifier    domain.Notifier
	queue       chan domain.Notification
	logger      *log.Entry
	metrics     *metrics.OrderMetrics
	workers     int
	sendTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher создаёт диспетчер поверх notifier.
func NewDispatcher(notifier domain.Notifier, options ...Option) *Dispatcher {
	opts := DispatcherOptions{
		QueueSize:   defaultQueueSize,
		Workers:     defaultWorkers,
		SendTimeout: defaultSendTimeout,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "notification-dispatcher")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}

	return &Dispatcher{
		notifier:    notifier,
		queue:       make(chan domain.Notification, opts.QueueSize),
		logger:      logger,
		metrics:     opts.Metrics,
		workers:     opts.Workers,
		sendTimeout: opts.SendTimeout,
	}
}

// Dispatch ставит уведомление в очередь. Возвращает false, если оно не принято.
func (d *Dispatcher) Dispatch(n domain.Notification) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(n, "dispatcher is closed")
		return false
	}

	select {
	case d.queue <- n:
		return true
	default:
		d.drop(n, "notification queue is full")
		return false
	}
}

// Run запускает воркеры и блокируется до отмены ctx.
// После отмены очередь закрывается, а уже принятые уведомления доставляются.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range d.queue {
				d.deliver(n)
			}
		}()
	}

	<-ctx.Done()

	d.mu.Lock()
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	wg.Wait()
	d.logger.Info("notification dispatcher stopped")
}

func (d *Dispatcher) deliver(n domain.Notification) {
	if d.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	err := d.notifier.Send(ctx, n)
	switch {
	case err == nil:
		d.metrics.RecordNotification(ResultSent)
	case errors.Is(err, domain.ErrDeviceTokenMissing):
		d.metrics.RecordNotification(ResultNoToken)
		d.logger.WithFields(log.Fields{
			"order_id": n.OrderID,
			"party":    n.Recipient.Party,
		}).Debug("recipient has no device token, notification skipped")
	case errors.Is(err, ErrCircuitOpen):
		d.metrics.RecordNotification(ResultSuppressed)
		d.logger.WithField("order_id", n.OrderID).Debug("notification suppressed, provider circuit is open")
	default:
		d.metrics.RecordNotification(ResultFailed)
		d.logger.WithError(err).WithFields(log.Fields{
			"order_id": n.OrderID,
			"party":    n.Recipient.Party,
		}).Warn("notification delivery failed")
	}
}

func (d *Dispatcher) drop(n domain.Notification, reason string) {
	d.metrics.RecordNotification(ResultDropped)
	d.logger.WithFields(log.Fields{
		"order_id": n.OrderID,
		"party":    n.Recipient.Party,
	}).Warn(reason)
}
