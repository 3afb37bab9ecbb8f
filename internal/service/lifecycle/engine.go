package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
	"github.com/vladislavdragonenkov/vfoody/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/vfoody/internal/metrics"
)

const (
	defaultTxTimeout           = 5 * time.Second
	defaultGatewayTimeout      = 10 * time.Second
	defaultCompensationTimeout = 5 * time.Second
	defaultCurrency            = "VND"

	tracerName = "github.com/vladislavdragonenkov/vfoody/internal/service/lifecycle"
)

// Dispatcher принимает уведомление в фоновую доставку и не блокирует вызывающего.
type Dispatcher interface {
	Dispatch(n domain.Notification) bool
}

// Clock возвращает текущее время; в тестах подменяется.
type Clock func() time.Time

// Option настраивает Engine.
type Option func(*Engine)

func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(clock Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.now = clock
		}
	}
}

// WithTxTimeout ограничивает время транзакции, которая выполняется с отвязанным от запроса контекстом.
func WithTxTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.txTimeout = timeout
		}
	}
}

func WithGatewayTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.gatewayTimeout = timeout
		}
	}
}

func WithCompensationTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.compensationTimeout = timeout
		}
	}
}

func WithCurrency(currency string) Option {
	return func(e *Engine) {
		if currency != "" {
			e.currency = currency
		}
	}
}

// Engine выполняет переходы жизненного цикла заказа.
// Каждая команда: предварительные проверки, транзакция с повторной проверкой под блокировкой,
// уведомление после фиксации.
type Engine struct {
	orders     domain.OrderRepository
	uow        domain.UnitOfWork
	gateway    domain.PaymentGateway
	dispatcher Dispatcher

	logger  *log.Entry
	metrics *metrics.OrderMetrics
	tracer  trace.Tracer
	now     Clock

	txTimeout           time.Duration
	gatewayTimeout      time.Duration
	compensationTimeout time.Duration
	currency            string
}

// NewEngine создаёт движок переходов.
func NewEngine(
	orders domain.OrderRepository,
	uow domain.UnitOfWork,
	gateway domain.PaymentGateway,
	dispatcher Dispatcher,
	options ...Option,
) *Engine {
	e := &Engine{
		orders:              orders,
		uow:                 uow,
		gateway:             gateway,
		dispatcher:          dispatcher,
		logger:              log.New().WithField("component", "lifecycle"),
		tracer:              otel.Tracer(tracerName),
		now:                 func() time.Time { return time.Now().UTC() },
		txTimeout:           defaultTxTimeout,
		gatewayTimeout:      defaultGatewayTimeout,
		compensationTimeout: defaultCompensationTimeout,
		currency:            defaultCurrency,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

func (e *Engine) CustomerCancel(ctx context.Context, orderID int64, actor domain.Actor, reason string) (domain.Order, error) {
	return e.Apply(ctx, domain.TransitionCustomerCancel, orderID, actor, reason)
}

func (e *Engine) ShopConfirm(ctx context.Context, orderID int64, actor domain.Actor, reason string) (domain.Order, error) {
	return e.Apply(ctx, domain.TransitionShopConfirm, orderID, actor, reason)
}

func (e *Engine) ShopRequestPaymentLink(ctx context.Context, orderID int64, actor domain.Actor, reason string) (domain.Order, error) {
	return e.Apply(ctx, domain.TransitionShopRequestPaymentLink, orderID, actor, reason)
}

func (e *Engine) ShopDelivering(ctx context.Context, orderID int64, actor domain.Actor, reason string) (domain.Order, error) {
	return e.Apply(ctx, domain.TransitionShopDelivering, orderID, actor, reason)
}

func (e *Engine) ShopReject(ctx context.Context, orderID int64, actor domain.Actor, reason string) (domain.Order, error) {
	return e.Apply(ctx, domain.TransitionShopReject, orderID, actor, reason)
}

func (e *Engine) ShopCancel(ctx context.Context, orderID int64, actor domain.Actor, reason string) (domain.Order, error) {
	return e.Apply(ctx, domain.TransitionShopCancel, orderID, actor, reason)
}

func (e *Engine) ShopFail(ctx context.Context, orderID int64, actor domain.Actor, reason string) (domain.Order, error) {
	return e.Apply(ctx, domain.TransitionShopFail, orderID, actor, reason)
}

// ShopMarkDelivered завершает доставку успешно.
func (e *Engine) ShopMarkDelivered(ctx context.Context, orderID int64, actor domain.Actor, reason string) (domain.Order, error) {
	return e.Apply(ctx, domain.TransitionShopMarkDelivered, orderID, actor, reason)
}

// Apply выполняет переход по имени. Ошибка всегда имеет тип *domain.Failure.
func (e *Engine) Apply(ctx context.Context, transition domain.Transition, orderID int64, actor domain.Actor, reason string) (domain.Order, error) {
	start := time.Now()
	done := e.metrics.CommandStarted()
	defer done()

	ctx, span := e.tracer.Start(ctx, "lifecycle."+string(transition), trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.String("actor.role", string(actor.Role)),
	))
	defer span.End()

	logger := e.logger.WithFields(log.Fields{
		"order_id":   orderID,
		"transition": transition,
		"actor_id":   actor.AccountID,
		"actor_role": actor.Role,
	})

	order, err := e.apply(ctx, transition, orderID, actor, reason, logger)
	if err != nil {
		code := domain.FailureCodeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
		e.metrics.RecordTransition(string(transition), string(code), time.Since(start))
		switch {
		case domain.IsVersionConflict(err):
			logger.WithError(err).Warn("order was modified concurrently")
		case code == domain.CodePersistence || code == domain.CodePaymentGateway:
			logger.WithError(err).Error("transition failed")
		default:
			logger.WithError(err).Info("transition rejected")
		}
		return domain.Order{}, domain.AsFailure(err)
	}

	e.metrics.RecordTransition(string(transition), metrics.ResultOK, time.Since(start))
	logger.WithField("status", order.Status).Info("transition applied")
	return order, nil
}

func (e *Engine) apply(ctx context.Context, transition domain.Transition, orderID int64, actor domain.Actor, reason string, logger *log.Entry) (domain.Order, error) {
	rule, err := domain.RuleFor(transition)
	if err != nil {
		return domain.Order{}, err
	}
	reason = strings.TrimSpace(reason)
	order, err := e.precheck(ctx, rule, orderID, actor, reason)
	if err != nil {
		return domain.Order{}, err
	}

	if rule.Name == domain.TransitionShopRequestPaymentLink {
		return e.requestPaymentLink(ctx, rule, order, actor, logger)
	}

	updated, err := e.commit(ctx, rule, order.Status, orderID, actor, reason, func(o *domain.Order, now time.Time) error {
		return o.ApplyTransition(rule, reason, now)
	})
	if err != nil {
		return domain.Order{}, err
	}
	e.notify(&updated, rule, logger)
	return updated, nil
}

// precheck выполняет проверки до транзакции: участник, заказ, права, статус, причина.
func (e *Engine) precheck(ctx context.Context, rule domain.TransitionRule, orderID int64, actor domain.Actor, reason string) (domain.Order, error) {
	if err := actor.Validate(); err != nil {
		return domain.Order{}, err
	}
	order, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := rule.Authorize(actor, &order); err != nil {
		return domain.Order{}, err
	}
	if !rule.Permits(order.Status) {
		return domain.Order{}, domain.ErrInvalidTransition
	}
	if rule.ReasonRequired && strings.TrimSpace(reason) == "" {
		return domain.Order{}, domain.ErrReasonRequired
	}
	return order, nil
}

// commit перечитывает заказ под блокировкой, применяет mutate и сохраняет заказ, таймлайн и outbox одной транзакцией.
// Если статус изменился после предварительной проверки, команда проигрывает гонку и завершается ErrInvalidTransition.
func (e *Engine) commit(
	ctx context.Context,
	rule domain.TransitionRule,
	observed domain.OrderStatus,
	orderID int64,
	actor domain.Actor,
	reason string,
	mutate func(o *domain.Order, now time.Time) error,
) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.txTimeout)
	defer cancel()

	var updated domain.Order
	err := e.uow.WithinTx(txCtx, func(ctx context.Context, tx domain.Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != observed || !rule.Permits(order.Status) {
			return domain.ErrInvalidTransition
		}

		previous := order.Status
		now := e.now()
		if err := mutate(&order, now); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, &order); err != nil {
			return err
		}
		if err := tx.AppendTimeline(ctx, domain.NewTransitionEvent(&order, rule, actor, reason, now)); err != nil {
			return err
		}
		msg, err := kafka.NewTransitionEvent(&order, previous, rule, actor, now).OutboxMessage()
		if err != nil {
			return err
		}
		if _, err := tx.EnqueueOutbox(ctx, msg); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	e.metrics.RecordTimelineEvent()
	e.metrics.RecordOutboxEvent()
	return updated, nil
}

// requestPaymentLink запрашивает ссылку у шлюза до транзакции и компенсирует её, если сохранить не удалось.
func (e *Engine) requestPaymentLink(ctx context.Context, rule domain.TransitionRule, order domain.Order, actor domain.Actor, logger *log.Entry) (domain.Order, error) {
	if order.PaymentLink != nil {
		logger.Debug("payment link already issued, returning stored link")
		return order, nil
	}

	req := domain.NewPaymentLinkRequest(&order, e.currency)
	if errs := req.Validate(); len(errs) > 0 {
		details := make([]string, 0, len(errs))
		for _, err := range errs {
			details = append(details, err.Error())
		}
		return domain.Order{}, domain.ValidationFailure("order cannot be paid online", details...)
	}
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	gwCtx, cancel := context.WithTimeout(ctx, e.gatewayTimeout)
	link, err := e.gateway.RequestPaymentLink(gwCtx, req)
	cancel()
	if err != nil {
		e.metrics.RecordPaymentLink(string(domain.CodePaymentGateway))
		logger.WithError(err).Warn("payment gateway request failed")
		return domain.Order{}, domain.NewFailure(domain.CodePaymentGateway, "payment gateway is unavailable")
	}
	e.metrics.RecordPaymentLink(metrics.ResultOK)

	updated, err := e.commit(ctx, rule, order.Status, order.ID, actor, "", func(o *domain.Order, now time.Time) error {
		if link.CreatedAt.IsZero() {
			link.CreatedAt = now
		}
		return o.AttachPaymentLink(link, now)
	})
	if err == nil {
		e.notify(&updated, rule, logger)
		return updated, nil
	}

	e.compensate(link, logger)

	if errors.Is(err, domain.ErrPaymentLinkExists) {
		// Параллельный запрос успел сохранить свою ссылку: возвращаем её.
		current, getErr := e.orders.Get(context.WithoutCancel(ctx), order.ID)
		if getErr != nil {
			return domain.Order{}, getErr
		}
		return current, nil
	}
	return domain.Order{}, err
}

// compensate аннулирует ссылку, которую не удалось сохранить. Ошибка только логируется.
func (e *Engine) compensate(link domain.PaymentLink, logger *log.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), e.compensationTimeout)
	defer cancel()

	logger = logger.WithField("payment_link_id", link.PaymentLinkID)
	if err := e.gateway.CancelPaymentLink(ctx, link.PaymentLinkID, "order update failed"); err != nil {
		e.metrics.RecordCompensation("failed")
		logger.WithError(err).Error("payment link compensation failed")
		return
	}
	e.metrics.RecordCompensation(metrics.ResultOK)
	logger.Warn("payment link cancelled after failed commit")
}

func (e *Engine) notify(order *domain.Order, rule domain.TransitionRule, logger *log.Entry) {
	if e.dispatcher == nil {
		return
	}
	if !e.dispatcher.Dispatch(domain.TransitionNotification(order, rule)) {
		logger.Warn("notification was not queued")
	}
}
