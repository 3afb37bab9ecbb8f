package checkout

import (
	"context"
	"fmt"
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
	defaultTxTimeout = 5 * time.Second
	maxNoteLength    = 500

	tracerName = "github.com/vladislavdragonenkov/vfoody/internal/service/checkout"
)

// ItemInput: позиция в запросе на создание заказа.
type ItemInput struct {
	ProductID int64
	Quantity  int32
	OptionIDs []int64
}

// CreateOrderInput: запрос покупателя на создание заказа.
type CreateOrderInput struct {
	ShopID      int64
	Items       []ItemInput
	PromotionID int64
	Note        string
}

// Dispatcher принимает уведомления в фоновую доставку.
type Dispatcher interface {
	Dispatch(n domain.Notification) bool
}

// Option настраивает Service.
type Option func(*Service)

func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

func WithTxTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.txTimeout = timeout
		}
	}
}

// Service оформляет новые заказы.
type Service struct {
	catalog    domain.CatalogRepository
	promotions domain.PromotionRepository
	uow        domain.UnitOfWork
	dispatcher Dispatcher

	logger    *log.Entry
	metrics   *metrics.OrderMetrics
	tracer    trace.Tracer
	now       func() time.Time
	txTimeout time.Duration
}

// NewService создаёт сервис оформления заказов.
func NewService(
	catalog domain.CatalogRepository,
	promotions domain.PromotionRepository,
	uow domain.UnitOfWork,
	dispatcher Dispatcher,
	options ...Option,
) *Service {
	s := &Service{
		catalog:    catalog,
		promotions: promotions,
		uow:        uow,
		dispatcher: dispatcher,
		logger:     log.New().WithField("component", "checkout"),
		tracer:     otel.Tracer(tracerName),
		now:        func() time.Time { return time.Now().UTC() },
		txTimeout:  defaultTxTimeout,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// CreateOrder проверяет магазин, товары, опции и акцию, затем атомарно сохраняет заказ.
// Ошибка всегда имеет тип *domain.Failure.
func (s *Service) CreateOrder(ctx context.Context, actor domain.Actor, in CreateOrderInput) (domain.Order, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "checkout.create_order", trace.WithAttributes(
		attribute.Int64("shop.id", in.ShopID),
		attribute.String("actor.role", string(actor.Role)),
	))
	defer span.End()

	logger := s.logger.WithFields(log.Fields{
		"customer_id": actor.AccountID,
		"shop_id":     in.ShopID,
		"items_count": len(in.Items),
	})

	order, err := s.createOrder(ctx, actor, in)
	if err != nil {
		code := domain.FailureCodeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
		s.metrics.RecordOrderCreated(string(code), time.Since(start))
		if code == domain.CodePersistence {
			logger.WithError(err).Error("create order failed")
		} else {
			logger.WithError(err).Info("create order rejected")
		}
		return domain.Order{}, domain.AsFailure(err)
	}

	span.SetAttributes(attribute.Int64("order.id", order.ID))
	s.metrics.RecordOrderCreated(metrics.ResultOK, time.Since(start))
	logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"total_minor": order.TotalMinor,
	}).Info("order created")

	if s.dispatcher == nil {
		return order, nil
	}
	for _, n := range domain.NewOrderNotifications(&order) {
		if !s.dispatcher.Dispatch(n) {
			logger.WithField("order_id", order.ID).Warn("notification was not queued")
		}
	}
	return order, nil
}

func (s *Service) createOrder(ctx context.Context, actor domain.Actor, in CreateOrderInput) (domain.Order, error) {
	if err := actor.Validate(); err != nil {
		return domain.Order{}, err
	}
	if actor.IsAdmin() {
		return domain.Order{}, domain.NewFailure(domain.CodeForbidden, "administrators cannot place orders")
	}
	if err := validateInput(in); err != nil {
		return domain.Order{}, err
	}

	shop, err := s.catalog.GetShop(ctx, in.ShopID)
	if err != nil {
		return domain.Order{}, err
	}
	if !shop.Active {
		return domain.Order{}, domain.ErrShopInactive
	}

	items, err := s.buildItems(ctx, shop.ID, in.Items)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.now()
	order := domain.Order{
		Status:     domain.OrderStatusPending,
		CustomerID: actor.AccountID,
		ShopID:     shop.ID,
		Items:      items,
		Note:       in.Note,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, item := range items {
		order.SubtotalMinor += item.TotalMinor()
	}

	if in.PromotionID > 0 {
		promo, err := s.promotions.GetPromotion(ctx, in.PromotionID)
		if err != nil {
			return domain.Order{}, err
		}
		if err := promo.CheckApplicable(shop.ID, order.SubtotalMinor, now); err != nil {
			return domain.Order{}, err
		}
		order.DiscountMinor = promo.Discount(order.SubtotalMinor)
		if order.DiscountMinor > order.SubtotalMinor {
			order.DiscountMinor = order.SubtotalMinor
		}
		order.Promotion = &domain.AppliedPromotion{
			PromotionID:   promo.ID,
			Scope:         promo.Scope,
			Title:         promo.Title,
			DiscountMinor: order.DiscountMinor,
		}
	}
	order.TotalMinor = domain.ComputeTotal(order.SubtotalMinor, order.DiscountMinor)

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, domain.ValidationFailure("order is invalid", errorStrings(errs)...)
	}
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	return s.persist(ctx, actor, order)
}

// persist сохраняет заказ, расход акции, таймлайн и outbox одной транзакцией.
func (s *Service) persist(ctx context.Context, actor domain.Actor, order domain.Order) (domain.Order, error) {
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.txTimeout)
	defer cancel()

	err := s.uow.WithinTx(txCtx, func(ctx context.Context, tx domain.Tx) error {
		if order.Promotion != nil {
			if _, err := tx.ConsumePromotion(ctx, order.Promotion.PromotionID, order.CreatedAt); err != nil {
				return err
			}
		}
		if err := tx.CreateOrder(ctx, &order); err != nil {
			return err
		}
		if err := tx.AppendTimeline(ctx, domain.TimelineEvent{
			OrderID:   order.ID,
			Type:      domain.TimelineOrderCreated,
			Status:    order.Status,
			ActorID:   actor.AccountID,
			ActorRole: actor.Role,
			Occurred:  order.CreatedAt,
		}); err != nil {
			return err
		}
		msg, err := kafka.NewOrderCreatedEvent(&order, order.CreatedAt).OutboxMessage()
		if err != nil {
			return err
		}
		_, err = tx.EnqueueOutbox(ctx, msg)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.RecordTimelineEvent()
	s.metrics.RecordOutboxEvent()
	return order, nil
}

// buildItems снимает цены и опции товаров. Все некорректные товары перечисляются в одной ошибке.
func (s *Service) buildItems(ctx context.Context, shopID int64, inputs []ItemInput) ([]domain.LineItem, error) {
	ids := make([]int64, 0, len(inputs))
	for _, in := range inputs {
		ids = append(ids, in.ProductID)
	}
	products, err := s.catalog.ProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	var details []string
	items := make([]domain.LineItem, 0, len(inputs))
	for _, in := range inputs {
		product, ok := products[in.ProductID]
		switch {
		case !ok:
			details = append(details, fmt.Sprintf("product %d: not found", in.ProductID))
			continue
		case product.ShopID != shopID:
			details = append(details, fmt.Sprintf("product %d: belongs to another shop", in.ProductID))
			continue
		case !product.Orderable():
			details = append(details, fmt.Sprintf("product %d: %s", in.ProductID, domain.ErrProductNotOrderable))
			continue
		}

		options, err := product.ResolveOptions(in.OptionIDs)
		if err != nil {
			details = append(details, fmt.Sprintf("product %d: %s", in.ProductID, err))
			continue
		}

		unitPrice := product.PriceMinor
		for _, opt := range options {
			unitPrice += opt.PriceDeltaMinor
		}
		items = append(items, domain.LineItem{
			ProductID:      product.ID,
			ProductName:    product.Name,
			Quantity:       in.Quantity,
			UnitPriceMinor: unitPrice,
			Options:        options,
		})
	}

	if len(details) > 0 {
		return nil, domain.ValidationFailure("some products cannot be ordered", details...)
	}
	return items, nil
}

func validateInput(in CreateOrderInput) error {
	if in.ShopID <= 0 {
		return domain.ValidationFailure(domain.ErrShopRequired.Error())
	}
	if len(in.Items) == 0 {
		return domain.ValidationFailure(domain.ErrItemsRequired.Error())
	}
	if len(in.Note) > maxNoteLength {
		return domain.ValidationFailure(fmt.Sprintf("note must be at most %d characters", maxNoteLength))
	}

	var details []string
	for _, item := range in.Items {
		if item.ProductID <= 0 {
			details = append(details, fmt.Sprintf("product %d: invalid id", item.ProductID))
			continue
		}
		if item.Quantity <= 0 {
			details = append(details, fmt.Sprintf("product %d: %s", item.ProductID, domain.ErrItemQtyInvalid))
		}
	}
	if len(details) > 0 {
		return domain.ValidationFailure("order items are invalid", details...)
	}
	return nil
}

func errorStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}
