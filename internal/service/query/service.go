package query

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPageIndex ограничивает смещение, чтобы pageIndex*pageSize не переполнялся.
	MaxPageIndex = 1_000_000
	historyLimit = 200
)

// OrderDetail: заказ вместе с историей событий.
type OrderDetail struct {
	Order    domain.Order
	Timeline []domain.TimelineEvent
}

// Page: страница списка заказов для администратора.
type Page struct {
	Items     []domain.Order
	PageIndex int
	PageSize  int
}

// Service отвечает на запросы чтения заказов с учётом прав участника.
type Service struct {
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	logger   *log.Entry
}

// NewService создаёт сервис чтения.
func NewService(orders domain.OrderRepository, timeline domain.TimelineRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "order-query")
	}
	return &Service{orders: orders, timeline: timeline, logger: logger}
}

// OrderDetail возвращает заказ покупателю, магазину-исполнителю или администратору.
func (s *Service) OrderDetail(ctx context.Context, actor domain.Actor, orderID int64) (OrderDetail, error) {
	if err := actor.Validate(); err != nil {
		return OrderDetail{}, domain.AsFailure(err)
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return OrderDetail{}, s.fail(err, orderID)
	}
	if !canView(actor, &order) {
		return OrderDetail{}, domain.AsFailure(domain.ErrActorForbidden)
	}

	events, err := s.timeline.List(ctx, orderID)
	if err != nil {
		return OrderDetail{}, s.fail(err, orderID)
	}
	return OrderDetail{Order: order, Timeline: events}, nil
}

// CustomerHistory возвращает заказы участника как покупателя.
func (s *Service) CustomerHistory(ctx context.Context, actor domain.Actor, statuses []domain.OrderStatus) ([]domain.Order, error) {
	if err := actor.Validate(); err != nil {
		return nil, domain.AsFailure(err)
	}
	orders, err := s.orders.List(ctx, domain.OrderFilter{
		CustomerID: actor.AccountID,
		Statuses:   statuses,
		Limit:      historyLimit,
	})
	if err != nil {
		return nil, s.fail(err, 0)
	}
	return orders, nil
}

// ShopOrders возвращает заказы магазина участника.
func (s *Service) ShopOrders(ctx context.Context, actor domain.Actor, statuses []domain.OrderStatus) ([]domain.Order, error) {
	if err := actor.Validate(); err != nil {
		return nil, domain.AsFailure(err)
	}
	if actor.Role != domain.RoleShop {
		return nil, domain.AsFailure(domain.ErrActorForbidden)
	}
	orders, err := s.orders.List(ctx, domain.OrderFilter{
		ShopID:   actor.ShopID,
		Statuses: statuses,
		Limit:    historyLimit,
	})
	if err != nil {
		return nil, s.fail(err, 0)
	}
	return orders, nil
}

// AdminList возвращает страницу всех заказов. pageIndex начинается с нуля.
func (s *Service) AdminList(ctx context.Context, actor domain.Actor, pageIndex, pageSize int) (Page, error) {
	if err := actor.Validate(); err != nil {
		return Page{}, domain.AsFailure(err)
	}
	if !actor.IsAdmin() {
		return Page{}, domain.AsFailure(domain.ErrActorForbidden)
	}
	if pageIndex < 0 || pageIndex > MaxPageIndex {
		return Page{}, domain.ValidationFailure(fmt.Sprintf("pageIndex must be between 0 and %d", MaxPageIndex))
	}
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}

	orders, err := s.orders.List(ctx, domain.OrderFilter{
		Limit:  pageSize,
		Offset: pageIndex * pageSize,
	})
	if err != nil {
		return Page{}, s.fail(err, 0)
	}
	return Page{Items: orders, PageIndex: pageIndex, PageSize: pageSize}, nil
}

func canView(actor domain.Actor, order *domain.Order) bool {
	switch {
	case actor.IsAdmin():
		return true
	case actor.AccountID == order.CustomerID:
		return true
	case actor.Role == domain.RoleShop && actor.ShopID == order.ShopID:
		return true
	default:
		return false
	}
}

func (s *Service) fail(err error, orderID int64) error {
	failure := domain.AsFailure(err)
	if failure.Code == domain.CodePersistence {
		s.logger.WithError(err).WithField("order_id", orderID).Error("order query failed")
	}
	return failure
}
