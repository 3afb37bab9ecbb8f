package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
	"github.com/vladislavdragonenkov/vfoody/internal/service/checkout"
	"github.com/vladislavdragonenkov/vfoody/internal/service/query"
)

const defaultRequestTimeout = 30 * time.Second

// OrderCreator оформляет заказы.
type OrderCreator interface {
	CreateOrder(ctx context.Context, actor domain.Actor, in checkout.CreateOrderInput) (domain.Order, error)
}

// LifecycleEngine применяет переходы жизненного цикла.
type LifecycleEngine interface {
	Apply(ctx context.Context, transition domain.Transition, orderID int64, actor domain.Actor, reason string) (domain.Order, error)
}

// OrderQueries отвечает на запросы чтения.
type OrderQueries interface {
	OrderDetail(ctx context.Context, actor domain.Actor, orderID int64) (query.OrderDetail, error)
	CustomerHistory(ctx context.Context, actor domain.Actor, statuses []domain.OrderStatus) ([]domain.Order, error)
	ShopOrders(ctx context.Context, actor domain.Actor, statuses []domain.OrderStatus) ([]domain.Order, error)
	AdminList(ctx context.Context, actor domain.Actor, pageIndex, pageSize int) (query.Page, error)
}

// Deps: зависимости HTTP API.
type Deps struct {
	Checkout    OrderCreator
	Lifecycle   LifecycleEngine
	Queries     OrderQueries
	Auth        *Authenticator
	Idempotency *Idempotency
	Logger      *log.Entry
	// RequestTimeout ограничивает обработку одного запроса; 0: значение по умолчанию.
	RequestTimeout time.Duration
}

type handler struct {
	checkout  OrderCreator
	lifecycle LifecycleEngine
	queries   OrderQueries
	logger    *log.Entry
}

// NewRouter собирает маршруты /api/v1.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = log.New().WithField("component", "httpapi")
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	h := &handler{
		checkout:  deps.Checkout,
		lifecycle: deps.Lifecycle,
		queries:   deps.Queries,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(middleware.Timeout(timeout))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, http.StatusNotFound, domain.CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, domain.CodeValidation, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.Auth.Middleware)

		r.Route("/customer/order", func(r chi.Router) {
			r.With(deps.Idempotency.Middleware).Post("/", h.createOrder)
			r.Get("/history", h.customerHistory)
			r.Get("/{id}", h.orderDetail)
			r.Put("/{id}/cancel", h.transition(domain.TransitionCustomerCancel, true))
		})

		r.Route("/shop/order", func(r chi.Router) {
			r.Get("/", h.shopOrders)
			r.Put("/{id}/confirmed", h.transition(domain.TransitionShopConfirm, false))
			r.Put("/{id}/delivering", h.transition(domain.TransitionShopDelivering, false))
			r.Put("/{id}/request-payment-link", h.transition(domain.TransitionShopRequestPaymentLink, false))
			r.Put("/{id}/reject", h.transition(domain.TransitionShopReject, true))
			r.Put("/{id}/cancel", h.transition(domain.TransitionShopCancel, true))
			r.Put("/{id}/fail", h.transition(domain.TransitionShopFail, true))
			r.Put("/{id}/successful", h.transition(domain.TransitionShopMarkDelivered, false))
		})

		r.Get("/admin/order/all", h.adminList)
	})

	return r
}

// requestLogger пишет одну строку на запрос.
func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := logger.WithFields(log.Fields{
				"request_id":  middleware.GetReqID(r.Context()),
				"method":      r.Method,
				"route":       chi.RouteContext(r.Context()).RoutePattern(),
				"status":      status,
				"duration_ms": time.Since(start).Milliseconds(),
				"bytes":       ww.BytesWritten(),
			})
			switch {
			case status >= http.StatusInternalServerError:
				entry.Error("request completed")
			case status >= http.StatusBadRequest:
				entry.Warn("request completed")
			default:
				entry.Debug("request completed")
			}
		})
	}
}

// recoverer превращает панику обработчика в ответ 500 с конвертом.
func recoverer(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.WithFields(log.Fields{
						"panic":      rec,
						"request_id": middleware.GetReqID(r.Context()),
					}).Error("panic recovered")
					writeFailure(w, http.StatusInternalServerError, domain.CodePersistence, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
