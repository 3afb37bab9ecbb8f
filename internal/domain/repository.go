package domain

import (
	"context"
	"time"
)

// OrderFilter ограничивает выборку заказов. Нулевые поля не фильтруют.
type OrderFilter struct {
	CustomerID int64
	ShopID     int64
	Statuses   []OrderStatus
	Limit      int
	Offset     int
}

// OrderRepository: чтение заказов вне транзакций.
type OrderRepository interface {
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id int64) (Order, error)
	// List возвращает заказы по фильтру, новые первыми.
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
}

// CatalogRepository читает магазины и товары без блокировок.
type CatalogRepository interface {
	GetShop(ctx context.Context, id int64) (Shop, error)
	// ProductsByIDs возвращает найденные товары; отсутствующие ID просто не попадают в результат.
	ProductsByIDs(ctx context.Context, ids []int64) (map[int64]Product, error)
}

// PromotionRepository читает акции.
type PromotionRepository interface {
	GetPromotion(ctx context.Context, id int64) (Promotion, error)
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	List(ctx context.Context, orderID int64) ([]TimelineEvent, error)
}

// OutboxRepository отдаёт сообщения outbox воркеру публикации.
type OutboxRepository interface {
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// AccountDirectory находит токен устройства получателя.
type AccountDirectory interface {
	DeviceToken(ctx context.Context, recipient Recipient) (string, error)
}

// HealthChecker: проверка доступности хранилища.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
