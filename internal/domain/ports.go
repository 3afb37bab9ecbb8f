package domain

import (
	"context"
	"time"
)

// Tx: операции внутри транзакции хранилища.
// Все изменения видны другим участникам только после фиксации.
type Tx interface {
	// LockOrder перечитывает заказ с блокировкой строки до конца транзакции.
	LockOrder(ctx context.Context, id int64) (Order, error)
	// CreateOrder сохраняет новый заказ и присваивает ему ID и версию.
	CreateOrder(ctx context.Context, order *Order) error
	// UpdateOrder сохраняет изменения с проверкой версии и увеличивает её.
	UpdateOrder(ctx context.Context, order *Order) error
	// ConsumePromotion увеличивает счётчик использований, если лимит не исчерпан.
	ConsumePromotion(ctx context.Context, id int64, now time.Time) (Promotion, error)
	AppendTimeline(ctx context.Context, event TimelineEvent) error
	EnqueueOutbox(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
}

// UnitOfWork открывает транзакцию: fn выполняется целиком или не оставляет следов.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// PaymentGateway выдаёт ссылки на оплату.
type PaymentGateway interface {
	// RequestPaymentLink запрашивает ссылку на оплату заказа.
	RequestPaymentLink(ctx context.Context, req PaymentLinkRequest) (PaymentLink, error)
	// CancelPaymentLink аннулирует ранее выданную ссылку (компенсация).
	CancelPaymentLink(ctx context.Context, paymentLinkID, reason string) error
}

// Notifier доставляет уведомление получателю.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// Типы событий outbox.
const (
	EventOrderCreated           = "order.created"
	EventOrderStatusChanged     = "order.status_changed"
	EventOrderPaymentLinkIssued = "order.payment_link_issued"

	AggregateOrder = "order"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
