package domain

import "time"

// Типы событий таймлайна, не совпадающие с именами переходов.
const (
	TimelineOrderCreated      = "order_created"
	TimelinePaymentLinkIssued = "payment_link_issued"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID   int64
	Type      string
	Status    OrderStatus
	Reason    string
	ActorID   int64
	ActorRole Role
	Occurred  time.Time
}

// NewTransitionEvent строит событие таймлайна для перехода.
func NewTransitionEvent(order *Order, rule TransitionRule, actor Actor, reason string, now time.Time) TimelineEvent {
	eventType := string(rule.Name)
	if rule.Name == TransitionShopRequestPaymentLink {
		eventType = TimelinePaymentLinkIssued
	}
	return TimelineEvent{
		OrderID:   order.ID,
		Type:      eventType,
		Status:    order.Status,
		Reason:    reason,
		ActorID:   actor.AccountID,
		ActorRole: actor.Role,
		Occurred:  now,
	}
}
