package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

// EventType определяет тип события заказа.
type EventType string

const (
	EventTypeOrderCreated           EventType = domain.EventOrderCreated
	EventTypeOrderStatusChanged     EventType = domain.EventOrderStatusChanged
	EventTypeOrderPaymentLinkIssued EventType = domain.EventOrderPaymentLinkIssued
)

// Topics для Kafka
const (
	TopicOrderEvents     = "vfoody.order.events"
	TopicDeadLetterQueue = "vfoody.dlq"
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// PaymentLinkPayload: публичная часть ссылки на оплату в событии.
type PaymentLinkPayload struct {
	PaymentLinkID string `json:"payment_link_id"`
	CheckoutURL   string `json:"checkout_url"`
	Provider      string `json:"provider"`
	AmountMinor   int64  `json:"amount_minor"`
}

// OrderEvent: полезная нагрузка события заказа в outbox и Kafka.
type OrderEvent struct {
	EventType      EventType           `json:"event_type"`
	OrderID        int64               `json:"order_id"`
	CustomerID     int64               `json:"customer_id"`
	ShopID         int64               `json:"shop_id"`
	Status         string              `json:"status"`
	PreviousStatus string              `json:"previous_status,omitempty"`
	Transition     string              `json:"transition,omitempty"`
	Reason         string              `json:"reason,omitempty"`
	ActorRole      string              `json:"actor_role,omitempty"`
	TotalMinor     int64               `json:"total_minor"`
	Version        int64               `json:"version"`
	PaymentLink    *PaymentLinkPayload `json:"payment_link,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
}

// NewOrderCreatedEvent создаёт событие о новом заказе.
func NewOrderCreatedEvent(order *domain.Order, now time.Time) *OrderEvent {
	return &OrderEvent{
		EventType:  EventTypeOrderCreated,
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		ShopID:     order.ShopID,
		Status:     string(order.Status),
		ActorRole:  string(domain.RoleCustomer),
		TotalMinor: order.TotalMinor,
		Version:    order.Version,
		Timestamp:  now,
	}
}

// NewTransitionEvent создаёт событие о переходе заказа.
func NewTransitionEvent(order *domain.Order, previous domain.OrderStatus, rule domain.TransitionRule, actor domain.Actor, now time.Time) *OrderEvent {
	event := &OrderEvent{
		EventType:      EventTypeOrderStatusChanged,
		OrderID:        order.ID,
		CustomerID:     order.CustomerID,
		ShopID:         order.ShopID,
		Status:         string(order.Status),
		PreviousStatus: string(previous),
		Transition:     string(rule.Name),
		Reason:         order.Reason(),
		ActorRole:      string(actor.Role),
		TotalMinor:     order.TotalMinor,
		Version:        order.Version,
		Timestamp:      now,
	}
	if rule.Name == domain.TransitionShopRequestPaymentLink && order.PaymentLink != nil {
		event.EventType = EventTypeOrderPaymentLinkIssued
		event.PaymentLink = &PaymentLinkPayload{
			PaymentLinkID: order.PaymentLink.PaymentLinkID,
			CheckoutURL:   order.PaymentLink.CheckoutURL,
			Provider:      order.PaymentLink.Provider,
			AmountMinor:   order.PaymentLink.AmountMinor,
		}
	}
	return event
}

// OutboxMessage сериализует событие в сообщение outbox.
func (e *OrderEvent) OutboxMessage() (domain.OutboxMessage, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal order event: %w", err)
	}
	return domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   strconv.FormatInt(e.OrderID, 10),
		EventType:     string(e.EventType),
		Payload:       payload,
		CreatedAt:     e.Timestamp,
	}, nil
}
