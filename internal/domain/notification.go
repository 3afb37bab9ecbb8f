package domain

import (
	"fmt"
	"strconv"
)

// Recipient: адресат уведомления.
// Для магазина адресат определяется по ShopID через владельца магазина.
type Recipient struct {
	Party     Party
	AccountID int64
	ShopID    int64
}

// Notification: push-уведомление участнику заказа.
type Notification struct {
	Recipient Recipient
	Title     string
	Body      string
	OrderID   int64
	Data      map[string]string
}

// OrderTitle: заголовок уведомлений по заказу.
func OrderTitle(orderID int64) string {
	return fmt.Sprintf("Order #%d", orderID)
}

// CustomerRecipient и ShopRecipient строят адресатов для сторон заказа.
func CustomerRecipient(order *Order) Recipient {
	return Recipient{Party: PartyCustomer, AccountID: order.CustomerID}
}

func ShopRecipient(order *Order) Recipient {
	return Recipient{Party: PartyShop, ShopID: order.ShopID}
}

// NewOrderNotifications возвращает уведомления после создания заказа: магазину и покупателю.
func NewOrderNotifications(order *Order) []Notification {
	return []Notification{
		newNotification(order, ShopRecipient(order), "You have a new order!"),
		newNotification(order, CustomerRecipient(order), "Order placed successfully"),
	}
}

// TransitionNotification возвращает уведомление второй стороне после перехода.
func TransitionNotification(order *Order, rule TransitionRule) Notification {
	recipient := CustomerRecipient(order)
	if rule.Notify == PartyShop {
		recipient = ShopRecipient(order)
	}
	return newNotification(order, recipient, transitionBody(order, rule))
}

func transitionBody(order *Order, rule TransitionRule) string {
	if rule.Name == TransitionShopRequestPaymentLink {
		return "Payment link is ready"
	}
	if rule.Name == TransitionCustomerCancel {
		return withReason("Customer cancelled the order", order.CancelReason)
	}

	switch order.Status {
	case OrderStatusConfirmed:
		return "Shop confirmed your order"
	case OrderStatusDelivering:
		return "Your order is on the way"
	case OrderStatusSuccessful:
		return "Your order has been delivered"
	case OrderStatusRejected:
		return withReason("Shop rejected your order", order.RejectReason)
	case OrderStatusCancelled:
		return withReason("Shop cancelled your order", order.CancelReason)
	case OrderStatusFailed:
		return withReason("Order delivery failed", order.FailReason)
	default:
		return "Order updated"
	}
}

func withReason(text, reason string) string {
	if reason == "" {
		return text
	}
	return text + ": " + reason
}

func newNotification(order *Order, recipient Recipient, body string) Notification {
	data := map[string]string{
		"order_id": strconv.FormatInt(order.ID, 10),
		"status":   string(order.Status),
	}
	if order.PaymentLink != nil && order.PaymentLink.CheckoutURL != "" {
		data["checkout_url"] = order.PaymentLink.CheckoutURL
	}
	return Notification{
		Recipient: recipient,
		Title:     OrderTitle(order.ID),
		Body:      body,
		OrderID:   order.ID,
		Data:      data,
	}
}
