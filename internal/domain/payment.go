package domain

import (
	"errors"
	"fmt"
)

var (
	ErrPaymentAmountInvalid = errors.New("payment amount must be positive")
	ErrPaymentOrderRequired = errors.New("payment order reference is required")
)

// PaymentLinkRequest: запрос ссылки на оплату у платёжного шлюза.
type PaymentLinkRequest struct {
	OrderID     int64
	AmountMinor int64
	Currency    string
	Description string
}

// NewPaymentLinkRequest строит запрос по заказу.
func NewPaymentLinkRequest(order *Order, currency string) PaymentLinkRequest {
	return PaymentLinkRequest{
		OrderID:     order.ID,
		AmountMinor: order.TotalMinor,
		Currency:    currency,
		Description: fmt.Sprintf("VFOODY %d", order.ID),
	}
}

// Validate проверяет корректность запроса и возвращает ошибки, если они есть.
func (r PaymentLinkRequest) Validate() []error {
	var errs []error

	if r.OrderID <= 0 {
		errs = append(errs, ErrPaymentOrderRequired)
	}
	if r.AmountMinor <= 0 {
		errs = append(errs, ErrPaymentAmountInvalid)
	}

	return errs
}
