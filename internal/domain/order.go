package domain

import (
	"slices"
	"strings"
	"time"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending: заказ создан покупателем и ждёт решения магазина.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed: магазин принял заказ.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusDelivering: заказ передан в доставку.
	OrderStatusDelivering OrderStatus = "delivering"
	// OrderStatusSuccessful: заказ доставлен.
	OrderStatusSuccessful OrderStatus = "successful"
	// OrderStatusCancelled: заказ отменён покупателем или магазином.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRejected: магазин отклонил новый заказ.
	OrderStatusRejected OrderStatus = "rejected"
	// OrderStatusFailed: доставка не состоялась.
	OrderStatusFailed OrderStatus = "failed"
)

// OrderStatuses возвращает полный закрытый набор статусов.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusConfirmed,
		OrderStatusDelivering,
		OrderStatusSuccessful,
		OrderStatusCancelled,
		OrderStatusRejected,
		OrderStatusFailed,
	}
}

// Valid проверяет, что статус входит в закрытый набор.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusDelivering,
		OrderStatusSuccessful, OrderStatusCancelled, OrderStatusRejected, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса нет ни одного перехода.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusSuccessful, OrderStatusCancelled, OrderStatusRejected, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// ParseOrderStatus разбирает статус из строки запроса.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(raw)
	if !s.Valid() {
		return "", ErrStatusUnknown
	}
	return s, nil
}

// OptionSnapshot фиксирует выбранную опцию товара на момент заказа.
type OptionSnapshot struct {
	QuestionID      int64
	QuestionText    string
	OptionID        int64
	OptionText      string
	PriceDeltaMinor int64
}

// LineItem представляет одну позицию заказа.
type LineItem struct {
	ProductID   int64
	ProductName string
	Quantity    int32
	// UnitPriceMinor: базовая цена плюс надбавки выбранных опций.
	UnitPriceMinor int64
	Options        []OptionSnapshot
}

// TotalMinor возвращает стоимость позиции.
func (li LineItem) TotalMinor() int64 {
	return int64(li.Quantity) * li.UnitPriceMinor
}

// AppliedPromotion: снимок акции, применённой при создании заказа.
type AppliedPromotion struct {
	PromotionID   int64
	Scope         PromotionScope
	Title         string
	DiscountMinor int64
}

// PaymentLink описывает ссылку на оплату, выданную платёжным шлюзом.
type PaymentLink struct {
	PaymentLinkID string
	CheckoutURL   string
	QRCode        string
	Status        string
	AmountMinor   int64
	OrderCode     int64
	Description   string
	Currency      string
	Bin           string
	AccountNumber string
	Provider      string
	CreatedAt     time.Time
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID         int64
	Status     OrderStatus
	CustomerID int64
	ShopID     int64
	Items      []LineItem
	Promotion  *AppliedPromotion

	SubtotalMinor int64
	DiscountMinor int64
	TotalMinor    int64

	CancelReason string
	RejectReason string
	FailReason   string

	PaymentLink *PaymentLink

	Note      string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone возвращает глубокую копию заказа, чтобы хранилища не делили срезы с вызывающим кодом.
func (o Order) Clone() Order {
	out := o
	if o.Items != nil {
		out.Items = make([]LineItem, len(o.Items))
		for i, item := range o.Items {
			out.Items[i] = item
			out.Items[i].Options = slices.Clone(item.Options)
		}
	}
	if o.Promotion != nil {
		promo := *o.Promotion
		out.Promotion = &promo
	}
	if o.PaymentLink != nil {
		link := *o.PaymentLink
		out.PaymentLink = &link
	}
	return out
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID <= 0 {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.ShopID <= 0 {
		errs = append(errs, ErrShopRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrStatusUnknown)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.SubtotalMinor < 0 || o.DiscountMinor < 0 || o.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	var calc int64
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += item.TotalMinor()
	}
	if calc != o.SubtotalMinor || o.TotalMinor != clampTotal(o.SubtotalMinor, o.DiscountMinor) {
		errs = append(errs, ErrAmountMismatch)
	}

	if !o.reasonsConsistent() {
		errs = append(errs, ErrReasonMismatch)
	}

	return errs
}

// reasonsConsistent: не больше одной причины и только для соответствующего терминального статуса.
func (o *Order) reasonsConsistent() bool {
	switch o.Status {
	case OrderStatusCancelled:
		return o.RejectReason == "" && o.FailReason == ""
	case OrderStatusRejected:
		return o.CancelReason == "" && o.FailReason == ""
	case OrderStatusFailed:
		return o.CancelReason == "" && o.RejectReason == ""
	default:
		return o.CancelReason == "" && o.RejectReason == "" && o.FailReason == ""
	}
}

// Reason возвращает причину терминального статуса, если она есть.
func (o *Order) Reason() string {
	switch o.Status {
	case OrderStatusCancelled:
		return o.CancelReason
	case OrderStatusRejected:
		return o.RejectReason
	case OrderStatusFailed:
		return o.FailReason
	default:
		return ""
	}
}

// ApplyTransition переводит заказ по правилу перехода.
// Статус проверяется заново, поэтому метод безопасно вызывать на копии, прочитанной под блокировкой.
func (o *Order) ApplyTransition(rule TransitionRule, reason string, now time.Time) error {
	if !rule.Permits(o.Status) {
		return ErrInvalidTransition
	}
	reason = strings.TrimSpace(reason)
	if rule.ReasonRequired && reason == "" {
		return ErrReasonRequired
	}

	o.Status = rule.To
	switch rule.To {
	case OrderStatusCancelled:
		o.CancelReason = reason
	case OrderStatusRejected:
		o.RejectReason = reason
	case OrderStatusFailed:
		o.FailReason = reason
	}
	o.UpdatedAt = now
	return nil
}

// AttachPaymentLink сохраняет выданную ссылку на оплату.
func (o *Order) AttachPaymentLink(link PaymentLink, now time.Time) error {
	if o.Status != OrderStatusConfirmed {
		return ErrInvalidTransition
	}
	if o.PaymentLink != nil {
		return ErrPaymentLinkExists
	}
	o.PaymentLink = &link
	o.UpdatedAt = now
	return nil
}

func clampTotal(subtotal, discount int64) int64 {
	total := subtotal - discount
	if total < 0 {
		return 0
	}
	return total
}

// ComputeTotal возвращает сумму к оплате с учётом скидки, не меньше нуля.
func ComputeTotal(subtotal, discount int64) int64 {
	return clampTotal(subtotal, discount)
}
