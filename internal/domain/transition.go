package domain

import "slices"

// Transition: имя перехода, инициированного участником.
type Transition string

const (
	TransitionCustomerCancel         Transition = "customer_cancel"
	TransitionShopConfirm            Transition = "shop_confirm"
	TransitionShopRequestPaymentLink Transition = "shop_request_payment_link"
	TransitionShopDelivering         Transition = "shop_delivering"
	TransitionShopReject             Transition = "shop_reject"
	TransitionShopCancel             Transition = "shop_cancel"
	TransitionShopFail               Transition = "shop_fail"
	TransitionShopMarkDelivered      Transition = "shop_mark_delivered"
)

// Party: сторона заказа, чьё владение проверяется.
type Party string

const (
	PartyCustomer Party = "customer"
	PartyShop     Party = "shop"
)

// TransitionRule: строка таблицы переходов.
type TransitionRule struct {
	Name           Transition
	Roles          []Role
	Owner          Party
	From           []OrderStatus
	To             OrderStatus
	ReasonRequired bool
	// Notify: сторона, получающая уведомление после фиксации.
	Notify Party
}

var transitionRules = map[Transition]TransitionRule{
	TransitionCustomerCancel: {
		Name:           TransitionCustomerCancel,
		Roles:          []Role{RoleCustomer, RoleShop, RoleAdmin},
		Owner:          PartyCustomer,
		From:           []OrderStatus{OrderStatusPending, OrderStatusConfirmed},
		To:             OrderStatusCancelled,
		ReasonRequired: true,
		Notify:         PartyShop,
	},
	TransitionShopConfirm: {
		Name:   TransitionShopConfirm,
		Roles:  []Role{RoleShop, RoleAdmin},
		Owner:  PartyShop,
		From:   []OrderStatus{OrderStatusPending},
		To:     OrderStatusConfirmed,
		Notify: PartyCustomer,
	},
	TransitionShopRequestPaymentLink: {
		Name:   TransitionShopRequestPaymentLink,
		Roles:  []Role{RoleShop, RoleAdmin},
		Owner:  PartyShop,
		From:   []OrderStatus{OrderStatusConfirmed},
		To:     OrderStatusConfirmed,
		Notify: PartyCustomer,
	},
	TransitionShopDelivering: {
		Name:   TransitionShopDelivering,
		Roles:  []Role{RoleShop, RoleAdmin},
		Owner:  PartyShop,
		From:   []OrderStatus{OrderStatusConfirmed},
		To:     OrderStatusDelivering,
		Notify: PartyCustomer,
	},
	TransitionShopReject: {
		Name:           TransitionShopReject,
		Roles:          []Role{RoleShop, RoleAdmin},
		Owner:          PartyShop,
		From:           []OrderStatus{OrderStatusPending},
		To:             OrderStatusRejected,
		ReasonRequired: true,
		Notify:         PartyCustomer,
	},
	TransitionShopCancel: {
		Name:           TransitionShopCancel,
		Roles:          []Role{RoleShop, RoleAdmin},
		Owner:          PartyShop,
		From:           []OrderStatus{OrderStatusPending, OrderStatusConfirmed},
		To:             OrderStatusCancelled,
		ReasonRequired: true,
		Notify:         PartyCustomer,
	},
	TransitionShopFail: {
		Name:           TransitionShopFail,
		Roles:          []Role{RoleShop, RoleAdmin},
		Owner:          PartyShop,
		From:           []OrderStatus{OrderStatusDelivering},
		To:             OrderStatusFailed,
		ReasonRequired: true,
		Notify:         PartyCustomer,
	},
	TransitionShopMarkDelivered: {
		Name:   TransitionShopMarkDelivered,
		Roles:  []Role{RoleShop, RoleAdmin},
		Owner:  PartyShop,
		From:   []OrderStatus{OrderStatusDelivering},
		To:     OrderStatusSuccessful,
		Notify: PartyCustomer,
	},
}

// Transitions возвращает все переходы в стабильном порядке.
func Transitions() []Transition {
	return []Transition{
		TransitionCustomerCancel,
		TransitionShopConfirm,
		TransitionShopRequestPaymentLink,
		TransitionShopDelivering,
		TransitionShopReject,
		TransitionShopCancel,
		TransitionShopFail,
		TransitionShopMarkDelivered,
	}
}

// RuleFor возвращает правило перехода.
func RuleFor(t Transition) (TransitionRule, error) {
	rule, ok := transitionRules[t]
	if !ok {
		return TransitionRule{}, ErrTransitionUnknown
	}
	return rule, nil
}

// Permits сообщает, входит ли статус в область определения перехода.
func (r TransitionRule) Permits(status OrderStatus) bool {
	return slices.Contains(r.From, status)
}

// AllowsRole сообщает, может ли роль инициировать переход.
func (r TransitionRule) AllowsRole(role Role) bool {
	return slices.Contains(r.Roles, role)
}

// Authorize проверяет роль участника и владение заказом. Администратор владение не проверяет.
func (r TransitionRule) Authorize(actor Actor, order *Order) error {
	if !r.AllowsRole(actor.Role) {
		return ErrActorForbidden
	}
	if actor.IsAdmin() {
		return nil
	}
	switch r.Owner {
	case PartyCustomer:
		if actor.AccountID == order.CustomerID {
			return nil
		}
	case PartyShop:
		if actor.ShopID > 0 && actor.ShopID == order.ShopID {
			return nil
		}
	}
	return ErrActorForbidden
}
