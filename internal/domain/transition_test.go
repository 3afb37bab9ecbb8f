package domain_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

// Таблица переходов должна покрывать каждый переход и ссылаться только на известные статусы.
func TestTransitionTable_Exhaustive(t *testing.T) {
	seen := make(map[domain.OrderStatus]bool)
	for _, name := range domain.Transitions() {
		rule, err := domain.RuleFor(name)
		if err != nil {
			t.Fatalf("transition %s has no rule", name)
		}
		if rule.Name != name {
			t.Fatalf("rule name %s != %s", rule.Name, name)
		}
		if len(rule.From) == 0 || len(rule.Roles) == 0 {
			t.Fatalf("transition %s has empty domain or roles", name)
		}
		if !rule.To.Valid() {
			t.Fatalf("transition %s targets unknown status %q", name, rule.To)
		}
		seen[rule.To] = true
		for _, from := range rule.From {
			if !from.Valid() {
				t.Fatalf("transition %s starts from unknown status %q", name, from)
			}
			if from.Terminal() {
				t.Fatalf("transition %s starts from terminal status %q", name, from)
			}
			seen[from] = true
		}
		if !rule.AllowsRole(domain.RoleAdmin) {
			t.Fatalf("admin must be allowed for %s", name)
		}
		if rule.To.Terminal() && rule.To != domain.OrderStatusSuccessful && !rule.ReasonRequired {
			t.Fatalf("transition %s into %s must require a reason", name, rule.To)
		}
	}

	for _, s := range domain.OrderStatuses() {
		if !seen[s] {
			t.Fatalf("status %q is unreachable in transition table", s)
		}
	}

	if _, err := domain.RuleFor("teleport"); !errors.Is(err, domain.ErrTransitionUnknown) {
		t.Fatalf("expected ErrTransitionUnknown, got %v", err)
	}
}

func TestTransitionRule_Permits(t *testing.T) {
	expected := map[domain.Transition][]domain.OrderStatus{
		domain.TransitionCustomerCancel:         {domain.OrderStatusPending, domain.OrderStatusConfirmed},
		domain.TransitionShopConfirm:            {domain.OrderStatusPending},
		domain.TransitionShopRequestPaymentLink: {domain.OrderStatusConfirmed},
		domain.TransitionShopDelivering:         {domain.OrderStatusConfirmed},
		domain.TransitionShopReject:             {domain.OrderStatusPending},
		domain.TransitionShopCancel:             {domain.OrderStatusPending, domain.OrderStatusConfirmed},
		domain.TransitionShopFail:               {domain.OrderStatusDelivering},
		domain.TransitionShopMarkDelivered:      {domain.OrderStatusDelivering},
	}

	for name, allowed := range expected {
		rule, err := domain.RuleFor(name)
		if err != nil {
			t.Fatal(err)
		}
		for _, s := range domain.OrderStatuses() {
			want := false
			for _, a := range allowed {
				if a == s {
					want = true
				}
			}
			if got := rule.Permits(s); got != want {
				t.Fatalf("%s permits %s = %v, want %v", name, s, got, want)
			}
		}
	}
}

func TestTransitionRule_Authorize(t *testing.T) {
	order := makeOrder()

	customer := domain.Actor{AccountID: 5, Role: domain.RoleCustomer}
	otherCustomer := domain.Actor{AccountID: 6, Role: domain.RoleCustomer}
	shop := domain.Actor{AccountID: 70, ShopID: 7, Role: domain.RoleShop}
	otherShop := domain.Actor{AccountID: 80, ShopID: 8, Role: domain.RoleShop}
	shopAsBuyer := domain.Actor{AccountID: 5, ShopID: 9, Role: domain.RoleShop}
	admin := domain.Actor{AccountID: 1, Role: domain.RoleAdmin}

	cases := []struct {
		name       string
		transition domain.Transition
		actor      domain.Actor
		allowed    bool
	}{
		{"customer cancels own order", domain.TransitionCustomerCancel, customer, true},
		{"customer cancels foreign order", domain.TransitionCustomerCancel, otherCustomer, false},
		{"shop account cancels own purchase", domain.TransitionCustomerCancel, shopAsBuyer, true},
		{"selling shop cannot use customer cancel", domain.TransitionCustomerCancel, shop, false},
		{"admin customer cancel", domain.TransitionCustomerCancel, admin, true},
		{"shop confirms own order", domain.TransitionShopConfirm, shop, true},
		{"other shop confirms", domain.TransitionShopConfirm, otherShop, false},
		{"customer cannot confirm", domain.TransitionShopConfirm, customer, false},
		{"admin confirms", domain.TransitionShopConfirm, admin, true},
		{"shop fails own order", domain.TransitionShopFail, shop, true},
		{"customer cannot mark delivered", domain.TransitionShopMarkDelivered, customer, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule, err := domain.RuleFor(tc.transition)
			if err != nil {
				t.Fatal(err)
			}
			err = rule.Authorize(tc.actor, &order)
			if tc.allowed && err != nil {
				t.Fatalf("expected allowed, got %v", err)
			}
			if !tc.allowed && !errors.Is(err, domain.ErrActorForbidden) {
				t.Fatalf("expected ErrActorForbidden, got %v", err)
			}
		})
	}
}

func TestActorValidate(t *testing.T) {
	cases := []struct {
		name  string
		actor domain.Actor
		ok    bool
	}{
		{"customer", domain.Actor{AccountID: 1, Role: domain.RoleCustomer}, true},
		{"shop", domain.Actor{AccountID: 1, ShopID: 2, Role: domain.RoleShop}, true},
		{"shop without shop id", domain.Actor{AccountID: 1, Role: domain.RoleShop}, false},
		{"no account", domain.Actor{Role: domain.RoleAdmin}, false},
		{"unknown role", domain.Actor{AccountID: 1, Role: "root"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.actor.Validate()
			if tc.ok != (err == nil) {
				t.Fatalf("validate=%v, want ok=%v", err, tc.ok)
			}
		})
	}
}
