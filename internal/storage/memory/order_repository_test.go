package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
	"github.com/vladislavdragonenkov/vfoody/internal/storage/memory"
)

func newOrder(customerID, shopID int64, createdAt time.Time) domain.Order {
	return domain.Order{
		CustomerID: customerID,
		ShopID:     shopID,
		Status:     domain.OrderStatusPending,
		Items: []domain.LineItem{
			{ProductID: 1, ProductName: "pho", Quantity: 5, UnitPriceMinor: 100},
		},
		SubtotalMinor: 500,
		TotalMinor:    500,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func createOrder(t *testing.T, store *memory.Store, order domain.Order) domain.Order {
	t.Helper()
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.CreateOrder(ctx, &order)
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return order
}

func TestOrderRepository_CreateGet(t *testing.T) {
	store := memory.NewStore()
	order := createOrder(t, store, newOrder(5, 7, time.Now().UTC()))

	if order.ID == 0 || order.Version != 1 {
		t.Fatalf("expected assigned id and version, got %d/%d", order.ID, order.Version)
	}

	stored, err := store.Get(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != order.ID || stored.TotalMinor != 500 {
		t.Fatalf("unexpected stored order %+v", stored)
	}

	stored.Items[0].Quantity = 100
	again, _ := store.Get(context.Background(), order.ID)
	if again.Items[0].Quantity != 5 {
		t.Fatal("caller mutated stored order")
	}
}

func TestOrderRepository_List(t *testing.T) {
	store := memory.NewStore()
	base := time.Now().UTC()

	first := createOrder(t, store, newOrder(5, 7, base))
	second := createOrder(t, store, newOrder(5, 8, base.Add(time.Minute)))
	createOrder(t, store, newOrder(6, 7, base.Add(2*time.Minute)))

	byCustomer, err := store.List(context.Background(), domain.OrderFilter{CustomerID: 5})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(byCustomer) != 2 || byCustomer[0].ID != second.ID || byCustomer[1].ID != first.ID {
		t.Fatalf("unexpected customer orders %+v", byCustomer)
	}

	byShop, _ := store.List(context.Background(), domain.OrderFilter{ShopID: 7})
	if len(byShop) != 2 {
		t.Fatalf("expected 2 shop orders, got %d", len(byShop))
	}

	paged, _ := store.List(context.Background(), domain.OrderFilter{Limit: 1, Offset: 1})
	if len(paged) != 1 || paged[0].ID != second.ID {
		t.Fatalf("unexpected page %+v", paged)
	}

	none, _ := store.List(context.Background(), domain.OrderFilter{Offset: 10})
	if len(none) != 0 {
		t.Fatalf("expected empty page, got %d", len(none))
	}

	cancelled, _ := store.List(context.Background(), domain.OrderFilter{Statuses: []domain.OrderStatus{domain.OrderStatusCancelled}})
	if len(cancelled) != 0 {
		t.Fatalf("expected no cancelled orders, got %d", len(cancelled))
	}
}

func TestOrderRepository_GetMissing(t *testing.T) {
	store := memory.NewStore()
	if _, err := store.Get(context.Background(), 42); err != domain.ErrOrderNotFound {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
