package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

func TestMockGateway(t *testing.T) {
	mock := NewMockGateway()
	if mock == nil {
		t.Fatal("expected non-nil mock")
	}

	link, err := mock.RequestPaymentLink(context.Background(), domain.PaymentLinkRequest{OrderID: 10, AmountMinor: 500, Currency: "VND"})
	if err != nil {
		t.Fatalf("unexpected request error: %v", err)
	}
	if link.CheckoutURL != "mock://pay/10" || link.AmountMinor != 500 {
		t.Fatalf("unexpected link: %+v", link)
	}

	mock.RequestErr = errors.New("gateway down")
	mock.CancelErr = errors.New("cancel failed")

	if _, err := mock.RequestPaymentLink(context.Background(), domain.PaymentLinkRequest{OrderID: 11}); err == nil {
		t.Fatal("expected request error")
	}
	if err := mock.CancelPaymentLink(context.Background(), link.PaymentLinkID, "test"); err == nil {
		t.Fatal("expected cancel error")
	}

	requests, cancels := mock.Calls()
	if requests != 2 || cancels != 1 {
		t.Fatalf("unexpected call counters: request=%d cancel=%d", requests, cancels)
	}
}

func TestMockGateway_DelayRespectsContext(t *testing.T) {
	mock := NewMockGateway()
	mock.Delay = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := mock.RequestPaymentLink(ctx, domain.PaymentLinkRequest{OrderID: 1}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
