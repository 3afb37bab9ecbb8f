package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

// MockGateway: конфигурируемая заглушка PaymentGateway для тестов и локального запуска.
type MockGateway struct {
	mu sync.Mutex

	RequestErr error
	CancelErr  error
	// Delay имитирует медленный шлюз; ожидание прерывается отменой ctx.
	Delay time.Duration

	RequestCalls int
	CancelCalls  int
	Cancelled    []string
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// RequestPaymentLink возвращает ссылку вида mock://pay/<order> или настроенную ошибку.
func (m *MockGateway) RequestPaymentLink(ctx context.Context, req domain.PaymentLinkRequest) (domain.PaymentLink, error) {
	m.mu.Lock()
	m.RequestCalls++
	delay, reqErr := m.Delay, m.RequestErr
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return domain.PaymentLink{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if reqErr != nil {
		return domain.PaymentLink{}, reqErr
	}

	return domain.PaymentLink{
		PaymentLinkID: fmt.Sprintf("mock-%d", req.OrderID),
		CheckoutURL:   fmt.Sprintf("mock://pay/%d", req.OrderID),
		QRCode:        fmt.Sprintf("mock-qr-%d", req.OrderID),
		Status:        "PENDING",
		AmountMinor:   req.AmountMinor,
		OrderCode:     req.OrderID,
		Description:   req.Description,
		Currency:      req.Currency,
		Provider:      "mock",
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// CancelPaymentLink считает компенсации и возвращает настроенную ошибку.
func (m *MockGateway) CancelPaymentLink(ctx context.Context, paymentLinkID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CancelCalls++
	if m.CancelErr != nil {
		return m.CancelErr
	}
	m.Cancelled = append(m.Cancelled, paymentLinkID)
	return nil
}

// Calls возвращает счётчики вызовов.
func (m *MockGateway) Calls() (requests, cancels int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCalls, m.CancelCalls
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
