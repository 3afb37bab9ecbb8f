package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
	"github.com/vladislavdragonenkov/vfoody/internal/metrics"
	"github.com/vladislavdragonenkov/vfoody/internal/payment"
	"github.com/vladislavdragonenkov/vfoody/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/vfoody/internal/storage/memory"
)

var (
	fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	customer  = domain.Actor{AccountID: 5, Role: domain.RoleCustomer}
	shop      = domain.Actor{AccountID: 70, ShopID: 7, Role: domain.RoleShop}
	otherShop = domain.Actor{AccountID: 80, ShopID: 8, Role: domain.RoleShop}
	admin     = domain.Actor{AccountID: 1, Role: domain.RoleAdmin}
)

type recordingDispatcher struct {
	mu     sync.Mutex
	sent   []domain.Notification
	reject bool
}

func (d *recordingDispatcher) Dispatch(n domain.Notification) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reject {
		return false
	}
	d.sent = append(d.sent, n)
	return true
}

func (d *recordingDispatcher) Sent() []domain.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.Notification(nil), d.sent...)
}

// failingUoW выполняет транзакцию, но откатывает её с заданной ошибкой вместо фиксации.
type failingUoW struct {
	inner domain.UnitOfWork
	err   error
}

func (u failingUoW) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return u.inner.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return u.err
	})
}

// barrierUoW задерживает вход в транзакцию, пока её не запросят n команд.
type barrierUoW struct {
	inner domain.UnitOfWork
	wg    *sync.WaitGroup
}

func (u barrierUoW) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	u.wg.Done()
	u.wg.Wait()
	return u.inner.WithinTx(ctx, fn)
}

type fixture struct {
	store      *memory.Store
	gateway    *payment.MockGateway
	dispatcher *recordingDispatcher
	metrics    *metrics.OrderMetrics
	registry   *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := prometheus.NewRegistry()
	return &fixture{
		store:      memory.NewStore(),
		gateway:    payment.NewMockGateway(),
		dispatcher: &recordingDispatcher{},
		metrics:    metrics.NewOrderMetricsWithRegisterer(registry),
		registry:   registry,
	}
}

func (f *fixture) engine(uow domain.UnitOfWork, opts ...lifecycle.Option) *lifecycle.Engine {
	if uow == nil {
		uow = f.store
	}
	base := []lifecycle.Option{
		lifecycle.WithMetrics(f.metrics),
		lifecycle.WithClock(func() time.Time { return fixedNow }),
		lifecycle.WithGatewayTimeout(50 * time.Millisecond),
	}
	return lifecycle.NewEngine(f.store, uow, f.gateway, f.dispatcher, append(base, opts...)...)
}

func (f *fixture) putOrder(id int64, status domain.OrderStatus) domain.Order {
	order := domain.Order{
		ID:         id,
		Status:     status,
		CustomerID: 5,
		ShopID:     7,
		Items: []domain.LineItem{
			{ProductID: 1, ProductName: "Pho bo", Quantity: 2, UnitPriceMinor: 25000},
		},
		SubtotalMinor: 50000,
		TotalMinor:    50000,
		CreatedAt:     fixedNow.Add(-time.Hour),
		UpdatedAt:     fixedNow.Add(-time.Hour),
	}
	switch status {
	case domain.OrderStatusCancelled:
		order.CancelReason = "earlier"
	case domain.OrderStatusRejected:
		order.RejectReason = "earlier"
	case domain.OrderStatusFailed:
		order.FailReason = "earlier"
	}
	f.store.PutOrder(order)
	stored, _ := f.store.Get(context.Background(), id)
	return stored
}

func (f *fixture) timeline(t *testing.T, id int64) []domain.TimelineEvent {
	t.Helper()
	events, err := memory.NewTimelineRepository(f.store).List(context.Background(), id)
	require.NoError(t, err)
	return events
}

// counter возвращает значение счётчика с заданными метками или 0, если серии нет.
func (f *fixture) counter(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, pair := range pairs {
		if want[pair.GetName()] != pair.GetValue() {
			return false
		}
	}
	return true
}

func requireCode(t *testing.T, err error, code domain.FailureCode) {
	t.Helper()
	require.Error(t, err)
	var failure *domain.Failure
	require.True(t, errors.As(err, &failure), "expected *domain.Failure, got %T", err)
	require.Equal(t, code, failure.Code, "message: %s", failure.Message)
}

func TestEngine_TransitionsHappyPath(t *testing.T) {
	cases := []struct {
		name       string
		transition domain.Transition
		from       domain.OrderStatus
		actor      domain.Actor
		reason     string
		want       domain.OrderStatus
		notify     domain.Party
	}{
		{"customer cancels pending", domain.TransitionCustomerCancel, domain.OrderStatusPending, customer, "changed mind", domain.OrderStatusCancelled, domain.PartyShop},
		{"customer cancels confirmed", domain.TransitionCustomerCancel, domain.OrderStatusConfirmed, customer, "too slow", domain.OrderStatusCancelled, domain.PartyShop},
		{"shop confirms", domain.TransitionShopConfirm, domain.OrderStatusPending, shop, "", domain.OrderStatusConfirmed, domain.PartyCustomer},
		{"shop starts delivery", domain.TransitionShopDelivering, domain.OrderStatusConfirmed, shop, "", domain.OrderStatusDelivering, domain.PartyCustomer},
		{"shop rejects", domain.TransitionShopReject, domain.OrderStatusPending, shop, "closed", domain.OrderStatusRejected, domain.PartyCustomer},
		{"shop cancels pending", domain.TransitionShopCancel, domain.OrderStatusPending, shop, "no courier", domain.OrderStatusCancelled, domain.PartyCustomer},
		{"shop cancels confirmed", domain.TransitionShopCancel, domain.OrderStatusConfirmed, shop, "no courier", domain.OrderStatusCancelled, domain.PartyCustomer},
		{"shop fails delivery", domain.TransitionShopFail, domain.OrderStatusDelivering, shop, "address not found", domain.OrderStatusFailed, domain.PartyCustomer},
		{"shop marks delivered", domain.TransitionShopMarkDelivered, domain.OrderStatusDelivering, shop, "", domain.OrderStatusSuccessful, domain.PartyCustomer},
		{"admin confirms any shop", domain.TransitionShopConfirm, domain.OrderStatusPending, admin, "", domain.OrderStatusConfirmed, domain.PartyCustomer},
		{"admin cancels for customer", domain.TransitionCustomerCancel, domain.OrderStatusPending, admin, "support request", domain.OrderStatusCancelled, domain.PartyShop},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.putOrder(10, tc.from)
			engine := f.engine(nil)

			order, err := engine.Apply(context.Background(), tc.transition, 10, tc.actor, tc.reason)
			require.NoError(t, err)
			require.Equal(t, tc.want, order.Status)
			require.Equal(t, tc.reason, order.Reason())
			require.Equal(t, int64(2), order.Version)
			require.Equal(t, fixedNow, order.UpdatedAt)
			require.Empty(t, order.ValidateInvariants())

			stored, err := f.store.Get(context.Background(), 10)
			require.NoError(t, err)
			require.Equal(t, order.Status, stored.Status)

			events := f.timeline(t, 10)
			require.Len(t, events, 1)
			require.Equal(t, string(tc.transition), events[0].Type)
			require.Equal(t, tc.reason, events[0].Reason)
			require.Equal(t, tc.actor.Role, events[0].ActorRole)

			pending := f.store.AllPending()
			require.Len(t, pending, 1)
			require.Equal(t, domain.EventOrderStatusChanged, pending[0].EventType)
			require.Equal(t, "10", pending[0].AggregateID)

			sent := f.dispatcher.Sent()
			require.Len(t, sent, 1)
			require.Equal(t, tc.notify, sent[0].Recipient.Party)
			require.Equal(t, "Order #10", sent[0].Title)

			require.Equal(t, 1.0, f.counter(t, "vfoody_order_transitions_total", map[string]string{"transition": string(tc.transition), "result": metrics.ResultOK}))
		})
	}
}

func TestEngine_CustomerCancelExample(t *testing.T) {
	f := newFixture(t)
	f.putOrder(10, domain.OrderStatusPending)
	engine := f.engine(nil)

	order, err := engine.CustomerCancel(context.Background(), 10, customer, "changed mind")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, order.Status)
	require.Equal(t, "changed mind", order.CancelReason)

	sent := f.dispatcher.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, domain.PartyShop, sent[0].Recipient.Party)
	require.Equal(t, int64(7), sent[0].Recipient.ShopID)
	require.Equal(t, "Customer cancelled the order: changed mind", sent[0].Body)

	_, err = engine.ShopConfirm(context.Background(), 10, shop, "")
	requireCode(t, err, domain.CodeInvalidStateTransition)

	stored, err := f.store.Get(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, stored.Status)
	require.Len(t, f.dispatcher.Sent(), 1)
}

func TestEngine_Authorization(t *testing.T) {
	cases := []struct {
		name       string
		transition domain.Transition
		actor      domain.Actor
		code       domain.FailureCode
	}{
		{"foreign shop confirms", domain.TransitionShopConfirm, otherShop, domain.CodeForbidden},
		{"customer confirms", domain.TransitionShopConfirm, customer, domain.CodeForbidden},
		{"another customer cancels", domain.TransitionCustomerCancel, domain.Actor{AccountID: 6, Role: domain.RoleCustomer}, domain.CodeForbidden},
		{"shop cancels as buyer of foreign order", domain.TransitionCustomerCancel, shop, domain.CodeForbidden},
		{"anonymous actor", domain.TransitionCustomerCancel, domain.Actor{}, domain.CodeUnauthorized},
		{"shop role without shop", domain.TransitionShopConfirm, domain.Actor{AccountID: 70, Role: domain.RoleShop}, domain.CodeUnauthorized},
		{"unknown role", domain.TransitionShopConfirm, domain.Actor{AccountID: 70, ShopID: 7, Role: "courier"}, domain.CodeUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.putOrder(10, domain.OrderStatusPending)
			engine := f.engine(nil)

			_, err := engine.Apply(context.Background(), tc.transition, 10, tc.actor, "reason")
			requireCode(t, err, tc.code)

			stored, err := f.store.Get(context.Background(), 10)
			require.NoError(t, err)
			require.Equal(t, domain.OrderStatusPending, stored.Status)
			require.Empty(t, f.timeline(t, 10))
			require.Empty(t, f.dispatcher.Sent())
		})
	}
}

func TestEngine_ShopAccountCancelsOwnPurchase(t *testing.T) {
	f := newFixture(t)
	order := f.putOrder(10, domain.OrderStatusPending)
	order.CustomerID = shop.AccountID
	f.store.PutOrder(order)
	engine := f.engine(nil)

	got, err := engine.CustomerCancel(context.Background(), 10, shop, "ordered twice")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, got.Status)
}

func TestEngine_OrderNotFound(t *testing.T) {
	f := newFixture(t)
	engine := f.engine(nil)

	_, err := engine.ShopConfirm(context.Background(), 404, shop, "")
	requireCode(t, err, domain.CodeNotFound)
}

func TestEngine_ReasonRequired(t *testing.T) {
	cases := []struct {
		transition domain.Transition
		from       domain.OrderStatus
		actor      domain.Actor
	}{
		{domain.TransitionCustomerCancel, domain.OrderStatusPending, customer},
		{domain.TransitionShopReject, domain.OrderStatusPending, shop},
		{domain.TransitionShopCancel, domain.OrderStatusConfirmed, shop},
		{domain.TransitionShopFail, domain.OrderStatusDelivering, shop},
	}

	for _, tc := range cases {
		for _, reason := range []string{"", "   \t\n"} {
			t.Run(string(tc.transition), func(t *testing.T) {
				f := newFixture(t)
				f.putOrder(10, tc.from)
				engine := f.engine(nil)

				_, err := engine.Apply(context.Background(), tc.transition, 10, tc.actor, reason)
				requireCode(t, err, domain.CodeValidation)

				stored, err := f.store.Get(context.Background(), 10)
				require.NoError(t, err)
				require.Equal(t, tc.from, stored.Status)
				require.Equal(t, int64(1), stored.Version)
				require.Empty(t, f.timeline(t, 10))
			})
		}
	}
}

func TestEngine_ReasonIsTrimmed(t *testing.T) {
	f := newFixture(t)
	f.putOrder(10, domain.OrderStatusPending)

	order, err := f.engine(nil).ShopReject(context.Background(), 10, shop, "  out of stock \n")
	require.NoError(t, err)
	require.Equal(t, "out of stock", order.RejectReason)
}

func TestEngine_WrongStatusIsRejectedBeforeReason(t *testing.T) {
	f := newFixture(t)
	f.putOrder(10, domain.OrderStatusDelivering)
	engine := f.engine(nil)

	_, err := engine.ShopReject(context.Background(), 10, shop, "")
	requireCode(t, err, domain.CodeInvalidStateTransition)
}

func TestEngine_TerminalOrdersAreImmutable(t *testing.T) {
	terminal := []domain.OrderStatus{
		domain.OrderStatusSuccessful,
		domain.OrderStatusCancelled,
		domain.OrderStatusRejected,
		domain.OrderStatusFailed,
	}

	for _, status := range terminal {
		for _, transition := range domain.Transitions() {
			t.Run(string(status)+"/"+string(transition), func(t *testing.T) {
				f := newFixture(t)
				before := f.putOrder(10, status)
				engine := f.engine(nil)

				_, err := engine.Apply(context.Background(), transition, 10, admin, "again")
				requireCode(t, err, domain.CodeInvalidStateTransition)

				after, err := f.store.Get(context.Background(), 10)
				require.NoError(t, err)
				require.Equal(t, before, after)
				require.Empty(t, f.store.AllPending())
				requests, _ := f.gateway.Calls()
				require.Zero(t, requests)
			})
		}
	}
}

func TestEngine_DoubleConfirmFails(t *testing.T) {
	f := newFixture(t)
	f.putOrder(10, domain.OrderStatusPending)
	engine := f.engine(nil)

	_, err := engine.ShopConfirm(context.Background(), 10, shop, "")
	require.NoError(t, err)

	_, err = engine.ShopConfirm(context.Background(), 10, shop, "")
	requireCode(t, err, domain.CodeInvalidStateTransition)
	require.Len(t, f.timeline(t, 10), 1)
	require.Equal(t, 1.0, f.counter(t, "vfoody_order_transitions_total", map[string]string{"transition": string(domain.TransitionShopConfirm), "result": string(domain.CodeInvalidStateTransition)}))
}

func TestEngine_ConcurrentConfirmAndCancelCommitOnce(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		f.putOrder(10, domain.OrderStatusPending)

		var barrier sync.WaitGroup
		barrier.Add(2)
		engine := f.engine(barrierUoW{inner: f.store, wg: &barrier})

		var (
			wg         sync.WaitGroup
			confirmErr error
			cancelErr  error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, confirmErr = engine.ShopConfirm(context.Background(), 10, shop, "")
		}()
		go func() {
			defer wg.Done()
			_, cancelErr = engine.CustomerCancel(context.Background(), 10, customer, "changed mind")
		}()
		wg.Wait()

		stored, err := f.store.Get(context.Background(), 10)
		require.NoError(t, err)
		require.Equal(t, int64(2), stored.Version, "exactly one transition must commit")
		require.Len(t, f.timeline(t, 10), 1)

		switch {
		case confirmErr == nil:
			requireCode(t, cancelErr, domain.CodeInvalidStateTransition)
			require.Equal(t, domain.OrderStatusConfirmed, stored.Status)
		case cancelErr == nil:
			requireCode(t, confirmErr, domain.CodeInvalidStateTransition)
			require.Equal(t, domain.OrderStatusCancelled, stored.Status)
		default:
			t.Fatalf("both transitions failed: %v / %v", confirmErr, cancelErr)
		}
	}
}

func TestEngine_ConcurrentShopDecisionsSequentialWinner(t *testing.T) {
	f := newFixture(t)
	f.putOrder(10, domain.OrderStatusPending)
	engine := f.engine(nil)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = engine.ShopConfirm(context.Background(), 10, shop, "")
			} else {
				_, err = engine.ShopReject(context.Background(), 10, shop, "busy")
			}
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, success)
	require.Len(t, f.timeline(t, 10), 1)
}

func TestEngine_CancelledContextBeforeTxHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	f.putOrder(10, domain.OrderStatusPending)
	engine := f.engine(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.ShopConfirm(ctx, 10, shop, "")
	require.Error(t, err)

	stored, err := f.store.Get(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, stored.Status)
	require.Empty(t, f.dispatcher.Sent())
}

func TestEngine_PersistenceFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.putOrder(10, domain.OrderStatusPending)
	engine := f.engine(failingUoW{inner: f.store, err: errors.New("connection reset")})

	_, err := engine.ShopConfirm(context.Background(), 10, shop, "")
	requireCode(t, err, domain.CodePersistence)
	require.NotContains(t, err.Error(), "connection reset")

	stored, err := f.store.Get(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, stored.Status)
	require.Empty(t, f.timeline(t, 10))
	require.Empty(t, f.store.AllPending())
	require.Empty(t, f.dispatcher.Sent())
}

func TestEngine_DispatchRejectionDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.reject = true
	f.putOrder(10, domain.OrderStatusPending)
	engine := f.engine(nil)

	order, err := engine.ShopConfirm(context.Background(), 10, shop, "")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusConfirmed, order.Status)
}

func TestEngine_RequestPaymentLink(t *testing.T) {
	f := newFixture(t)
	f.putOrder(10, domain.OrderStatusConfirmed)
	engine := f.engine(nil)

	order, err := engine.ShopRequestPaymentLink(context.Background(), 10, shop, "")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusConfirmed, order.Status)
	require.NotNil(t, order.PaymentLink)
	require.Equal(t, "mock-10", order.PaymentLink.PaymentLinkID)
	require.Equal(t, int64(50000), order.PaymentLink.AmountMinor)
	require.Equal(t, "VND", order.PaymentLink.Currency)

	stored, err := f.store.Get(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, order.PaymentLink, stored.PaymentLink)

	events := f.timeline(t, 10)
	require.Len(t, events, 1)
	require.Equal(t, domain.TimelinePaymentLinkIssued, events[0].Type)

	pending := f.store.AllPending()
	require.Len(t, pending, 1)
	require.Equal(t, domain.EventOrderPaymentLinkIssued, pending[0].EventType)

	sent := f.dispatcher.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "Payment link is ready", sent[0].Body)
	require.Equal(t, "mock://pay/10", sent[0].Data["checkout_url"])
}

func TestEngine_RequestPaymentLinkReturnsStoredLink(t *testing.T) {
	f := newFixture(t)
	f.putOrder(10, domain.OrderStatusConfirmed)
	engine := f.engine(nil)

	first, err := engine.ShopRequestPaymentLink(context.Background(), 10, shop, "")
	require.NoError(t, err)

	second, err := engine.ShopRequestPaymentLink(context.Background(), 10, shop, "")
	require.NoError(t, err)
	require.Equal(t, first.PaymentLink, second.PaymentLink)

	requests, cancels := f.gateway.Calls()
	require.Equal(t, 1, requests)
	require.Zero(t, cancels)
	require.Len(t, f.timeline(t, 10), 1)
}

func TestEngine_RequestPaymentLinkGatewayTimeout(t *testing.T) {
	f := newFixture(t)
	f.gateway.Delay = time.Second
	f.putOrder(10, domain.OrderStatusConfirmed)
	engine := f.engine(nil, lifecycle.WithGatewayTimeout(10*time.Millisecond))

	_, err := engine.ShopRequestPaymentLink(context.Background(), 10, shop, "")
	requireCode(t, err, domain.CodePaymentGateway)

	stored, err := f.store.Get(context.Background(), 10)
	require.NoError(t, err)
	require.Nil(t, stored.PaymentLink)
	require.Equal(t, domain.OrderStatusConfirmed, stored.Status)
	require.Empty(t, f.timeline(t, 10))
	require.Empty(t, f.dispatcher.Sent())
}

func TestEngine_RequestPaymentLinkGatewayError(t *testing.T) {
	f := newFixture(t)
	f.gateway.RequestErr = errors.New("503 from provider")
	f.putOrder(10, domain.OrderStatusConfirmed)
	engine := f.engine(nil)

	_, err := engine.ShopRequestPaymentLink(context.Background(), 10, shop, "")
	requireCode(t, err, domain.CodePaymentGateway)
	require.NotContains(t, err.Error(), "503")
}

func TestEngine_RequestPaymentLinkCompensatesOnCommitFailure(t *testing.T) {
	f := newFixture(t)
	f.putOrder(10, domain.OrderStatusConfirmed)
	engine := f.engine(failingUoW{inner: f.store, err: errors.New("disk full")})

	_, err := engine.ShopRequestPaymentLink(context.Background(), 10, shop, "")
	requireCode(t, err, domain.CodePersistence)

	requests, cancels := f.gateway.Calls()
	require.Equal(t, 1, requests)
	require.Equal(t, 1, cancels)
	require.Equal(t, []string{"mock-10"}, f.gateway.Cancelled)

	stored, err := f.store.Get(context.Background(), 10)
	require.NoError(t, err)
	require.Nil(t, stored.PaymentLink)
	require.Equal(t, 1.0, f.counter(t, "vfoody_payment_link_compensations_total", map[string]string{"result": metrics.ResultOK}))
}

func TestEngine_RequestPaymentLinkCompensationFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	f.gateway.CancelErr = errors.New("provider down")
	f.putOrder(10, domain.OrderStatusConfirmed)
	engine := f.engine(failingUoW{inner: f.store, err: errors.New("disk full")})

	_, err := engine.ShopRequestPaymentLink(context.Background(), 10, shop, "")
	requireCode(t, err, domain.CodePersistence)
	require.Equal(t, 1.0, f.counter(t, "vfoody_payment_link_compensations_total", map[string]string{"result": "failed"}))
}

func TestEngine_RequestPaymentLinkRequiresPositiveTotal(t *testing.T) {
	f := newFixture(t)
	order := f.putOrder(10, domain.OrderStatusConfirmed)
	order.DiscountMinor = order.SubtotalMinor
	order.TotalMinor = 0
	f.store.PutOrder(order)
	engine := f.engine(nil)

	_, err := engine.ShopRequestPaymentLink(context.Background(), 10, shop, "")
	requireCode(t, err, domain.CodeValidation)
	requests, _ := f.gateway.Calls()
	require.Zero(t, requests)
}

func TestEngine_RequestPaymentLinkWrongStatus(t *testing.T) {
	f := newFixture(t)
	f.putOrder(10, domain.OrderStatusPending)
	engine := f.engine(nil)

	_, err := engine.ShopRequestPaymentLink(context.Background(), 10, shop, "")
	requireCode(t, err, domain.CodeInvalidStateTransition)
	requests, _ := f.gateway.Calls()
	require.Zero(t, requests)
}

func TestEngine_UnknownTransition(t *testing.T) {
	f := newFixture(t)
	f.putOrder(10, domain.OrderStatusPending)
	engine := f.engine(nil)

	_, err := engine.Apply(context.Background(), "teleport", 10, admin, "")
	requireCode(t, err, domain.CodeValidation)
}
