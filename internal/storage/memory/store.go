package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

// Store: in-memory хранилище для локальной разработки и тестов.
// Транзакции сериализуются txMu; чтения идут под mu и не ждут транзакций.
type Store struct {
	txMu sync.Mutex

	mu          sync.RWMutex
	nextOrderID int64
	orders      map[int64]domain.Order
	timeline    map[int64][]domain.TimelineEvent
	outbox      map[string]*outboxRecord
	shops       map[int64]domain.Shop
	products    map[int64]domain.Product
	promotions  map[int64]domain.Promotion
	accounts    map[int64]domain.Account
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		orders:     make(map[int64]domain.Order),
		timeline:   make(map[int64][]domain.TimelineEvent),
		outbox:     make(map[string]*outboxRecord),
		shops:      make(map[int64]domain.Shop),
		products:   make(map[int64]domain.Product),
		promotions: make(map[int64]domain.Promotion),
		accounts:   make(map[int64]domain.Account),
	}
}

// Ping всегда успешен: хранилище живёт в процессе.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// WithinTx выполняет fn в транзакции. Изменения копятся в буфере и применяются только при успехе fn.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{
		store:      s,
		orders:     make(map[int64]domain.Order),
		promotions: make(map[int64]domain.Promotion),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memTx буферизует записи одной транзакции.
type memTx struct {
	store      *Store
	orders     map[int64]domain.Order
	promotions map[int64]domain.Promotion
	timeline   []domain.TimelineEvent
	outbox     []domain.OutboxMessage
}

func (t *memTx) LockOrder(ctx context.Context, id int64) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	if order, ok := t.orders[id]; ok {
		return order.Clone(), nil
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	order, ok := t.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (t *memTx) CreateOrder(ctx context.Context, order *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.store.mu.Lock()
	t.store.nextOrderID++
	id := t.store.nextOrderID
	t.store.mu.Unlock()

	order.ID = id
	order.Version = 1
	t.orders[id] = order.Clone()
	return nil
}

func (t *memTx) UpdateOrder(ctx context.Context, order *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	current, err := t.LockOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	order.Version++
	t.orders[order.ID] = order.Clone()
	return nil
}

func (t *memTx) ConsumePromotion(ctx context.Context, id int64, now time.Time) (domain.Promotion, error) {
	if err := ctx.Err(); err != nil {
		return domain.Promotion{}, err
	}

	promo, ok := t.promotions[id]
	if !ok {
		t.store.mu.RLock()
		promo, ok = t.store.promotions[id]
		t.store.mu.RUnlock()
	}
	if !ok {
		return domain.Promotion{}, domain.ErrPromotionNotFound
	}
	if promo.UsedCount >= promo.UsageLimit {
		return promo, domain.ErrPromotionExhausted
	}
	promo.UsedCount++
	t.promotions[id] = promo
	return promo, nil
}

func (t *memTx) AppendTimeline(ctx context.Context, event domain.TimelineEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.timeline = append(t.timeline, event)
	return nil
}

func (t *memTx) EnqueueOutbox(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxMessage{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	t.outbox = append(t.outbox, msg)
	return msg, nil
}

func (t *memTx) commit() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, order := range t.orders {
		s.orders[id] = order
	}
	for id, promo := range t.promotions {
		s.promotions[id] = promo
	}
	for _, event := range t.timeline {
		s.timeline[event.OrderID] = append(s.timeline[event.OrderID], event)
	}
	for _, msg := range t.outbox {
		s.outbox[msg.ID] = &outboxRecord{
			msg:       msg,
			status:    outboxStatusPending,
			createdAt: msg.CreatedAt,
			updatedAt: msg.CreatedAt,
		}
	}
}

var (
	_ domain.UnitOfWork    = (*Store)(nil)
	_ domain.Tx            = (*memTx)(nil)
	_ domain.HealthChecker = (*Store)(nil)
)
