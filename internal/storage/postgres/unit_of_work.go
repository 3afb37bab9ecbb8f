package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

// WithinTx выполняет fn в транзакции READ COMMITTED. Любая ошибка fn откатывает транзакцию.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(ctx, &pgTx{tx: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

// LockOrder читает заказ через SELECT ... FOR UPDATE.
func (t *pgTx) LockOrder(ctx context.Context, id int64) (domain.Order, error) {
	return loadOrder(ctx, t.tx, id, true)
}

func (t *pgTx) CreateOrder(ctx context.Context, order *domain.Order) error {
	return insertOrder(ctx, t.tx, order)
}

func (t *pgTx) UpdateOrder(ctx context.Context, order *domain.Order) error {
	return updateOrder(ctx, t.tx, order)
}

// ConsumePromotion атомарно увеличивает used_count, пока лимит не исчерпан.
// Конкурентные покупатели сериализуются на блокировке строки акции.
func (t *pgTx) ConsumePromotion(ctx context.Context, id int64, now time.Time) (domain.Promotion, error) {
	promo, err := scanPromotion(t.tx.QueryRowContext(ctx, `
		UPDATE promotions
		SET used_count = used_count + 1
		WHERE id = $1 AND used_count < usage_limit
		RETURNING `+promotionColumns, id))
	if err == nil {
		return promo, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Promotion{}, fmt.Errorf("consume promotion: %w", err)
	}

	current, err := scanPromotion(t.tx.QueryRowContext(ctx, `SELECT `+promotionColumns+` FROM promotions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Promotion{}, domain.ErrPromotionNotFound
		}
		return domain.Promotion{}, err
	}
	return current, domain.ErrPromotionExhausted
}

func (t *pgTx) AppendTimeline(ctx context.Context, event domain.TimelineEvent) error {
	return appendTimeline(ctx, t.tx, event)
}

func (t *pgTx) EnqueueOutbox(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return enqueueOutbox(ctx, t.tx, msg)
}

var (
	_ domain.UnitOfWork = (*Store)(nil)
	_ domain.Tx         = (*pgTx)(nil)
)
