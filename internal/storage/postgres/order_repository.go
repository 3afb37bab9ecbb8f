package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

const (
	opTimeout = 5 * time.Second

	orderColumns = `id, status, customer_id, shop_id,
		subtotal_minor, discount_minor, total_minor,
		promotion_id, promotion_scope, promotion_title,
		cancel_reason, reject_reason, fail_reason,
		payment_link, note, version, created_at, updated_at`
)

// querier: общее подмножество *sql.DB и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// optionRecord и paymentLinkRecord: JSONB-представления снимков заказа.
type optionRecord struct {
	QuestionID      int64  `json:"question_id"`
	QuestionText    string `json:"question_text"`
	OptionID        int64  `json:"option_id"`
	OptionText      string `json:"option_text"`
	PriceDeltaMinor int64  `json:"price_delta_minor"`
}

type paymentLinkRecord struct {
	PaymentLinkID string    `json:"payment_link_id"`
	CheckoutURL   string    `json:"checkout_url"`
	QRCode        string    `json:"qr_code"`
	Status        string    `json:"status"`
	AmountMinor   int64     `json:"amount_minor"`
	OrderCode     int64     `json:"order_code"`
	Description   string    `json:"description"`
	Currency      string    `json:"currency"`
	Bin           string    `json:"bin"`
	AccountNumber string    `json:"account_number"`
	Provider      string    `json:"provider"`
	CreatedAt     time.Time `json:"created_at"`
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Get(ctx context.Context, id int64) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return loadOrder(ctx, r.db, id, false)
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		where []string
		args  []any
	)
	if filter.CustomerID > 0 {
		args = append(args, filter.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.ShopID > 0 {
		args = append(args, filter.ShopID)
		where = append(where, fmt.Sprintf("shop_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	index := make(map[int64]int)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		index[order.ID] = len(orders)
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	items, err := loadItems(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for orderID, list := range items {
		orders[index[orderID]].Items = list
	}

	return orders, nil
}

// loadOrder читает заказ с позициями. forUpdate блокирует строку до конца транзакции.
func loadOrder(ctx context.Context, q querier, id int64, forUpdate bool) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	order, err := scanOrder(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, err
	}

	items, err := loadItems(ctx, q, []int64{id})
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items[id]

	return order, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order       domain.Order
		status      string
		promoID     sql.NullInt64
		promoScope  sql.NullString
		promoTitle  sql.NullString
		paymentLink []byte
	)

	if err := row.Scan(
		&order.ID,
		&status,
		&order.CustomerID,
		&order.ShopID,
		&order.SubtotalMinor,
		&order.DiscountMinor,
		&order.TotalMinor,
		&promoID,
		&promoScope,
		&promoTitle,
		&order.CancelReason,
		&order.RejectReason,
		&order.FailReason,
		&paymentLink,
		&order.Note,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, err
		}
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}

	parsed, err := domain.ParseOrderStatus(status)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %d has status %q: %w", order.ID, status, err)
	}
	order.Status = parsed
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()

	if promoID.Valid {
		order.Promotion = &domain.AppliedPromotion{
			PromotionID:   promoID.Int64,
			Scope:         domain.PromotionScope(promoScope.String),
			Title:         promoTitle.String,
			DiscountMinor: order.DiscountMinor,
		}
	}

	if len(paymentLink) > 0 {
		var rec paymentLinkRecord
		if err := json.Unmarshal(paymentLink, &rec); err != nil {
			return domain.Order{}, fmt.Errorf("decode payment link of order %d: %w", order.ID, err)
		}
		link := domain.PaymentLink(rec)
		link.CreatedAt = link.CreatedAt.UTC()
		order.PaymentLink = &link
	}

	return order, nil
}

func loadItems(ctx context.Context, q querier, orderIDs []int64) (map[int64][]domain.LineItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT order_id, product_id, product_name, quantity, unit_price_minor, options
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	result := make(map[int64][]domain.LineItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID int64
			item    domain.LineItem
			rawOpts []byte
		)
		if err := rows.Scan(
			&orderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPriceMinor,
			&rawOpts,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}

		var opts []optionRecord
		if len(rawOpts) > 0 {
			if err := json.Unmarshal(rawOpts, &opts); err != nil {
				return nil, fmt.Errorf("decode options of order %d: %w", orderID, err)
			}
		}
		for _, o := range opts {
			item.Options = append(item.Options, domain.OptionSnapshot(o))
		}
		result[orderID] = append(result[orderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return result, nil
}

// insertOrder сохраняет новый заказ и его позиции. ID выдаёт база, версия начинается с 1.
func insertOrder(ctx context.Context, q querier, order *domain.Order) error {
	link, err := encodePaymentLink(order.PaymentLink)
	if err != nil {
		return err
	}

	var (
		promoID    sql.NullInt64
		promoScope sql.NullString
		promoTitle sql.NullString
	)
	if order.Promotion != nil {
		promoID = sql.NullInt64{Int64: order.Promotion.PromotionID, Valid: true}
		promoScope = sql.NullString{String: string(order.Promotion.Scope), Valid: true}
		promoTitle = sql.NullString{String: order.Promotion.Title, Valid: true}
	}

	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	var id int64
	err = q.QueryRowContext(ctx, `
		INSERT INTO orders (
			status, customer_id, shop_id,
			subtotal_minor, discount_minor, total_minor,
			promotion_id, promotion_scope, promotion_title,
			cancel_reason, reject_reason, fail_reason,
			payment_link, note, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,1,$15,$16)
		RETURNING id
	`,
		string(order.Status), order.CustomerID, order.ShopID,
		order.SubtotalMinor, order.DiscountMinor, order.TotalMinor,
		promoID, promoScope, promoTitle,
		order.CancelReason, order.RejectReason, order.FailReason,
		link, order.Note, order.CreatedAt, order.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		opts := make([]optionRecord, 0, len(item.Options))
		for _, o := range item.Options {
			opts = append(opts, optionRecord(o))
		}
		rawOpts, err := json.Marshal(opts)
		if err != nil {
			return fmt.Errorf("encode item options: %w", err)
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO order_items (
				order_id, position, product_id, product_name, quantity, unit_price_minor, options
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, id, i, item.ProductID, item.ProductName, item.Quantity, item.UnitPriceMinor, rawOpts); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	order.ID = id
	order.Version = 1
	return nil
}

// updateOrder сохраняет изменяемые поля заказа с проверкой версии.
func updateOrder(ctx context.Context, q querier, order *domain.Order) error {
	link, err := encodePaymentLink(order.PaymentLink)
	if err != nil {
		return err
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = time.Now().UTC()
	}

	res, err := q.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    cancel_reason = $2,
		    reject_reason = $3,
		    fail_reason = $4,
		    payment_link = $5,
		    version = version + 1,
		    updated_at = $6
		WHERE id = $7 AND version = $8
	`,
		string(order.Status), order.CancelReason, order.RejectReason, order.FailReason,
		link, order.UpdatedAt, order.ID, order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check order existence: %w", err)
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	order.Version++
	return nil
}

func encodePaymentLink(link *domain.PaymentLink) ([]byte, error) {
	if link == nil {
		return nil, nil
	}
	raw, err := json.Marshal(paymentLinkRecord(*link))
	if err != nil {
		return nil, fmt.Errorf("encode payment link: %w", err)
	}
	return raw, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
