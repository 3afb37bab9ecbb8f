package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

const promotionColumns = `id, scope, shop_id, title, apply_type,
	rate_percent, amount_minor, max_discount_minor, min_order_minor,
	usage_limit, used_count, start_at, end_at, active`

// CatalogRepository читает магазины, товары, акции и аккаунты.
type CatalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository создаёт PostgreSQL-реализацию каталога.
func NewCatalogRepository(store *Store) *CatalogRepository {
	return &CatalogRepository{db: store.DB()}
}

func (r *CatalogRepository) GetShop(ctx context.Context, id int64) (domain.Shop, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var shop domain.Shop
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_account_id, name, active
		FROM shops
		WHERE id = $1
	`, id).Scan(&shop.ID, &shop.OwnerAccountID, &shop.Name, &shop.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Shop{}, domain.ErrShopNotFound
		}
		return domain.Shop{}, fmt.Errorf("get shop: %w", err)
	}

	return shop, nil
}

// ProductsByIDs загружает товары вместе с вопросами и вариантами ответов.
func (r *CatalogRepository) ProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	result := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, shop_id, name, price_minor, status
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p      domain.Product
			status string
		)
		if err := rows.Scan(&p.ID, &p.ShopID, &p.Name, &p.PriceMinor, &status); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Status = domain.ProductStatus(status)
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	if len(result) == 0 {
		return result, nil
	}

	if err := r.attachQuestions(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *CatalogRepository) attachQuestions(ctx context.Context, products map[int64]domain.Product) error {
	ids := make([]int64, 0, len(products))
	for id := range products {
		ids = append(ids, id)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT q.id, q.product_id, q.text, q.kind, q.required,
		       o.id, o.text, o.price_delta_minor, o.active
		FROM product_questions q
		LEFT JOIN product_options o ON o.question_id = q.id
		WHERE q.product_id = ANY($1)
		ORDER BY q.product_id, q.id, o.id
	`, ids)
	if err != nil {
		return fmt.Errorf("select product questions: %w", err)
	}
	defer rows.Close()

	questions := make(map[int64][]domain.Question)
	for rows.Next() {
		var (
			q         domain.Question
			kind      string
			optID     sql.NullInt64
			optText   sql.NullString
			optDelta  sql.NullInt64
			optActive sql.NullBool
		)
		if err := rows.Scan(
			&q.ID, &q.ProductID, &q.Text, &kind, &q.Required,
			&optID, &optText, &optDelta, &optActive,
		); err != nil {
			return fmt.Errorf("scan product question: %w", err)
		}
		q.Kind = domain.QuestionKind(kind)

		list := questions[q.ProductID]
		if n := len(list); n == 0 || list[n-1].ID != q.ID {
			list = append(list, q)
		}
		if optID.Valid {
			last := &list[len(list)-1]
			last.Options = append(last.Options, domain.Option{
				ID:              optID.Int64,
				QuestionID:      q.ID,
				Text:            optText.String,
				PriceDeltaMinor: optDelta.Int64,
				Active:          optActive.Bool,
			})
		}
		questions[q.ProductID] = list
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate product questions: %w", err)
	}

	for productID, list := range questions {
		p := products[productID]
		p.Questions = list
		products[productID] = p
	}
	return nil
}

func (r *CatalogRepository) GetPromotion(ctx context.Context, id int64) (domain.Promotion, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	promo, err := scanPromotion(r.db.QueryRowContext(ctx, `SELECT `+promotionColumns+` FROM promotions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Promotion{}, domain.ErrPromotionNotFound
		}
		return domain.Promotion{}, err
	}
	return promo, nil
}

// DeviceToken находит токен устройства покупателя или владельца магазина.
func (r *CatalogRepository) DeviceToken(ctx context.Context, recipient domain.Recipient) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		token sql.NullString
		err   error
	)
	if recipient.Party == domain.PartyShop {
		var found bool
		err = r.db.QueryRowContext(ctx, `
			SELECT TRUE, a.device_token
			FROM shops s
			LEFT JOIN accounts a ON a.id = s.owner_account_id
			WHERE s.id = $1
		`, recipient.ShopID).Scan(&found, &token)
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrShopNotFound
		}
		if err == nil && !token.Valid {
			return "", domain.ErrAccountNotFound
		}
	} else {
		err = r.db.QueryRowContext(ctx, `
			SELECT device_token FROM accounts WHERE id = $1
		`, recipient.AccountID).Scan(&token)
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrAccountNotFound
		}
	}
	if err != nil {
		return "", fmt.Errorf("get device token: %w", err)
	}
	if token.String == "" {
		return "", domain.ErrDeviceTokenMissing
	}

	return token.String, nil
}

func scanPromotion(row rowScanner) (domain.Promotion, error) {
	var (
		p         domain.Promotion
		scope     string
		applyType string
	)
	if err := row.Scan(
		&p.ID, &scope, &p.ShopID, &p.Title, &applyType,
		&p.RatePercent, &p.AmountMinor, &p.MaxDiscountMinor, &p.MinOrderMinor,
		&p.UsageLimit, &p.UsedCount, &p.StartAt, &p.EndAt, &p.Active,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Promotion{}, err
		}
		return domain.Promotion{}, fmt.Errorf("scan promotion: %w", err)
	}
	p.Scope = domain.PromotionScope(scope)
	p.ApplyType = domain.PromotionApplyType(applyType)
	p.StartAt = p.StartAt.UTC()
	p.EndAt = p.EndAt.UTC()
	return p, nil
}

var (
	_ domain.CatalogRepository   = (*CatalogRepository)(nil)
	_ domain.PromotionRepository = (*CatalogRepository)(nil)
	_ domain.AccountDirectory    = (*CatalogRepository)(nil)
)
