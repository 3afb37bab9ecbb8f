package memory

import (
	"context"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

// PutShop добавляет или заменяет магазин.
func (s *Store) PutShop(shop domain.Shop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shops[shop.ID] = shop
}

// PutProduct добавляет или заменяет товар вместе с вопросами.
func (s *Store) PutProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = cloneProduct(product)
}

// PutPromotion добавляет или заменяет акцию.
func (s *Store) PutPromotion(promo domain.Promotion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promotions[promo.ID] = promo
}

// PutAccount добавляет или заменяет аккаунт.
func (s *Store) PutAccount(account domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = account
}

func (s *Store) GetShop(ctx context.Context, id int64) (domain.Shop, error) {
	if err := ctx.Err(); err != nil {
		return domain.Shop{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	shop, ok := s.shops[id]
	if !ok {
		return domain.Shop{}, domain.ErrShopNotFound
	}
	return shop, nil
}

func (s *Store) ProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := s.products[id]; ok {
			result[id] = cloneProduct(product)
		}
	}
	return result, nil
}

func (s *Store) GetPromotion(ctx context.Context, id int64) (domain.Promotion, error) {
	if err := ctx.Err(); err != nil {
		return domain.Promotion{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	promo, ok := s.promotions[id]
	if !ok {
		return domain.Promotion{}, domain.ErrPromotionNotFound
	}
	return promo, nil
}

// DeviceToken находит токен устройства покупателя или владельца магазина.
func (s *Store) DeviceToken(ctx context.Context, recipient domain.Recipient) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	accountID := recipient.AccountID
	if recipient.Party == domain.PartyShop {
		shop, ok := s.shops[recipient.ShopID]
		if !ok {
			return "", domain.ErrShopNotFound
		}
		accountID = shop.OwnerAccountID
	}

	account, ok := s.accounts[accountID]
	if !ok {
		return "", domain.ErrAccountNotFound
	}
	if account.DeviceToken == "" {
		return "", domain.ErrDeviceTokenMissing
	}
	return account.DeviceToken, nil
}

func cloneProduct(src domain.Product) domain.Product {
	dst := src
	if src.Questions != nil {
		dst.Questions = make([]domain.Question, len(src.Questions))
		for i, q := range src.Questions {
			dst.Questions[i] = q
			dst.Questions[i].Options = append([]domain.Option(nil), q.Options...)
		}
	}
	return dst
}

var (
	_ domain.CatalogRepository   = (*Store)(nil)
	_ domain.PromotionRepository = (*Store)(nil)
	_ domain.AccountDirectory    = (*Store)(nil)
)
