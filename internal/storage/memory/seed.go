package memory

import (
	"time"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

// SeedDemo наполняет хранилище демонстрационным каталогом для локального запуска.
func (s *Store) SeedDemo(now time.Time) {
	s.PutAccount(domain.Account{ID: 1, Name: "admin", Role: domain.RoleAdmin})
	s.PutAccount(domain.Account{ID: 5, Name: "demo customer", Role: domain.RoleCustomer})
	s.PutAccount(domain.Account{ID: 70, Name: "demo shop owner", Role: domain.RoleShop, ShopID: 7})

	s.PutShop(domain.Shop{ID: 7, OwnerAccountID: 70, Name: "Demo Kitchen", Active: true})

	s.PutProduct(domain.Product{
		ID: 1, ShopID: 7, Name: "Pho bo", PriceMinor: 45000, Status: domain.ProductStatusActive,
		Questions: []domain.Question{{
			ID: 1, ProductID: 1, Text: "Size", Kind: domain.QuestionSingleChoice, Required: true,
			Options: []domain.Option{
				{ID: 1, QuestionID: 1, Text: "Regular", Active: true},
				{ID: 2, QuestionID: 1, Text: "Large", PriceDeltaMinor: 10000, Active: true},
			},
		}},
	})
	s.PutProduct(domain.Product{
		ID: 2, ShopID: 7, Name: "Tra da", PriceMinor: 5000, Status: domain.ProductStatusActive,
	})

	s.PutPromotion(domain.Promotion{
		ID: 1, Scope: domain.PromotionScopePlatform, Title: "10% off",
		ApplyType: domain.PromotionApplyRate, RatePercent: 10, MaxDiscountMinor: 20000,
		MinOrderMinor: 30000, UsageLimit: 1000,
		StartAt: now.Add(-24 * time.Hour), EndAt: now.Add(30 * 24 * time.Hour), Active: true,
	})
}
