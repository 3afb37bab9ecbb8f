package domain

import (
	"errors"
	"time"
)

var (
	ErrShopInactive            = errors.New("shop is not accepting orders")
	ErrProductNotOrderable     = errors.New("product is not orderable")
	ErrOptionInvalid           = errors.New("option does not belong to product")
	ErrPromotionInactive       = errors.New("promotion is not active")
	ErrPromotionOutOfWindow    = errors.New("promotion is outside its validity window")
	ErrPromotionMinimumNotMet  = errors.New("order subtotal is below promotion minimum")
	ErrPromotionShopMismatch   = errors.New("promotion belongs to another shop")
	ErrPromotionApplyTypeUnset = errors.New("promotion apply type is unknown")
)

// Account: минимальные сведения об аккаунте, нужные для уведомлений.
type Account struct {
	ID          int64
	Name        string
	Role        Role
	ShopID      int64
	DeviceToken string
}

// Shop описывает магазин.
type Shop struct {
	ID             int64
	OwnerAccountID int64
	Name           string
	Active         bool
}

// ProductStatus: состояние товара в каталоге.
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusInactive ProductStatus = "inactive"
	ProductStatusDeleted  ProductStatus = "deleted"
)

// QuestionKind: вид вопроса к товару.
type QuestionKind string

const (
	QuestionSingleChoice   QuestionKind = "single"
	QuestionMultipleChoice QuestionKind = "multiple"
)

// Option: вариант ответа на вопрос с надбавкой к цене.
type Option struct {
	ID              int64
	QuestionID      int64
	Text            string
	PriceDeltaMinor int64
	Active          bool
}

// Question: вопрос к товару (размер, топпинги и т.п.).
type Question struct {
	ID        int64
	ProductID int64
	Text      string
	Kind      QuestionKind
	Required  bool
	Options   []Option
}

// Product описывает товар магазина.
type Product struct {
	ID         int64
	ShopID     int64
	Name       string
	PriceMinor int64
	Status     ProductStatus
	Questions  []Question
}

// Orderable сообщает, можно ли заказать товар.
func (p Product) Orderable() bool {
	return p.Status == ProductStatusActive
}

// ResolveOptions проверяет выбранные опции и возвращает их снимки.
func (p Product) ResolveOptions(optionIDs []int64) ([]OptionSnapshot, error) {
	type located struct {
		question Question
		option   Option
	}
	index := make(map[int64]located)
	for _, q := range p.Questions {
		for _, opt := range q.Options {
			index[opt.ID] = located{question: q, option: opt}
		}
	}

	perQuestion := make(map[int64]int)
	seen := make(map[int64]struct{}, len(optionIDs))
	snapshots := make([]OptionSnapshot, 0, len(optionIDs))
	for _, id := range optionIDs {
		if _, dup := seen[id]; dup {
			return nil, ErrOptionInvalid
		}
		seen[id] = struct{}{}

		loc, ok := index[id]
		if !ok || !loc.option.Active {
			return nil, ErrOptionInvalid
		}
		perQuestion[loc.question.ID]++
		snapshots = append(snapshots, OptionSnapshot{
			QuestionID:      loc.question.ID,
			QuestionText:    loc.question.Text,
			OptionID:        loc.option.ID,
			OptionText:      loc.option.Text,
			PriceDeltaMinor: loc.option.PriceDeltaMinor,
		})
	}

	for _, q := range p.Questions {
		n := perQuestion[q.ID]
		if q.Kind == QuestionSingleChoice && n > 1 {
			return nil, ErrOptionInvalid
		}
		if q.Required && n == 0 {
			return nil, ErrOptionInvalid
		}
	}
	return snapshots, nil
}

// PromotionScope: уровень акции.
type PromotionScope string

const (
	PromotionScopePlatform PromotionScope = "platform"
	PromotionScopeShop     PromotionScope = "shop"
)

// PromotionApplyType: способ расчёта скидки.
type PromotionApplyType string

const (
	PromotionApplyRate   PromotionApplyType = "rate"
	PromotionApplyAmount PromotionApplyType = "amount"
)

// Promotion описывает акцию платформы или магазина.
type Promotion struct {
	ID     int64
	Scope  PromotionScope
	ShopID int64
	Title  string

	ApplyType PromotionApplyType
	// RatePercent: процент скидки для ApplyType=rate.
	RatePercent int64
	// AmountMinor: фиксированная скидка для ApplyType=amount.
	AmountMinor int64
	// MaxDiscountMinor ограничивает процентную скидку, 0: без ограничения.
	MaxDiscountMinor int64
	MinOrderMinor    int64

	UsageLimit int64
	UsedCount  int64
	StartAt    time.Time
	EndAt      time.Time
	Active     bool
}

// CheckApplicable проверяет, что акцию можно применить к заказу.
func (p Promotion) CheckApplicable(shopID, subtotal int64, now time.Time) error {
	switch {
	case !p.Active:
		return ErrPromotionInactive
	case now.Before(p.StartAt) || now.After(p.EndAt):
		return ErrPromotionOutOfWindow
	case p.UsedCount >= p.UsageLimit:
		return ErrPromotionExhausted
	case subtotal < p.MinOrderMinor:
		return ErrPromotionMinimumNotMet
	case p.Scope == PromotionScopeShop && p.ShopID != shopID:
		return ErrPromotionShopMismatch
	case p.ApplyType != PromotionApplyRate && p.ApplyType != PromotionApplyAmount:
		return ErrPromotionApplyTypeUnset
	}
	return nil
}

// Discount рассчитывает скидку для суммы позиций.
func (p Promotion) Discount(subtotal int64) int64 {
	var discount int64
	switch p.ApplyType {
	case PromotionApplyRate:
		discount = subtotal * p.RatePercent / 100
		if p.MaxDiscountMinor > 0 && discount > p.MaxDiscountMinor {
			discount = p.MaxDiscountMinor
		}
	case PromotionApplyAmount:
		discount = p.AmountMinor
	}
	if discount < 0 {
		return 0
	}
	return discount
}
