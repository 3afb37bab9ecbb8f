package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (s *Store) Get(ctx context.Context, id int64) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// PutOrder сохраняет заказ как есть, минуя транзакцию. Используется для загрузки данных и в тестах.
func (s *Store) PutOrder(order domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.Version == 0 {
		order.Version = 1
	}
	if order.ID > s.nextOrderID {
		s.nextOrderID = order.ID
	}
	s.orders[order.ID] = order.Clone()
}

// List возвращает заказы по фильтру: новые первыми, с учётом Limit/Offset.
func (s *Store) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	result := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if filter.CustomerID > 0 && order.CustomerID != filter.CustomerID {
			continue
		}
		if filter.ShopID > 0 && order.ShopID != filter.ShopID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, order.Status) {
			continue
		}
		result = append(result, order.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []domain.Order{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}

	return result, nil
}

var _ domain.OrderRepository = (*Store)(nil)
