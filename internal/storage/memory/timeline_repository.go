package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

// Timeline возвращает события заказа в хронологическом порядке.
func (s *Store) Timeline(ctx context.Context, orderID int64) ([]domain.TimelineEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	events := s.timeline[orderID]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Occurred.Before(result[j].Occurred)
	})
	return result, nil
}

// TimelineRepository: адаптер Store к domain.TimelineRepository.
type TimelineRepository struct {
	store *Store
}

// NewTimelineRepository создаёт репозиторий таймлайна поверх Store.
func NewTimelineRepository(store *Store) TimelineRepository {
	return TimelineRepository{store: store}
}

// List возвращает события заказа в хронологическом порядке.
func (r TimelineRepository) List(ctx context.Context, orderID int64) ([]domain.TimelineEvent, error) {
	return r.store.Timeline(ctx, orderID)
}

var _ domain.TimelineRepository = TimelineRepository{}
