package repository

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"habittracker/internal/model"
)

// MemoryHabitStore keeps habits in process memory. Data is lost on restart.
type MemoryHabitStore struct {
	mu     sync.RWMutex
	habits map[string]*model.Habit
	now    func() time.Time
	logger *zap.Logger
}

func NewMemoryHabitStore(logger *zap.Logger) *MemoryHabitStore {
	return &MemoryHabitStore{
		habits: make(map[string]*model.Habit),
		now:    time.Now,
		logger: logger,
	}
}

func (s *MemoryHabitStore) Insert(_ context.Context, h *model.Habit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.habits[h.ID] = h.Clone()
	s.logger.Debug("Habit inserted", zap.String("habit_id", h.ID))
	return nil
}

func (s *MemoryHabitStore) FindByID(_ context.Context, id string) (*model.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.habits[id]
	if !ok {
		return nil, model.ErrHabitNotFound
	}
	return h.Clone(), nil
}

func (s *MemoryHabitStore) List(_ context.Context) ([]model.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	habits := make([]model.Habit, 0, len(s.habits))
	for _, h := range s.habits {
		habits = append(habits, *h.Clone())
	}
	slices.SortFunc(habits, func(a, b model.Habit) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return habits, nil
}

func (s *MemoryHabitStore) Save(_ context.Context, h *model.Habit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.habits[h.ID]
	if !ok {
		return model.ErrHabitNotFound
	}
	if stored.Version != h.Version {
		return ErrVersionConflict
	}

	h.Version++
	h.UpdatedAt = s.now().UTC()
	s.habits[h.ID] = h.Clone()
	return nil
}

func (s *MemoryHabitStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.habits[id]; !ok {
		return model.ErrHabitNotFound
	}
	delete(s.habits, id)
	return nil
}

func (s *MemoryHabitStore) Ping(context.Context) error {
	return nil
}
