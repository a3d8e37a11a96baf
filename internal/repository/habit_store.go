package repository

import (
	"context"
	"errors"

	"habittracker/internal/model"
)

// ErrVersionConflict is returned by Save when the stored version moved on.
var ErrVersionConflict = errors.New("habit version conflict")

// HabitStore persists whole habit documents, ledger included.
// FindByID, Save and Delete return model.ErrHabitNotFound for unknown ids.
type HabitStore interface {
	Insert(ctx context.Context, h *model.Habit) error
	FindByID(ctx context.Context, id string) (*model.Habit, error)
	List(ctx context.Context) ([]model.Habit, error)
	// Save replaces the stored habit if its version still equals h.Version,
	// then bumps h.Version and h.UpdatedAt.
	Save(ctx context.Context, h *model.Habit) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}
