package mqhandler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	mqcontracts "habittracker/contracts/mq"
	"habittracker/internal/model"
	"habittracker/internal/repository"
	"habittracker/internal/streak"
	"habittracker/pkg/logger"
	"habittracker/pkg/metrics"
)

const completionUpdatedHandlerName = "streak.completion_updated"

// CompletionUpdatedHandler recomputes the streak of a habit from its full
// ledger whenever a completion changes and records it on the StreakBoard.
type CompletionUpdatedHandler struct {
	store  repository.HabitStore
	board  repository.StreakBoard
	dedup  deduper
	logger *zap.Logger
}

func NewCompletionUpdatedHandler(store repository.HabitStore, board repository.StreakBoard, dedup deduper, logger *zap.Logger) *CompletionUpdatedHandler {
	return &CompletionUpdatedHandler{
		store:  store,
		board:  board,
		dedup:  dedup,
		logger: logger,
	}
}

func (h *CompletionUpdatedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.HabitCompletionUpdatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal HabitCompletionUpdatedPayload", zap.Error(err))
		return err
	}

	log := logger.WithTrace(ctx, h.logger).With(
		zap.String("habit_id", p.HabitID),
		zap.String("event_id", p.EventID),
	)
	log.Info("Handling habit.completion.updated event",
		zap.String("date", p.Date),
		zap.Bool("completed", p.Completed),
		zap.Int64("version", p.Version),
	)

	if !h.dedup.AcquireOnce(ctx, completionUpdatedHandlerName, p.EventID) {
		return nil
	}

	if err := h.refresh(ctx, p, log); err != nil {
		h.dedup.Release(ctx, completionUpdatedHandlerName, p.EventID)
		return err
	}
	return nil
}

func (h *CompletionUpdatedHandler) refresh(ctx context.Context, p mqcontracts.HabitCompletionUpdatedPayload, log *zap.Logger) error {
	habit, err := h.store.FindByID(ctx, p.HabitID)
	if errors.Is(err, model.ErrHabitNotFound) {
		log.Info("Habit no longer exists, dropping its streak")
		return h.forget(ctx, p.HabitID, log)
	}
	if err != nil {
		log.Error("Failed to load habit", zap.Error(err))
		return err
	}

	prev, _, err := h.board.Get(ctx, habit.ID)
	if err != nil {
		log.Error("Failed to load recorded streak", zap.Error(err))
		return err
	}

	res := streak.Calculate(habit.CompletionData.Sorted())
	snapshot := model.StreakSnapshot{
		HabitID:   habit.ID,
		Name:      habit.Name,
		Current:   res.Current,
		Max:       res.Max,
		UpdatedAt: habit.UpdatedAt,
	}
	if err := h.board.Record(ctx, snapshot); err != nil {
		log.Error("Failed to record streak", zap.Error(err))
		return err
	}

	// habit.deleted may have been handled between the load and the Record
	if _, err := h.store.FindByID(ctx, habit.ID); errors.Is(err, model.ErrHabitNotFound) {
		log.Info("Habit deleted during streak update, dropping its streak")
		return h.forget(ctx, habit.ID, log)
	} else if err != nil {
		log.Error("Failed to re-check habit", zap.Error(err))
		return err
	}
	metrics.SetStreak(habit.ID, res.Current, res.Max)

	if p.Completed && res.Current != prev.Current && streakMilestones[res.Current] {
		log.Info("Streak milestone reached",
			zap.String("name", habit.Name),
			zap.Int("streak", res.Current),
		)
	}

	log.Info("Streak updated",
		zap.Int("current", res.Current),
		zap.Int("max", res.Max),
	)
	return nil
}

func (h *CompletionUpdatedHandler) forget(ctx context.Context, habitID string, log *zap.Logger) error {
	if err := h.board.Remove(ctx, habitID); err != nil {
		log.Error("Failed to remove streak", zap.Error(err))
		return err
	}
	metrics.DeleteStreak(habitID)
	return nil
}
