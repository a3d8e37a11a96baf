package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	mqcontracts "habittracker/contracts/mq"
	"habittracker/internal/repository"
	"habittracker/pkg/logger"
	"habittracker/pkg/metrics"
)

const habitDeletedHandlerName = "streak.habit_deleted"

type HabitDeletedHandler struct {
	board  repository.StreakBoard
	dedup  deduper
	logger *zap.Logger
}

func NewHabitDeletedHandler(board repository.StreakBoard, dedup deduper, logger *zap.Logger) *HabitDeletedHandler {
	return &HabitDeletedHandler{
		board:  board,
		dedup:  dedup,
		logger: logger,
	}
}

// Handle drops the habit from the StreakBoard. Removing an absent habit is a no-op.
func (h *HabitDeletedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.HabitDeletedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal HabitDeletedPayload", zap.Error(err))
		return err
	}

	log := logger.WithTrace(ctx, h.logger).With(
		zap.String("habit_id", p.HabitID),
		zap.String("event_id", p.EventID),
	)
	log.Info("Handling habit.deleted event")

	if !h.dedup.AcquireOnce(ctx, habitDeletedHandlerName, p.EventID) {
		return nil
	}

	if err := h.board.Remove(ctx, p.HabitID); err != nil {
		h.dedup.Release(ctx, habitDeletedHandlerName, p.EventID)
		log.Error("Failed to remove streak", zap.Error(err))
		return err
	}
	metrics.DeleteStreak(p.HabitID)

	log.Info("Streak removed")
	return nil
}
