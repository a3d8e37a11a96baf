package habit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "habittracker/contracts/mq"
	"habittracker/internal/ledger"
	"habittracker/internal/model"
	"habittracker/internal/repository"
	"habittracker/internal/streak"
	"habittracker/pkg/metrics"
)

const (
	// maxSaveAttempts bounds the reload-and-retry loop on version conflicts.
	maxSaveAttempts = 3

	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// ErrStreakBoardDisabled is returned by Leaderboard when no Redis is configured.
var ErrStreakBoardDisabled = errors.New("streak leaderboard is not configured")

type Service struct {
	store      repository.HabitStore
	events     EventPublisher
	board      repository.StreakBoard
	windowDays int
	now        func() time.Time
	logger     *zap.Logger
}

// NewService wires the habit operations. events and board may be nil.
func NewService(store repository.HabitStore, events EventPublisher, board repository.StreakBoard, windowDays int, logger *zap.Logger) *Service {
	if events == nil {
		events = NopPublisher{}
	}
	return &Service{
		store:      store,
		events:     events,
		board:      board,
		windowDays: windowDays,
		now:        time.Now,
		logger:     logger,
	}
}

func (s *Service) Create(ctx context.Context, in model.HabitInput) (*model.Habit, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	h := &model.Habit{
		ID:             uuid.NewString(),
		CompletionData: ledger.Ledger{},
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	in.Apply(h)

	if err := s.store.Insert(ctx, h); err != nil {
		return nil, err
	}

	s.logger.Info("Habit created",
		zap.String("habit_id", h.ID),
		zap.String("frequency", string(h.Frequency)),
	)
	s.publish(ctx, mqcontracts.RoutingHabitCreated, mqcontracts.HabitCreatedPayload{
		EventMeta: s.newMeta(ctx, h.ID),
		Name:      h.Name,
		Frequency: string(h.Frequency),
	})
	return h, nil
}

func (s *Service) List(ctx context.Context, filter model.HabitFilter) ([]model.Habit, error) {
	habits, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.Habit, 0, len(habits))
	for i := range habits {
		if filter.Matches(&habits[i]) {
			out = append(out, habits[i])
		}
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Habit, error) {
	if !validID(id) {
		return nil, model.ErrHabitNotFound
	}
	return s.store.FindByID(ctx, id)
}

// Replace overwrites the editable fields. The ledger and createdAt are kept.
func (s *Service) Replace(ctx context.Context, id string, in model.HabitInput) (*model.Habit, error) {
	if !validID(id) {
		return nil, model.ErrHabitNotFound
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	h, err := s.saveWithRetry(ctx, id, func(h *model.Habit) {
		in.Apply(h)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Habit replaced",
		zap.String("habit_id", h.ID),
		zap.Int64("version", h.Version),
	)
	s.publish(ctx, mqcontracts.RoutingHabitUpdated, mqcontracts.HabitUpdatedPayload{
		EventMeta: s.newMeta(ctx, h.ID),
		Name:      h.Name,
		Frequency: string(h.Frequency),
		Version:   h.Version,
	})
	return h, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return model.ErrHabitNotFound
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Habit deleted", zap.String("habit_id", id))
	s.publish(ctx, mqcontracts.RoutingHabitDeleted, mqcontracts.HabitDeletedPayload{
		EventMeta: s.newMeta(ctx, id),
	})
	return nil
}

// UpsertCompletion records whether the habit was completed on the given day,
// overwriting any earlier entry for that day.
func (s *Service) UpsertCompletion(ctx context.Context, id, date string, completed bool) (*model.Habit, error) {
	if !validID(id) {
		return nil, model.ErrHabitNotFound
	}
	if date == "" {
		return nil, &model.ValidationError{Field: "date", Reason: "is required"}
	}
	day, err := ledger.ParseDay(date)
	if err != nil {
		return nil, &model.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD or RFC 3339", Err: err}
	}

	var created bool
	h, err := s.saveWithRetry(ctx, id, func(h *model.Habit) {
		h.CompletionData, created = h.CompletionData.Upsert(day, completed)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncrementCompletionUpsert(created)
	s.logger.Info("Completion recorded",
		zap.String("habit_id", h.ID),
		zap.String("date", day.Format(ledger.DateLayout)),
		zap.Bool("completed", completed),
		zap.Bool("created", created),
	)
	s.publish(ctx, mqcontracts.RoutingHabitCompletionUpdated, mqcontracts.HabitCompletionUpdatedPayload{
		EventMeta: s.newMeta(ctx, h.ID),
		Date:      day.Format(ledger.DateLayout),
		Completed: completed,
		Created:   created,
		Version:   h.Version,
	})
	return h, nil
}

// saveWithRetry loads the habit, applies mutate and saves it, reloading and
// reapplying when another writer got there first.
func (s *Service) saveWithRetry(ctx context.Context, id string, mutate func(h *model.Habit)) (*model.Habit, error) {
	for attempt := 1; ; attempt++ {
		h, err := s.store.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}

		mutate(h)

		err = s.store.Save(ctx, h)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) || attempt >= maxSaveAttempts {
			return nil, err
		}
		s.logger.Debug("Version conflict, retrying save",
			zap.String("habit_id", id),
			zap.Int("attempt", attempt),
		)
	}
}

// QueryProgress returns the ledger entries between startDate and endDate
// inclusive, oldest first. A missing endDate means today and a missing
// startDate means the configured window before endDate.
func (s *Service) QueryProgress(ctx context.Context, id, startDate, endDate string) ([]ledger.Entry, error) {
	if !validID(id) {
		return nil, model.ErrHabitNotFound
	}
	start, end, err := s.resolveWindow(startDate, endDate)
	if err != nil {
		return nil, err
	}

	h, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return h.CompletionData.Range(start, end), nil
}

// Stats summarizes the same window QueryProgress returns.
func (s *Service) Stats(ctx context.Context, id, startDate, endDate string) (streak.Summary, error) {
	entries, err := s.QueryProgress(ctx, id, startDate, endDate)
	if err != nil {
		return streak.Summary{}, err
	}
	return streak.Summarize(entries), nil
}

// Leaderboard lists habits by current streak as last computed by the worker.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]model.StreakSnapshot, error) {
	if s.board == nil {
		return nil, ErrStreakBoardDisabled
	}
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	limit = min(limit, MaxLeaderboardLimit)
	return s.board.Top(ctx, limit)
}

func (s *Service) resolveWindow(startDate, endDate string) (time.Time, time.Time, error) {
	end := ledger.Day(s.now())
	if endDate != "" {
		d, err := ledger.ParseDay(endDate)
		if err != nil {
			return time.Time{}, time.Time{}, &model.ValidationError{Field: "endDate", Reason: "must be YYYY-MM-DD or RFC 3339", Err: err}
		}
		end = d
	}

	start := end.AddDate(0, 0, -s.windowDays)
	if startDate != "" {
		d, err := ledger.ParseDay(startDate)
		if err != nil {
			return time.Time{}, time.Time{}, &model.ValidationError{Field: "startDate", Reason: "must be YYYY-MM-DD or RFC 3339", Err: err}
		}
		start = d
	}
	return start, end, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
