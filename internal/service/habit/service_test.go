package habit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "habittracker/contracts/mq"
	"habittracker/internal/ledger"
	"habittracker/internal/model"
	"habittracker/internal/repository"
	"habittracker/pkg/circuitbreaker"
)

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []any
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	p.events = append(p.events, payload)
	return p.err
}

// conflictingStore fails the first n saves with a version conflict.
type conflictingStore struct {
	repository.HabitStore
	conflicts int
	saves     int
}

func (s *conflictingStore) Save(ctx context.Context, h *model.Habit) error {
	s.saves++
	if s.conflicts > 0 {
		s.conflicts--
		return repository.ErrVersionConflict
	}
	return s.HabitStore.Save(ctx, h)
}

type fakeBoard struct {
	snapshots []model.StreakSnapshot
	limit     int
}

func (b *fakeBoard) Record(context.Context, model.StreakSnapshot) error { return nil }
func (b *fakeBoard) Remove(context.Context, string) error               { return nil }
func (b *fakeBoard) Get(context.Context, string) (model.StreakSnapshot, bool, error) {
	return model.StreakSnapshot{}, false, nil
}
func (b *fakeBoard) Top(_ context.Context, limit int) ([]model.StreakSnapshot, error) {
	b.limit = limit
	return b.snapshots, nil
}

var today = time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, store repository.HabitStore) (*Service, *recordingPublisher) {
	t.Helper()
	if store == nil {
		store = repository.NewMemoryHabitStore(zap.NewNop())
	}
	pub := &recordingPublisher{}
	svc := NewService(store, pub, nil, 30, zap.NewNop())
	svc.now = func() time.Time { return today }
	return svc, pub
}

func createHabit(t *testing.T, svc *Service, name string) *model.Habit {
	t.Helper()
	h, err := svc.Create(context.Background(), model.HabitInput{Name: name})
	require.NoError(t, err)
	return h
}

func TestService_Create(t *testing.T) {
	svc, pub := newTestService(t, nil)

	h, err := svc.Create(context.Background(), model.HabitInput{
		Name:     "  Read  ",
		Category: "learning",
		Tags:     []string{"books", "", "books", "evening"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, h.ID)
	assert.Equal(t, "Read", h.Name)
	assert.Equal(t, model.FrequencyDaily, h.Frequency)
	assert.Equal(t, []string{"books", "evening"}, h.Tags)
	assert.Empty(t, h.CompletionData)
	assert.NotNil(t, h.CompletionData)
	assert.Equal(t, int64(1), h.Version)
	assert.Equal(t, today, h.CreatedAt)

	require.Len(t, pub.keys, 1)
	assert.Equal(t, mqcontracts.RoutingHabitCreated, pub.keys[0])
	payload := pub.events[0].(mqcontracts.HabitCreatedPayload)
	assert.Equal(t, h.ID, payload.HabitID)
	assert.NotEmpty(t, payload.EventID)
}

func TestService_CreateValidation(t *testing.T) {
	svc, pub := newTestService(t, nil)

	_, err := svc.Create(context.Background(), model.HabitInput{Name: "   "})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)

	_, err = svc.Create(context.Background(), model.HabitInput{Name: "Run", Frequency: "hourly"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "frequency", verr.Field)

	assert.Empty(t, pub.keys)
}

func TestService_List(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, model.HabitInput{Name: "Read", Category: "learning", Tags: []string{"books"}})
	require.NoError(t, err)
	_, err = svc.Create(ctx, model.HabitInput{Name: "Run", Category: "health", Frequency: model.FrequencyWeekly})
	require.NoError(t, err)

	all, err := svc.List(ctx, model.HabitFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	health, err := svc.List(ctx, model.HabitFilter{Category: "health"})
	require.NoError(t, err)
	require.Len(t, health, 1)
	assert.Equal(t, "Run", health[0].Name)

	tagged, err := svc.List(ctx, model.HabitFilter{Tag: "books"})
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, "Read", tagged[0].Name)

	found, err := svc.List(ctx, model.HabitFilter{Search: "RU"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Run", found[0].Name)

	none, err := svc.List(ctx, model.HabitFilter{Frequency: model.FrequencyMonthly})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestService_GetUnknownOrMalformedID(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, model.ErrHabitNotFound)

	_, err = svc.Get(context.Background(), "6b0f2f0e-8d6c-4f4e-9a51-0e5d7d1a2b3c")
	assert.ErrorIs(t, err, model.ErrHabitNotFound)
}

func TestService_ReplaceKeepsLedger(t *testing.T) {
	svc, pub := newTestService(t, nil)
	ctx := context.Background()
	h := createHabit(t, svc, "Read")

	_, err := svc.UpsertCompletion(ctx, h.ID, "2024-03-10", true)
	require.NoError(t, err)

	got, err := svc.Replace(ctx, h.ID, model.HabitInput{Name: "Read more", Frequency: model.FrequencyWeekly})
	require.NoError(t, err)

	assert.Equal(t, "Read more", got.Name)
	assert.Equal(t, model.FrequencyWeekly, got.Frequency)
	assert.Len(t, got.CompletionData, 1)
	assert.Equal(t, h.CreatedAt, got.CreatedAt)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, mqcontracts.RoutingHabitUpdated, pub.keys[len(pub.keys)-1])

	_, err = svc.Replace(ctx, h.ID, model.HabitInput{})
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestService_UpsertCompletion(t *testing.T) {
	svc, pub := newTestService(t, nil)
	ctx := context.Background()
	h := createHabit(t, svc, "Read")

	got, err := svc.UpsertCompletion(ctx, h.ID, "2024-03-10", true)
	require.NoError(t, err)
	require.Len(t, got.CompletionData, 1)

	// same calendar day in another shape overwrites
	got, err = svc.UpsertCompletion(ctx, h.ID, "2024-03-10T21:30:00Z", false)
	require.NoError(t, err)
	require.Len(t, got.CompletionData, 1)
	assert.False(t, got.CompletionData[0].Completed)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), got.CompletionData[0].Date)

	last := pub.events[len(pub.events)-1].(mqcontracts.HabitCompletionUpdatedPayload)
	assert.Equal(t, "2024-03-10", last.Date)
	assert.False(t, last.Completed)
	assert.False(t, last.Created)
	assert.Equal(t, got.Version, last.Version)
}

func TestService_UpsertCompletionIdempotent(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	h := createHabit(t, svc, "Read")

	first, err := svc.UpsertCompletion(ctx, h.ID, "2024-03-10", true)
	require.NoError(t, err)
	second, err := svc.UpsertCompletion(ctx, h.ID, "2024-03-10", true)
	require.NoError(t, err)

	assert.Equal(t, first.CompletionData, second.CompletionData)
}

func TestService_UpsertCompletionErrors(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	h := createHabit(t, svc, "Read")

	var verr *model.ValidationError
	_, err := svc.UpsertCompletion(ctx, h.ID, "", true)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "date", verr.Field)

	_, err = svc.UpsertCompletion(ctx, h.ID, "10/03/2024", true)
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, ledger.ErrInvalidDate)

	_, err = svc.UpsertCompletion(ctx, "6b0f2f0e-8d6c-4f4e-9a51-0e5d7d1a2b3c", "2024-03-10", true)
	assert.ErrorIs(t, err, model.ErrHabitNotFound)
}

func TestService_UpsertCompletionRetriesConflicts(t *testing.T) {
	store := &conflictingStore{HabitStore: repository.NewMemoryHabitStore(zap.NewNop()), conflicts: 2}
	svc, _ := newTestService(t, store)
	h := createHabit(t, svc, "Read")

	got, err := svc.UpsertCompletion(context.Background(), h.ID, "2024-03-10", true)
	require.NoError(t, err)
	assert.Len(t, got.CompletionData, 1)
	assert.Equal(t, 3, store.saves)
}

func TestService_UpsertCompletionGivesUpAfterMaxAttempts(t *testing.T) {
	store := &conflictingStore{HabitStore: repository.NewMemoryHabitStore(zap.NewNop()), conflicts: 10}
	svc, pub := newTestService(t, store)
	h := createHabit(t, svc, "Read")

	_, err := svc.UpsertCompletion(context.Background(), h.ID, "2024-03-10", true)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
	assert.Equal(t, maxSaveAttempts, store.saves)
	assert.Len(t, pub.keys, 1, "only habit.created")
}

func TestService_QueryProgress(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	h := createHabit(t, svc, "Read")

	for _, d := range []string{"2024-03-12", "2024-01-01", "2024-03-10", "2024-03-11"} {
		_, err := svc.UpsertCompletion(ctx, h.ID, d, true)
		require.NoError(t, err)
	}

	entries, err := svc.QueryProgress(ctx, h.ID, "2024-03-10", "2024-03-11")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2024-03-10", entries[0].Date.Format(ledger.DateLayout))
	assert.Equal(t, "2024-03-11", entries[1].Date.Format(ledger.DateLayout))

	// default window: the 30 days before today
	entries, err = svc.QueryProgress(ctx, h.ID, "", "")
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = svc.QueryProgress(ctx, h.ID, "2024-03-12", "2024-03-10")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	_, err = svc.QueryProgress(ctx, h.ID, "yesterday", "")
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "startDate", verr.Field)
}

func TestService_DeleteThenQueryIsNotFound(t *testing.T) {
	svc, pub := newTestService(t, nil)
	ctx := context.Background()
	h := createHabit(t, svc, "Read")

	require.NoError(t, svc.Delete(ctx, h.ID))
	assert.Equal(t, mqcontracts.RoutingHabitDeleted, pub.keys[len(pub.keys)-1])

	_, err := svc.QueryProgress(ctx, h.ID, "2024-01-01", "2024-12-31")
	assert.ErrorIs(t, err, model.ErrHabitNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, h.ID), model.ErrHabitNotFound)
}

func TestService_Stats(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	h := createHabit(t, svc, "Read")

	days := []struct {
		date string
		done bool
	}{
		{"2024-03-01", true},
		{"2024-03-02", true},
		{"2024-03-03", false},
		{"2024-03-04", true},
	}
	for _, d := range days {
		_, err := svc.UpsertCompletion(ctx, h.ID, d.date, d.done)
		require.NoError(t, err)
	}

	sum, err := svc.Stats(ctx, h.ID, "2024-03-01", "2024-03-31")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Current)
	assert.Equal(t, 2, sum.Max)
	assert.Equal(t, 3, sum.Completed)
	assert.Equal(t, 4, sum.Total)
	assert.InDelta(t, 0.75, sum.CompletionRate, 1e-9)
}

func TestService_PublishFailureDoesNotFailWrite(t *testing.T) {
	svc, pub := newTestService(t, nil)
	pub.err = errors.New("broker down")

	h, err := svc.Create(context.Background(), model.HabitInput{Name: "Read"})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), h.ID)
	require.NoError(t, err)
	assert.Equal(t, "Read", got.Name)
}

func TestService_Leaderboard(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.Leaderboard(context.Background(), 5)
	assert.ErrorIs(t, err, ErrStreakBoardDisabled)

	board := &fakeBoard{snapshots: []model.StreakSnapshot{{HabitID: "a", Current: 4, Max: 9}}}
	svc.board = board

	top, err := svc.Leaderboard(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, top, 1)
	assert.Equal(t, DefaultLeaderboardLimit, board.limit)

	_, err = svc.Leaderboard(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, MaxLeaderboardLimit, board.limit)
}

func TestGuardedPublisher_OpensAfterFailures(t *testing.T) {
	inner := &recordingPublisher{err: errors.New("broker down")}
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		Timeout:             time.Minute,
		HalfOpenMaxRequests: 1,
	})
	p := NewGuardedPublisher(inner, breaker, zap.NewNop())
	ctx := context.Background()

	assert.Error(t, p.Publish(ctx, "habit.created", nil))
	assert.Error(t, p.Publish(ctx, "habit.created", nil))
	assert.ErrorIs(t, p.Publish(ctx, "habit.created", nil), circuitbreaker.ErrCircuitBreakerOpen)
	assert.Len(t, inner.keys, 2)
}
