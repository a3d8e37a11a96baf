package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"habittracker/internal/ledger"
	"habittracker/internal/model"
	"habittracker/pkg/metrics"
)

const habitsSchema = `
CREATE TABLE IF NOT EXISTS habits (
	id          UUID PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	tags        TEXT[] NOT NULL DEFAULT '{}',
	frequency   TEXT NOT NULL DEFAULT 'daily',
	completions JSONB NOT NULL DEFAULT '[]',
	version     BIGINT NOT NULL DEFAULT 1,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const habitColumns = `id::text, name, description, category, tags, frequency, completions, version, created_at, updated_at`

type PostgresHabitStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresHabitStore(db *pgxpool.Pool, logger *zap.Logger) *PostgresHabitStore {
	return &PostgresHabitStore{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the habits table if it does not exist.
func (r *PostgresHabitStore) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, habitsSchema); err != nil {
		return fmt.Errorf("failed to create habits table: %w", err)
	}
	r.logger.Info("Habits schema ready")
	return nil
}

func (r *PostgresHabitStore) Insert(ctx context.Context, h *model.Habit) error {
	defer observe("insert", time.Now())

	r.logger.Debug("Inserting habit",
		zap.String("habit_id", h.ID),
		zap.String("name", h.Name),
		zap.String("frequency", string(h.Frequency)),
	)

	completions, err := encodeCompletions(h.CompletionData)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO habits (id, name, description, category, tags, frequency, completions, version, created_at, updated_at)
        VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err = r.db.Exec(ctx, query,
		h.ID,
		h.Name,
		h.Description,
		h.Category,
		nonNilTags(h.Tags),
		string(h.Frequency),
		completions,
		h.Version,
		h.CreatedAt,
		h.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to insert habit", zap.String("habit_id", h.ID), zap.Error(err))
		return fmt.Errorf("insert habit: %w", err)
	}

	r.logger.Info("Habit inserted successfully", zap.String("habit_id", h.ID))
	return nil
}

func (r *PostgresHabitStore) FindByID(ctx context.Context, id string) (*model.Habit, error) {
	defer observe("find", time.Now())

	query := `SELECT ` + habitColumns + ` FROM habits WHERE id = $1::uuid`
	h, err := scanHabit(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrHabitNotFound
	}
	if err != nil {
		r.logger.Error("Failed to find habit", zap.String("habit_id", id), zap.Error(err))
		return nil, fmt.Errorf("find habit: %w", err)
	}
	return h, nil
}

func (r *PostgresHabitStore) List(ctx context.Context) ([]model.Habit, error) {
	defer observe("list", time.Now())

	query := `SELECT ` + habitColumns + ` FROM habits ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list habits", zap.Error(err))
		return nil, fmt.Errorf("list habits: %w", err)
	}
	defer rows.Close()

	habits := []model.Habit{}
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			r.logger.Error("Failed to scan habit", zap.Error(err))
			return nil, fmt.Errorf("scan habit: %w", err)
		}
		habits = append(habits, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}

	r.logger.Debug("Listed habits", zap.Int("count", len(habits)))
	return habits, nil
}

func (r *PostgresHabitStore) Save(ctx context.Context, h *model.Habit) error {
	defer observe("save", time.Now())

	completions, err := encodeCompletions(h.CompletionData)
	if err != nil {
		return err
	}

	query := `
        UPDATE habits
        SET name = $3, description = $4, category = $5, tags = $6, frequency = $7,
            completions = $8, version = version + 1, updated_at = NOW()
        WHERE id = $1::uuid AND version = $2
        RETURNING version, updated_at
    `
	err = r.db.QueryRow(ctx, query,
		h.ID,
		h.Version,
		h.Name,
		h.Description,
		h.Category,
		nonNilTags(h.Tags),
		string(h.Frequency),
		completions,
	).Scan(&h.Version, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.missingOrConflict(ctx, h.ID)
	}
	if err != nil {
		r.logger.Error("Failed to save habit", zap.String("habit_id", h.ID), zap.Error(err))
		return fmt.Errorf("save habit: %w", err)
	}

	r.logger.Debug("Habit saved",
		zap.String("habit_id", h.ID),
		zap.Int64("version", h.Version),
		zap.Int("entries", len(h.CompletionData)),
	)
	return nil
}

func (r *PostgresHabitStore) missingOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM habits WHERE id = $1::uuid)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check habit: %w", err)
	}
	if !exists {
		return model.ErrHabitNotFound
	}
	r.logger.Warn("Habit version conflict", zap.String("habit_id", id))
	return ErrVersionConflict
}

func (r *PostgresHabitStore) Delete(ctx context.Context, id string) error {
	defer observe("delete", time.Now())

	tag, err := r.db.Exec(ctx, `DELETE FROM habits WHERE id = $1::uuid`, id)
	if err != nil {
		r.logger.Error("Failed to delete habit", zap.String("habit_id", id), zap.Error(err))
		return fmt.Errorf("delete habit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrHabitNotFound
	}

	r.logger.Info("Habit deleted", zap.String("habit_id", id))
	return nil
}

func (r *PostgresHabitStore) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func scanHabit(row pgx.Row) (*model.Habit, error) {
	var (
		h           model.Habit
		frequency   string
		completions []byte
	)
	if err := row.Scan(
		&h.ID,
		&h.Name,
		&h.Description,
		&h.Category,
		&h.Tags,
		&frequency,
		&completions,
		&h.Version,
		&h.CreatedAt,
		&h.UpdatedAt,
	); err != nil {
		return nil, err
	}
	h.Frequency = model.Frequency(frequency)
	h.Tags = nonNilTags(h.Tags)
	if err := json.Unmarshal(completions, &h.CompletionData); err != nil {
		return nil, fmt.Errorf("decode completions: %w", err)
	}
	if h.CompletionData == nil {
		h.CompletionData = ledger.Ledger{}
	}
	return &h, nil
}

func encodeCompletions(l ledger.Ledger) (string, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return "", fmt.Errorf("encode completions: %w", err)
	}
	return string(data), nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func observe(operation string, start time.Time) {
	metrics.RecordDBQueryDuration(operation, "habits", time.Since(start))
}
