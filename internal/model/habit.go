package model

import (
	"slices"
	"strings"
	"time"

	"habittracker/internal/ledger"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

type Habit struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	Category       string        `json:"category"`
	Tags           []string      `json:"tags"`
	Frequency      Frequency     `json:"frequency"`
	CompletionData ledger.Ledger `json:"completionData"`
	Version        int64         `json:"version"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// HabitInput carries the user-editable fields of a habit.
type HabitInput struct {
	Name        string
	Description string
	Category    string
	Tags        []string
	Frequency   Frequency
}

// Normalize trims text fields, defaults the frequency and reduces tags to a set.
func (in HabitInput) Normalize() HabitInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	if in.Frequency == "" {
		in.Frequency = FrequencyDaily
	}
	in.Tags = NormalizeTags(in.Tags)
	return in
}

func (in HabitInput) Validate() error {
	if in.Name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if !in.Frequency.Valid() {
		return &ValidationError{Field: "frequency", Reason: "must be one of daily, weekly, monthly"}
	}
	return nil
}

// Apply copies the editable fields onto h, leaving the ledger untouched.
func (in HabitInput) Apply(h *Habit) {
	h.Name = in.Name
	h.Description = in.Description
	h.Category = in.Category
	h.Tags = in.Tags
	h.Frequency = in.Frequency
}

// NormalizeTags drops blanks and duplicates, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Clone returns a deep copy.
func (h *Habit) Clone() *Habit {
	c := *h
	c.Tags = slices.Clone(h.Tags)
	if c.Tags == nil {
		c.Tags = []string{}
	}
	c.CompletionData = h.CompletionData.Clone()
	return &c
}

// HabitFilter narrows a habit listing. Zero values match everything.
type HabitFilter struct {
	Category  string
	Tag       string
	Frequency Frequency
	Search    string
}

func (f HabitFilter) Matches(h *Habit) bool {
	if f.Category != "" && h.Category != f.Category {
		return false
	}
	if f.Tag != "" && !slices.Contains(h.Tags, f.Tag) {
		return false
	}
	if f.Frequency != "" && h.Frequency != f.Frequency {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(h.Name), q) &&
			!strings.Contains(strings.ToLower(h.Description), q) {
			return false
		}
	}
	return true
}

// StreakSnapshot is the last computed streak of a habit.
type StreakSnapshot struct {
	HabitID   string    `json:"habitId"`
	Name      string    `json:"name"`
	Current   int       `json:"current"`
	Max       int       `json:"max"`
	UpdatedAt time.Time `json:"updatedAt"`
}
