// Package ledger holds the per-habit completion records, keyed by calendar day.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// DateLayout is the wire format of a calendar day.
const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid calendar date")

// Entry is one day's completion record.
type Entry struct {
	Date      time.Time
	Completed bool
}

type entryJSON struct {
	Date      string `json:"date"`
	Completed bool   `json:"completed"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{Date: e.Date.Format(DateLayout), Completed: e.Completed})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	day, err := ParseDay(raw.Date)
	if err != nil {
		return err
	}
	e.Date = day
	e.Completed = raw.Completed
	return nil
}

// Day truncates t to the UTC calendar day it falls on.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay accepts YYYY-MM-DD or an RFC 3339 timestamp; the time of day is dropped.
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Day(t), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// Ledger is the completion history of one habit. At most one entry per day.
type Ledger []Entry

// Upsert sets the completion flag for the calendar day of date, appending a
// new entry when that day has none. It reports whether an entry was created.
func (l Ledger) Upsert(date time.Time, completed bool) (Ledger, bool) {
	day := Day(date)
	for i := range l {
		if Day(l[i].Date).Equal(day) {
			l[i].Completed = completed
			return l, false
		}
	}
	return append(l, Entry{Date: day, Completed: completed}), true
}

// Range returns the entries with start <= date <= end in ascending order.
// The result is never nil.
func (l Ledger) Range(start, end time.Time) []Entry {
	from, to := Day(start), Day(end)
	out := make([]Entry, 0, len(l))
	if from.After(to) {
		return out
	}
	for _, e := range l {
		d := Day(e.Date)
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, Entry{Date: d, Completed: e.Completed})
	}
	sortByDate(out)
	return out
}

// Sorted returns a copy of the whole ledger, oldest first.
func (l Ledger) Sorted() []Entry {
	out := make([]Entry, len(l))
	copy(out, l)
	sortByDate(out)
	return out
}

// Clone returns an independent copy preserving the stored order.
func (l Ledger) Clone() Ledger {
	if l == nil {
		return Ledger{}
	}
	out := make(Ledger, len(l))
	copy(out, l)
	return out
}

func sortByDate(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return a.Date.Compare(b.Date)
	})
}
