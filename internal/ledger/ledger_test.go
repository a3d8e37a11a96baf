package ledger

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDay(s)
	require.NoError(t, err)
	return d
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDay("2024-03-05T23:10:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), d)

	// 01:00 at +02:00 is still the previous day in UTC
	d, err = ParseDay("2024-03-05T01:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), d)

	for _, bad := range []string{"", "yesterday", "2024-02-30", "2024-13-01", "05/03/2024"} {
		_, err := ParseDay(bad)
		assert.True(t, errors.Is(err, ErrInvalidDate), "input %q", bad)
	}
}

func TestUpsert_AppendsNewDay(t *testing.T) {
	var l Ledger
	l, created := l.Upsert(day(t, "2024-01-01"), true)
	assert.True(t, created)
	require.Len(t, l, 1)
	assert.True(t, l[0].Completed)
}

func TestUpsert_Idempotent(t *testing.T) {
	var l Ledger
	l, _ = l.Upsert(day(t, "2024-01-01"), true)
	l, created := l.Upsert(day(t, "2024-01-01"), true)
	assert.False(t, created)
	assert.Len(t, l, 1)
}

func TestUpsert_OverwritesInPlace(t *testing.T) {
	l := Ledger{
		{Date: day(t, "2024-01-01"), Completed: true},
		{Date: day(t, "2024-01-02"), Completed: true},
	}
	l, created := l.Upsert(day(t, "2024-01-01"), false)
	assert.False(t, created)
	require.Len(t, l, 2)
	assert.False(t, l[0].Completed)
	assert.True(t, l[1].Completed)
}

func TestUpsert_IgnoresTimeOfDay(t *testing.T) {
	l := Ledger{{Date: time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC), Completed: false}}
	l, created := l.Upsert(time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC), true)
	assert.False(t, created)
	require.Len(t, l, 1)
	assert.True(t, l[0].Completed)
}

func TestRange(t *testing.T) {
	l := Ledger{
		{Date: day(t, "2024-01-05"), Completed: true},
		{Date: day(t, "2024-01-01"), Completed: false},
		{Date: day(t, "2024-01-03"), Completed: true},
		{Date: day(t, "2024-01-09"), Completed: true},
	}

	got := l.Range(day(t, "2024-01-01"), day(t, "2024-01-05"))
	require.Len(t, got, 3)
	assert.Equal(t, day(t, "2024-01-01"), got[0].Date)
	assert.Equal(t, day(t, "2024-01-03"), got[1].Date)
	assert.Equal(t, day(t, "2024-01-05"), got[2].Date)

	// storage order untouched
	assert.Equal(t, day(t, "2024-01-05"), l[0].Date)
}

func TestRange_Empty(t *testing.T) {
	l := Ledger{{Date: day(t, "2024-01-05"), Completed: true}}

	got := l.Range(day(t, "2024-02-01"), day(t, "2024-02-10"))
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got = l.Range(day(t, "2024-01-10"), day(t, "2024-01-01"))
	assert.NotNil(t, got)
	assert.Empty(t, got)

	assert.Empty(t, Ledger(nil).Range(day(t, "2024-01-01"), day(t, "2024-12-31")))
}

func TestSorted(t *testing.T) {
	l := Ledger{
		{Date: day(t, "2024-01-03")},
		{Date: day(t, "2024-01-01")},
		{Date: day(t, "2024-01-02")},
	}
	got := l.Sorted()
	assert.Equal(t, day(t, "2024-01-01"), got[0].Date)
	assert.Equal(t, day(t, "2024-01-03"), got[2].Date)
	assert.Equal(t, day(t, "2024-01-03"), l[0].Date)
}

func TestEntryJSON(t *testing.T) {
	data, err := json.Marshal(Entry{Date: day(t, "2024-07-04"), Completed: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-07-04","completed":true}`, string(data))

	var e Entry
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2024-07-04","completed":true}`), &e))
	assert.Equal(t, day(t, "2024-07-04"), e.Date)

	err = json.Unmarshal([]byte(`{"date":"not-a-date"}`), &e)
	assert.True(t, errors.Is(err, ErrInvalidDate))
}
