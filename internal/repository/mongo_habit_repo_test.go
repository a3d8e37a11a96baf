package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"habittracker/internal/ledger"
	"habittracker/internal/model"
)

func TestHabitDocument_RoundTrip(t *testing.T) {
	created := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	h := &model.Habit{
		ID:        "6b0f2f0e-8d6c-4f4e-9a51-0e5d7d1a2b3c",
		Name:      "Stretch",
		Tags:      []string{"morning"},
		Frequency: model.FrequencyDaily,
		CompletionData: ledger.Ledger{
			{Date: time.Date(2024, 5, 2, 18, 0, 0, 0, time.UTC), Completed: true},
		},
		Version:   3,
		CreatedAt: created,
		UpdatedAt: created,
	}

	data, err := bson.Marshal(toDocument(h))
	require.NoError(t, err)

	var doc habitDocument
	require.NoError(t, bson.Unmarshal(data, &doc))
	got := doc.toModel()

	assert.Equal(t, h.ID, got.ID)
	assert.Equal(t, h.Tags, got.Tags)
	assert.Equal(t, int64(3), got.Version)
	assert.True(t, created.Equal(got.CreatedAt))
	require.Len(t, got.CompletionData, 1)
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), got.CompletionData[0].Date)
	assert.True(t, got.CompletionData[0].Completed)
}

func TestHabitDocument_NilCollections(t *testing.T) {
	doc := toDocument(&model.Habit{ID: "x", Name: "n"})
	assert.NotNil(t, doc.Tags)
	assert.NotNil(t, doc.CompletionData)

	h := habitDocument{ID: "x"}.toModel()
	assert.NotNil(t, h.Tags)
	assert.NotNil(t, h.CompletionData)
}
