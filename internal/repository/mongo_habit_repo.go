package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"habittracker/internal/ledger"
	"habittracker/internal/model"
)

type completionDocument struct {
	Date      time.Time `bson:"date"`
	Completed bool      `bson:"completed"`
}

// habitDocument is the stored shape: one document per habit, ledger embedded.
type habitDocument struct {
	ID             string               `bson:"_id"`
	Name           string               `bson:"name"`
	Description    string               `bson:"description"`
	Category       string               `bson:"category"`
	Tags           []string             `bson:"tags"`
	Frequency      string               `bson:"frequency"`
	CompletionData []completionDocument `bson:"completionData"`
	Version        int64                `bson:"version"`
	CreatedAt      time.Time            `bson:"createdAt"`
	UpdatedAt      time.Time            `bson:"updatedAt"`
}

func toDocument(h *model.Habit) habitDocument {
	doc := habitDocument{
		ID:             h.ID,
		Name:           h.Name,
		Description:    h.Description,
		Category:       h.Category,
		Tags:           nonNilTags(h.Tags),
		Frequency:      string(h.Frequency),
		CompletionData: make([]completionDocument, 0, len(h.CompletionData)),
		Version:        h.Version,
		CreatedAt:      h.CreatedAt,
		UpdatedAt:      h.UpdatedAt,
	}
	for _, e := range h.CompletionData {
		doc.CompletionData = append(doc.CompletionData, completionDocument{Date: ledger.Day(e.Date), Completed: e.Completed})
	}
	return doc
}

func (d habitDocument) toModel() *model.Habit {
	h := &model.Habit{
		ID:             d.ID,
		Name:           d.Name,
		Description:    d.Description,
		Category:       d.Category,
		Tags:           nonNilTags(d.Tags),
		Frequency:      model.Frequency(d.Frequency),
		CompletionData: make(ledger.Ledger, 0, len(d.CompletionData)),
		Version:        d.Version,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
	for _, e := range d.CompletionData {
		h.CompletionData = append(h.CompletionData, ledger.Entry{Date: ledger.Day(e.Date), Completed: e.Completed})
	}
	return h
}

type MongoHabitStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
	logger *zap.Logger
}

func NewMongoHabitStore(client *mongo.Client, database, collection string, logger *zap.Logger) *MongoHabitStore {
	return &MongoHabitStore{
		client: client,
		coll:   client.Database(database).Collection(collection),
		now:    time.Now,
		logger: logger,
	}
}

// EnsureIndexes creates the createdAt index used by List.
func (r *MongoHabitStore) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create habits index: %w", err)
	}
	return nil
}

func (r *MongoHabitStore) Insert(ctx context.Context, h *model.Habit) error {
	defer observe("insert", time.Now())

	if _, err := r.coll.InsertOne(ctx, toDocument(h)); err != nil {
		r.logger.Error("Failed to insert habit", zap.String("habit_id", h.ID), zap.Error(err))
		return fmt.Errorf("insert habit: %w", err)
	}
	r.logger.Info("Habit inserted successfully", zap.String("habit_id", h.ID))
	return nil
}

func (r *MongoHabitStore) FindByID(ctx context.Context, id string) (*model.Habit, error) {
	defer observe("find", time.Now())

	var doc habitDocument
	err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrHabitNotFound
	}
	if err != nil {
		r.logger.Error("Failed to find habit", zap.String("habit_id", id), zap.Error(err))
		return nil, fmt.Errorf("find habit: %w", err)
	}
	return doc.toModel(), nil
}

func (r *MongoHabitStore) List(ctx context.Context) ([]model.Habit, error) {
	defer observe("list", time.Now())

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		r.logger.Error("Failed to list habits", zap.Error(err))
		return nil, fmt.Errorf("list habits: %w", err)
	}

	var docs []habitDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode habits: %w", err)
	}

	habits := make([]model.Habit, 0, len(docs))
	for _, d := range docs {
		habits = append(habits, *d.toModel())
	}
	return habits, nil
}

func (r *MongoHabitStore) Save(ctx context.Context, h *model.Habit) error {
	defer observe("save", time.Now())

	next := h.Clone()
	next.Version = h.Version + 1
	next.UpdatedAt = r.now().UTC()

	filter := bson.D{{Key: "_id", Value: h.ID}, {Key: "version", Value: h.Version}}
	res, err := r.coll.ReplaceOne(ctx, filter, toDocument(next))
	if err != nil {
		r.logger.Error("Failed to save habit", zap.String("habit_id", h.ID), zap.Error(err))
		return fmt.Errorf("save habit: %w", err)
	}
	if res.MatchedCount == 0 {
		n, err := r.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: h.ID}})
		if err != nil {
			return fmt.Errorf("check habit: %w", err)
		}
		if n == 0 {
			return model.ErrHabitNotFound
		}
		r.logger.Warn("Habit version conflict", zap.String("habit_id", h.ID))
		return ErrVersionConflict
	}

	h.Version = next.Version
	h.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *MongoHabitStore) Delete(ctx context.Context, id string) error {
	defer observe("delete", time.Now())

	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		r.logger.Error("Failed to delete habit", zap.String("habit_id", id), zap.Error(err))
		return fmt.Errorf("delete habit: %w", err)
	}
	if res.DeletedCount == 0 {
		return model.ErrHabitNotFound
	}
	r.logger.Info("Habit deleted", zap.String("habit_id", id))
	return nil
}

func (r *MongoHabitStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}
