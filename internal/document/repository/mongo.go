package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/document"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements Store on a MongoDB collection. Documents are keyed by
// a UUID string in _id.
type MongoRepo struct {
	col *mongo.Collection
}

func NewMongoRepo(ctx context.Context, col *mongo.Collection) (*MongoRepo, error) {
	// list queries filter by clinic and sort by updated_at
	idxModel := mongo.IndexModel{Keys: bson.D{{Key: "clinic_id", Value: 1}, {Key: "updated_at", Value: -1}}}
	if _, err := col.Indexes().CreateOne(ctx, idxModel); err != nil {
		return nil, fmt.Errorf("create clinic_documents index: %w", err)
	}
	return &MongoRepo{col: col}, nil
}

func (m *MongoRepo) Insert(ctx context.Context, doc *document.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if _, err := m.col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (m *MongoRepo) FindByID(ctx context.Context, id string) (*document.Document, error) {
	var d document.Document
	err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return &d, nil
}

// mongoFilter translates a Filter into a query document.
func mongoFilter(f Filter) bson.M {
	q := bson.M{"clinic_id": f.ClinicID}
	if f.Category != "" {
		q["category"] = string(f.Category)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		// a regex against an array field matches when any element matches
		rx := bson.M{"$regex": regexp.QuoteMeta(term), "$options": "i"}
		q["$or"] = bson.A{bson.M{"title": rx}, bson.M{"tags": rx}}
	}
	return q
}

func (m *MongoRepo) Find(ctx context.Context, f Filter) ([]*document.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := m.col.Find(ctx, mongoFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	defer cur.Close(ctx)
	out := []*document.Document{}
	for cur.Next(ctx) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, &d)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

// mongoPatch builds the $set/$unset update for a patch.
func mongoPatch(patch document.Patch, version int, now time.Time) bson.M {
	set := bson.M{"version": version, "updated_at": now}
	unset := bson.M{}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Content != nil {
		set["content"] = *patch.Content
	}
	if patch.Category != nil {
		if *patch.Category == "" {
			unset["category"] = ""
		} else {
			set["category"] = string(*patch.Category)
		}
	}
	if patch.IsTemplate != nil {
		set["is_template"] = *patch.IsTemplate
	}
	if patch.IsSharedWithPatients != nil {
		set["is_shared_with_patients"] = *patch.IsSharedWithPatients
	}
	if patch.Tags != nil {
		tags := *patch.Tags
		if tags == nil {
			tags = []string{}
		}
		set["tags"] = tags
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func (m *MongoRepo) Update(ctx context.Context, id string, expectedVersion int, patch document.Patch) (*document.Document, error) {
	filter := bson.M{"_id": id, "version": expectedVersion}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d document.Document
	err := m.col.FindOneAndUpdate(ctx, filter, mongoPatch(patch, expectedVersion+1, time.Now().UTC()), opts).Decode(&d)
	if err == nil {
		return &d, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("update document: %w", err)
	}
	// no match: either the row is gone or its version moved on
	if _, ferr := m.FindByID(ctx, id); ferr != nil {
		return nil, ferr
	}
	return nil, ErrVersionConflict
}

func (m *MongoRepo) SetShared(ctx context.Context, id string, shared bool) (*document.Document, error) {
	filter := bson.M{"_id": id, "is_shared_with_patients": bson.M{"$ne": shared}}
	update := bson.M{"$set": bson.M{"is_shared_with_patients": shared, "updated_at": time.Now().UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d document.Document
	err := m.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d)
	if err == nil {
		return &d, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("set document sharing: %w", err)
	}
	// already in the desired state, or absent
	return m.FindByID(ctx, id)
}

func (m *MongoRepo) Delete(ctx context.Context, id string) error {
	if _, err := m.col.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (m *MongoRepo) Ping(ctx context.Context) error {
	return m.col.Database().Client().Ping(ctx, nil)
}
