package profiles

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository defines persistence operations for profiles and clinics.
// Missing rows are reported as (nil, nil).
type Repository interface {
	GetProfile(ctx context.Context, id string) (*models.ProfileRecord, error)
	UpsertProfile(ctx context.Context, p *models.ProfileRecord) (*models.ProfileRecord, error)
	GetClinic(ctx context.Context, id string) (*models.Clinic, error)
	UpsertClinic(ctx context.Context, c *models.Clinic) error
}

// MongoRepository implements Repository on the "profiles" and "clinics"
// collections.
type MongoRepository struct {
	profiles *mongo.Collection
	clinics  *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{profiles: db.Collection("profiles"), clinics: db.Collection("clinics")}
}

func (r *MongoRepository) GetProfile(ctx context.Context, id string) (*models.ProfileRecord, error) {
	var p models.ProfileRecord
	if err := r.profiles.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// UpsertProfile refreshes identity fields; role and role details are only
// written when the profile is first created.
func (r *MongoRepository) UpsertProfile(ctx context.Context, p *models.ProfileRecord) (*models.ProfileRecord, error) {
	now := time.Now().UTC()
	setOnInsert := bson.M{"role": p.Role, "created_at": now}
	if p.Doctor != nil {
		setOnInsert["doctor"] = p.Doctor
	}
	if p.Patient != nil {
		setOnInsert["patient"] = p.Patient
	}
	set := bson.M{"email": p.Email, "updated_at": now}
	if p.FullName != "" {
		set["full_name"] = p.FullName
	}
	if p.Phone != "" {
		set["phone"] = p.Phone
	}
	update := bson.M{"$set": set, "$setOnInsert": setOnInsert}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var updated models.ProfileRecord
	if err := r.profiles.FindOneAndUpdate(ctx, bson.M{"_id": p.ID}, update, opts).Decode(&updated); err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return &updated, nil
}

func (r *MongoRepository) GetClinic(ctx context.Context, id string) (*models.Clinic, error) {
	var c models.Clinic
	if err := r.clinics.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get clinic: %w", err)
	}
	return &c, nil
}

func (r *MongoRepository) UpsertClinic(ctx context.Context, c *models.Clinic) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	opts := options.Replace().SetUpsert(true)
	if _, err := r.clinics.ReplaceOne(ctx, bson.M{"_id": c.ID}, c, opts); err != nil {
		return fmt.Errorf("upsert clinic: %w", err)
	}
	return nil
}

// MemoryRepository is the in-process Repository used with the memory store.
type MemoryRepository struct {
	mu       sync.RWMutex
	profiles map[string]models.ProfileRecord
	clinics  map[string]models.Clinic
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{profiles: map[string]models.ProfileRecord{}, clinics: map[string]models.Clinic{}}
}

func (r *MemoryRepository) GetProfile(ctx context.Context, id string) (*models.ProfileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *MemoryRepository) UpsertProfile(ctx context.Context, p *models.ProfileRecord) (*models.ProfileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	cur, ok := r.profiles[p.ID]
	if !ok {
		cur = models.ProfileRecord{ID: p.ID, Role: p.Role, Doctor: p.Doctor, Patient: p.Patient, CreatedAt: now}
	}
	cur.Email = p.Email
	if p.FullName != "" {
		cur.FullName = p.FullName
	}
	if p.Phone != "" {
		cur.Phone = p.Phone
	}
	cur.UpdatedAt = now
	r.profiles[p.ID] = cur
	return &cur, nil
}

func (r *MemoryRepository) GetClinic(ctx context.Context, id string) (*models.Clinic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clinics[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *MemoryRepository) UpsertClinic(ctx context.Context, c *models.Clinic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	r.clinics[c.ID] = *c
	return nil
}
