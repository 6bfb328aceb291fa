package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stallpos/auth-service/internal/core/domain"
	"github.com/stallpos/auth-service/internal/core/ports"
)

const CollectionUsers = "users"

var _ ports.UserRepository = (*UserRepository)(nil)

type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(CollectionUsers)}
}

// mongoUser keeps a lowercased copy of the username so the unique index
// enforces case-insensitive uniqueness.
type mongoUser struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	Username          string             `bson:"username"`
	UsernameLower     string             `bson:"username_lower"`
	Role              string             `bson:"role"`
	Status            string             `bson:"status"`
	PasswordHash      string             `bson:"password_hash"`
	PasswordVersion   string             `bson:"password_version"`
	PasswordUpdatedAt time.Time          `bson:"password_updated_at"`
	Phone             string             `bson:"phone,omitempty"`
	Email             string             `bson:"email,omitempty"`
	SecretWordHash    string             `bson:"secret_word_hash,omitempty"`
	SecretWordLength  int                `bson:"secret_word_length,omitempty"`
	RecoveryUpdatedAt time.Time          `bson:"recovery_updated_at,omitempty"`
	StallID           string             `bson:"stall_id,omitempty"`
	CreatedAt         time.Time          `bson:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at"`
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	doc := toMongoUser(user)
	res, err := r.col.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = oid
	}
	return doc.toDomain(), nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"username_lower": strings.ToLower(strings.TrimSpace(username))})
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *UserRepository) Update(ctx context.Context, id string, upd domain.UserUpdate) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}

	ctx, cancel := opContext(ctx)
	defer cancel()

	set := updateSet(upd)
	set["updated_at"] = time.Now().UTC()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var mu mongoUser
	err = r.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, opts).Decode(&mu)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return mu.toDomain(), nil
}

// EnsureIndexes creates the unique username index.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := indexContext(ctx)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username_lower", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var mu mongoUser
	if err := r.col.FindOne(ctx, filter).Decode(&mu); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return mu.toDomain(), nil
}

func updateSet(upd domain.UserUpdate) bson.M {
	set := bson.M{}
	if upd.PasswordHash != nil {
		set["password_hash"] = *upd.PasswordHash
	}
	if upd.PasswordVersion != nil {
		set["password_version"] = *upd.PasswordVersion
	}
	if upd.PasswordUpdatedAt != nil {
		set["password_updated_at"] = upd.PasswordUpdatedAt.UTC()
	}
	if upd.Phone != nil {
		set["phone"] = *upd.Phone
	}
	if upd.Email != nil {
		set["email"] = *upd.Email
	}
	if upd.SecretWordHash != nil {
		set["secret_word_hash"] = *upd.SecretWordHash
	}
	if upd.SecretWordLength != nil {
		set["secret_word_length"] = *upd.SecretWordLength
	}
	if upd.RecoveryUpdatedAt != nil {
		set["recovery_updated_at"] = upd.RecoveryUpdatedAt.UTC()
	}
	if upd.Status != nil {
		set["status"] = *upd.Status
	}
	if upd.StallID != nil {
		set["stall_id"] = *upd.StallID
	}
	return set
}

func toMongoUser(u *domain.User) *mongoUser {
	doc := &mongoUser{
		Username:          u.Username,
		UsernameLower:     strings.ToLower(strings.TrimSpace(u.Username)),
		Role:              u.Role,
		Status:            u.Status,
		PasswordHash:      u.PasswordHash,
		PasswordVersion:   u.PasswordVersion,
		PasswordUpdatedAt: u.PasswordUpdatedAt,
		Phone:             u.Phone,
		Email:             u.Email,
		SecretWordHash:    u.SecretWordHash,
		SecretWordLength:  u.SecretWordLength,
		RecoveryUpdatedAt: u.RecoveryUpdatedAt,
		StallID:           u.StallID,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
	if oid, err := primitive.ObjectIDFromHex(u.ID); err == nil {
		doc.ID = oid
	}
	return doc
}

func (mu *mongoUser) toDomain() *domain.User {
	return &domain.User{
		ID:                mu.ID.Hex(),
		Username:          mu.Username,
		Role:              mu.Role,
		Status:            mu.Status,
		PasswordHash:      mu.PasswordHash,
		PasswordVersion:   mu.PasswordVersion,
		PasswordUpdatedAt: mu.PasswordUpdatedAt.UTC(),
		Phone:             mu.Phone,
		Email:             mu.Email,
		SecretWordHash:    mu.SecretWordHash,
		SecretWordLength:  mu.SecretWordLength,
		RecoveryUpdatedAt: mu.RecoveryUpdatedAt.UTC(),
		StallID:           mu.StallID,
		CreatedAt:         mu.CreatedAt.UTC(),
		UpdatedAt:         mu.UpdatedAt.UTC(),
	}
}
