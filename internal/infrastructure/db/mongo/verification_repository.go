package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stallpos/auth-service/internal/core/domain"
	"github.com/stallpos/auth-service/internal/core/ports"
)

const CollectionVerificationCodes = "verification_codes"

var _ ports.VerificationRepository = (*VerificationRepository)(nil)

type VerificationRepository struct {
	col *mongo.Collection
}

func NewVerificationRepository(db *mongo.Database) *VerificationRepository {
	return &VerificationRepository{col: db.Collection(CollectionVerificationCodes)}
}

type mongoCode struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Email     string    `bson:"email"`
	Purpose   string    `bson:"purpose"`
	Code      string    `bson:"code"`
	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
	Attempts  int       `bson:"attempts"`
	Verified  bool      `bson:"verified"`
}

func (mc *mongoCode) toDomain() *domain.VerificationCode {
	return &domain.VerificationCode{
		ID:        mc.ID,
		UserID:    mc.UserID,
		Email:     mc.Email,
		Purpose:   mc.Purpose,
		Code:      mc.Code,
		CreatedAt: mc.CreatedAt.UTC(),
		ExpiresAt: mc.ExpiresAt.UTC(),
		Attempts:  mc.Attempts,
		Verified:  mc.Verified,
	}
}

func (r *VerificationRepository) Create(ctx context.Context, c *domain.VerificationCode) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	doc := mongoCode{
		ID:        c.ID,
		UserID:    c.UserID,
		Email:     c.Email,
		Purpose:   c.Purpose,
		Code:      c.Code,
		CreatedAt: c.CreatedAt.UTC(),
		ExpiresAt: c.ExpiresAt.UTC(),
		Attempts:  c.Attempts,
		Verified:  c.Verified,
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateCode
		}
		return fmt.Errorf("insert verification code: %w", err)
	}
	return nil
}

func (r *VerificationRepository) CountSince(ctx context.Context, email, purpose string, since time.Time) (int64, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	n, err := r.col.CountDocuments(ctx, windowFilter(email, purpose, since))
	if err != nil {
		return 0, fmt.Errorf("count verification codes: %w", err)
	}
	return n, nil
}

func (r *VerificationRepository) OldestSince(ctx context.Context, email, purpose string, since time.Time) (time.Time, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})
	var mc mongoCode
	if err := r.col.FindOne(ctx, windowFilter(email, purpose, since), opts).Decode(&mc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return time.Time{}, domain.ErrNoCodeFound
		}
		return time.Time{}, fmt.Errorf("find oldest verification code: %w", err)
	}
	return mc.CreatedAt.UTC(), nil
}

func (r *VerificationRepository) FindLatestUnverified(ctx context.Context, email, purpose string) (*domain.VerificationCode, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	filter := bson.M{"email": email, "purpose": purpose, "verified": false}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var mc mongoCode
	if err := r.col.FindOne(ctx, filter, opts).Decode(&mc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNoCodeFound
		}
		return nil, fmt.Errorf("find verification code: %w", err)
	}
	return mc.toDomain(), nil
}

// ReserveAttempt guards the $inc with the ceiling in the filter, so parallel
// guesses can never push attempts past limit.
func (r *VerificationRepository) ReserveAttempt(ctx context.Context, id string, limit int) (int, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	filter := bson.M{"_id": id, "verified": false, "attempts": bson.M{"$lt": limit}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var mc mongoCode
	err := r.col.FindOneAndUpdate(ctx, filter, bson.M{"$inc": bson.M{"attempts": 1}}, opts).Decode(&mc)
	if err == nil {
		return mc.Attempts, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, fmt.Errorf("reserve attempt: %w", err)
	}

	// Nothing matched: tell a spent code apart from a missing or verified one.
	if err := r.col.FindOne(ctx, bson.M{"_id": id, "verified": false}).Decode(&mc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, domain.ErrNoCodeFound
		}
		return 0, fmt.Errorf("reserve attempt: %w", err)
	}
	return mc.Attempts, domain.ErrTooManyAttempts
}

func (r *VerificationRepository) MarkVerified(ctx context.Context, id string) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id, "verified": false}, bson.M{"$set": bson.M{"verified": true}})
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNoCodeFound
	}
	return nil
}

// EnsureIndexes creates the compound lookup index used by the rate limiter
// and the latest-code query.
func (r *VerificationRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := indexContext(ctx)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "email", Value: 1},
			{Key: "purpose", Value: 1},
			{Key: "created_at", Value: -1},
		},
	})
	return err
}

func windowFilter(email, purpose string, since time.Time) bson.M {
	return bson.M{
		"email":      email,
		"purpose":    purpose,
		"created_at": bson.M{"$gte": since.UTC()},
	}
}
