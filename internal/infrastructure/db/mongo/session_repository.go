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

const CollectionSessions = "sessions"

var _ ports.SessionRepository = (*SessionRepository)(nil)

type SessionRepository struct {
	col *mongo.Collection
}

func NewSessionRepository(db *mongo.Database) *SessionRepository {
	return &SessionRepository{col: db.Collection(CollectionSessions)}
}

type mongoSession struct {
	ID               string    `bson:"_id"`
	TokenFingerprint string    `bson:"token_fingerprint"`
	UserID           string    `bson:"user_id"`
	PasswordVersion  string    `bson:"password_version"`
	ExpiresAt        time.Time `bson:"expires_at"`
	LastActivityAt   time.Time `bson:"last_activity_at"`
	CreatedAt        time.Time `bson:"created_at"`
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	doc := mongoSession{
		ID:               s.ID,
		TokenFingerprint: s.TokenFingerprint,
		UserID:           s.UserID,
		PasswordVersion:  s.PasswordVersion,
		ExpiresAt:        s.ExpiresAt.UTC(),
		LastActivityAt:   s.LastActivityAt.UTC(),
		CreatedAt:        s.CreatedAt.UTC(),
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) FindByToken(ctx context.Context, tokenFingerprint, userID string) (*domain.Session, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var ms mongoSession
	err := r.col.FindOne(ctx, bson.M{"token_fingerprint": tokenFingerprint, "user_id": userID}).Decode(&ms)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &domain.Session{
		ID:               ms.ID,
		TokenFingerprint: ms.TokenFingerprint,
		UserID:           ms.UserID,
		PasswordVersion:  ms.PasswordVersion,
		ExpiresAt:        ms.ExpiresAt.UTC(),
		LastActivityAt:   ms.LastActivityAt.UTC(),
		CreatedAt:        ms.CreatedAt.UTC(),
	}, nil
}

func (r *SessionRepository) Delete(ctx context.Context, tokenFingerprint string) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	if _, err := r.col.DeleteOne(ctx, bson.M{"token_fingerprint": tokenFingerprint}); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Touch(ctx context.Context, tokenFingerprint string, at time.Time) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"token_fingerprint": tokenFingerprint},
		bson.M{"$set": bson.M{"last_activity_at": at.UTC()}},
	)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// EnsureIndexes creates the fingerprint lookup index and a TTL index that lets
// MongoDB reap expired rows the authenticator never saw again.
func (r *SessionRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := indexContext(ctx)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token_fingerprint", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
