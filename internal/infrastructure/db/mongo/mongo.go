// Package mongo holds the MongoDB repositories for users, sessions and
// verification codes.
package mongo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	connectTimeout = 10 * time.Second
	opTimeout      = 10 * time.Second
	indexTimeout   = 30 * time.Second
	appName        = "stallauth"
)

// Config is the connection configuration.
type Config struct {
	URI         string
	Database    string
	MaxPoolSize uint64
	Timeout     time.Duration
}

// Connect dials MongoDB, pings the primary and returns the client together
// with the auth database.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, *mongo.Database, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = connectTimeout
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(appName).
		SetServerSelectionTimeout(timeout)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, nil, fmt.Errorf("mongo ping %s: %w", cfg.Database, err)
	}
	return client, client.Database(cfg.Database), nil
}

func opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

func indexContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, indexTimeout)
}

// Ready returns a readiness check that pings the database and confirms the
// given collections exist. EnsureIndexes creates them at startup, so a missing
// one means the service is pointed at the wrong database or it was dropped.
func Ready(db *mongo.Database, collections ...string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := db.Client().Ping(ctx, nil); err != nil {
			return fmt.Errorf("mongo ping: %w", err)
		}
		present, err := db.ListCollectionNames(ctx, bson.M{"name": bson.M{"$in": collections}})
		if err != nil {
			return fmt.Errorf("mongo list collections: %w", err)
		}
		if missing := missingCollections(collections, present); len(missing) > 0 {
			return fmt.Errorf("mongo %s: missing collections %s", db.Name(), strings.Join(missing, ", "))
		}
		return nil
	}
}

func missingCollections(required, present []string) []string {
	have := make(map[string]struct{}, len(present))
	for _, name := range present {
		have[name] = struct{}{}
	}
	var missing []string
	for _, name := range required {
		if _, ok := have[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
