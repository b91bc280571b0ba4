// Package mongodb opens the MongoDB connection used when STORE_DRIVER=mongo.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Store bundles a connected client and the application database.
type Store struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// Connect dials uri, verifies the primary is reachable and returns a Store
// bound to database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetAppName("truecare").
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Store{Client: client, DB: client.Database(database)}, nil
}

// Ping satisfies db.Pinger for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}

// Index describes one index to create with EnsureIndexes.
type Index struct {
	Collection string
	Keys       bson.D
	Unique     bool
	Sparse     bool
	Name       string
}

// EnsureIndexes creates every index that does not exist yet. Creating an
// existing index with the same definition is a no-op on the server.
func (s *Store) EnsureIndexes(ctx context.Context, indexes []Index) error {
	for _, idx := range indexes {
		model := mongo.IndexModel{
			Keys:    idx.Keys,
			Options: options.Index().SetUnique(idx.Unique).SetSparse(idx.Sparse).SetName(idx.Name),
		}
		if _, err := s.DB.Collection(idx.Collection).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("create index %s on %s: %w", idx.Name, idx.Collection, err)
		}
	}
	return nil
}

// WithTransaction runs fn inside a multi-document transaction. Operations
// issued with the ctx passed to fn join it. A ctx already bound to a session
// runs fn directly. Transactions require a replica set or sharded cluster.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	session, err := s.Client.StartSession()
	if err != nil {
		return fmt.Errorf("start mongo session: %w", err)
	}
	defer session.EndSession(context.Background())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
