// Package mongodb implements storage.KeyRingStore using MongoDB
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sirosfoundation/go-ebics/internal/storage"
)

// DefaultCollection holds one document per key ring
const DefaultCollection = "keyrings"

// Store implements storage.KeyRingStore using MongoDB
type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	keyrings *mongo.Collection
}

var _ storage.KeyRingStore = (*Store)(nil)

// Config holds MongoDB connection settings
type Config struct {
	URI        string
	Database   string
	Collection string
}

type keyRingDoc struct {
	ID        string    `bson:"_id"`
	Blob      []byte    `bson:"blob"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewStore connects to MongoDB and returns a store
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "ebics"
	}
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}

	db := client.Database(database)
	s := &Store{
		client:   client,
		db:       db,
		keyrings: db.Collection(collection),
	}
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}
	return s, nil
}

// Load returns the blob stored under id
func (s *Store) Load(ctx context.Context, id string) ([]byte, error) {
	var doc keyRingDoc
	err := s.keyrings.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading key ring: %w", err)
	}
	return doc.Blob, nil
}

// Save replaces the blob stored under id
func (s *Store) Save(ctx context.Context, id string, blob []byte) error {
	doc := keyRingDoc{
		ID:        id,
		Blob:      blob,
		UpdatedAt: time.Now().UTC(),
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.keyrings.ReplaceOne(ctx, bson.M{"_id": id}, doc, opts); err != nil {
		return fmt.Errorf("saving key ring: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}
