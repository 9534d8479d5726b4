package quotes

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/0xReLogic/Furnace/internal/config"
)

// MongoStore keeps quotes in a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to MongoDB and verifies the primary is reachable.
func NewMongoStore(ctx context.Context, cfg config.MongoConfig) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(100),
	)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

func (s *MongoStore) List(ctx context.Context) ([]Quote, error) {
	cursor, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find quotes: %w", err)
	}
	defer cursor.Close(ctx)

	out := []Quote{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode quotes: %w", err)
	}
	return out, nil
}

func (s *MongoStore) Seed(ctx context.Context, quotes []Quote) error {
	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("count quotes: %w", err)
	}
	if n > 0 || len(quotes) == 0 {
		return nil
	}

	docs := make([]interface{}, len(quotes))
	for i, q := range quotes {
		docs[i] = q
	}
	if _, err := s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return fmt.Errorf("insert quotes: %w", err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
