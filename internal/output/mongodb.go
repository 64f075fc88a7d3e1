// internal/output/mongodb.go
package output

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultMongoDatabase = "deepscrapexter"

	mongoConnectTimeout = 10 * time.Second
	mongoWriteTimeout   = 30 * time.Second

	// Server code for a unique-index violation.
	mongoDuplicateKeyCode = 11000
)

// MongoWriter inserts records as documents into a MongoDB collection.
type MongoWriter struct {
	client     *mongo.Client
	collection *mongo.Collection
	conflict   string
}

// NewMongoWriter connects with the given URI and verifies the
// connection against the primary.
func NewMongoWriter(dsn, database, collection, conflict string) (*MongoWriter, error) {
	if dsn == "" {
		return nil, fmt.Errorf("mongodb output requires a dsn")
	}
	if database == "" {
		database = defaultMongoDatabase
	}
	if collection == "" {
		collection = defaultTableName
	}
	if conflict == ConflictReplace {
		// Replacement needs a match key we cannot guess; documents get
		// server-assigned ids.
		return nil, fmt.Errorf("mongodb does not support the replace conflict strategy")
	}

	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoWriter{
		client:     client,
		collection: client.Database(database).Collection(collection),
		conflict:   conflict,
	}, nil
}

// Write inserts one document per record. Inserts are unordered so one
// bad document does not block the rest of the batch.
func (w *MongoWriter) Write(records []map[string]interface{}) error {
	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	docs := make([]interface{}, len(records))
	for i, record := range records {
		doc := make(bson.M, len(record)+1)
		for key, value := range record {
			doc[key] = value
		}
		doc["scraped_at"] = now
		docs[i] = doc
	}

	ctx, cancel := context.WithTimeout(context.Background(), mongoWriteTimeout)
	defer cancel()

	_, err := w.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil && w.conflict == ConflictIgnore && onlyDuplicateKeys(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to insert documents: %w", err)
	}
	return nil
}

// onlyDuplicateKeys reports whether every failure in a bulk write was a
// unique-index violation.
func onlyDuplicateKeys(err error) bool {
	var bulkErr mongo.BulkWriteException
	if !errors.As(err, &bulkErr) {
		return false
	}
	if bulkErr.WriteConcernError != nil || len(bulkErr.WriteErrors) == 0 {
		return false
	}
	for _, writeErr := range bulkErr.WriteErrors {
		if writeErr.Code != mongoDuplicateKeyCode {
			return false
		}
	}
	return true
}

// Flush is a no-op; every Write round-trips to the server.
func (w *MongoWriter) Flush() error { return nil }

// Close disconnects from the server.
func (w *MongoWriter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()
	return w.client.Disconnect(ctx)
}
