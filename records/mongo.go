package records

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// CollectionName is the collection the records are appended to.
const CollectionName = "convertedfiles"

type mongoRecord struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	OriginalName  string             `bson:"originalName"`
	ConvertedName string             `bson:"convertedName"`
	ConvertedPath string             `bson:"convertedPath"`
	OutputBytes   int64              `bson:"outputBytes"`
	CreatedAt     time.Time          `bson:"createdAt"`
}

// MongoSink writes records to a MongoDB collection.
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoSink connects to uri and checks the server is reachable.
func NewMongoSink(ctx context.Context, uri, database string) (*MongoSink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &MongoSink{
		client:     client,
		collection: client.Database(database).Collection(CollectionName),
	}, nil
}

func (s *MongoSink) Record(ctx context.Context, rec Record) error {
	doc := mongoRecord{
		OriginalName:  rec.OriginalName,
		ConvertedName: rec.ConvertedName,
		ConvertedPath: rec.ConvertedPath,
		OutputBytes:   rec.OutputBytes,
		CreatedAt:     rec.CreatedAt,
	}
	res, err := s.collection.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	log.Debugf("recorded conversion %v: %s -> %s", res.InsertedID, rec.OriginalName, rec.ConvertedName)
	return nil
}

func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
