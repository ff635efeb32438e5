package records

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"mp4converter/database"
)

func sampleRecord() Record {
	return Record{
		OriginalName:  "holiday.mp4",
		ConvertedName: "1700000000-0190-converted.mp3",
		ConvertedPath: "data/converted/1700000000-0190-converted.mp3",
		OutputBytes:   4096,
		CreatedAt:     time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestGormSink(t *testing.T) {
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "db", "conversions.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	sink, err := NewGormSink(db)
	require.NoError(t, err)

	rec := sampleRecord()
	rec.ID = 99 // ignored, the store assigns ids
	require.NoError(t, sink.Record(context.Background(), rec))
	require.NoError(t, sink.Record(context.Background(), sampleRecord()))

	var stored []Record
	require.NoError(t, db.Order("id").Find(&stored).Error)
	require.Len(t, stored, 2)
	assert.Equal(t, uint(1), stored[0].ID)
	assert.Equal(t, "holiday.mp4", stored[0].OriginalName)
	assert.Equal(t, "1700000000-0190-converted.mp3", stored[0].ConvertedName)
	assert.Equal(t, "data/converted/1700000000-0190-converted.mp3", stored[0].ConvertedPath)
	assert.Equal(t, int64(4096), stored[0].OutputBytes)
	assert.True(t, stored[0].CreatedAt.Equal(rec.CreatedAt))
}

func TestGormSinkUnavailable(t *testing.T) {
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "conversions.db"))
	require.NoError(t, err)
	sink, err := NewGormSink(db)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	err = sink.Record(context.Background(), sampleRecord())
	assert.ErrorIs(t, err, ErrSinkUnavailable)
}

func TestMongoSink(t *testing.T) {
	uri := os.Getenv("MP4CONV_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("MP4CONV_TEST_MONGODB_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbName := "mp4converter_test_" + time.Now().Format("20060102150405")
	sink, err := NewMongoSink(ctx, uri, dbName)
	require.NoError(t, err)
	t.Cleanup(func() {
		sink.client.Database(dbName).Drop(context.Background())
		sink.Close(context.Background())
	})

	require.NoError(t, sink.Record(ctx, sampleRecord()))

	var got bson.M
	require.NoError(t, sink.collection.FindOne(ctx, bson.M{"originalName": "holiday.mp4"}).Decode(&got))
	assert.Equal(t, "1700000000-0190-converted.mp3", got["convertedName"])
	assert.Equal(t, "data/converted/1700000000-0190-converted.mp3", got["convertedPath"])
	assert.Contains(t, got, "createdAt")
}

func TestMongoSinkUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := NewMongoSink(ctx, "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=200&connectTimeoutMS=200", "x")
	assert.Error(t, err)
}
