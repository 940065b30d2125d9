package mongostore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/target/jobsync/internal/domain/model"
	"github.com/target/jobsync/internal/testutil"
)

func TestPlain(t *testing.T) {
	oid := primitive.NewObjectID()
	when := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	got := plain(bson.M{
		"_id":    oid,
		"posted": primitive.NewDateTimeFromTime(when),
		"nested": bson.D{{Key: "k", Value: bson.A{int32(1), "two"}}},
		"title":  "Engineer",
	})

	assert.Equal(t, map[string]any{
		"_id":    oid.Hex(),
		"posted": when,
		"nested": map[string]any{"k": []any{int32(1), "two"}},
		"title":  "Engineer",
	}, got)
}

func TestNew_RequiresCollection(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestConnect_Validation(t *testing.T) {
	_, _, err := Connect(context.Background(), ConnectOptions{})
	require.Error(t, err)

	_, _, err = Connect(context.Background(), ConnectOptions{URI: "mongodb://localhost:27017"})
	require.Error(t, err)
}

func setupStore(t *testing.T) *Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, client, err := Connect(ctx, ConnectOptions{
		URI:             testutil.TestMongoURI(),
		Database:        "jobsync_test",
		Collection:      fmt.Sprintf("listings_%d", time.Now().UnixNano()),
		ConnectTimeout:  2 * time.Second,
		DeleteBatchSize: 2,
	})
	if err != nil {
		if testutil.RequireMongo() {
			t.Fatalf("mongo unavailable: %v", err)
		}
		t.Skipf("mongo unavailable: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.coll.Drop(cleanupCtx)
		_ = client.Disconnect(cleanupCtx)
	})
	return store
}

func record(id string, title string) model.CanonicalRecord {
	return model.CanonicalRecord{
		JobIdentifier: model.Identifier(id),
		Fields: map[string]any{
			model.FieldTitle: title,
			"languages":      []string{"en", "fr"},
		},
		Extra: map[string]any{"data_team": "platform"},
	}
}

func TestStore_InsertUpsertsAndExports(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, record("R2_Engineer_None", "Engineer")))
	require.NoError(t, store.Insert(ctx, record("R1_Analyst_None", "Analyst")))
	require.NoError(t, store.Insert(ctx, record("R1_Analyst_None", "Senior Analyst")))

	var rows []map[string]any
	require.NoError(t, store.Export(ctx, func(row map[string]any) error {
		rows = append(rows, row)
		return nil
	}))

	require.Len(t, rows, 2)
	assert.Equal(t, "R1_Analyst_None", rows[0][model.FieldJobIdentifier])
	assert.Equal(t, "Senior Analyst", rows[0][model.FieldTitle])
	assert.Equal(t, map[string]any{"data_team": "platform"}, rows[0][model.FieldExtra])
	assert.IsType(t, "", rows[0]["_id"])
}

func TestStore_DeleteByIdentifiersBatches(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for _, id := range []string{"A", "B", "C", "D"} {
		require.NoError(t, store.Insert(ctx, record(id, "t")))
	}

	n, err := store.DeleteByIdentifiers(ctx, []model.Identifier{"A", "B", "C", "missing"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	count, err := store.coll.CountDocuments(ctx, bson.D{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStore_InsertRequiresIdentifier(t *testing.T) {
	store := setupStore(t)
	err := store.Insert(context.Background(), model.CanonicalRecord{})
	assert.Error(t, err)
}
