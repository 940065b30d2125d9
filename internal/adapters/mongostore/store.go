// Package mongostore implements core.DocumentStore on a MongoDB collection.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/target/jobsync/internal/core"
	"github.com/target/jobsync/internal/domain/model"
)

const (
	defaultDeleteBatchSize = 500
	identifierIndexName    = "job_identifier_unique"
)

// Options groups dependencies for Store.
type Options struct {
	Collection      *mongo.Collection // Required
	DeleteBatchSize int               // Optional: defaults to 500
	Logger          *slog.Logger      // Optional
}

// Store keeps one document per job identifier.
type Store struct {
	coll            *mongo.Collection
	deleteBatchSize int
	logger          *slog.Logger
}

var (
	_ core.DocumentStore = (*Store)(nil)
	_ core.RowExporter   = (*Store)(nil)
)

// New constructs a Store over an existing collection.
func New(opts Options) (*Store, error) {
	if opts.Collection == nil {
		return nil, errors.New("mongo collection is required")
	}
	batch := opts.DeleteBatchSize
	if batch <= 0 {
		batch = defaultDeleteBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		coll:            opts.Collection,
		deleteBatchSize: batch,
		logger:          logger.With("component", "mongo_store", "collection", opts.Collection.Name()),
	}, nil
}

// ConnectOptions configures Connect.
type ConnectOptions struct {
	URI             string
	Database        string
	Collection      string
	ConnectTimeout  time.Duration
	DeleteBatchSize int
	Logger          *slog.Logger
}

// Connect dials MongoDB, pings the primary and ensures the identifier index exists.
// The returned client must be disconnected by the caller.
func Connect(ctx context.Context, opts ConnectOptions) (*Store, *mongo.Client, error) {
	if opts.URI == "" {
		return nil, nil, errors.New("mongo URI is required")
	}
	if opts.Database == "" || opts.Collection == "" {
		return nil, nil, errors.New("mongo database and collection are required")
	}

	clientOpts := options.Client().ApplyURI(opts.URI)
	if opts.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(opts.ConnectTimeout).SetServerSelectionTimeout(opts.ConnectTimeout)
	}
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}

	store, err := New(Options{
		Collection:      client.Database(opts.Database).Collection(opts.Collection),
		DeleteBatchSize: opts.DeleteBatchSize,
		Logger:          opts.Logger,
	})
	if err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, nil, err
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, nil, err
	}
	return store, client, nil
}

// EnsureIndexes creates the unique job_identifier index if missing.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: model.FieldJobIdentifier, Value: 1}},
		Options: options.Index().SetUnique(true).SetName(identifierIndexName),
	})
	if err != nil {
		return fmt.Errorf("ensure %s index: %w", identifierIndexName, err)
	}
	return nil
}

// Insert replaces the document for rec's identifier, creating it when absent.
func (s *Store) Insert(ctx context.Context, rec model.CanonicalRecord) error {
	if rec.JobIdentifier == "" {
		return errors.New("job identifier is required")
	}
	filter := bson.D{{Key: model.FieldJobIdentifier, Value: string(rec.JobIdentifier)}}
	_, err := s.coll.ReplaceOne(ctx, filter, rec.Document(), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", rec.JobIdentifier, err)
	}
	return nil
}

// DeleteByIdentifiers removes matching documents in batches and returns the number removed.
func (s *Store) DeleteByIdentifiers(ctx context.Context, ids []model.Identifier) (int64, error) {
	var total int64
	for start := 0; start < len(ids); start += s.deleteBatchSize {
		end := min(start+s.deleteBatchSize, len(ids))
		batch := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			batch = append(batch, string(id))
		}

		res, err := s.coll.DeleteMany(ctx, bson.D{{
			Key:   model.FieldJobIdentifier,
			Value: bson.D{{Key: "$in", Value: batch}},
		}})
		if err != nil {
			return total, fmt.Errorf("delete documents batch %d-%d: %w", start, end, err)
		}
		total += res.DeletedCount
	}
	if total > 0 {
		s.logger.DebugContext(ctx, "documents deleted", "requested", len(ids), "deleted", total)
	}
	return total, nil
}

// Export streams every document ordered by identifier. ObjectIDs and BSON dates are
// converted to their hex string and time.Time forms.
func (s *Store) Export(ctx context.Context, fn func(row map[string]any) error) error {
	cur, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: model.FieldJobIdentifier, Value: 1}}))
	if err != nil {
		return fmt.Errorf("find documents: %w", err)
	}
	defer func() {
		// cursor close failure is best-effort and ignored
		_ = cur.Close(ctx)
	}()

	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return fmt.Errorf("decode document: %w", err)
		}
		row, _ := plain(doc).(map[string]any)
		if err := fn(row); err != nil {
			return err
		}
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("iterate documents: %w", err)
	}
	return nil
}

// plain converts decoded BSON values into JSON-friendly Go values.
func plain(v any) any {
	switch t := v.(type) {
	case bson.M:
		return plainMap(t)
	case map[string]any:
		return plainMap(t)
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = plain(e.Value)
		}
		return out
	case bson.A:
		return plainSlice(t)
	case []any:
		return plainSlice(t)
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}

func plainMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, item := range m {
		out[k] = plain(item)
	}
	return out
}

func plainSlice(s []any) []any {
	out := make([]any, len(s))
	for i, item := range s {
		out[i] = plain(item)
	}
	return out
}
