// Package firestorestore implements core.DocumentStore on a Firestore collection.
package firestorestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/target/jobsync/internal/core"
	"github.com/target/jobsync/internal/domain/model"
)

const (
	defaultDeleteBatchSize = 500
	// DocumentIDKey carries the Firestore document ID in exported rows.
	DocumentIDKey = "_id"
)

// Options groups dependencies for Store.
type Options struct {
	Client          *firestore.Client // Required
	Collection      string            // Required
	DeleteBatchSize int               // Optional: defaults to 500
	Logger          *slog.Logger      // Optional
}

// Store keeps one document per job identifier; the document ID is the escaped identifier.
type Store struct {
	client          *firestore.Client
	coll            *firestore.CollectionRef
	deleteBatchSize int
	logger          *slog.Logger
}

var (
	_ core.DocumentStore = (*Store)(nil)
	_ core.RowExporter   = (*Store)(nil)
)

// New constructs a Store.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("firestore client is required")
	}
	if opts.Collection == "" {
		return nil, errors.New("firestore collection is required")
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
		client:          opts.Client,
		coll:            opts.Client.Collection(opts.Collection),
		deleteBatchSize: batch,
		logger:          logger.With("component", "firestore_store", "collection", opts.Collection),
	}, nil
}

// NewClient creates a Firestore client for projectID. FIRESTORE_EMULATOR_HOST is honoured
// by the client library.
func NewClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, errors.New("firestore project ID is required")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return client, nil
}

// DocumentID maps an identifier to a valid Firestore document ID.
func DocumentID(id model.Identifier) string {
	return url.PathEscape(string(id))
}

// Insert sets the document for rec's identifier, replacing any previous content.
func (s *Store) Insert(ctx context.Context, rec model.CanonicalRecord) error {
	if rec.JobIdentifier == "" {
		return errors.New("job identifier is required")
	}
	if _, err := s.coll.Doc(DocumentID(rec.JobIdentifier)).Set(ctx, rec.Document()); err != nil {
		return fmt.Errorf("set document %s: %w", rec.JobIdentifier, err)
	}
	return nil
}

// DeleteByIdentifiers removes the existing documents among ids with a BulkWriter and
// returns how many existed.
func (s *Store) DeleteByIdentifiers(ctx context.Context, ids []model.Identifier) (int64, error) {
	var total int64
	for start := 0; start < len(ids); start += s.deleteBatchSize {
		end := min(start+s.deleteBatchSize, len(ids))
		n, err := s.deleteBatch(ctx, ids[start:end])
		total += n
		if err != nil {
			return total, fmt.Errorf("delete documents batch %d-%d: %w", start, end, err)
		}
	}
	if total > 0 {
		s.logger.DebugContext(ctx, "documents deleted", "requested", len(ids), "deleted", total)
	}
	return total, nil
}

func (s *Store) deleteBatch(ctx context.Context, ids []model.Identifier) (int64, error) {
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, s.coll.Doc(DocumentID(id)))
	}

	snaps, err := s.client.GetAll(ctx, refs)
	if err != nil {
		return 0, fmt.Errorf("read documents: %w", err)
	}

	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		job, err := bw.Delete(snap.Ref)
		if err != nil {
			bw.End()
			return 0, fmt.Errorf("enqueue delete %s: %w", snap.Ref.ID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	var deleted int64
	var errs []error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
	}
	return deleted, errors.Join(errs...)
}

// Export streams every document ordered by document ID. The ID is added under "_id".
func (s *Store) Export(ctx context.Context, fn func(row map[string]any) error) error {
	iter := s.coll.OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("iterate documents: %w", err)
		}
		row := snap.Data()
		row[DocumentIDKey] = snap.Ref.ID
		if err := fn(row); err != nil {
			return err
		}
	}
}
