package data

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/jobsync/internal/domain/listing"
	"github.com/target/jobsync/internal/domain/model"
	"github.com/target/jobsync/internal/testutil"
)

func TestListingColumns(t *testing.T) {
	cols := ListingColumns()
	require.NotEmpty(t, cols)
	assert.Equal(t, model.FieldJobIdentifier, cols[0])
	assert.Equal(t, model.FieldExtra, cols[len(cols)-1])
	assert.Len(t, cols, len(model.Fields)+2)
}

func TestBuildUpsertSQL(t *testing.T) {
	sql := buildUpsertSQL([]string{"job_identifier", "title", "extra"})

	assert.Contains(t, sql, "INSERT INTO job_listings (job_identifier, title, extra)")
	assert.Contains(t, sql, "VALUES ($1, $2, $3)")
	assert.Contains(t, sql, "ON CONFLICT (job_identifier) DO UPDATE SET title = EXCLUDED.title, extra = EXCLUDED.extra, updated_at = now()")
	assert.NotContains(t, sql, "job_identifier = EXCLUDED.job_identifier")
}

func TestListingRepo_InsertRejectsEmptyIdentifier(t *testing.T) {
	repo := NewListingRepo(nil, ListingRepoOptions{})
	err := repo.Insert(context.Background(), model.CanonicalRecord{})
	require.ErrorIs(t, err, ErrEmptyIdentifier)
}

func buildRecord(t *testing.T, raw model.RawListing) model.CanonicalRecord {
	t.Helper()
	rec, id := listing.Build(raw)
	require.NotEmpty(t, id)
	return rec
}

func TestListingRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db := testutil.SetupTestDB(t)
	repo := NewListingRepo(db, ListingRepoOptions{DeleteBatchSize: 2})
	ctx := context.Background()

	first := buildRecord(t, testutil.Listing("R100", "Engineer", "1 Main St"))
	second := buildRecord(t, testutil.Listing("R200", "Analyst", "2 Main St"))
	third := buildRecord(t, testutil.NewListing("R300", "Designer", "3 Main St").
		With("custom_flag", "yes").
		Raw())

	t.Run("insert and select identifiers", func(t *testing.T) {
		for _, rec := range []model.CanonicalRecord{first, second, third} {
			require.NoError(t, repo.Insert(ctx, rec))
		}

		ids, err := repo.SelectAllIdentifiers(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []model.Identifier{first.JobIdentifier, second.JobIdentifier, third.JobIdentifier}, ids)
	})

	t.Run("insert of an existing identifier replaces the row", func(t *testing.T) {
		updated := buildRecord(t, testutil.NewListing("R100", "Engineer", "1 Main St").
			With("city", "St. Paul").
			Raw())
		require.Equal(t, first.JobIdentifier, updated.JobIdentifier)
		require.NoError(t, repo.Insert(ctx, updated))

		var city string
		var count int
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT city, count(*) OVER () FROM job_listings WHERE job_identifier = $1`,
			string(first.JobIdentifier),
		).Scan(&city, &count))
		assert.Equal(t, "St. Paul", city)
		assert.Equal(t, 1, count)
	})

	t.Run("export streams rows in identifier order", func(t *testing.T) {
		var got []string
		var extra any
		err := repo.Export(ctx, func(row map[string]any) error {
			id, _ := row[model.FieldJobIdentifier].(string)
			got = append(got, id)
			if id == string(third.JobIdentifier) {
				extra = row[model.FieldExtra]
			}
			return nil
		})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.IsIncreasing(t, got)
		assert.Contains(t, extra, "custom_flag")
	})

	t.Run("delete spans several batches", func(t *testing.T) {
		n, err := repo.DeleteByIdentifiers(ctx, []model.Identifier{
			first.JobIdentifier, second.JobIdentifier, third.JobIdentifier, "missing_None_None",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		ids, err := repo.SelectAllIdentifiers(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("delete of nothing is a no-op", func(t *testing.T) {
		n, err := repo.DeleteByIdentifiers(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestListingRepo_ExportStopsOnCallbackError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db := testutil.SetupTestDB(t)
	repo := NewListingRepo(db, ListingRepoOptions{})
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, buildRecord(t, testutil.Listing("R1", "A", "x"))))
	require.NoError(t, repo.Insert(ctx, buildRecord(t, testutil.Listing("R2", "B", "y"))))

	calls := 0
	err := repo.Export(ctx, func(map[string]any) error {
		calls++
		return assert.AnError
	})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "export listings"))
	assert.Equal(t, 1, calls)
}
