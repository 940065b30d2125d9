package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/target/jobsync/internal/core"
	"github.com/target/jobsync/internal/data/pgxutil"
	"github.com/target/jobsync/internal/domain/model"
	apperrors "github.com/target/jobsync/internal/errors"
)

// ListingsTable is the relational table holding canonical listings.
const ListingsTable = "job_listings"

const defaultDeleteBatchSize = 500

// ListingRepo implements core.RelationalStore and core.RowExporter on PostgreSQL.
type ListingRepo struct {
	DB              *sql.DB
	deleteBatchSize int
	insertSQL       string
	columns         []string
}

var (
	_ core.RelationalStore = (*ListingRepo)(nil)
	_ core.RowExporter     = (*ListingRepo)(nil)
)

// ListingRepoOptions configures a ListingRepo.
type ListingRepoOptions struct {
	// DeleteBatchSize bounds the identifiers bound to one DELETE statement.
	DeleteBatchSize int
}

// NewListingRepo creates a new ListingRepo with the given database connection.
func NewListingRepo(db *sql.DB, opts ListingRepoOptions) *ListingRepo {
	batch := opts.DeleteBatchSize
	if batch <= 0 {
		batch = defaultDeleteBatchSize
	}
	columns := ListingColumns()
	return &ListingRepo{
		DB:              db,
		deleteBatchSize: batch,
		insertSQL:       buildUpsertSQL(columns),
		columns:         columns,
	}
}

// ListingColumns returns the stored columns in table order.
func ListingColumns() []string {
	cols := make([]string, 0, len(model.Fields)+2)
	cols = append(cols, model.FieldJobIdentifier)
	for _, f := range model.Fields {
		cols = append(cols, f.Column)
	}
	return append(cols, model.FieldExtra)
}

// buildUpsertSQL renders INSERT ... ON CONFLICT (job_identifier) DO UPDATE for every column.
func buildUpsertSQL(columns []string) string {
	placeholders := make([]string, len(columns))
	updates := make([]string, 0, len(columns))
	for i, c := range columns {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		if c != model.FieldJobIdentifier {
			updates = append(updates, c+" = EXCLUDED."+c)
		}
	}
	updates = append(updates, "updated_at = now()")

	return `INSERT INTO ` + ListingsTable + ` (` + strings.Join(columns, ", ") + `)
		VALUES (` + strings.Join(placeholders, ", ") + `)
		ON CONFLICT (` + model.FieldJobIdentifier + `) DO UPDATE SET ` + strings.Join(updates, ", ")
}

// SelectAllIdentifiers returns every stored identifier. A missing table yields an empty set.
func (r *ListingRepo) SelectAllIdentifiers(ctx context.Context) ([]model.Identifier, error) {
	var ids []model.Identifier
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+model.FieldJobIdentifier+` FROM `+ListingsTable)
		if err != nil {
			return err
		}
		ids, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Identifier, error) {
			var id string
			scanErr := row.Scan(&id)
			return model.Identifier(id), scanErr
		})
		return err
	})
	if err != nil {
		if isUndefinedTable(err) {
			return []model.Identifier{}, nil
		}
		return nil, fmt.Errorf("select identifiers: %w", apperrors.MapDBError(err))
	}
	return ids, nil
}

// Insert upserts one canonical record keyed by job_identifier.
func (r *ListingRepo) Insert(ctx context.Context, rec model.CanonicalRecord) error {
	if rec.JobIdentifier == "" {
		return ErrEmptyIdentifier
	}
	args, err := r.insertArgs(rec)
	if err != nil {
		return err
	}

	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, execErr := conn.Exec(ctx, r.insertSQL, args...)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("insert listing %s: %w", rec.JobIdentifier, apperrors.MapDBError(err))
	}
	return nil
}

// insertArgs orders the record's values to match r.columns. Nested values are JSON-encoded.
func (r *ListingRepo) insertArgs(rec model.CanonicalRecord) ([]any, error) {
	args := make([]any, 0, len(r.columns))
	args = append(args, string(rec.JobIdentifier))
	for _, f := range model.Fields {
		v, ok := rec.Fields[f.Name]
		if !ok {
			args = append(args, nil)
			continue
		}
		if f.Kind == model.KindJSON {
			b, err := json.Marshal(v)
			if err != nil {
				return nil, apperrors.Wrapf(err, apperrors.ErrCodeValidation, "encode %s", f.Name)
			}
			v = string(b)
		}
		args = append(args, v)
	}

	extra := rec.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "encode extra")
	}
	return append(args, string(b)), nil
}

// DeleteByIdentifiers removes the rows of ids in batches sent as a single pgx batch.
func (r *ListingRepo) DeleteByIdentifiers(ctx context.Context, ids []model.Identifier) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for start := 0; start < len(ids); start += r.deleteBatchSize {
		chunk := ids[start:min(start+r.deleteBatchSize, len(ids))]
		keys := make([]string, len(chunk))
		for i, id := range chunk {
			keys[i] = string(id)
		}
		batch.Queue(`DELETE FROM `+ListingsTable+` WHERE `+model.FieldJobIdentifier+` = ANY($1)`, keys)
	}

	var deleted int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		br := conn.SendBatch(ctx, batch)
		for range batch.Len() {
			tag, execErr := br.Exec()
			if execErr != nil {
				return errors.Join(execErr, br.Close())
			}
			deleted += tag.RowsAffected()
		}
		return br.Close()
	})
	if err != nil {
		return deleted, fmt.Errorf("delete %d listings: %w", len(ids), apperrors.MapDBError(err))
	}
	return deleted, nil
}

// Columns returns the export header in table order.
func (r *ListingRepo) Columns() []string {
	return append([]string(nil), r.columns...)
}

// Export streams every row as a column→value map from a read-only repeatable-read snapshot.
func (r *ListingRepo) Export(ctx context.Context, fn func(row map[string]any) error) error {
	query := `SELECT ` + strings.Join(r.columns, ", ") + ` FROM ` + ListingsTable + ` ORDER BY ` + model.FieldJobIdentifier
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
		Fn: func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, query)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				row, mapErr := pgx.RowToMap(rows)
				if mapErr != nil {
					return mapErr
				}
				if fnErr := fn(row); fnErr != nil {
					return fnErr
				}
			}
			return rows.Err()
		},
	})
	if err != nil {
		return fmt.Errorf("export listings: %w", apperrors.MapDBError(err))
	}
	return nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable
}
