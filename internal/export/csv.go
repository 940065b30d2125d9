// Package export dumps the relational table and the document collection to CSV files.
package export

import (
	"bufio"
	"cmp"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/target/jobsync/internal/core"
)

// Default output file names.
const (
	DefaultRelationalFile = "output_data_pg.csv"
	DefaultDocumentFile   = "output_data_docs.csv"
)

// documentIDKey is sorted first in document headers when present.
const documentIDKey = "_id"

// WriteRelational writes one header row of columns followed by every row of src in column order.
// Returns the number of data rows written.
func WriteRelational(ctx context.Context, w io.Writer, columns []string, src core.RowExporter) (int, error) {
	if len(columns) == 0 {
		return 0, errors.New("columns are required")
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	n := 0
	record := make([]string, len(columns))
	err := src.Export(ctx, func(row map[string]any) error {
		for i, col := range columns {
			record[i] = FormatValue(row[col])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("export rows: %w", err)
	}
	cw.Flush()
	return n, cw.Error()
}

// WriteDocuments writes every document of src. The header is the sorted union of all
// document keys, with _id first. Documents are buffered to compute the header.
func WriteDocuments(ctx context.Context, w io.Writer, src core.RowExporter) (int, error) {
	var docs []map[string]any
	keys := map[string]struct{}{}
	err := src.Export(ctx, func(row map[string]any) error {
		for k := range row {
			keys[k] = struct{}{}
		}
		docs = append(docs, row)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("export documents: %w", err)
	}

	header := DocumentHeader(keys)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(header))
	for _, doc := range docs {
		for i, k := range header {
			record[i] = FormatValue(doc[k])
		}
		if err := cw.Write(record); err != nil {
			return 0, fmt.Errorf("write document: %w", err)
		}
	}
	cw.Flush()
	return len(docs), cw.Error()
}

// DocumentHeader sorts keys and moves _id to the front.
func DocumentHeader(keys map[string]struct{}) []string {
	header := make([]string, 0, len(keys))
	_, hasID := keys[documentIDKey]
	if hasID {
		header = append(header, documentIDKey)
	}
	rest := make([]string, 0, len(keys))
	for k := range keys {
		if k != documentIDKey {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	return append(header, rest...)
}

// FormatValue renders one cell. Composite values are JSON encoded.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// FileOptions configures ToFiles.
type FileOptions struct {
	Dir            string // Optional: defaults to the working directory
	RelationalFile string // Optional: defaults to DefaultRelationalFile
	DocumentFile   string // Optional: defaults to DefaultDocumentFile

	Columns    []string         // Required: relational column order
	Relational core.RowExporter // Required
	Documents  core.RowExporter // Required
	Logger     *slog.Logger     // Optional
}

// Result summarizes a file export.
type Result struct {
	RelationalPath string
	RelationalRows int
	DocumentPath   string
	DocumentRows   int
}

// ToFiles writes both CSV files.
func ToFiles(ctx context.Context, opts FileOptions) (Result, error) {
	if opts.Relational == nil || opts.Documents == nil {
		return Result{}, errors.New("relational and document exporters are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "export")

	res := Result{
		RelationalPath: filepath.Join(opts.Dir, cmp.Or(opts.RelationalFile, DefaultRelationalFile)),
		DocumentPath:   filepath.Join(opts.Dir, cmp.Or(opts.DocumentFile, DefaultDocumentFile)),
	}

	var err error
	res.RelationalRows, err = writeFile(res.RelationalPath, func(w io.Writer) (int, error) {
		return WriteRelational(ctx, w, opts.Columns, opts.Relational)
	})
	if err != nil {
		return res, err
	}
	logger.InfoContext(ctx, "relational export written", "path", res.RelationalPath, "rows", res.RelationalRows)

	res.DocumentRows, err = writeFile(res.DocumentPath, func(w io.Writer) (int, error) {
		return WriteDocuments(ctx, w, opts.Documents)
	})
	if err != nil {
		return res, err
	}
	logger.InfoContext(ctx, "document export written", "path", res.DocumentPath, "rows", res.DocumentRows)
	return res, nil
}

func writeFile(path string, fn func(io.Writer) (int, error)) (n int, err error) {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	bw := bufio.NewWriterSize(f, 1<<20)
	n, err = fn(bw)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("flush %s: %w", path, err)
	}
	return n, nil
}
