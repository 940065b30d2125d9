// Package model holds the domain types shared by the reconciliation engine and its adapters.
package model

import (
	"encoding/json"
	"time"
)

// Identifier is the stable join key of a job posting across the cache, the tracker and both stores.
type Identifier string

// String implements fmt.Stringer.
func (id Identifier) String() string { return string(id) }

// RawListing is one decoded listing object exactly as the source returned it.
type RawListing map[string]any

// Data returns the nested "data" object that carries the posting fields, or nil.
func (r RawListing) Data() map[string]any {
	if r == nil {
		return nil
	}
	data, ok := r["data"].(map[string]any)
	if !ok {
		return nil
	}
	return data
}

// CanonicalRecord is the flattened, allow-listed representation of a listing used for storage.
//
// Fields holds normalized values keyed by FieldSpec.Name:
// string, int64, float64, bool, []string, time.Time or (for KindJSON) any JSON value.
// Absent fields are simply missing from the map. Extra carries every flattened key that
// was not promoted to a first-class field.
type CanonicalRecord struct {
	JobIdentifier Identifier
	Fields        map[string]any
	Extra         map[string]any
}

// Text returns a text field or "".
func (r CanonicalRecord) Text(name string) string {
	s, _ := r.Fields[name].(string)
	return s
}

// Integer returns an integer field.
func (r CanonicalRecord) Integer(name string) (int64, bool) {
	v, ok := r.Fields[name].(int64)
	return v, ok
}

// Float returns a float field.
func (r CanonicalRecord) Float(name string) (float64, bool) {
	v, ok := r.Fields[name].(float64)
	return v, ok
}

// Boolean returns a boolean field.
func (r CanonicalRecord) Boolean(name string) (bool, bool) {
	v, ok := r.Fields[name].(bool)
	return v, ok
}

// TextArray returns a text array field.
func (r CanonicalRecord) TextArray(name string) []string {
	v, _ := r.Fields[name].([]string)
	return v
}

// Timestamp returns a timestamp field.
func (r CanonicalRecord) Timestamp(name string) (time.Time, bool) {
	v, ok := r.Fields[name].(time.Time)
	return v, ok
}

// Document renders the record as a nested-structure-preserving document for schema-flexible stores.
// Decoded JSON numbers are converted to int64 or float64 so drivers store them as numbers.
func (r CanonicalRecord) Document() map[string]any {
	doc := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		doc[k] = NativeJSON(v)
	}
	doc[FieldJobIdentifier] = string(r.JobIdentifier)
	if len(r.Extra) > 0 {
		extra, _ := NativeJSON(r.Extra).(map[string]any)
		doc[FieldExtra] = extra
	}
	return doc
}

// NativeJSON walks a decoded JSON value and replaces json.Number with int64 or float64.
func NativeJSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = NativeJSON(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = NativeJSON(item)
		}
		return out
	default:
		return v
	}
}
