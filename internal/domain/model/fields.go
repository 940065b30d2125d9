package model

import "strings"

// FieldKind describes how a canonical field is normalized and stored.
type FieldKind int

const (
	// KindText is a free-form string.
	KindText FieldKind = iota
	// KindInteger is a whole number stored as int64.
	KindInteger
	// KindFloat is a decimal number stored as float64.
	KindFloat
	// KindBoolean is true/false.
	KindBoolean
	// KindTextArray is a list of strings.
	KindTextArray
	// KindTimestamp is a point in time.
	KindTimestamp
	// KindJSON is an arbitrary structured value.
	KindJSON
)

// String returns a readable name for the kind.
func (k FieldKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindTextArray:
		return "text_array"
	case KindTimestamp:
		return "timestamp"
	case KindJSON:
		return "json"
	default:
		return "unknown"
	}
}

// FieldSpec registers one allow-listed canonical field.
// Name is the flattened source key; Column is the relational column it maps to.
type FieldSpec struct {
	Name   string
	Column string
	Kind   FieldKind
}

func field(name string, kind FieldKind) FieldSpec {
	return FieldSpec{Name: name, Column: strings.ToLower(name), Kind: kind}
}

// Names of the canonical fields that carry special meaning.
const (
	FieldJobIdentifier = "job_identifier"
	FieldReqID         = "req_id"
	FieldTitle         = "title"
	FieldStreetAddress = "street_address"
	FieldExtra         = "extra"
)

// Fields is the allow-list of flattened listing keys promoted to first-class canonical fields,
// in relational column order. job_identifier and extra are not part of it; they are always present.
//
//nolint:gochecknoglobals // immutable registry shared by the builder and the store adapters
var Fields = []FieldSpec{
	field("slug", KindText),
	field("language", KindText),
	field("languages", KindTextArray),
	field(FieldReqID, KindText),
	field(FieldTitle, KindText),
	field("description", KindText),
	field("location_name", KindText),
	field(FieldStreetAddress, KindText),
	field("city", KindText),
	field("state", KindText),
	field("country", KindText),
	field("country_code", KindText),
	field("postal_code", KindText),
	field("location_type", KindText),
	field("latitude", KindFloat),
	field("longitude", KindFloat),
	field("tags", KindTextArray),
	field("tags5", KindTextArray),
	field("tags6", KindTextArray),
	field("brand", KindText),
	field("promotion_value", KindInteger),
	field("salary_currency", KindText),
	field("salary_value", KindInteger),
	field("salary_min_value", KindInteger),
	field("salary_max_value", KindInteger),
	field("employment_type", KindText),
	field("hiring_organization", KindText),
	field("source", KindText),
	field("apply_url", KindText),
	field("internal", KindBoolean),
	field("searchable", KindBoolean),
	field("applyable", KindBoolean),
	field("li_easy_applyable", KindBoolean),
	field("meta_data_login_url", KindText),
	field("meta_data_region_description", KindText),
	field("meta_data_site_id", KindText),
	field("meta_data_googlejobs_companyName", KindText),
	field("meta_data_googlejobs_jobName", KindText),
	field("meta_data_googlejobs_derivedInfo_jobCategories", KindTextArray),
	field("meta_data_googlejobs_jobSummary", KindText),
	field("meta_data_googlejobs_jobTitleSnippet", KindText),
	field("meta_data_googlejobs_searchTextSnippet", KindText),
	field("meta_data_canonical_url", KindText),
	field("meta_data_last_mod", KindTimestamp),
	field("meta_data_gdpr", KindBoolean),
	field("update_date", KindTimestamp),
	field("create_date", KindTimestamp),
	field("category", KindText),
	field("full_location", KindText),
	field("short_location", KindText),
}

//nolint:gochecknoglobals // derived once from Fields
var fieldIndex = func() map[string]FieldSpec {
	idx := make(map[string]FieldSpec, len(Fields))
	for _, f := range Fields {
		idx[f.Name] = f
	}
	return idx
}()

// LookupField returns the registered spec for a flattened key.
func LookupField(name string) (FieldSpec, bool) {
	f, ok := fieldIndex[name]
	return f, ok
}
