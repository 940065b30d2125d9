package listing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/target/jobsync/internal/domain/model"
)

// MissingPlaceholder stands in for an absent identifier component.
const MissingPlaceholder = "None"

// identifierSeparator joins identifier components.
const identifierSeparator = "_"

//nolint:gochecknoglobals // ordered identifier components
var identifierFields = []string{model.FieldReqID, model.FieldTitle, model.FieldStreetAddress}

// Build derives the canonical record and identifier of a raw listing.
// It never fails: a listing without a data object yields a record with no fields and an
// identifier made entirely of placeholders.
func Build(raw model.RawListing) (model.CanonicalRecord, model.Identifier) {
	data := raw.Data()
	id := IdentifierOf(data)

	rec := model.CanonicalRecord{
		JobIdentifier: id,
		Fields:        make(map[string]any),
		Extra:         make(map[string]any),
	}

	for name, value := range Flatten(data) {
		if value == nil {
			continue
		}
		spec, ok := model.LookupField(name)
		if !ok {
			rec.Extra[name] = value
			continue
		}
		normalized, err := normalize(spec.Kind, value)
		if err != nil {
			rec.Extra[name] = value
			continue
		}
		rec.Fields[name] = normalized
	}

	return rec, id
}

// IdentifierOf renders the identifier of a listing's data object.
func IdentifierOf(data map[string]any) model.Identifier {
	parts := make([]string, len(identifierFields))
	for i, name := range identifierFields {
		parts[i] = renderComponent(data[name])
	}
	return model.Identifier(strings.Join(parts, identifierSeparator))
}

func renderComponent(v any) string {
	switch t := v.(type) {
	case nil:
		return MissingPlaceholder
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
