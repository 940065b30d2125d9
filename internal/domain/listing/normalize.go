package listing

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/target/jobsync/internal/domain/model"
)

var errNotNormalizable = errors.New("value not normalizable")

//nolint:gochecknoglobals // accepted timestamp layouts, most specific first
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// normalize converts a decoded JSON value to the Go type stored for kind.
func normalize(kind model.FieldKind, v any) (any, error) {
	switch kind {
	case model.KindText:
		return toText(v)
	case model.KindInteger:
		return toInteger(v)
	case model.KindFloat:
		return toFloat(v)
	case model.KindBoolean:
		return toBoolean(v)
	case model.KindTextArray:
		return toTextArray(v)
	case model.KindTimestamp:
		return toTimestamp(v)
	case model.KindJSON:
		return v, nil
	default:
		return nil, fmt.Errorf("unknown kind %d: %w", kind, errNotNormalizable)
	}
}

func toText(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	default:
		return "", errNotNormalizable
	}
}

func toInteger(v any) (int64, error) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return 0, errNotNormalizable
		}
		return integralFloat(f)
	case float64:
		return integralFloat(t)
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errNotNormalizable
		}
		return integralFloat(f)
	default:
		return 0, errNotNormalizable
	}
}

func integralFloat(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, errNotNormalizable
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, errNotNormalizable
	}
	return int64(f), nil
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, errNotNormalizable
		}
		return f, nil
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, errNotNormalizable
		}
		return f, nil
	default:
		return 0, errNotNormalizable
	}
}

func toBoolean(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, errNotNormalizable
		}
		return b, nil
	default:
		return false, errNotNormalizable
	}
}

func toTextArray(v any) ([]string, error) {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...), nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, err := toText(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return []string{t}, nil
	default:
		return nil, errNotNormalizable
	}
}

func toTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		return time.Time{}, errNotNormalizable
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return time.Time{}, errNotNormalizable
		}
		return epochTime(i), nil
	case float64:
		i, err := integralFloat(t)
		if err != nil {
			return time.Time{}, err
		}
		return epochTime(i), nil
	default:
		return time.Time{}, errNotNormalizable
	}
}

// epochMillisThreshold separates epoch seconds from epoch milliseconds (year 5138 in seconds).
const epochMillisThreshold = 100_000_000_000

func epochTime(i int64) time.Time {
	if i >= epochMillisThreshold || i <= -epochMillisThreshold {
		return time.UnixMilli(i).UTC()
	}
	return time.Unix(i, 0).UTC()
}
