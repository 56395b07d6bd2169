package core

import (
	"database/sql/driver"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// ScoreMap maps a rubric criterion identifier to a numeric score. The same
// shape serves an assignment's rubric (criterion -> maximum score), a
// submission's reference marks and a marker's marks; the three are expected
// to share one key space.
type ScoreMap map[string]float64

var _ driver.Valuer = (ScoreMap)(nil)

// Value marshals the map to JSONB. A nil map is stored as an empty object so
// the column never needs to distinguish NULL from "no scores yet".
func (m ScoreMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling score map")
	}
	return b, nil
}

func (m *ScoreMap) Scan(src interface{}) error {
	if src == nil {
		*m = ScoreMap{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("scanning score map: unsupported type %T", src)
	}
	if len(data) == 0 {
		*m = ScoreMap{}
		return nil
	}
	return errors.Wrap(json.Unmarshal(data, m), "unmarshaling score map")
}

// Equal reports deep equality; key order is insignificant. An empty and a nil
// map are equal.
func (m ScoreMap) Equal(other ScoreMap) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Keys returns the criterion identifiers in sorted order.
func (m ScoreMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy; a nil receiver yields an empty map.
func (m ScoreMap) Clone() ScoreMap {
	clone := make(ScoreMap, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

// ValidateAgainst checks the map at the boundary: every key must exist in the
// rubric's key set and every value must be non-negative. Values above the
// criterion maximum are accepted; auditing those is the comparison view's job.
func (m ScoreMap) ValidateAgainst(rubric ScoreMap, field string) error {
	for _, k := range m.Keys() {
		if _, ok := rubric[k]; !ok {
			return NewValidationError(
				errors.Errorf("unknown criterion %q", k),
				FieldError{Field: field, Error: "criterion " + k + " is not part of the rubric"},
			)
		}
		if m[k] < 0 {
			return NewValidationError(
				errors.Errorf("negative score for criterion %q", k),
				FieldError{Field: field, Error: "score for " + k + " cannot be negative"},
			)
		}
	}
	return nil
}
