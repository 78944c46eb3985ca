package ml

import (
	"fmt"
	"strconv"
)

// Record is one row of a categorical dataset, attribute name to value token.
type Record map[string]string

// Classifier is implemented by anything that can label a record.
type Classifier interface {
	Classify(record Record) (string, bool)
}

// Project keeps only the given attributes, in the given order, as a stable key.
func (r Record) Project(attributes []string) []string {
	values := make([]string, len(attributes))
	for i, attr := range attributes {
		values[i] = r[attr]
	}
	return values
}

// RecordFromAny converts decoded JSON values into value tokens.
func RecordFromAny(raw map[string]interface{}) Record {
	out := make(Record, len(raw))
	for k, v := range raw {
		out[k] = Token(v)
	}
	return out
}

// Token renders a decoded JSON scalar the way it appeared in the source.
func Token(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
