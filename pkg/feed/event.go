package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventType is the kind of row change carried by an [Event].
type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

// Valid reports whether t is one of the three known event types.
func (t EventType) Valid() bool { return t == Insert || t == Update || t == Delete }

// ParseEventType normalizes a wire event type. Matching ignores case.
func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}

// Event is one committed row change on a table.
//
// New holds the row after INSERT and UPDATE. Old holds the row (or at
// least its primary key) before UPDATE and DELETE.
type Event struct {
	Type       EventType `json:"type" bson:"type"`
	Table      string    `json:"table" bson:"table"`
	New        Row       `json:"new,omitempty" bson:"new,omitempty"`
	Old        Row       `json:"old,omitempty" bson:"old,omitempty"`
	CommitTime time.Time `json:"commit_time,omitzero" bson:"commit_time,omitempty"`
}

// Record returns the row that identifies the changed entity: Old for
// DELETE, New otherwise, falling back to the other when empty.
func (e Event) Record() Row {
	primary, secondary := e.New, e.Old
	if e.Type == Delete {
		primary, secondary = e.Old, e.New
	}
	if len(primary) > 0 {
		return primary
	}
	return secondary
}

// Row is a database row as decoded from the wire: column name to value.
type Row map[string]any

// Has reports whether the column is present and not null.
func (r Row) Has(col string) bool {
	v, ok := r[col]
	return ok && v != nil
}

// String returns the column as a string. Numbers are formatted without
// exponent so numeric IDs round-trip. Missing and null columns yield "".
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Float returns the column as a float64 and whether it held a number.
func (r Row) Float(col string) (float64, bool) {
	switch v := r[col].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Time returns the column as a time. Strings are parsed as RFC 3339 or as
// the timestamp format Postgres uses in JSON.
func (r Row) Time(col string) (time.Time, bool) {
	switch v := r[col].(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999-07"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
