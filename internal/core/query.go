package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// QueryResult is the tabular output of an ad-hoc SQL query. Columns follow
// the key order of the first row.
type QueryResult struct {
	Columns []string
	Rows    [][]any
}

// Empty reports whether the query produced no rows.
func (q QueryResult) Empty() bool {
	return len(q.Rows) == 0
}

// FormatCell renders a single query value for an HTML table.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}
