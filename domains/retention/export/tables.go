package export

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// pathSep joins nested field names in column headers, e.g.
// "speaker__team__short_name".
const pathSep = "__"

// Value resolves a double-underscore column path against a row. Missing
// segments and non-map intermediates resolve to nil rather than an error:
// optional relations legitimately produce sparse rows.
func Value(row Row, path string) any {
	segments := strings.Split(path, pathSep)
	var current any = row
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return current
}

// cell renders one value for a CSV field.
func cell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case []byte:
		return string(val)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	}
}
