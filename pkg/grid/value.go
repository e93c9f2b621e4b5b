package grid

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// MaxColumns is the widest grid that still has spreadsheet column labels.
const MaxColumns = excelize.MaxColumns

// ColumnLabel returns the positional label for a zero-based column index:
// A..Z, AA, AB and so on.
func ColumnLabel(index int) (string, error) {
	if index < 0 || index >= MaxColumns {
		return "", fmt.Errorf("%w: column %d has no label (limit %d)", ErrTooManyColumns, index+1, MaxColumns)
	}
	return excelize.ColumnNumberToName(index + 1)
}

// ColumnIndex is the inverse of ColumnLabel.
func ColumnIndex(label string) (int, error) {
	n, err := excelize.ColumnNameToNumber(label)
	if err != nil {
		return 0, err
	}
	return n - 1, nil
}

// Normalize converts a decoded cell into one of the table value kinds:
// nil (missing), string, int64, float64 or bool. Composite JSON values are
// carried as their JSON text.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, string, int64, float64, bool:
		return x
	case json.Number:
		// A literal with a fraction or exponent stays a float, so 1.0 is
		// not narrowed to 1.
		if !strings.ContainsAny(x.String(), ".eE") {
			if i, err := x.Int64(); err == nil {
				return i
			}
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		return float64(x)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}

// Stringify renders a table value as cell text the way Python's str()
// does: 2.0 is "2.0", true is "True". Missing values and NaN render as the
// empty string.
func Stringify(v any) string {
	switch x := Normalize(v).(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatFloat(x)
	case bool:
		if x {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ""
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return sci
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// IsMissing reports whether v is the missing-value marker.
func IsMissing(v any) bool {
	if v == nil {
		return true
	}
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return true
	}
	return false
}
