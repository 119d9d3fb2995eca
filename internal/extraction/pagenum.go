package extraction

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// NormalizePageNumber converts a spreadsheet "Page Number" cell to a page.
//
// Accepted shapes: an integer, a float (truncated), a string of ASCII digits,
// a bracketed list such as "[3]" whose first element is a page, and a list
// whose first element is a page. Anything else yields nil.
func NormalizePageNumber(v any) *int {
	switch x := v.(type) {
	case nil, bool:
		return nil
	case int:
		return &x
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, err := strconv.Atoi(strings.TrimSpace(toString(x)))
		if err != nil {
			return nil
		}
		return &n
	case float32:
		return fromFloat(float64(x))
	case float64:
		return fromFloat(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return fromFloat(float64(n))
		}
		f, err := x.Float64()
		if err != nil {
			return nil
		}
		return fromFloat(f)
	case string:
		return fromString(x)
	case []any:
		if len(x) == 0 {
			return nil
		}
		return NormalizePageNumber(x[0])
	case []int:
		if len(x) == 0 {
			return nil
		}
		n := x[0]
		return &n
	case []string:
		if len(x) == 0 {
			return nil
		}
		return fromString(x[0])
	default:
		return nil
	}
}

func fromFloat(f float64) *int {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return nil
	}
	n := int(f)
	return &n
}

func fromString(s string) *int {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		var items []any
		dec := json.NewDecoder(strings.NewReader(strings.ReplaceAll(s, "'", `"`)))
		dec.UseNumber()
		if err := dec.Decode(&items); err != nil || len(items) == 0 {
			return nil
		}
		switch first := items[0].(type) {
		case json.Number:
			return NormalizePageNumber(first)
		case string:
			return fromDigits(strings.TrimSpace(first))
		default:
			return nil
		}
	}
	return fromDigits(s)
}

func fromDigits(s string) *int {
	if s == "" {
		return nil
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func toString(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
