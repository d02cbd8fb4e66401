package memory

import (
	"strings"
	"time"

	"github.com/wolfman30/clinicops/internal/docstore"
)

func matches(data docstore.Fields, q docstore.Query) bool {
	for _, f := range q.Filters {
		v, ok := data[f.Field]
		if !ok {
			return false
		}
		if !apply(v, f.Op, f.Value) {
			return false
		}
	}
	for _, o := range q.Orders {
		if _, ok := data[o.Field]; !ok {
			return false
		}
	}
	return true
}

func apply(v any, op docstore.Op, want any) bool {
	if op == docstore.OpArrayContains {
		switch list := v.(type) {
		case []any:
			for _, item := range list {
				if compare(item, want) == 0 && rank(item) == rank(want) {
					return true
				}
			}
		case []string:
			s, ok := want.(string)
			if !ok {
				return false
			}
			for _, item := range list {
				if item == s {
					return true
				}
			}
		}
		return false
	}
	// Range and equality filters only match values of the same kind.
	if rank(v) != rank(want) {
		return false
	}
	c := compare(v, want)
	switch op {
	case docstore.OpEqual:
		return c == 0
	case docstore.OpLess:
		return c < 0
	case docstore.OpLessEqual:
		return c <= 0
	case docstore.OpGreater:
		return c > 0
	case docstore.OpGreaterEqual:
		return c >= 0
	}
	return false
}

// rank orders value kinds: null, bool, number, timestamp, string, other.
func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int, int32, int64, float32, float64:
		return 2
	case time.Time:
		return 3
	case string:
		return 4
	default:
		return 5
	}
}

func compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case string:
		return strings.Compare(av, b.(string))
	case time.Time:
		bv := b.(time.Time)
		switch {
		case av.Before(bv):
			return -1
		case av.After(bv):
			return 1
		default:
			return 0
		}
	}
	if ra == 2 {
		af, bf := number(a), number(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
	}
	return 0
}

func number(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
