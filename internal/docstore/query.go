package docstore

import (
	"fmt"
	"strings"
)

// Op is a query filter operator, spelled the way Firestore spells it.
type Op string

const (
	OpEqual         Op = "=="
	OpLess          Op = "<"
	OpLessEqual     Op = "<="
	OpGreater       Op = ">"
	OpGreaterEqual  Op = ">="
	OpArrayContains Op = "array-contains"
)

// Filter restricts a query to documents whose field satisfies Op against Value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Order sorts query results by a field.
type Order struct {
	Field      string
	Descending bool
}

// Query describes a collection read. Documents lacking a filtered or ordered field
// are excluded, matching Firestore semantics.
type Query struct {
	Collection string
	Filters    []Filter
	Orders     []Order
	Limit      int
}

// Collection starts a query over the collection at path.
func Collection(path string) Query {
	return Query{Collection: path}
}

// Where returns a copy of q with an additional filter.
func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

// OrderBy returns a copy of q with an additional sort key.
func (q Query) OrderBy(field string, descending bool) Query {
	q.Orders = append(append([]Order(nil), q.Orders...), Order{Field: field, Descending: descending})
	return q
}

// WithLimit returns a copy of q returning at most n documents.
func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

// Validate checks the collection path and operators.
func (q Query) Validate() error {
	if !IsCollectionPath(q.Collection) {
		return fmt.Errorf("%w: collection %q", ErrInvalidPath, q.Collection)
	}
	for _, f := range q.Filters {
		switch f.Op {
		case OpEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpArrayContains:
		default:
			return fmt.Errorf("docstore: unsupported operator %q", f.Op)
		}
		if strings.TrimSpace(f.Field) == "" {
			return fmt.Errorf("docstore: filter field required")
		}
	}
	return nil
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Split returns the parent collection path and the id of a document path.
func Split(docPath string) (collection, id string, err error) {
	if !IsDocumentPath(docPath) {
		return "", "", fmt.Errorf("%w: document %q", ErrInvalidPath, docPath)
	}
	i := strings.LastIndex(docPath, "/")
	return docPath[:i], docPath[i+1:], nil
}

// IsDocumentPath reports whether p names a document.
func IsDocumentPath(p string) bool {
	n, ok := segments(p)
	return ok && n%2 == 0
}

// IsCollectionPath reports whether p names a collection.
func IsCollectionPath(p string) bool {
	n, ok := segments(p)
	return ok && n%2 == 1
}

func segments(p string) (int, bool) {
	if p == "" || strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/") {
		return 0, false
	}
	parts := strings.Split(p, "/")
	for _, part := range parts {
		if part == "" {
			return 0, false
		}
	}
	return len(parts), true
}
