package docstore

import (
	"fmt"
	"sort"
)

// SortDocuments orders docs in place the way q asks for. Documents missing
// the order field sort first; ties keep id order.
func SortDocuments(docs []Document, q Query) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		if q.OrderBy == "" {
			return a.Ref.ID < b.Ref.ID
		}
		c := compare(a.Fields[q.OrderBy], b.Fields[q.OrderBy])
		if c == 0 {
			c = compare(a.Ref.ID, b.Ref.ID)
		}
		if q.Desc {
			return c > 0
		}
		return c < 0
	})
}

func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return cmp(as, bs)
		}
	}
	if af, ok := number(a); ok {
		if bf, ok := number(b); ok {
			return cmp(af, bf)
		}
	}
	return cmp(fmt.Sprint(a), fmt.Sprint(b))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func cmp[T string | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
