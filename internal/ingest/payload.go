package ingest

// doc wraps a decoded JSON object for defensive path lookups. A missing or
// mistyped path yields absence (nil pointer / zero value), never an error.
type doc map[string]any

// sub walks nested objects, returning nil when any step is missing.
func (d doc) sub(path ...string) doc {
	cur := d
	for _, key := range path {
		next, ok := cur[key].(map[string]any)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func (d doc) value(path ...string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	parent := d.sub(path[:len(path)-1]...)
	if parent == nil {
		return nil, false
	}
	v, ok := parent[path[len(path)-1]]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (d doc) str(path ...string) *string {
	v, ok := d.value(path...)
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func (d doc) intp(path ...string) *int {
	v, ok := d.value(path...)
	if !ok {
		return nil
	}
	f, ok := v.(float64) // encoding/json decodes all numbers as float64
	if !ok {
		return nil
	}
	n := int(f)
	return &n
}

func (d doc) intOr(fallback int, path ...string) int {
	if n := d.intp(path...); n != nil {
		return *n
	}
	return fallback
}

func (d doc) int64Or(fallback int64, path ...string) int64 {
	v, ok := d.value(path...)
	if !ok {
		return fallback
	}
	f, ok := v.(float64)
	if !ok {
		return fallback
	}
	return int64(f)
}

func (d doc) boolean(path ...string) bool {
	v, ok := d.value(path...)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func (d doc) list(path ...string) []any {
	v, ok := d.value(path...)
	if !ok {
		return nil
	}
	l, _ := v.([]any)
	return l
}

func firstStr(candidates ...*string) *string {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}
