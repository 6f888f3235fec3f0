package util

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// LookupPath resolves a dot separated path ("user.address.city", "items.0.id")
// against a value. Maps and slices are walked directly so the resolved value
// keeps its Go type. Structs and json.RawMessage are resolved through their
// JSON encoding. The boolean reports whether the path exists.
func LookupPath(v any, path string) (any, bool) {
	if path == "" {
		return v, true
	}

	head, rest := SplitPath(path)

	switch t := v.(type) {
	case nil:
		return nil, false
	case json.RawMessage:
		return lookupJSON(t, path)
	case map[string]any:
		next, ok := t[head]
		if !ok {
			return nil, false
		}
		return LookupPath(next, rest)
	case []any:
		i, ok := index(head, len(t))
		if !ok {
			return nil, false
		}
		return LookupPath(t[i], rest)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		kt := rv.Type().Key()
		if kt.Kind() != reflect.String {
			return nil, false
		}

		mv := rv.MapIndex(reflect.ValueOf(head).Convert(kt))
		if !mv.IsValid() {
			return nil, false
		}
		return LookupPath(mv.Interface(), rest)
	case reflect.Slice, reflect.Array:
		i, ok := index(head, rv.Len())
		if !ok {
			return nil, false
		}
		return LookupPath(rv.Index(i).Interface(), rest)
	case reflect.Struct:
		b, err := json.Marshal(rv.Interface())
		if err != nil {
			return nil, false
		}
		return lookupJSON(b, path)
	}

	return nil, false
}

// SplitPath separates the leading segment from the remainder of a dotted path.
func SplitPath(path string) (head, rest string) {
	head, rest, _ = strings.Cut(path, ".")
	return head, rest
}

func index(segment string, n int) (int, bool) {
	i, err := strconv.Atoi(segment)
	if err != nil || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

func lookupJSON(raw []byte, path string) (any, bool) {
	res := gjson.GetBytes(raw, escapePath(path))
	if !res.Exists() {
		return nil, false
	}

	return res.Value(), true
}

// escapePath escapes gjson meta characters so each segment is matched literally.
func escapePath(path string) string {
	if !strings.ContainsAny(path, `*?|#@!\`) {
		return path
	}

	var b strings.Builder
	for _, r := range path {
		switch r {
		case '*', '?', '|', '#', '@', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}

	return b.String()
}
