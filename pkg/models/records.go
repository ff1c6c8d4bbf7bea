package models

import (
	"strconv"
	"strings"
)

// RawPage is one decoded JSON object returned by a single upstream call
type RawPage map[string]any

// ProgramRecord is a program summary as returned by a platform's list
// endpoint. Enrichment adds one nested field to a copy of it.
type ProgramRecord map[string]any

// Lookup walks a dotted path ("relationships.structured_scopes.data")
// through nested objects. Numeric segments index into arrays.
func Lookup(m map[string]any, path string) (any, bool) {
	if m == nil {
		return nil, false
	}
	var cur any = m
	for _, key := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = v
		case RawPage:
			v, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = v
		case ProgramRecord:
			v, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

// StringAt returns the string at path. Numbers are formatted so that
// numeric ids can serve as join keys.
func StringAt(m map[string]any, path string) (string, bool) {
	v, ok := Lookup(m, path)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	}
	return "", false
}

// NumberAt returns the number at path
func NumberAt(m map[string]any, path string) (float64, bool) {
	v, ok := Lookup(m, path)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// BoolAt returns the boolean at path
func BoolAt(m map[string]any, path string) (bool, bool) {
	v, ok := Lookup(m, path)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// ListAt returns the array at path
func ListAt(m map[string]any, path string) ([]any, bool) {
	v, ok := Lookup(m, path)
	if !ok {
		return nil, false
	}
	l, ok := v.([]any)
	return l, ok
}

// ObjectAt returns the object at path
func ObjectAt(m map[string]any, path string) (map[string]any, bool) {
	v, ok := Lookup(m, path)
	if !ok {
		return nil, false
	}
	switch o := v.(type) {
	case map[string]any:
		return o, true
	case RawPage:
		return o, true
	case ProgramRecord:
		return o, true
	}
	return nil, false
}

// Clone returns a deep copy of the record
func (r ProgramRecord) Clone() ProgramRecord {
	if r == nil {
		return nil
	}
	return ProgramRecord(cloneObject(r))
}

// String returns the string at path
func (r ProgramRecord) String(path string) (string, bool) {
	return StringAt(r, path)
}

// Records returns the objects found in the array at path, skipping
// anything that is not an object.
func (p RawPage) Records(path string) ([]ProgramRecord, bool) {
	list, ok := ListAt(p, path)
	if !ok {
		return nil, false
	}
	records := make([]ProgramRecord, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			records = append(records, ProgramRecord(obj))
		}
	}
	return records, true
}

func cloneObject(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneObject(t)
	case ProgramRecord:
		return cloneObject(t)
	case RawPage:
		return cloneObject(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
