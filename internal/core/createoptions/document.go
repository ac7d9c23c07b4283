package createoptions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// =============================================================================
// Document
// =============================================================================

// Document is a parsed create options object. Numbers are decoded as
// int64 when integral and float64 otherwise.
type Document map[string]interface{}

// Parse decodes reassembled create options. An empty or blank string
// yields an empty document.
func Parse(s string) (Document, error) {
	if strings.TrimSpace(s) == "" {
		return Document{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after object", ErrInvalidJSON)
	}

	obj, ok := normalize(raw).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: expected an object", ErrInvalidJSON)
	}
	return Document(obj), nil
}

// Lookup walks path through nested objects. A JSON null counts as absent.
func (d Document) Lookup(path ...string) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(d)
	for _, key := range path {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case map[string]interface{}:
		for k, item := range t {
			t[k] = normalize(item)
		}
		return t
	case []interface{}:
		for i, item := range t {
			t[i] = normalize(item)
		}
		return t
	default:
		return v
	}
}

// =============================================================================
// Typed Accessors
// =============================================================================

// get returns obj[key] when present and not null.
func get(obj map[string]interface{}, key string) (interface{}, bool) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func asObject(v interface{}, field string) (map[string]interface{}, error) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, invalidType(field, "an object")
	}
	return obj, nil
}

func asList(v interface{}, field string) ([]interface{}, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, invalidType(field, "a list")
	}
	return list, nil
}

func asString(v interface{}, field string) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", invalidType(field, "a string")
	}
	return s, nil
}

func asBool(v interface{}, field string) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, invalidType(field, "a boolean")
	}
	return b, nil
}

// asInt accepts int64 and integral float64 values.
func asInt(v interface{}, field string) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) && math.Abs(n) < math.MaxInt64 {
			return int64(n), nil
		}
	}
	return 0, invalidType(field, "an integer")
}

func asStringList(v interface{}, field string) ([]string, error) {
	list, err := asList(v, field)
	if err != nil {
		return nil, invalidType(field, "a list of strings")
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, invalidType(field, "a list of strings")
		}
		out = append(out, s)
	}
	return out, nil
}

func asStringMap(v interface{}, field string) (map[string]string, error) {
	obj, err := asObject(v, field)
	if err != nil {
		return nil, invalidType(field, "an object of strings")
	}
	out := make(map[string]string, len(obj))
	for k, item := range obj {
		s, ok := item.(string)
		if !ok {
			return nil, invalidType(field, "an object of strings")
		}
		out[k] = s
	}
	return out, nil
}

// requireKey returns obj[key] or a missing key error naming field.
func requireKey(obj map[string]interface{}, key, field string) (interface{}, error) {
	v, ok := obj[key]
	if !ok {
		return nil, missingKey(field, key)
	}
	return v, nil
}
