package deployment

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// object is a decoded JSON object that remembers key order.
// Values stay raw until a caller asks for them.
type object struct {
	path   string
	keys   []string
	fields map[string]json.RawMessage
}

func decodeObject(path string, data []byte) (*object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, path, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: %s should be an object", ErrInvalidManifest, path)
	}

	obj := &object{path: path, fields: map[string]json.RawMessage{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, path, err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s: unexpected token %v", ErrInvalidManifest, path, tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidManifest, path, key, err)
		}
		if _, seen := obj.fields[key]; !seen {
			obj.keys = append(obj.keys, key)
		}
		obj.fields[key] = raw
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, path, err)
	}
	if _, err := dec.Token(); err == nil {
		return nil, fmt.Errorf("%w: %s: trailing data", ErrInvalidManifest, path)
	}
	return obj, nil
}

func (o *object) childPath(key string) string {
	if o.path == "" {
		return key
	}
	return o.path + "/" + key
}

// raw returns the value under key. JSON null counts as absent.
func (o *object) raw(key string) (json.RawMessage, bool) {
	v, ok := o.fields[key]
	if !ok || isNull(v) {
		return nil, false
	}
	return bytes.TrimSpace(v), true
}

// child decodes the object under key; absence is ErrMissingSection.
func (o *object) child(key string) (*object, error) {
	v, ok := o.raw(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingSection, o.childPath(key))
	}
	return decodeObject(o.childPath(key), v)
}

// optionalChild is child with absence reported as (nil, nil).
func (o *object) optionalChild(key string) (*object, error) {
	if _, ok := o.raw(key); !ok {
		return nil, nil
	}
	return o.child(key)
}

// walk follows keys from o, requiring every step.
func (o *object) walk(keys ...string) (*object, error) {
	cur := o
	for _, k := range keys {
		next, err := cur.child(k)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// text returns the value under key as a string. Strings are unquoted,
// anything else is returned as compact JSON text.
func (o *object) text(key string) (string, bool, error) {
	v, ok := o.raw(key)
	if !ok {
		return "", false, nil
	}
	s, err := rawText(v)
	if err != nil {
		return "", false, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, o.childPath(key), err)
	}
	return s, true, nil
}

func rawText(v json.RawMessage) (string, error) {
	if len(v) > 0 && v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func isNull(v json.RawMessage) bool {
	return string(bytes.TrimSpace(v)) == "null"
}
