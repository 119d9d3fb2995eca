// Package types provides type definitions for structured data used throughout the filing-validator system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row is a string-keyed mapping that remembers the order its columns were added in.
// Spreadsheet rows keep their header order through extraction, prompting and persistence.
type Row struct {
	keys   []string
	values map[string]any
}

// NewRow creates an empty row
func NewRow() Row {
	return Row{values: make(map[string]any)}
}

// RowOf builds a row from alternating key/value pairs.
// It panics on an odd argument count or a non-string key; it is meant for literals.
func RowOf(kv ...any) Row {
	if len(kv)%2 != 0 {
		panic("types.RowOf: odd number of arguments")
	}
	r := NewRow()
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("types.RowOf: key at %d is %T, not string", i, kv[i]))
		}
		r.Set(key, kv[i+1])
	}
	return r
}

// Set assigns a value, appending the key if it is new
func (r *Row) Set(key string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value for key and whether it exists
func (r Row) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// GetString returns the value for key rendered as a string.
// Missing keys and nil values yield "".
func (r Row) GetString(key string) string {
	v, ok := r.values[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Keys returns the column names in insertion order
func (r Row) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of columns
func (r Row) Len() int {
	return len(r.keys)
}

// Clone returns a shallow copy that can be modified independently
func (r Row) Clone() Row {
	c := Row{
		keys:   make([]string, len(r.keys)),
		values: make(map[string]any, len(r.values)),
	}
	copy(c.keys, r.keys)
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}

// IsBlank reports whether every listed column is missing, nil or an empty string.
// With no columns given, all of the row's columns are checked.
func (r Row) IsBlank(columns ...string) bool {
	if len(columns) == 0 {
		columns = r.keys
	}
	for _, col := range columns {
		if r.GetString(col) != "" {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the row as a JSON object in column order
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.values[key])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal column %q: %w", key, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the order its keys appear in
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("row must be a JSON object, got %v", tok)
	}

	*r = NewRow()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", keyTok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("failed to decode column %q: %w", key, err)
		}
		r.Set(key, value)
	}
	_, err = dec.Token()
	return err
}
