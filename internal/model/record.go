package model

import (
	"bytes"
	"encoding/json"
)

// Record is one decoded row: field values in column order.
type Record struct {
	names  []string
	values map[string]FieldValue
}

// NewRecord returns an empty record sized for capacity fields.
func NewRecord(capacity int) *Record {
	return &Record{names: make([]string, 0, capacity), values: make(map[string]FieldValue, capacity)}
}

// Set stores a field value, keeping the first insertion position.
func (r *Record) Set(name string, value FieldValue) {
	if _, exists := r.values[name]; !exists {
		r.names = append(r.names, name)
	}
	r.values[name] = value
}

// Get returns the value stored under name.
func (r *Record) Get(name string) (FieldValue, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Names lists field names in insertion order.
func (r *Record) Names() []string {
	return append([]string(nil), r.names...)
}

func (r *Record) Len() int {
	return len(r.names)
}

func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(r.values[name].Native())
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
