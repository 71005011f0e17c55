// Package cursor encodes and decodes keyset pagination cursors.
//
// A cursor is the anchor row's id plus, for secondary sorts, that row's sort
// value. Each component is JSON, URL-safe base64 encoded, and the two are
// joined with "_": <id> or <id>_<value>. The id component never contains
// "_" because the JSON text of a UUID cannot produce that base64 digit.
package cursor

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"relquery/internal/apperr"
	"relquery/internal/model"
)

// Cursor anchors a position in a strict sort order.
type Cursor struct {
	ID uuid.UUID
	// Value is the secondary sort value; nil when sorting by id.
	Value *model.FieldValue
}

// New returns an id-only cursor.
func New(id uuid.UUID) Cursor {
	return Cursor{ID: id}
}

// WithValue returns a cursor carrying a secondary sort value.
func WithValue(id uuid.UUID, value model.FieldValue) Cursor {
	return Cursor{ID: id, Value: &value}
}

// Encode renders the cursor in its wire format. JSON values cannot be
// encoded.
func Encode(c Cursor) (string, error) {
	idPart, err := encodePart(c.ID.String())
	if err != nil {
		return "", err
	}
	if c.Value == nil {
		return idPart, nil
	}
	payload, err := valuePayload(*c.Value)
	if err != nil {
		return "", err
	}
	valuePart, err := encodePart(payload)
	if err != nil {
		return "", err
	}
	return idPart + "_" + valuePart, nil
}

// Decode parses raw. valueType is the active secondary sort's type, or nil
// for id-only sorts; it decides whether a value component is expected.
func Decode(raw string, valueType *model.FieldType) (Cursor, error) {
	idPart, valuePart := raw, ""
	if valueType != nil {
		var found bool
		idPart, valuePart, found = strings.Cut(raw, "_")
		if !found {
			return Cursor{}, apperr.BadRequest("invalid cursor: expected value component")
		}
	}

	var idText string
	if err := decodePart(idPart, &idText); err != nil {
		return Cursor{}, err
	}
	id, err := uuid.Parse(idText)
	if err != nil {
		return Cursor{}, apperr.BadRequest("invalid cursor: id is not a uuid")
	}
	if valueType == nil {
		return New(id), nil
	}

	value, err := decodeValue(valuePart, *valueType)
	if err != nil {
		return Cursor{}, err
	}
	return WithValue(id, value), nil
}

// Compare orders cursors by secondary value, then id.
func Compare(a, b Cursor) (int, error) {
	switch {
	case a.Value != nil && b.Value != nil:
		c, err := a.Value.Compare(*b.Value)
		if err != nil {
			return 0, fmt.Errorf("compare cursor values: %w", err)
		}
		if c != 0 {
			return c, nil
		}
	case a.Value != nil || b.Value != nil:
		return 0, fmt.Errorf("compare cursor values: one cursor has no value")
	}
	return bytes.Compare(a.ID[:], b.ID[:]), nil
}

// Equal reports whether a and b anchor the same position.
func Equal(a, b Cursor) bool {
	if a.ID != b.ID {
		return false
	}
	if a.Value == nil || b.Value == nil {
		return a.Value == nil && b.Value == nil
	}
	return a.Value.Equal(*b.Value)
}

func (c Cursor) String() string {
	encoded, err := Encode(c)
	if err != nil {
		return fmt.Sprintf("<invalid cursor: %s>", err)
	}
	return encoded
}

func encodePart(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", apperr.Internal("could not serialize cursor component: %s", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

func decodePart(part string, dst any) error {
	data, err := base64.URLEncoding.DecodeString(part)
	if err != nil {
		data, err = base64.RawURLEncoding.DecodeString(part)
		if err != nil {
			return apperr.BadRequest("invalid cursor: malformed base64")
		}
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return apperr.BadRequest("invalid cursor: malformed json")
	}
	return nil
}

// valuePayload maps a value to its JSON form: numbers and booleans natively,
// decimals and temporal values as strings.
func valuePayload(v model.FieldValue) (any, error) {
	if v.Kind() == model.KindJSON {
		return nil, apperr.BadRequest("can't serialize cursor that has a json value")
	}
	if v.IsNull() {
		return nil, nil
	}
	switch v.Kind() {
	case model.KindBool, model.KindInt, model.KindInt32, model.KindFloat:
		return v.Raw(), nil
	default:
		return v.String(), nil
	}
}

func decodeValue(part string, t model.FieldType) (model.FieldValue, error) {
	if !t.Sortable() {
		return model.FieldValue{}, apperr.BadRequest("invalid cursor value: json value can't be used as cursor value")
	}
	var raw json.RawMessage
	if err := decodePart(part, &raw); err != nil {
		return model.FieldValue{}, err
	}
	if string(raw) == "null" {
		return t.Null(), nil
	}

	invalid := func() (model.FieldValue, error) {
		return model.FieldValue{}, apperr.BadRequest("invalid cursor value: expected %s", t)
	}
	switch t.Kind {
	case model.KindBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return invalid()
		}
		return model.BoolValue(b), nil
	case model.KindInt:
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return invalid()
		}
		return model.IntValue(n), nil
	case model.KindInt32:
		var n int32
		if err := json.Unmarshal(raw, &n); err != nil {
			return invalid()
		}
		return model.Int32Value(n), nil
	case model.KindFloat:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return invalid()
		}
		return model.FloatValue(f), nil
	case model.KindDecimal:
		var d decimal.Decimal
		if err := json.Unmarshal(raw, &d); err != nil {
			return invalid()
		}
		return model.DecimalValue(d), nil
	case model.KindDateTime:
		var ts time.Time
		if err := json.Unmarshal(raw, &ts); err != nil {
			return invalid()
		}
		return model.DateTimeValue(ts), nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return invalid()
	}
	value, err := model.ParseValue(t, text)
	if err != nil {
		return model.FieldValue{}, apperr.BadRequest("invalid cursor value: %s", err)
	}
	return value, nil
}
