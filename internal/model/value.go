package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"relquery/internal/apperr"
)

// DateLayout is the text form of date values.
const DateLayout = "2006-01-02"

// FieldValue is a typed, possibly absent, scalar value. An absent value
// still carries its kind.
type FieldValue struct {
	kind  Kind
	valid bool
	v     any
}

// Constructors for present values of each kind.
func UuidValue(v uuid.UUID) FieldValue { return FieldValue{kind: KindUuid, valid: true, v: v} }
func BoolValue(v bool) FieldValue      { return FieldValue{kind: KindBool, valid: true, v: v} }
func IntValue(v int64) FieldValue      { return FieldValue{kind: KindInt, valid: true, v: v} }
func Int32Value(v int32) FieldValue    { return FieldValue{kind: KindInt32, valid: true, v: v} }
func FloatValue(v float64) FieldValue  { return FieldValue{kind: KindFloat, valid: true, v: v} }
func StringValue(v string) FieldValue  { return FieldValue{kind: KindString, valid: true, v: v} }
func EnumValue(v string) FieldValue    { return FieldValue{kind: KindEnum, valid: true, v: v} }

// DecimalValue wraps an exact decimal.
func DecimalValue(v decimal.Decimal) FieldValue {
	return FieldValue{kind: KindDecimal, valid: true, v: v}
}

// DateValue keeps only the calendar date of v.
func DateValue(v time.Time) FieldValue {
	y, m, d := v.Date()
	return FieldValue{kind: KindDate, valid: true, v: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// DateTimeValue normalizes v to UTC.
func DateTimeValue(v time.Time) FieldValue {
	return FieldValue{kind: KindDateTime, valid: true, v: v.UTC()}
}

// JSONValue copies v.
func JSONValue(v json.RawMessage) FieldValue {
	return FieldValue{kind: KindJSON, valid: true, v: append(json.RawMessage(nil), v...)}
}

// Null returns the absent value of kind.
func Null(kind Kind) FieldValue {
	return FieldValue{kind: kind}
}

// ValueOf converts a Go value into a FieldValue. FieldValues pass through.
func ValueOf(v any) (FieldValue, error) {
	switch val := v.(type) {
	case FieldValue:
		return val, nil
	case uuid.UUID:
		return UuidValue(val), nil
	case bool:
		return BoolValue(val), nil
	case int:
		return IntValue(int64(val)), nil
	case int64:
		return IntValue(val), nil
	case int32:
		return Int32Value(val), nil
	case float64:
		return FloatValue(val), nil
	case float32:
		return FloatValue(float64(val)), nil
	case decimal.Decimal:
		return DecimalValue(val), nil
	case string:
		return StringValue(val), nil
	case time.Time:
		return DateTimeValue(val), nil
	case json.RawMessage:
		return JSONValue(val), nil
	default:
		return FieldValue{}, fmt.Errorf("unsupported value type %T", v)
	}
}

func (v FieldValue) Kind() Kind   { return v.kind }
func (v FieldValue) Valid() bool  { return v.valid }
func (v FieldValue) IsNull() bool { return !v.valid }

// UUID returns the uuid payload; ok is false for other kinds or absent values.
func (v FieldValue) UUID() (uuid.UUID, bool) {
	id, ok := v.v.(uuid.UUID)
	return id, ok && v.valid
}

// Raw returns the underlying Go value, or nil when absent.
func (v FieldValue) Raw() any {
	if !v.valid {
		return nil
	}
	return v.v
}

// Equal reports whether both values have the same kind, presence and payload.
func (v FieldValue) Equal(other FieldValue) bool {
	if v.kind != other.kind || v.valid != other.valid {
		return false
	}
	if !v.valid {
		return true
	}
	if v.kind == KindJSON {
		return bytes.Equal(v.v.(json.RawMessage), other.v.(json.RawMessage))
	}
	c, err := v.Compare(other)
	return err == nil && c == 0
}

// Compare orders two values of the same kind. Absent sorts before present.
func (v FieldValue) Compare(other FieldValue) (int, error) {
	if v.kind != other.kind {
		return 0, fmt.Errorf("cannot compare %s with %s", v.kind, other.kind)
	}
	if v.kind == KindJSON {
		return 0, fmt.Errorf("json values have no order")
	}
	switch {
	case !v.valid && !other.valid:
		return 0, nil
	case !v.valid:
		return -1, nil
	case !other.valid:
		return 1, nil
	}
	switch a := v.v.(type) {
	case uuid.UUID:
		b := other.v.(uuid.UUID)
		return bytes.Compare(a[:], b[:]), nil
	case bool:
		b := other.v.(bool)
		switch {
		case a == b:
			return 0, nil
		case !a:
			return -1, nil
		default:
			return 1, nil
		}
	case int64:
		return cmpOrdered(a, other.v.(int64)), nil
	case int32:
		return cmpOrdered(a, other.v.(int32)), nil
	case float64:
		return cmpOrdered(a, other.v.(float64)), nil
	case decimal.Decimal:
		return a.Cmp(other.v.(decimal.Decimal)), nil
	case string:
		return strings.Compare(a, other.v.(string)), nil
	case time.Time:
		return a.Compare(other.v.(time.Time)), nil
	}
	return 0, fmt.Errorf("cannot compare %s values", v.kind)
}

func cmpOrdered[T int64 | int32 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// String renders the value in the text form accepted by ParseValue.
// Absent values render as "null".
func (v FieldValue) String() string {
	if !v.valid {
		return "null"
	}
	switch val := v.v.(type) {
	case uuid.UUID:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case decimal.Decimal:
		return val.String()
	case string:
		return val
	case time.Time:
		if v.kind == KindDate {
			return val.Format(DateLayout)
		}
		return val.Format(time.RFC3339Nano)
	case json.RawMessage:
		return string(val)
	}
	return fmt.Sprintf("%v", v.v)
}

// SQLArg returns the value bound for a statement placeholder.
func (v FieldValue) SQLArg() any {
	if !v.valid {
		return nil
	}
	switch val := v.v.(type) {
	case uuid.UUID:
		return val.String()
	case json.RawMessage:
		return string(val)
	case time.Time:
		if v.kind == KindDate {
			return val.Format(DateLayout)
		}
		return val
	default:
		return val
	}
}

// Native returns a JSON-friendly representation for API responses.
func (v FieldValue) Native() any {
	if !v.valid {
		return nil
	}
	switch val := v.v.(type) {
	case uuid.UUID, decimal.Decimal, time.Time:
		return v.String()
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(val, &decoded); err != nil {
			return string(val)
		}
		return decoded
	default:
		return val
	}
}

// ParseValue parses text into a value of type t.
func ParseValue(t FieldType, text string) (FieldValue, error) {
	invalid := func() (FieldValue, error) {
		return FieldValue{}, apperr.BadRequest("invalid %s value %q", t.Kind, text)
	}
	switch t.Kind {
	case KindUuid:
		id, err := uuid.Parse(strings.TrimSpace(text))
		if err != nil {
			return invalid()
		}
		return UuidValue(id), nil
	case KindBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return invalid()
		}
		return BoolValue(b), nil
	case KindInt:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return invalid()
		}
		return IntValue(n), nil
	case KindInt32:
		n, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return invalid()
		}
		return Int32Value(int32(n)), nil
	case KindFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return invalid()
		}
		return FloatValue(f), nil
	case KindDecimal:
		d, err := decimal.NewFromString(text)
		if err != nil {
			return invalid()
		}
		return DecimalValue(d), nil
	case KindString:
		return StringValue(text), nil
	case KindDate:
		d, err := time.Parse(DateLayout, text)
		if err != nil {
			return invalid()
		}
		return DateValue(d), nil
	case KindDateTime:
		ts, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return invalid()
		}
		return DateTimeValue(ts), nil
	case KindJSON:
		if !json.Valid([]byte(text)) {
			return invalid()
		}
		return JSONValue(json.RawMessage(text)), nil
	case KindEnum:
		if !t.HasVariant(text) {
			return FieldValue{}, apperr.BadRequest("invalid enum value %q: expected one of %s", text, strings.Join(t.Variants, ", "))
		}
		return EnumValue(text), nil
	}
	return invalid()
}

// FromDB converts a scanned column value into a value of type t.
func FromDB(t FieldType, src any) (FieldValue, error) {
	if src == nil {
		return t.Null(), nil
	}
	switch t.Kind {
	case KindUuid:
		switch val := src.(type) {
		case uuid.UUID:
			return UuidValue(val), nil
		case [16]byte:
			return UuidValue(uuid.UUID(val)), nil
		case []byte:
			if len(val) == 16 {
				id, err := uuid.FromBytes(val)
				if err != nil {
					return FieldValue{}, err
				}
				return UuidValue(id), nil
			}
		}
	case KindBool:
		if b, ok := src.(bool); ok {
			return BoolValue(b), nil
		}
	case KindInt:
		switch val := src.(type) {
		case int64:
			return IntValue(val), nil
		case int32:
			return IntValue(int64(val)), nil
		case int:
			return IntValue(int64(val)), nil
		}
	case KindInt32:
		switch val := src.(type) {
		case int32:
			return Int32Value(val), nil
		case int64:
			return int32FromDB(val)
		case int:
			return int32FromDB(int64(val))
		}
	case KindFloat:
		switch val := src.(type) {
		case float64:
			return FloatValue(val), nil
		case float32:
			return FloatValue(float64(val)), nil
		case int64:
			return FloatValue(float64(val)), nil
		}
	case KindDecimal:
		switch val := src.(type) {
		case decimal.Decimal:
			return DecimalValue(val), nil
		case float64:
			return DecimalValue(decimal.NewFromFloat(val)), nil
		case int64:
			return DecimalValue(decimal.NewFromInt(val)), nil
		}
	case KindDate:
		if ts, ok := src.(time.Time); ok {
			return DateValue(ts), nil
		}
	case KindDateTime:
		if ts, ok := src.(time.Time); ok {
			return DateTimeValue(ts), nil
		}
	case KindJSON:
		switch val := src.(type) {
		case []byte:
			return JSONValue(val), nil
		case string:
			return JSONValue(json.RawMessage(val)), nil
		default:
			encoded, err := json.Marshal(val)
			if err != nil {
				return FieldValue{}, fmt.Errorf("encode json column: %w", err)
			}
			return JSONValue(encoded), nil
		}
	}
	switch val := src.(type) {
	case string:
		return ParseValue(t, val)
	case []byte:
		return ParseValue(t, string(val))
	}
	return FieldValue{}, fmt.Errorf("cannot convert %T to %s", src, t.Kind)
}

func int32FromDB(n int64) (FieldValue, error) {
	if n < math.MinInt32 || n > math.MaxInt32 {
		return FieldValue{}, fmt.Errorf("value %d overflows %s", n, KindInt32)
	}
	return Int32Value(int32(n)), nil
}
