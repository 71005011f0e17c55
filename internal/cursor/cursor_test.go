package cursor

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"relquery/internal/apperr"
	"relquery/internal/model"
)

func TestEncodeDecode_Roundtrip(t *testing.T) {
	id := uuid.MustParse("6f1c2b3a-4d5e-4f60-8a7b-9c0d1e2f3a4b")
	tests := []struct {
		name  string
		typ   model.FieldType
		value model.FieldValue
	}{
		{"uuid", model.TypeOf(model.KindUuid), model.UuidValue(uuid.MustParse("11111111-2222-4333-8444-555555555555"))},
		{"bool", model.TypeOf(model.KindBool), model.BoolValue(true)},
		{"int", model.TypeOf(model.KindInt), model.IntValue(-9007199254740993)},
		{"int32", model.TypeOf(model.KindInt32), model.Int32Value(28)},
		{"float", model.TypeOf(model.KindFloat), model.FloatValue(0.1)},
		{"decimal", model.TypeOf(model.KindDecimal), model.DecimalValue(decimal.RequireFromString("1234.5678"))},
		{"string", model.TypeOf(model.KindString), model.StringValue("Jo\"hn_with_underscores")},
		{"date", model.TypeOf(model.KindDate), model.DateValue(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))},
		{"datetime", model.TypeOf(model.KindDateTime), model.DateTimeValue(time.Date(2024, 2, 18, 8, 56, 50, 12345, time.UTC))},
		{"enum", model.EnumType("on", "off"), model.EnumValue("off")},
		{"absent", model.TypeOf(model.KindString), model.Null(model.KindString)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := WithValue(id, tt.value)
			encoded, err := Encode(original)
			if err != nil {
				t.Fatalf("Encode error: %v", err)
			}
			decoded, err := Decode(encoded, &tt.typ)
			if err != nil {
				t.Fatalf("Decode(%q) error: %v", encoded, err)
			}
			if !Equal(original, decoded) {
				t.Errorf("roundtrip mismatch: got %v, want %v", decoded.Value, original.Value)
			}
		})
	}
}

func TestEncodeDecode_IDOnly(t *testing.T) {
	id := uuid.New()
	encoded, err := Encode(New(id))
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if strings.Contains(encoded, "_") {
		t.Fatalf("id-only cursor %q should have no separator", encoded)
	}
	decoded, err := Decode(encoded, nil)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if decoded.ID != id || decoded.Value != nil {
		t.Errorf("got %+v, want id %s without value", decoded, id)
	}
}

func TestEncode_WireFormat(t *testing.T) {
	id := uuid.MustParse("6f1c2b3a-4d5e-4f60-8a7b-9c0d1e2f3a4b")
	encoded, err := Encode(WithValue(id, model.IntValue(28)))
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	want := base64.URLEncoding.EncodeToString([]byte(`"6f1c2b3a-4d5e-4f60-8a7b-9c0d1e2f3a4b"`)) +
		"_" + base64.URLEncoding.EncodeToString([]byte(`28`))
	if encoded != want {
		t.Errorf("Encode = %q, want %q", encoded, want)
	}
}

func TestEncode_RejectsJSON(t *testing.T) {
	_, err := Encode(WithValue(uuid.New(), model.JSONValue(json.RawMessage(`{"a":1}`))))
	if err == nil {
		t.Fatal("expected error encoding json cursor value")
	}
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Errorf("expected bad request, got %v", err)
	}
}

func TestDecode_Errors(t *testing.T) {
	intType := model.TypeOf(model.KindInt)
	jsonType := model.TypeOf(model.KindJSON)
	enumType := model.EnumType("on", "off")
	idPart := base64.URLEncoding.EncodeToString([]byte(`"6f1c2b3a-4d5e-4f60-8a7b-9c0d1e2f3a4b"`))
	part := func(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name      string
		raw       string
		valueType *model.FieldType
	}{
		{"bad base64", "!!!", nil},
		{"not json", part("{"), nil},
		{"not a uuid", part(`"abc"`), nil},
		{"missing value component", idPart, &intType},
		{"value type mismatch", idPart + "_" + part(`"abc"`), &intType},
		{"json sort", idPart + "_" + part(`{}`), &jsonType},
		{"unknown enum variant", idPart + "_" + part(`"maybe"`), &enumType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw, tt.valueType)
			if err == nil {
				t.Fatal("expected error")
			}
			if !apperr.Is(err, apperr.KindBadRequest) {
				t.Errorf("expected bad request, got %v", err)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	low := uuid.MustParse("00000000-0000-4000-8000-000000000001")
	high := uuid.MustParse("00000000-0000-4000-8000-000000000002")

	tests := []struct {
		name string
		a, b Cursor
		want int
	}{
		{"id only", New(low), New(high), -1},
		{"secondary wins", WithValue(high, model.IntValue(1)), WithValue(low, model.IntValue(2)), -1},
		{"tie broken by id", WithValue(high, model.IntValue(2)), WithValue(low, model.IntValue(2)), 1},
		{"absent before present", WithValue(high, model.Null(model.KindInt)), WithValue(low, model.IntValue(0)), -1},
		{"equal", WithValue(low, model.StringValue("a")), WithValue(low, model.StringValue("a")), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compare(tt.a, tt.b)
			if err != nil {
				t.Fatalf("Compare error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Compare = %d, want %d", got, tt.want)
			}
		})
	}

	if _, err := Compare(New(low), WithValue(low, model.IntValue(1))); err == nil {
		t.Error("expected error comparing id-only cursor with valued cursor")
	}
}
