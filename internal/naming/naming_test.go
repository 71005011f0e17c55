package naming

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeName(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"users", "User"},
		{"order_items", "OrderItem"},
		{"categories", "Category"},
		{"people", "Person"},
		{"api_v2_endpoints", "ApiV2Endpoint"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.TypeName(tt.input))
		})
	}
}

func TestFieldName(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"user_name", "userName"},
		{"created_at", "createdAt"},
		{"id", "id"},
		{"Author", "author"},
		{"api_v2_key", "apiV2Key"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.FieldName(tt.input))
		})
	}
}

func TestRootFieldNames(t *testing.T) {
	namer := Default()

	assert.Equal(t, "users", namer.ListFieldName("users"))
	assert.Equal(t, "users", namer.ListFieldName("user"))
	assert.Equal(t, "orderItems", namer.ListFieldName("order_items"))
	assert.Equal(t, "user", namer.SingleFieldName("users"))
	assert.Equal(t, "orderItem", namer.SingleFieldName("order_items"))
}

func TestPluralize(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"user", "users"},
		{"category", "categories"},
		{"person", "people"},
		{"child", "children"},
		{"status", "statuses"},
		{"analysis", "analyses"},
		{"orderItem", "orderItems"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := namer.Pluralize(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSingularize(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"users", "user"},
		{"categories", "category"},
		{"people", "person"},
		{"children", "child"},
		{"statuses", "status"},
		{"analyses", "analysis"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := namer.Singularize(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestPluralizeWithOverrides(t *testing.T) {
	cfg := Config{
		PluralOverrides: map[string]string{
			"staff": "staff", // Same singular/plural
		},
		SingularOverrides: make(map[string]string),
	}
	namer := New(cfg, nil)

	assert.Equal(t, "staff", namer.Pluralize("staff"))
	assert.Equal(t, "users", namer.Pluralize("user")) // Falls back to library
}

func TestSingularizeWithOverrides(t *testing.T) {
	cfg := Config{
		PluralOverrides: make(map[string]string),
		SingularOverrides: map[string]string{
			"data": "datum",
		},
	}
	namer := New(cfg, nil)

	assert.Equal(t, "datum", namer.Singularize("data"))
	assert.Equal(t, "user", namer.Singularize("users")) // Falls back to library
}

func TestReservedWordSuffixing(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	namer := New(DefaultConfig(), logger)

	tests := []struct {
		input    string
		expected string
	}{
		{"query", "Query_"},
		{"types", "Type_"},
		{"page_info", "PageInfo_"},
		{"user_connections", "UserConnection_"},
		{"users", "User"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.TypeName(tt.input))
		})
	}
	assert.Contains(t, buf.String(), "reserved word")
}

func TestCollision_TableToTable(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	namer := New(DefaultConfig(), logger)

	assert.Equal(t, "User", namer.RegisterType("users"))
	assert.Equal(t, "User2", namer.RegisterType("user"))
	assert.Contains(t, buf.String(), "naming collision detected")
}

func TestCollision_ColumnToColumn(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	namer := New(DefaultConfig(), logger)

	assert.Equal(t, "userId", namer.RegisterColumnField("User", "user_id"))
	assert.Equal(t, "userId2", namer.RegisterColumnField("User", "userId"))
	assert.Contains(t, buf.String(), "naming collision detected")
}

func TestCollision_RelationToColumn(t *testing.T) {
	namer := Default()

	namer.RegisterColumnField("Order", "author")
	namer.RegisterColumnField("Order", "items")

	assert.Equal(t, "authorRef", namer.RegisterRelationField("Order", "author", true))
	assert.Equal(t, "itemsRel", namer.RegisterRelationField("Order", "items", false))
	assert.Equal(t, "customer", namer.RegisterRelationField("Order", "customer", true))
}

func TestCollision_RootFields(t *testing.T) {
	namer := Default()

	assert.Equal(t, "users", namer.RegisterListField("users"))
	assert.Equal(t, "user", namer.RegisterSingleField("users"))
	assert.Equal(t, "users2", namer.RegisterListField("user"))
}

func TestReset(t *testing.T) {
	namer := Default()
	namer.RegisterType("users")
	namer.Reset()
	assert.Equal(t, "User", namer.RegisterType("users"))
}
