package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relquery/internal/config"
)

func TestReportValidation(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	result := &config.ValidationResult{
		Warnings: []config.ValidationWarning{{Field: "server.rate_limit_enabled", Message: "values set but disabled"}},
	}
	require.NoError(t, reportValidation(logger, result))
	assert.Contains(t, buf.String(), "configuration warning")
	assert.Contains(t, buf.String(), "server.rate_limit_enabled")

	buf.Reset()
	result.Errors = []config.ValidationError{{Field: "query.models_file", Message: "models file is required"}}
	err := reportValidation(logger, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query.models_file")
	assert.Equal(t, 1, strings.Count(buf.String(), "configuration error"))
}

func TestVersionString(t *testing.T) {
	assert.Equal(t, "relquery dev (none)", versionString())
}
