package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/credcore/pkg/errors"
)

func TestValidIdentifier(t *testing.T) {
	for _, ok := range []string{"identity-app", "a", "trade_app.v2", "550e8400-e29b-41d4-a716-446655440000"} {
		assert.True(t, ValidIdentifier(ok), ok)
	}
	for _, bad := range []string{"", "-lead", "with space", "a/b", string(make([]byte, 129))} {
		assert.False(t, ValidIdentifier(bad), bad)
	}
}

func TestValidateStruct(t *testing.T) {
	type request struct {
		AppID   string `validate:"required,identifier"`
		TTL     int    `validate:"gte=0"`
		Comment string
	}

	require.NoError(t, ValidateStruct(request{AppID: "app-1"}))

	err := ValidateStruct(request{AppID: "bad id", TTL: -1})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeMalformedInput))

	ce, ok := errors.AsCredError(err)
	require.True(t, ok)
	assert.Contains(t, ce.Metadata(), "app_id")
	assert.Equal(t, "must be at least 0", ce.Metadata()["ttl"])
}
