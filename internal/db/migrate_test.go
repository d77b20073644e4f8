package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Glob(embeddedMigrations, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		raw, err := fs.ReadFile(embeddedMigrations, f)
		require.NoError(t, err)
		body := string(raw)
		assert.True(t, strings.Contains(body, "-- +goose Up"), f)
		assert.True(t, strings.Contains(body, "-- +goose Down"), f)
	}
}

func TestNewRecordPool_Disabled(t *testing.T) {
	pool, err := NewRecordPool(t.Context(), "")
	require.NoError(t, err)
	assert.Nil(t, pool)
}

func TestNewRecordPool_BadURL(t *testing.T) {
	_, err := NewRecordPool(t.Context(), "://not-a-url")
	assert.Error(t, err)
}
