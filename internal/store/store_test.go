package store

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/pneumoscan/internal/model"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ana@example.com", NormalizeEmail("  Ana@Example.COM "))
}

func TestIsUniqueViolation(t *testing.T) {
	dup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	assert.True(t, isUniqueViolation(dup))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

func TestNotFoundMapsNoRows(t *testing.T) {
	assert.ErrorIs(t, notFound(pgx.ErrNoRows), model.ErrNotFound)
	other := errors.New("conn reset")
	assert.Equal(t, other, notFound(other))
}

func TestNullableDate(t *testing.T) {
	assert.Nil(t, nullableDate(time.Time{}))

	d := nullableDate(time.Date(1960, 3, 14, 22, 30, 0, 0, time.FixedZone("X", -5*3600)))
	require.NotNil(t, d)
	assert.Equal(t, time.Date(1960, 3, 14, 0, 0, 0, 0, time.UTC), *d)
}

func TestPersonUpdateEmpty(t *testing.T) {
	assert.True(t, PersonUpdate{}.Empty())
	name := "Ana"
	assert.False(t, PersonUpdate{FullName: &name}.Empty())
}

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrationFiles, "migrations/*.sql")
	require.NoError(t, err)
	assert.Contains(t, files, "migrations/000001_init.up.sql")
	assert.Contains(t, files, "migrations/000001_init.down.sql")
	assert.Zero(t, len(files)%2, "every migration needs an up and a down file")
}
