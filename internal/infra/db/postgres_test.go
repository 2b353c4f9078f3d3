package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationURL(t *testing.T) {
	url, err := MigrationURL("postgres://u:p@localhost:5432/photos?sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, "pgx5://u:p@localhost:5432/photos?sslmode=disable", url)

	url, err = MigrationURL("postgresql://u@db/photos")
	require.NoError(t, err)
	assert.Equal(t, "pgx5://u@db/photos", url)

	_, err = MigrationURL("host=localhost dbname=photos")
	assert.Error(t, err)
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "0001_state.up.sql")
	assert.Contains(t, names, "0001_state.down.sql")
}
