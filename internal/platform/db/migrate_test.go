package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost:5432/nysa?sslmode=disable", MigrationURL("postgres://u:p@localhost:5432/nysa?sslmode=disable"))
	assert.Equal(t, "pgx5://localhost/nysa", MigrationURL("postgresql://localhost/nysa"))
	assert.Equal(t, "pgx5://already", MigrationURL("pgx5://already"))
}

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file in migrations: %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestMigrateDownRejectsNonPositiveSteps(t *testing.T) {
	err := MigrateDown("postgres://localhost/nysa", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps must be positive")
}
