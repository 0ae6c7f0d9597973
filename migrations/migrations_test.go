package migrations

import (
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/require"
)

func TestDatabaseURL(t *testing.T) {
	t.Parallel()

	got, err := DatabaseURL("postgres://u:p@localhost:5432/careers?sslmode=disable")
	require.NoError(t, err)
	require.Equal(t, "pgx5://u:p@localhost:5432/careers?sslmode=disable", got)

	got, err = DatabaseURL("postgresql://localhost/careers")
	require.NoError(t, err)
	require.Equal(t, "pgx5://localhost/careers", got)

	_, err = DatabaseURL("host=localhost password=hunter2")
	require.Error(t, err)
	require.NotContains(t, err.Error(), "hunter2")
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	t.Parallel()

	names, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range names {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.Equal(t, ups, downs)
}

func TestEmbeddedMigrationsParse(t *testing.T) {
	t.Parallel()

	src, err := iofs.New(FS, ".")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	require.Equal(t, uint(1), first)

	next, err := src.Next(first)
	require.NoError(t, err)
	require.Equal(t, uint(2), next)

	body, _, err := src.ReadUp(next)
	require.NoError(t, err)
	defer body.Close()
	buf := new(strings.Builder)
	_, err = io.Copy(buf, body)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "CREATE TABLE IF NOT EXISTS ingest_tasks")
}
