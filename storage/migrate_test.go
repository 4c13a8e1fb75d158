package storage

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/gift", migrateURL("postgres://u:p@db:5432/gift"))
	assert.Equal(t, "pgx5://db/gift?sslmode=disable", migrateURL("postgresql://db/gift?sslmode=disable"))
	assert.Equal(t, "pgx5://db/gift", migrateURL("pgx5://db/gift"))
}

func TestEmbeddedMigrations(t *testing.T) {
	up, err := fs.Glob(migrationFS, "migrations/*.up.sql")
	require.NoError(t, err)
	down, err := fs.Glob(migrationFS, "migrations/*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, up)
	assert.Len(t, down, len(up))

	body, err := fs.ReadFile(migrationFS, up[0])
	require.NoError(t, err)
	for _, table := range []string{
		"apl.context", "apl.recommendation", "apl.recommendation_item",
		"apl.item", "apl.item_image", "apl.item_features", "apl.user_profile",
	} {
		assert.Contains(t, string(body), table)
	}
	assert.Contains(t, string(body), "context_hash       text NOT NULL UNIQUE")
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, []string{}, nonNil(nil))
	assert.Nil(t, nullableJSON(nil))
	assert.Nil(t, nullableJSON([]byte("null")))
	assert.Equal(t, []byte(`{"a":1}`), nullableJSON([]byte(`{"a":1}`)))

	params, err := decodeParams(nil)
	require.NoError(t, err)
	assert.Empty(t, params)

	params, err = decodeParams([]byte(`{"mode":"balanced","algorithmOverride":null}`))
	require.NoError(t, err)
	assert.Equal(t, "balanced", params["mode"])
	assert.Contains(t, params, "algorithmOverride")
}
