package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadBundleEmpty(t *testing.T) {
	root := t.TempDir()
	desired, err := LoadBundle(root)
	require.NoError(t, err)
	assert.Empty(t, desired.Tables)
	assert.Empty(t, desired.Extensions)
}

func TestLoadBundleFullTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "extensions"), "uuid-ossp.sql", "-- uuid extension\n")
	writeFile(t, filepath.Join(root, "types"), "order_status.pssql", "CREATE TYPE order_status AS ENUM ('pending', 'shipped');")
	writeFile(t, filepath.Join(root, "tables"), "users.pssql", "CREATE TABLE users (id serial primary key, email text not null);")
	writeFile(t, filepath.Join(root, "tables"), "posts.pssql", "CREATE TABLE posts (id serial primary key, user_id int references users(id));")
	writeFile(t, filepath.Join(root, "migrations"), "001_init.pssql", "ALTER TABLE users ADD COLUMN age INT;")
	writeFile(t, filepath.Join(root, "functions"), "get_user.pssql", "CREATE FUNCTION get_user(p_id INT) RETURNS INT AS $$ BEGIN RETURN p_id; END; $$ LANGUAGE plpgsql;")
	writeFile(t, filepath.Join(root, "seeders"), "users.pssql", "INSERT INTO users (email) VALUES ('a@example.com');")

	desired, err := LoadBundle(root)
	require.NoError(t, err)

	assert.Len(t, desired.Extensions, 1)
	assert.Len(t, desired.Types, 1)
	assert.Len(t, desired.Tables, 2)
	assert.Len(t, desired.Migrations, 1)
	assert.Len(t, desired.Functions, 1)
	assert.Len(t, desired.Seeders, 1)
}

func TestLoadBundleDuplicateTableName(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "tables"), "a_users.pssql", "CREATE TABLE users (id serial primary key);")
	writeFile(t, filepath.Join(root, "tables"), "b_users.pssql", "CREATE TABLE users (id serial primary key, email text);")

	_, err := LoadBundle(root)
	require.Error(t, err)
	gwErr, ok := gatewayerr.As(err)
	require.True(t, ok)
	assert.Contains(t, gwErr.Message, "duplicate table")
}

func TestLoadBundleEmptyMigrationRejected(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "migrations"), "001_init.pssql", "   \n")

	_, err := LoadBundle(root)
	require.Error(t, err)
}
