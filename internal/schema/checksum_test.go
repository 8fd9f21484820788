package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksumStabilityUnderReformatting(t *testing.T) {
	original := `CREATE TABLE users (
		id serial primary key,
		email text not null unique
	);`

	reformatted := `-- this table stores users
	CREATE   TABLE
	users (
		id serial   PRIMARY KEY,   -- identity column
		email text   NOT NULL   UNIQUE
	);`

	assert.Equal(t, Checksum(original), Checksum(reformatted))
}

func TestChecksumChangesOnLogicChange(t *testing.T) {
	a := `CREATE TABLE users (id serial primary key);`
	b := `CREATE TABLE users (id serial primary key, email text);`
	assert.NotEqual(t, Checksum(a), Checksum(b))
}

func TestChecksumPreservesIdentifierCase(t *testing.T) {
	a := `CREATE TABLE "Users" (id serial primary key);`
	b := `CREATE TABLE "users" (id serial primary key);`
	assert.NotEqual(t, Checksum(a), Checksum(b))
}

func TestChecksumPreservesDollarQuotedBody(t *testing.T) {
	fn := `CREATE FUNCTION f() RETURNS integer AS $$
	-- this dash-dash comment must survive, it is inside the body
	BEGIN RETURN 1; END;
	$$ LANGUAGE plpgsql;`
	normalized := NormalizeForChecksum(fn)
	assert.Contains(t, normalized, "this dash-dash comment must survive")
}
