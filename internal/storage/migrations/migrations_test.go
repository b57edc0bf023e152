package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	sql := `
-- leading comment
CREATE TABLE a (x UInt8) ENGINE = Memory;

  -- indented comment
CREATE TABLE b (
    y String DEFAULT 'z'
) ENGINE = Memory;
`
	stmts := splitStatements(sql)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x UInt8) ENGINE = Memory", stmts[0])
	assert.Contains(t, stmts[1], "DEFAULT 'z'")
	assert.NotContains(t, stmts[1], "--")
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings(`SELECT 'a' ; SELECT 'b'`))
	assert.NoError(t, validateNoSemicolonInStrings(`SELECT 'it''s'; SELECT 1`))
	assert.Error(t, validateNoSemicolonInStrings(`SELECT 'a;b'`))
	assert.Error(t, validateNoSemicolonInStrings(`SELECT 'it''s;'`))
}

func TestEmbeddedClickhouseMigrationsSplit(t *testing.T) {
	files, err := sqlFiles(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	var total int
	for _, f := range files {
		stmts, err := clickhouseStatements(ClickhouseFS, f)
		require.NoError(t, err, f)
		for _, s := range stmts {
			assert.NotContains(t, s, ";", "%s: statement not split", f)
		}
		total += len(stmts)
	}
	assert.Equal(t, 3, total)
}

func TestEmbeddedPostgresMigrationsOrdered(t *testing.T) {
	files, err := sqlFiles(PostgresFS, "postgres")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_metadata.sql", files[0])
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/markets")
	require.NoError(t, err)
	assert.Equal(t, "markets", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}
