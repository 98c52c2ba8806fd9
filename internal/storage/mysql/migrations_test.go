package mysql

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io/fs"
	"log/slog"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BlockPay/deploy/migrations"
)

var migrationClock = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func newTestMigrator(db *sql.DB, source fs.FS, out *bytes.Buffer) *schemaMigrator {
	return &schemaMigrator{
		db:     db,
		source: source,
		log:    slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug})),
		now:    func() time.Time { return migrationClock },
	}
}

func TestSchemaMigratorAppliesEmbeddedFiles(t *testing.T) {
	content, err := migrations.Files.ReadFile("0001_create_exchanges.sql")
	require.NoError(t, err)
	statements := sqlStatements(string(content))
	require.Len(t, statements, 1)

	db, drv := newMockDB(t, []mockOperation{
		execOp(createSchemaTableSQL, mockResult{}),
		queryOp(`SELECT version FROM schema_migrations`, mockRowsData{columns: []string{"version"}}),
		beginOp(),
		execOp(statements[0], mockResult{}),
		execOp(recordSchemaVersionSQL, mockResult{rowsAffected: 1}, "0001", "0001_create_exchanges.sql", migrationClock.Unix()),
		commitOp(),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	var logs bytes.Buffer
	applied, err := newTestMigrator(db, migrations.Files, &logs).Apply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0001"}, applied)
	assert.Contains(t, logs.String(), "迁移已应用")
	assert.Contains(t, logs.String(), `"file":"0001_create_exchanges.sql"`)
}

func TestSchemaMigratorSkipsAppliedVersions(t *testing.T) {
	db, drv := newMockDB(t, []mockOperation{
		execOp(createSchemaTableSQL, mockResult{}),
		queryOp(`SELECT version FROM schema_migrations`, mockRowsData{
			columns: []string{"version"},
			values:  [][]driver.Value{{"0001"}},
		}),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	var logs bytes.Buffer
	applied, err := newTestMigrator(db, migrations.Files, &logs).Apply(context.Background())
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.NotContains(t, logs.String(), "迁移已应用")
	assert.Contains(t, logs.String(), "交互记录库结构已是最新")
}

func TestSchemaMigratorRollsBackFailedFile(t *testing.T) {
	receipts := "-- receipts keyed by tx hash\nCREATE TABLE receipts (hash VARCHAR(66));\nCREATE INDEX idx_receipts ON receipts (hash);\n"
	source := fstest.MapFS{
		"0001_wallets.sql":  {Data: []byte("CREATE TABLE wallets (address VARCHAR(64));")},
		"0002_receipts.sql": {Data: []byte(receipts)},
	}
	db, drv := newMockDB(t, []mockOperation{
		execOp(createSchemaTableSQL, mockResult{}),
		queryOp(`SELECT version FROM schema_migrations`, mockRowsData{columns: []string{"version"}}),
		beginOp(),
		execOp("CREATE TABLE wallets (address VARCHAR(64))", mockResult{}),
		execOp(recordSchemaVersionSQL, mockResult{rowsAffected: 1}, "0001", "0001_wallets.sql", migrationClock.Unix()),
		commitOp(),
		beginOp(),
		execOp("CREATE TABLE receipts (hash VARCHAR(66))", mockResult{}),
		failingExecOp("CREATE INDEX idx_receipts ON receipts (hash)", errors.New("duplicate key name")),
		{typ: opRollback},
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	var logs bytes.Buffer
	applied, err := newTestMigrator(db, source, &logs).Apply(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0002_receipts.sql")
	assert.Contains(t, err.Error(), "第 2 条")
	assert.Equal(t, []string{"0001"}, applied)
	assert.Contains(t, logs.String(), "迁移失败")
}

func TestSchemaMigratorRejectsDuplicateVersions(t *testing.T) {
	source := fstest.MapFS{
		"0003_a.sql": {Data: []byte("SELECT 1;")},
		"0003_b.sql": {Data: []byte("SELECT 2;")},
	}
	db, drv := newMockDB(t, nil)
	defer drv.assertConsumed(t)
	defer db.Close()

	var logs bytes.Buffer
	_, err := newTestMigrator(db, source, &logs).Apply(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "迁移版本 0003 重复")
}

func TestSQLStatementsDropsComments(t *testing.T) {
	got := sqlStatements("-- header\n  -- indented\nCREATE TABLE a (id INT);\n\n;CREATE TABLE b (id INT)")
	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "CREATE TABLE b (id INT)"}, got)
	assert.Empty(t, sqlStatements("-- only a comment\n"))
}

func TestMigrationVersion(t *testing.T) {
	cases := map[string]string{
		"0001_create_exchanges.sql": "0001",
		"0002.sql":                  "0002",
		"_leading.sql":              "_leading",
	}
	for name, want := range cases {
		assert.Equal(t, want, migrationVersion(name), name)
	}
}
