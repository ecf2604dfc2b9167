package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	log, _ := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	c, err := New(context.Background(), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestCatalog_RegisterCSVAndQuery(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	path := writeCSV(t, "orders.csv", "id,amount,city\n1,40.0,Bangkok\n2,45.0,Chiang Mai\n")
	require.NoError(t, c.Register(ctx, "orders", path, "orders placed", nil))

	frame, err := c.Query(ctx, "SELECT avg(amount) AS avg_amount FROM orders")
	require.NoError(t, err)
	require.Equal(t, 1, frame.Len())
	assert.Equal(t, []string{"avg_amount"}, frame.ColumnNames())
	assert.InDelta(t, 42.5, frame.Rows[0][0], 1e-9)

	src, ok := c.Table("orders")
	require.True(t, ok)
	assert.Equal(t, SourceLocal, src.Kind)
	assert.Equal(t, FormatCSV, src.Format)
	assert.Equal(t, "orders placed", src.Description)
}

func TestCatalog_ReregisterReplacesTable(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	first := writeCSV(t, "a.csv", "id,name\n1,alpha\n2,beta\n")
	second := writeCSV(t, "b.csv", "id,name\n9,omega\n")

	require.NoError(t, c.Register(ctx, "t", first, "", nil))
	require.NoError(t, c.Register(ctx, "t", second, "", nil))

	frame, err := c.Query(ctx, "SELECT id, name FROM t ORDER BY id")
	require.NoError(t, err)
	require.Equal(t, 1, frame.Len())
	assert.Equal(t, "omega", frame.Records()[0]["name"])
	assert.Len(t, c.Tables(), 1)
}

func TestCatalog_QueryUnknownTable(t *testing.T) {
	c := newTestCatalog(t)

	frame, err := c.Query(context.Background(), "SELECT * FROM missing_table")
	require.Error(t, err)
	assert.Nil(t, frame)

	var qerr *QueryError
	require.True(t, errors.As(err, &qerr))
	assert.Equal(t, "SELECT * FROM missing_table", qerr.SQL)
}

func TestCatalog_Describe(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	_, err := c.Describe(ctx, "nope")
	require.ErrorIs(t, err, ErrTableNotFound)

	path := writeCSV(t, "people.csv", "id,score,name\n1,10.5,ann\n2,11.25,bob\n")
	require.NoError(t, c.Register(ctx, "people", path, "", nil))

	cols, err := c.Describe(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, []ColumnInfo{
		{Name: "id", Type: "BIGINT"},
		{Name: "score", Type: "DOUBLE"},
		{Name: "name", Type: "VARCHAR"},
	}, cols)
}

func TestCatalog_RegisterFrame(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	frame := NewFrame([]string{"k", "v"}, [][]any{
		{"a", int64(1)},
		{"b", int64(2)},
		{"c", nil},
	})
	require.NoError(t, c.Register(ctx, "kv", frame, "", nil))

	out, err := c.Query(ctx, "SELECT count(v) AS n FROM kv")
	require.NoError(t, err)
	assert.EqualValues(t, 2, out.Rows[0][0])

	src, _ := c.Table("kv")
	assert.Equal(t, SourceFrame, src.Kind)
}

func TestCatalog_RegisterParquet(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	path := filepath.Join(t.TempDir(), "nums.parquet")
	_, err := c.db.ExecContext(ctx, "COPY (SELECT range AS n FROM range(5)) TO "+quoteLiteral(path)+" (FORMAT PARQUET)")
	require.NoError(t, err)

	require.NoError(t, c.Register(ctx, "nums", path, "", nil))
	out, err := c.Query(ctx, "SELECT sum(n) AS total FROM nums")
	require.NoError(t, err)
	assert.EqualValues(t, 10, out.Rows[0][0])

	src, _ := c.Table("nums")
	assert.Equal(t, FormatParquet, src.Format)
}

func TestCatalog_RegisterUnsupportedSource(t *testing.T) {
	c := newTestCatalog(t)

	err := c.Register(context.Background(), "x", 42, "", nil)
	var uerr *UnsupportedSourceError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "int", uerr.Type)

	_, ok := c.Table("x")
	assert.False(t, ok)
}

func TestCatalog_Summarize(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	path := writeCSV(t, "s.csv", "id,label\n1,x\n2,y\n3,\n")
	require.NoError(t, c.Register(ctx, "s", path, "", nil))

	summary, err := c.Summarize(ctx, "s")
	require.NoError(t, err)
	require.Contains(t, summary, "id")
	require.Contains(t, summary, "label")
	assert.Equal(t, "1", summary["id"]["min"])
	assert.Equal(t, "3", summary["id"]["max"])

	_, err = c.Summarize(ctx, "unknown")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestCatalog_ConfigureRemoteAccessValidation(t *testing.T) {
	tests := []struct {
		name  string
		creds *RemoteCredentials
	}{
		{name: "key without secret", creds: &RemoteCredentials{AccessKeyID: "AKIA"}},
		{name: "secret without key", creds: &RemoteCredentials{SecretAccessKey: "s"}},
		{name: "token without key", creds: &RemoteCredentials{SessionToken: "tok"}},
		{name: "bad url style", creds: &RemoteCredentials{AccessKeyID: "a", SecretAccessKey: "b", URLStyle: "sideways"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCatalog(t)
			err := c.ConfigureRemoteAccess(context.Background(), tt.creds)

			var cerr *ConfigurationError
			require.True(t, errors.As(err, &cerr), "got %v", err)
		})
	}
}

func TestFormatAndRemotePath(t *testing.T) {
	assert.Equal(t, FormatParquet, FormatFromPath("s3://b/data/x.PARQUET"))
	assert.Equal(t, FormatCSV, FormatFromPath("/tmp/x.csv"))
	assert.Equal(t, FormatCSV, FormatFromPath("/tmp/noext"))
	assert.Equal(t, "s3://bucket/p/1/f.csv", RemotePath("bucket", "/p/1/f.csv"))
	assert.True(t, IsRemotePath("s3://bucket/k"))
	assert.False(t, IsRemotePath("/var/data.csv"))
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
	assert.Equal(t, `'it''s'`, quoteLiteral("it's"))
}

func TestCatalog_SealBlocksUnregisteredFiles(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	mine := writeCSV(t, "mine.csv", "id,amount\n1,10\n")
	other := writeCSV(t, "other_tenant.csv", "secret\ntop-secret-value\n")
	require.NoError(t, c.Register(ctx, "mine", mine, "", nil))
	require.NoError(t, c.Seal(ctx))

	frame, err := c.Query(ctx, "SELECT * FROM read_csv_auto('"+other+"')")
	assert.Nil(t, frame)
	var qerr *QueryError
	require.ErrorAs(t, err, &qerr)

	frame, err = c.Query(ctx, "SELECT amount FROM mine")
	require.NoError(t, err)
	assert.EqualValues(t, 10, frame.Rows[0][0])

	_, err = c.db.ExecContext(ctx, "SET enable_external_access = true")
	assert.Error(t, err)
}

func TestCatalog_QueryRejectsWrites(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	require.NoError(t, c.Register(ctx, "mine", writeCSV(t, "mine.csv", "id\n1\n"), "", nil))

	for _, stmt := range []string{
		"DROP TABLE mine",
		"SELECT 1; DROP TABLE mine",
		"WITH x AS (SELECT 1) DELETE FROM mine",
		"COPY mine TO 'out.csv'",
		"SET enable_external_access = true",
	} {
		_, err := c.Query(ctx, stmt)
		var qerr *QueryError
		require.ErrorAs(t, err, &qerr, stmt)
		assert.ErrorIs(t, err, ErrNotReadOnly, stmt)
	}

	frame, err := c.Query(ctx, "SELECT count(*) AS n FROM mine")
	require.NoError(t, err)
	assert.EqualValues(t, 1, frame.Rows[0][0])
}

func TestCheckReadOnly(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		ok   bool
	}{
		{name: "select", sql: "SELECT * FROM orders", ok: true},
		{name: "lower case cte", sql: "with t as (select 1 as a) select a from t;", ok: true},
		{name: "trailing semicolons", sql: "SELECT 1;;  ", ok: true},
		{name: "leading comment", sql: "-- top cities\nSELECT city FROM orders", ok: true},
		{name: "parenthesised", sql: "(SELECT 1) UNION (SELECT 2)", ok: true},
		{name: "keyword in string", sql: "SELECT * FROM t WHERE note = 'DROP; DELETE'", ok: true},
		{name: "keyword in quoted identifier", sql: `SELECT "update" FROM t`, ok: true},
		{name: "keyword in comment", sql: "SELECT 1 /* insert later */", ok: true},
		{name: "empty", sql: "  ;  ", ok: false},
		{name: "insert", sql: "INSERT INTO t VALUES (1)", ok: false},
		{name: "two statements", sql: "SELECT 1; SELECT 2", ok: false},
		{name: "attach", sql: "ATTACH 'x.db'", ok: false},
		{name: "pragma", sql: "PRAGMA database_list", ok: false},
		{name: "create in cte", sql: "WITH a AS (SELECT 1) CREATE TABLE b AS SELECT * FROM a", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkReadOnly(tt.sql)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrNotReadOnly)
		})
	}
}
