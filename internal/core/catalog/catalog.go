// Package catalog provides the per-turn analytic catalog: an in-process DuckDB
// database into which CSV, Parquet and in-memory tables are registered by name
// and queried with ad hoc SQL.
//
// A Catalog is created for one chat turn (or one profiling job) and closed
// afterwards. It is not safe for concurrent use.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// Format is the on-disk encoding of a file source.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// SourceKind records where a registered table came from.
type SourceKind string

const (
	SourceFrame  SourceKind = "frame"
	SourceLocal  SourceKind = "local"
	SourceRemote SourceKind = "remote"
)

// TableSource is one registered table.
type TableSource struct {
	Name        string
	Kind        SourceKind
	Path        string
	Format      Format
	Description string
	Metadata    map[string]any
}

// ColumnInfo is one column reported by Describe.
type ColumnInfo struct {
	Name string
	Type string
}

// RemoteCredentials configures object-storage access. Leave the key pair
// empty to use the ambient AWS credential chain.
type RemoteCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string

	// Endpoint for S3-compatible services (MinIO, etc.)
	Endpoint string
	// URLStyle: "vhost" or "path"
	URLStyle string
	UseSSL   *bool
}

// Catalog is a DuckDB-backed set of named tables.
type Catalog struct {
	db     *sql.DB
	tables map[string]TableSource
	log    *logrus.Logger
}

// New opens an empty in-memory catalog.
func New(ctx context.Context, log *logrus.Logger) (*Catalog, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("catalog: open duckdb: %w", err)
	}
	// One connection keeps secrets, extensions and tables on the same session.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: ping duckdb: %w", err)
	}

	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Catalog{db: db, tables: make(map[string]TableSource), log: log}, nil
}

// Close releases the underlying database.
func (c *Catalog) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// ConfigureRemoteAccess loads httpfs and installs an S3 secret built from creds,
// or from the ambient credential chain when creds carries no key pair.
func (c *Catalog) ConfigureRemoteAccess(ctx context.Context, creds *RemoteCredentials) error {
	if err := validateCredentials(creds); err != nil {
		return err
	}

	for _, stmt := range []string{"INSTALL httpfs", "LOAD httpfs"} {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return &ConfigurationError{Reason: "load httpfs", Err: err}
		}
	}

	var opts []string
	if creds != nil && creds.AccessKeyID != "" {
		opts = append(opts,
			"TYPE s3",
			"PROVIDER config",
			"KEY_ID "+quoteLiteral(creds.AccessKeyID),
			"SECRET "+quoteLiteral(creds.SecretAccessKey),
		)
		if creds.SessionToken != "" {
			opts = append(opts, "SESSION_TOKEN "+quoteLiteral(creds.SessionToken))
		}
	} else {
		for _, stmt := range []string{"INSTALL aws", "LOAD aws"} {
			if _, err := c.db.ExecContext(ctx, stmt); err != nil {
				return &ConfigurationError{Reason: "load aws extension", Err: err}
			}
		}
		opts = append(opts, "TYPE s3", "PROVIDER credential_chain")
	}

	if creds != nil {
		if creds.Region != "" {
			opts = append(opts, "REGION "+quoteLiteral(creds.Region))
		}
		if creds.Endpoint != "" {
			opts = append(opts, "ENDPOINT "+quoteLiteral(creds.Endpoint))
		}
		if creds.URLStyle != "" {
			opts = append(opts, "URL_STYLE "+quoteLiteral(creds.URLStyle))
		}
		if creds.UseSSL != nil {
			opts = append(opts, fmt.Sprintf("USE_SSL %t", *creds.UseSSL))
		}
	}

	stmt := "CREATE OR REPLACE SECRET s3_secret (\n\t" + strings.Join(opts, ",\n\t") + "\n)"
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return &ConfigurationError{Reason: "create s3 secret", Err: err}
	}

	c.log.WithField("provider", secretProvider(creds)).Debug("catalog: remote access configured")
	return nil
}

func validateCredentials(creds *RemoteCredentials) error {
	if creds == nil {
		return nil
	}
	if (creds.AccessKeyID == "") != (creds.SecretAccessKey == "") {
		return &ConfigurationError{Reason: "access key id and secret access key must be supplied together"}
	}
	if creds.SessionToken != "" && creds.AccessKeyID == "" {
		return &ConfigurationError{Reason: "session token supplied without an access key"}
	}
	switch creds.URLStyle {
	case "", "vhost", "path":
	default:
		return &ConfigurationError{Reason: fmt.Sprintf("unknown url style %q", creds.URLStyle)}
	}
	return nil
}

func secretProvider(creds *RemoteCredentials) string {
	if creds != nil && creds.AccessKeyID != "" {
		return "config"
	}
	return "credential_chain"
}

// Register creates or replaces the table name from source, which must be a
// *Frame / Frame held in memory or a local or remote file path. Paths ending in
// .parquet are read with read_parquet, everything else with read_csv_auto.
func (c *Catalog) Register(ctx context.Context, name string, source any, description string, metadata map[string]any) error {
	if name == "" {
		return fmt.Errorf("catalog: table name is required")
	}

	entry := TableSource{Name: name, Description: description, Metadata: metadata}

	switch src := source.(type) {
	case *Frame:
		if src == nil {
			return &UnsupportedSourceError{Name: name, Type: "nil *Frame"}
		}
		if err := c.registerFrame(ctx, name, src); err != nil {
			return err
		}
		entry.Kind = SourceFrame

	case Frame:
		if err := c.registerFrame(ctx, name, &src); err != nil {
			return err
		}
		entry.Kind = SourceFrame

	case string:
		location := src
		entry.Kind = SourceRemote
		if !IsRemotePath(src) {
			abs, err := filepath.Abs(src)
			if err != nil {
				return fmt.Errorf("catalog: resolve %q: %w", src, err)
			}
			location = abs
			entry.Kind = SourceLocal
		}
		entry.Path = location
		entry.Format = FormatFromPath(location)

		reader := "read_csv_auto"
		if entry.Format == FormatParquet {
			reader = "read_parquet"
		}
		stmt := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s(%s)",
			quoteIdent(name), reader, quoteLiteral(location))
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("catalog: register %q from %s: %w", name, location, err)
		}

	default:
		return &UnsupportedSourceError{Name: name, Type: fmt.Sprintf("%T", source)}
	}

	c.tables[name] = entry
	c.log.WithFields(logrus.Fields{"table": name, "kind": entry.Kind, "format": entry.Format}).Debug("catalog: table registered")
	return nil
}

func (c *Catalog) registerFrame(ctx context.Context, name string, f *Frame) error {
	if len(f.Columns) == 0 {
		return fmt.Errorf("catalog: frame for %q has no columns", name)
	}

	defs := make([]string, len(f.Columns))
	for i, col := range f.Columns {
		defs[i] = quoteIdent(col.Name) + " " + inferType(f, i)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	create := fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("catalog: create %q: %w", name, err)
	}

	if len(f.Rows) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(f.Columns)), ", ")
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(name), marks))
		if err != nil {
			return fmt.Errorf("catalog: prepare insert into %q: %w", name, err)
		}
		defer stmt.Close()

		for i, row := range f.Rows {
			if len(row) != len(f.Columns) {
				return fmt.Errorf("catalog: frame row %d has %d values, want %d", i, len(row), len(f.Columns))
			}
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				return fmt.Errorf("catalog: insert row %d into %q: %w", i, name, err)
			}
		}
	}

	return tx.Commit()
}

// Seal turns off external access and locks the configuration. Registered
// tables stay queryable; table functions over files or URLs fail from then on.
func (c *Catalog) Seal(ctx context.Context) error {
	for _, stmt := range []string{
		"SET enable_external_access = false",
		"SET lock_configuration = true",
	} {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return &ConfigurationError{Reason: "seal", Err: err}
		}
	}
	c.log.Debug("catalog: sealed")
	return nil
}

// Query runs a single read-only statement against the registered tables and
// returns the whole result set.
func (c *Catalog) Query(ctx context.Context, sqlText string) (*Frame, error) {
	if err := checkReadOnly(sqlText); err != nil {
		return nil, &QueryError{SQL: sqlText, Err: err}
	}
	return c.query(ctx, sqlText)
}

func (c *Catalog) query(ctx context.Context, sqlText string) (*Frame, error) {
	rows, err := c.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, &QueryError{SQL: sqlText, Err: err}
	}
	defer func() { _ = rows.Close() }()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, &QueryError{SQL: sqlText, Err: err}
	}

	frame := &Frame{Columns: make([]Column, len(types))}
	for i, t := range types {
		frame.Columns[i] = Column{Name: t.Name(), Type: t.DatabaseTypeName()}
	}

	for rows.Next() {
		values := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &QueryError{SQL: sqlText, Err: err}
		}
		for i := range values {
			values[i] = normalizeValue(values[i])
		}
		frame.Rows = append(frame.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{SQL: sqlText, Err: err}
	}

	return frame, nil
}

// Describe returns the column name/type pairs of a registered table in declaration order.
func (c *Catalog) Describe(ctx context.Context, name string) ([]ColumnInfo, error) {
	if _, ok := c.tables[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}

	const q = `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = 'main' AND table_name = ?
		ORDER BY ordinal_position
	`
	rows, err := c.db.QueryContext(ctx, q, name)
	if err != nil {
		return nil, fmt.Errorf("catalog: describe %q: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	var out []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return nil, fmt.Errorf("catalog: scan column of %q: %w", name, err)
		}
		out = append(out, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: describe %q: %w", name, err)
	}
	return out, nil
}

// Summarize profiles every column of a registered table with DuckDB's SUMMARIZE.
// The result maps column name to min, max, approx_unique, null_percentage and count.
func (c *Catalog) Summarize(ctx context.Context, name string) (map[string]map[string]any, error) {
	if _, ok := c.tables[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}

	frame, err := c.query(ctx, "SUMMARIZE SELECT * FROM "+quoteIdent(name))
	if err != nil {
		return nil, err
	}

	wanted := map[string]bool{"min": true, "max": true, "approx_unique": true, "null_percentage": true, "count": true}
	out := make(map[string]map[string]any, frame.Len())
	for _, rec := range frame.Records() {
		col, _ := rec["column_name"].(string)
		if col == "" {
			continue
		}
		summary := make(map[string]any, len(wanted))
		for k, v := range rec {
			if wanted[k] {
				summary[k] = v
			}
		}
		out[col] = summary
	}
	return out, nil
}

// Table returns the registration record for name.
func (c *Catalog) Table(name string) (TableSource, bool) {
	t, ok := c.tables[name]
	return t, ok
}

// Tables lists registrations sorted by name.
func (c *Catalog) Tables() []TableSource {
	out := make([]TableSource, 0, len(c.tables))
	for _, t := range c.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RemotePath builds the object-storage locator the catalog dereferences.
func RemotePath(bucket, key string) string {
	return "s3://" + bucket + "/" + strings.TrimPrefix(key, "/")
}

// IsRemotePath reports whether p points at object storage or HTTP.
func IsRemotePath(p string) bool {
	for _, scheme := range []string{"s3://", "s3a://", "gs://", "gcs://", "r2://", "http://", "https://"} {
		if strings.HasPrefix(p, scheme) {
			return true
		}
	}
	return false
}

// FormatFromPath infers the file format from the path suffix.
func FormatFromPath(p string) Format {
	if i := strings.IndexAny(p, "?#"); i >= 0 && IsRemotePath(p) {
		p = p[:i]
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".parquet", ".pq":
		return FormatParquet
	default:
		return FormatCSV
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
