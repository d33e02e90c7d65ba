package target

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverDuckDB   = "duckdb"
)

// Dialect knows how to reach one kind of database and how to describe its tables.
type Dialect interface {
	Name() string
	// DisplayName is the product name used when asking for SQL in this dialect.
	DisplayName() string
	DriverName() string
	Networked() bool
	DefaultPort() int
	DSN(spec ConnectionSpec, connectTimeout time.Duration) (string, error)
	QuoteIdent(name string) string
	DescribeTable(ctx context.Context, db *sql.DB, table string) ([][2]string, error)
}

func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverMySQL:
		return mysqlDialect{}, nil
	case DriverPostgres, "postgresql", "pgx":
		return postgresDialect{}, nil
	case DriverDuckDB:
		return duckdbDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string        { return DriverMySQL }
func (mysqlDialect) DisplayName() string { return "MySQL" }
func (mysqlDialect) DriverName() string  { return "mysql" }
func (mysqlDialect) Networked() bool     { return true }
func (mysqlDialect) DefaultPort() int    { return 3306 }

func (mysqlDialect) DSN(spec ConnectionSpec, connectTimeout time.Duration) (string, error) {
	cfg := mysql.NewConfig()
	cfg.User = spec.User
	cfg.Passwd = spec.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(spec.Host, strconv.Itoa(int(spec.Port)))
	cfg.DBName = spec.Database
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	if connectTimeout > 0 {
		cfg.Timeout = connectTimeout
	}
	return cfg.FormatDSN(), nil
}

func (mysqlDialect) QuoteIdent(name string) string {
	return quoteParts(name, "`")
}

func (d mysqlDialect) DescribeTable(ctx context.Context, db *sql.DB, table string) ([][2]string, error) {
	return describeFirstTwoColumns(ctx, db, "DESCRIBE "+d.QuoteIdent(table))
}

type postgresDialect struct{}

func (postgresDialect) Name() string        { return DriverPostgres }
func (postgresDialect) DisplayName() string { return "PostgreSQL" }
func (postgresDialect) DriverName() string  { return "pgx" }
func (postgresDialect) Networked() bool     { return true }
func (postgresDialect) DefaultPort() int    { return 5432 }

func (postgresDialect) DSN(spec ConnectionSpec, connectTimeout time.Duration) (string, error) {
	query := url.Values{}
	if connectTimeout > 0 {
		seconds := int(connectTimeout.Round(time.Second) / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		query.Set("connect_timeout", strconv.Itoa(seconds))
	}
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(spec.User, spec.Password),
		Host:     net.JoinHostPort(spec.Host, strconv.Itoa(int(spec.Port))),
		Path:     "/" + spec.Database,
		RawQuery: query.Encode(),
	}
	return dsn.String(), nil
}

func (postgresDialect) QuoteIdent(name string) string {
	return quoteParts(name, `"`)
}

const postgresColumnsSQL = `SELECT column_name, data_type
FROM information_schema.columns
WHERE table_name = $1 AND table_schema = COALESCE(NULLIF($2, ''), current_schema())
ORDER BY ordinal_position`

func (postgresDialect) DescribeTable(ctx context.Context, db *sql.DB, table string) ([][2]string, error) {
	schemaName, tableName := splitQualified(table)
	rows, err := db.QueryContext(ctx, postgresColumnsSQL, tableName, schemaName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns := make([][2]string, 0)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, err
		}
		columns = append(columns, [2]string{name, dataType})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %q does not exist", table)
	}
	return columns, nil
}

type duckdbDialect struct{}

func (duckdbDialect) Name() string        { return DriverDuckDB }
func (duckdbDialect) DisplayName() string { return "DuckDB" }
func (duckdbDialect) DriverName() string  { return "duckdb" }
func (duckdbDialect) Networked() bool     { return false }
func (duckdbDialect) DefaultPort() int    { return 0 }

// DSN is the database file path; empty opens an in-memory database.
func (duckdbDialect) DSN(spec ConnectionSpec, _ time.Duration) (string, error) {
	return spec.Database, nil
}

func (duckdbDialect) QuoteIdent(name string) string {
	return quoteParts(name, `"`)
}

func (d duckdbDialect) DescribeTable(ctx context.Context, db *sql.DB, table string) ([][2]string, error) {
	return describeFirstTwoColumns(ctx, db, "DESCRIBE "+d.QuoteIdent(table))
}

// describeFirstTwoColumns reads name and type from the first two columns of a
// DESCRIBE-style result, ignoring the rest.
func describeFirstTwoColumns(ctx context.Context, db *sql.DB, statement string) ([][2]string, error) {
	rows, err := db.QueryContext(ctx, statement)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(names) < 2 {
		return nil, fmt.Errorf("describe returned %d columns, want at least 2", len(names))
	}

	columns := make([][2]string, 0)
	for rows.Next() {
		values := make([]any, len(names))
		targets := make([]any, len(names))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		columns = append(columns, [2]string{asText(values[0]), asText(values[1])})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return columns, nil
}

func asText(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case []byte:
		return string(typed)
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}

func quoteParts(name, quote string) string {
	parts := strings.Split(strings.TrimSpace(name), ".")
	for i, part := range parts {
		parts[i] = quote + strings.ReplaceAll(part, quote, quote+quote) + quote
	}
	return strings.Join(parts, ".")
}

func splitQualified(name string) (string, string) {
	name = strings.TrimSpace(name)
	if index := strings.LastIndex(name, "."); index >= 0 {
		return name[:index], name[index+1:]
	}
	return "", name
}
