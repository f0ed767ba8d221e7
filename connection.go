package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/trinodb/trino-go-client/trino"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	"go.uber.org/multierr"
)

type DataSource struct {
	Driver         string `yaml:"driver"`
	DSN            string `yaml:"dsn"`
	MaxConnections int    `yaml:"max-connections"`
}

func driverName(driver string) (string, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pgx":
		return "pgx", nil
	case "trino", "presto":
		return "trino", nil
	case "mysql", "mariadb", "tidb":
		return "mysql", nil
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	case "libsql", "turso":
		return "libsql", nil
	}
	return "", fmt.Errorf("unsupported driver '%v'", driver)
}

// SqlConnectionProvider hands out dedicated connections from one database/sql
// pool per named data source. Pools are opened lazily.
type SqlConnectionProvider struct {
	sources map[string]DataSource

	mu    sync.Mutex
	pools map[string]*sql.DB
}

func NewSqlConnectionProvider(sources map[string]DataSource) *SqlConnectionProvider {
	return &SqlConnectionProvider{sources: sources, pools: make(map[string]*sql.DB)}
}

func (p *SqlConnectionProvider) pool(name string) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if db, ok := p.pools[name]; ok {
		return db, nil
	}
	source, ok := p.sources[name]
	if !ok {
		return nil, fmt.Errorf("unknown datasource '%v'", name)
	}
	driver, err := driverName(source.Driver)
	if err != nil {
		return nil, fmt.Errorf("datasource %v: %w", name, err)
	}
	db, err := sql.Open(driver, source.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open datasource %v: %w", name, err)
	}
	if source.MaxConnections > 0 {
		db.SetMaxOpenConns(source.MaxConnections)
		db.SetMaxIdleConns(source.MaxConnections)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	p.pools[name] = db
	Logger.Infof("opened datasource %v (driver=%v)", name, driver)
	return db, nil
}

func (p *SqlConnectionProvider) Connect(ctx context.Context, dataSource string) (Connection, error) {
	db, err := p.pool(dataSource)
	if err != nil {
		return nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection to %v: %w", dataSource, err)
	}
	return &sqlConnection{conn: conn}, nil
}

func (p *SqlConnectionProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	for name, db := range p.pools {
		if closeErr := db.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("datasource %v: %w", name, closeErr))
		}
	}
	p.pools = make(map[string]*sql.DB)
	return err
}

type sqlConnection struct {
	conn *sql.Conn
}

func (c *sqlConnection) Query(ctx context.Context, statement string) ([][]string, error) {
	rows, err := c.conn.QueryContext(ctx, statement)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	results := make([][]string, 0)
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make([]string, len(values))
		for i, value := range values {
			row[i] = formatValue(value)
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func (c *sqlConnection) Exec(ctx context.Context, statement string) (int64, error) {
	result, err := c.conn.ExecContext(ctx, statement)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		// some drivers cannot report affected rows for DDL
		return 0, nil
	}
	return affected, nil
}

func (c *sqlConnection) Close() error {
	return c.conn.Close()
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	case time.Time:
		return v.Format("2006-01-02 15:04:05.999999999")
	default:
		return fmt.Sprintf("%v", v)
	}
}
