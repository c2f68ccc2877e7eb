package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// Registers the "sqlserver" driver.
	_ "github.com/microsoft/go-mssqldb"
)

// Conn is a single session against the engine. ChangeDatabase persists for
// later Exec calls on the same Conn.
type Conn interface {
	ChangeDatabase(ctx context.Context, name string) error
	Exec(ctx context.Context, query string) error
	Close() error
}

// Dialer opens connections to a running engine.
type Dialer interface {
	Dial(ctx context.Context, pipeName string) (Conn, error)
}

// SQLDialer connects over the engine's named pipe with go-mssqldb.
type SQLDialer struct{}

// Dial opens a connection to the master database.
func (SQLDialer) Dial(ctx context.Context, pipeName string) (Conn, error) {
	if pipeName == "" {
		return nil, errors.New("engine has no pipe name")
	}

	db, err := sql.Open("sqlserver", dataSourceName(pipeName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", pipeName, err)
	}
	return &sqlConn{db: db, conn: conn}, nil
}

func dataSourceName(pipeName string) string {
	return fmt.Sprintf("server=%s;database=master;encrypt=disable", pipeName)
}

type sqlConn struct {
	db   *sql.DB
	conn *sql.Conn
}

func (c *sqlConn) ChangeDatabase(ctx context.Context, name string) error {
	return c.Exec(ctx, "USE "+QuoteIdentifier(name))
}

func (c *sqlConn) Exec(ctx context.Context, query string) error {
	_, err := c.conn.ExecContext(ctx, query)
	return err
}

func (c *sqlConn) Close() error {
	return errors.Join(c.conn.Close(), c.db.Close())
}

// QuoteIdentifier brackets a T-SQL identifier.
func QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
