package engine

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
)

func NormalizeDriver(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pg", "pgx":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return strings.ToLower(strings.TrimSpace(name))
	}
}

func baseConnector(driverName, dsn string) (driver.Connector, error) {
	switch driverName {
	case "postgres":
		drv := stdlib.GetDefaultDriver()
		if dc, ok := drv.(driver.DriverContext); ok {
			return dc.OpenConnector(dsn)
		}
		return dsnConnector{driver: drv, dsn: dsn}, nil
	case "sqlite":
		return dsnConnector{driver: &sqlite.Driver{}, dsn: dsn}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driverName)
	}
}

type dsnConnector struct {
	driver driver.Driver
	dsn    string
}

func (c dsnConnector) Connect(ctx context.Context) (driver.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.driver.Open(c.dsn)
}

func (c dsnConnector) Driver() driver.Driver { return c.driver }

type connector struct {
	base   driver.Connector
	engine *Engine
}

func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.base.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &hookConn{Conn: conn, engine: c.engine}, nil
}

func (c *connector) Driver() driver.Driver { return c.base.Driver() }

type hookConn struct {
	driver.Conn
	engine *Engine
}

func (c *hookConn) Prepare(query string) (driver.Stmt, error) {
	st, err := c.Conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &hookStmt{Stmt: st, query: query, conn: c}, nil
}

func (c *hookConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	p, ok := c.Conn.(driver.ConnPrepareContext)
	if !ok {
		return c.Prepare(query)
	}
	st, err := p.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &hookStmt{Stmt: st, query: query, conn: c}, nil
}

func (c *hookConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	var res driver.Result
	if ex, ok := c.Conn.(driver.ExecerContext); ok {
		err := c.engine.observe(ctx, KindExec, query, args, func() (err error) {
			res, err = ex.ExecContext(ctx, query, args)
			return err
		})
		return res, err
	}
	if ex, ok := c.Conn.(driver.Execer); ok {
		vals, err := namedToValues(args)
		if err != nil {
			return nil, err
		}
		err = c.engine.observe(ctx, KindExec, query, args, func() (err error) {
			res, err = ex.Exec(query, vals)
			return err
		})
		return res, err
	}
	return nil, driver.ErrSkip
}

func (c *hookConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	var rows driver.Rows
	if qx, ok := c.Conn.(driver.QueryerContext); ok {
		err := c.engine.observe(ctx, KindQuery, query, args, func() (err error) {
			rows, err = qx.QueryContext(ctx, query, args)
			return err
		})
		return rows, err
	}
	if qx, ok := c.Conn.(driver.Queryer); ok {
		vals, err := namedToValues(args)
		if err != nil {
			return nil, err
		}
		err = c.engine.observe(ctx, KindQuery, query, args, func() (err error) {
			rows, err = qx.Query(query, vals)
			return err
		})
		return rows, err
	}
	return nil, driver.ErrSkip
}

func (c *hookConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if b, ok := c.Conn.(driver.ConnBeginTx); ok {
		return b.BeginTx(ctx, opts)
	}
	if opts.ReadOnly {
		return nil, errors.New("driver does not support read-only transactions")
	}
	return c.Conn.Begin()
}

func (c *hookConn) Ping(ctx context.Context) error {
	if p, ok := c.Conn.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *hookConn) ResetSession(ctx context.Context) error {
	if r, ok := c.Conn.(driver.SessionResetter); ok {
		return r.ResetSession(ctx)
	}
	return nil
}

func (c *hookConn) IsValid() bool {
	if v, ok := c.Conn.(driver.Validator); ok {
		return v.IsValid()
	}
	return true
}

func (c *hookConn) CheckNamedValue(nv *driver.NamedValue) error {
	if nvc, ok := c.Conn.(driver.NamedValueChecker); ok {
		return nvc.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}

type hookStmt struct {
	driver.Stmt
	query string
	conn  *hookConn
}

func (s *hookStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	var res driver.Result
	err := s.conn.engine.observe(ctx, KindExec, s.query, args, func() error {
		if ex, ok := s.Stmt.(driver.StmtExecContext); ok {
			var err error
			res, err = ex.ExecContext(ctx, args)
			return err
		}
		vals, err := namedToValues(args)
		if err != nil {
			return err
		}
		res, err = s.Stmt.Exec(vals) //nolint:staticcheck
		return err
	})
	return res, err
}

func (s *hookStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	var rows driver.Rows
	err := s.conn.engine.observe(ctx, KindQuery, s.query, args, func() error {
		if qx, ok := s.Stmt.(driver.StmtQueryContext); ok {
			var err error
			rows, err = qx.QueryContext(ctx, args)
			return err
		}
		vals, err := namedToValues(args)
		if err != nil {
			return err
		}
		rows, err = s.Stmt.Query(vals) //nolint:staticcheck
		return err
	})
	return rows, err
}

func (s *hookStmt) CheckNamedValue(nv *driver.NamedValue) error {
	if nvc, ok := s.Stmt.(driver.NamedValueChecker); ok {
		return nvc.CheckNamedValue(nv)
	}
	return s.conn.CheckNamedValue(nv)
}

func namedToValues(args []driver.NamedValue) ([]driver.Value, error) {
	values := make([]driver.Value, 0, len(args))
	for _, a := range args {
		if a.Name != "" {
			return nil, errors.New("named parameters are not supported")
		}
		values = append(values, a.Value)
	}
	return values, nil
}
