package remote

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakePGDriver records every statement and transaction boundary so the
// write-path tests can assert how statements group into transactions.
type fakePGDriver struct {
	mu  sync.Mutex
	ops []string
}

func (d *fakePGDriver) log(op string) {
	d.mu.Lock()
	d.ops = append(d.ops, op)
	d.mu.Unlock()
}

func (d *fakePGDriver) operations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ops...)
}

func (d *fakePGDriver) Open(string) (driver.Conn, error) {
	return &fakePGConn{driver: d}, nil
}

type fakePGConnector struct{ driver *fakePGDriver }

func (c *fakePGConnector) Connect(context.Context) (driver.Conn, error) {
	return c.driver.Open("")
}

func (c *fakePGConnector) Driver() driver.Driver { return c.driver }

type fakePGConn struct{ driver *fakePGDriver }

func (c *fakePGConn) Prepare(query string) (driver.Stmt, error) {
	return &fakePGStmt{driver: c.driver, query: query}, nil
}

func (c *fakePGConn) Close() error { return nil }

func (c *fakePGConn) Begin() (driver.Tx, error) {
	c.driver.log("begin")
	return &fakePGTx{driver: c.driver}, nil
}

type fakePGTx struct{ driver *fakePGDriver }

func (t *fakePGTx) Commit() error   { t.driver.log("commit"); return nil }
func (t *fakePGTx) Rollback() error { t.driver.log("rollback"); return nil }

type fakePGStmt struct {
	driver *fakePGDriver
	query  string
}

func (s *fakePGStmt) Close() error  { return nil }
func (s *fakePGStmt) NumInput() int { return -1 }

func (s *fakePGStmt) Exec([]driver.Value) (driver.Result, error) {
	s.driver.log(opName(s.query))
	return driver.RowsAffected(1), nil
}

func (s *fakePGStmt) Query([]driver.Value) (driver.Rows, error) {
	s.driver.log(opName(s.query))
	now := time.Now()
	if strings.Contains(s.query, "RETURNING created_at, updated_at") {
		return &fakePGRows{
			columns: []string{"created_at", "updated_at"},
			rows:    [][]driver.Value{{now, now}},
		}, nil
	}
	if strings.HasPrefix(strings.TrimSpace(s.query), "SELECT created_at") {
		return &fakePGRows{
			columns: []string{"created_at"},
			rows:    [][]driver.Value{{now}},
		}, nil
	}
	return &fakePGRows{columns: []string{"record"}}, nil
}

type fakePGRows struct {
	columns []string
	rows    [][]driver.Value
	next    int
}

func (r *fakePGRows) Columns() []string { return r.columns }
func (r *fakePGRows) Close() error      { return nil }

func (r *fakePGRows) Next(dest []driver.Value) error {
	if r.next >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.next])
	r.next++
	return nil
}

func opName(query string) string {
	q := strings.TrimSpace(query)
	switch {
	case strings.HasPrefix(q, "INSERT"):
		return "insert"
	case strings.HasPrefix(q, "UPDATE"):
		return "update"
	case strings.HasPrefix(q, "SELECT pg_notify"):
		return "notify"
	case strings.HasPrefix(q, "SELECT"):
		return "select"
	case strings.HasPrefix(q, "CREATE"):
		return "create-table"
	case strings.HasPrefix(q, "DELETE"):
		return "delete"
	default:
		return "other"
	}
}

func newFakePGCollection() (*PostgresCollection, *fakePGDriver) {
	d := &fakePGDriver{}
	c := &PostgresCollection{
		dsn: "postgres://fake",
		openDB: func(driverName, dsn string) (*sql.DB, error) {
			return sql.OpenDB(&fakePGConnector{driver: d}), nil
		},
	}
	return c, d
}

func TestPostgresCreateStampsInsideOneTransaction(t *testing.T) {
	c, d := newFakePGCollection()
	defer c.Close()

	id, err := c.Create(context.Background(), "b1", json.RawMessage(`{"type":"circle","x":1,"y":2}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatal("no server-assigned id")
	}

	want := []string{
		"create-table", "create-table", // schema setup
		"begin", "insert", "update", "commit",
		"notify",
	}
	if got := d.operations(); !reflect.DeepEqual(got, want) {
		t.Fatalf("operations = %v, want %v", got, want)
	}
}

func TestPostgresUpdateNotifiesAfterWrite(t *testing.T) {
	c, d := newFakePGCollection()
	defer c.Close()

	err := c.Update(context.Background(), "b1", "item-1", json.RawMessage(`{"type":"circle","x":1,"y":2}`))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	ops := d.operations()
	if len(ops) == 0 || ops[len(ops)-1] != "notify" {
		t.Fatalf("operations = %v, want a trailing notify", ops)
	}
}
