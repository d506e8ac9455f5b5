// Package sqldb keeps the run database in a single key-value table of SQLite or
// PostgreSQL.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/guwenyu1996/Distributed-Algorithms/internal/storage/database"
)

// Dialect holds the statements of one SQL engine.
type Dialect struct {
	Driver string
	schema string
	read   string
	upsert string
	delete string
	scan   string
	arg    func(n int) string
}

var (
	SQLite = Dialect{
		Driver: "sqlite",
		schema: `CREATE TABLE IF NOT EXISTS kv (k BLOB PRIMARY KEY, v BLOB NOT NULL)`,
		read:   `SELECT v FROM kv WHERE k = ?`,
		upsert: `INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT (k) DO UPDATE SET v = excluded.v`,
		delete: `DELETE FROM kv WHERE k = ?`,
		scan:   `SELECT k, v FROM kv`,
		arg:    func(int) string { return "?" },
	}
	Postgres = Dialect{
		Driver: "postgres",
		schema: `CREATE TABLE IF NOT EXISTS kv (k BYTEA PRIMARY KEY, v BYTEA NOT NULL)`,
		read:   `SELECT v FROM kv WHERE k = $1`,
		upsert: `INSERT INTO kv (k, v) VALUES ($1, $2) ON CONFLICT (k) DO UPDATE SET v = excluded.v`,
		delete: `DELETE FROM kv WHERE k = $1`,
		scan:   `SELECT k, v FROM kv`,
		arg:    func(n int) string { return fmt.Sprintf("$%d", n) },
	}
)

type DB struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects with dsn, checks the connection and creates the table.
func Open(ctx context.Context, dialect Dialect, dsn string) (*DB, error) {
	sqlDB, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect.Driver, err)
	}
	if dialect.Driver == SQLite.Driver {
		// one writer at a time
		sqlDB.SetMaxOpenConns(1)
	}
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", dialect.Driver, err)
	}
	if _, err := sqlDB.ExecContext(ctx, dialect.schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &DB{db: sqlDB, dialect: dialect}, nil
}

func mapErr(err error) error {
	if errors.Is(err, sql.ErrConnDone) || (err != nil && strings.Contains(err.Error(), "database is closed")) {
		return database.ErrDBClosed
	}
	return err
}

func (d *DB) Read(ctx context.Context, key []byte) ([]byte, error) {
	var val []byte
	err := d.db.QueryRowContext(ctx, d.dialect.read, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrKeyNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return val, nil
}

func (d *DB) Write(ctx context.Context, key, value []byte) error {
	_, err := d.db.ExecContext(ctx, d.dialect.upsert, key, value)
	return mapErr(err)
}

func (d *DB) Delete(ctx context.Context, key []byte) error {
	_, err := d.db.ExecContext(ctx, d.dialect.delete, key)
	return mapErr(err)
}

// Batch applies ops in one transaction.
func (d *DB) Batch(ctx context.Context, ops []database.BatchOperation) error {
	for _, op := range ops {
		if op.Type != database.BatchPut && op.Type != database.BatchDelete {
			return fmt.Errorf("%w: %d", database.ErrUnknownBatchOp, op.Type)
		}
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer tx.Rollback()

	for _, op := range ops {
		switch op.Type {
		case database.BatchPut:
			_, err = tx.ExecContext(ctx, d.dialect.upsert, op.Key, op.Value)
		case database.BatchDelete:
			_, err = tx.ExecContext(ctx, d.dialect.delete, op.Key)
		}
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Iterator reads the whole range up front.
func (d *DB) Iterator(ctx context.Context, start, end []byte) (database.Iterator, error) {
	var (
		where []string
		args  []interface{}
	)
	if len(start) > 0 {
		args = append(args, start)
		where = append(where, "k >= "+d.dialect.arg(len(args)))
	}
	if end != nil {
		args = append(args, end)
		where = append(where, "k < "+d.dialect.arg(len(args)))
	}
	query := d.dialect.scan
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY k"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	it := &Iterator{pos: -1}
	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		it.keys = append(it.keys, k)
		it.values = append(it.values, v)
	}
	return it, rows.Err()
}

func (d *DB) Close() error {
	return d.db.Close()
}

type Iterator struct {
	keys   [][]byte
	values [][]byte
	pos    int
}

func (it *Iterator) Next() bool {
	if it.pos+1 >= len(it.keys) {
		it.pos = len(it.keys)
		return false
	}
	it.pos++
	return true
}

func (it *Iterator) Key() []byte {
	return it.keys[it.pos]
}

func (it *Iterator) Value() []byte {
	return it.values[it.pos]
}

func (it *Iterator) Error() error {
	return nil
}

func (it *Iterator) Close() error {
	return nil
}
