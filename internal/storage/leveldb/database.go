// Package leveldb stores runs in a goleveldb directory, or in memory.
package leveldb

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/storage/database"
)

var syncWrites = &opt.WriteOptions{Sync: true}

type DB struct {
	db *leveldb.DB
}

// Open opens or creates a LevelDB database at path.
func Open(path string) (*DB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb database %s: %w", path, err)
	}
	return &DB{db: db}, nil
}

// OpenMemory opens a LevelDB database that lives only in memory.
func OpenMemory() (*DB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return database.ErrKeyNotFound
	case errors.Is(err, leveldb.ErrClosed):
		return database.ErrDBClosed
	}
	return err
}

func (l *DB) Read(_ context.Context, key []byte) ([]byte, error) {
	val, err := l.db.Get(key, nil)
	if err != nil {
		return nil, mapErr(err)
	}
	return val, nil
}

func (l *DB) Write(_ context.Context, key, value []byte) error {
	return mapErr(l.db.Put(key, value, syncWrites))
}

func (l *DB) Delete(_ context.Context, key []byte) error {
	return mapErr(l.db.Delete(key, syncWrites))
}

func (l *DB) Batch(_ context.Context, ops []database.BatchOperation) error {
	batch := new(leveldb.Batch)
	for _, op := range ops {
		switch op.Type {
		case database.BatchPut:
			batch.Put(op.Key, op.Value)
		case database.BatchDelete:
			batch.Delete(op.Key)
		default:
			return fmt.Errorf("%w: %d", database.ErrUnknownBatchOp, op.Type)
		}
	}
	return mapErr(l.db.Write(batch, syncWrites))
}

func (l *DB) Iterator(_ context.Context, start, end []byte) (database.Iterator, error) {
	iter := l.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)
	if err := iter.Error(); err != nil {
		iter.Release()
		return nil, mapErr(err)
	}
	return &Iterator{iter: iter}, nil
}

func (l *DB) Close() error {
	err := l.db.Close()
	if errors.Is(err, leveldb.ErrClosed) {
		return nil
	}
	return err
}

type Iterator struct {
	iter iterator.Iterator
}

func (it *Iterator) Next() bool {
	return it.iter.Next()
}

// Key returns a copy of the current key.
func (it *Iterator) Key() []byte {
	return append([]byte(nil), it.iter.Key()...)
}

// Value returns a copy of the current value.
func (it *Iterator) Value() []byte {
	return append([]byte(nil), it.iter.Value()...)
}

func (it *Iterator) Error() error {
	return mapErr(it.iter.Error())
}

func (it *Iterator) Close() error {
	it.iter.Release()
	return nil
}
