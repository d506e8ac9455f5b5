package database_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/storage/database"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/storage/leveldb"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/storage/pebble"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/storage/sqldb"
)

// EnvPostgresDSN enables the PostgreSQL backend tests.
const EnvPostgresDSN = "GHSD_TEST_POSTGRES_DSN"

func backends(t *testing.T) map[string]func() database.DB {
	all := map[string]func() database.DB{
		"pebble": func() database.DB {
			db, err := pebble.Open(filepath.Join(t.TempDir(), "runs"))
			require.NoError(t, err)
			return db
		},
		"leveldb": func() database.DB {
			db, err := leveldb.Open(filepath.Join(t.TempDir(), "runs"))
			require.NoError(t, err)
			return db
		},
		"memory": func() database.DB {
			db, err := leveldb.OpenMemory()
			require.NoError(t, err)
			return db
		},
		"sqlite": func() database.DB {
			db, err := sqldb.Open(context.Background(), sqldb.SQLite, filepath.Join(t.TempDir(), "runs.db"))
			require.NoError(t, err)
			return db
		},
	}
	if dsn := os.Getenv(EnvPostgresDSN); dsn != "" {
		all["postgres"] = func() database.DB {
			db, err := sqldb.Open(context.Background(), sqldb.Postgres, dsn)
			require.NoError(t, err)
			return db
		}
	}
	return all
}

func TestBackends(t *testing.T) {
	ctx := context.Background()
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			db := open()

			t.Run("read write delete", func(t *testing.T) {
				_, err := db.Read(ctx, []byte("missing"))
				assert.ErrorIs(t, err, database.ErrKeyNotFound)

				require.NoError(t, db.Write(ctx, []byte("k"), []byte("v")))
				got, err := db.Read(ctx, []byte("k"))
				require.NoError(t, err)
				assert.Equal(t, []byte("v"), got)

				require.NoError(t, db.Delete(ctx, []byte("k")))
				_, err = db.Read(ctx, []byte("k"))
				assert.ErrorIs(t, err, database.ErrKeyNotFound)
			})

			t.Run("batch", func(t *testing.T) {
				require.NoError(t, db.Write(ctx, []byte("gone"), []byte("x")))
				require.NoError(t, db.Batch(ctx, []database.BatchOperation{
					{Type: database.BatchPut, Key: []byte("b1"), Value: []byte("1")},
					{Type: database.BatchPut, Key: []byte("b2"), Value: []byte("2")},
					{Type: database.BatchDelete, Key: []byte("gone")},
				}))
				got, err := db.Read(ctx, []byte("b2"))
				require.NoError(t, err)
				assert.Equal(t, []byte("2"), got)
				_, err = db.Read(ctx, []byte("gone"))
				assert.ErrorIs(t, err, database.ErrKeyNotFound)

				err = db.Batch(ctx, []database.BatchOperation{{Type: database.BatchOpType(9)}})
				assert.ErrorIs(t, err, database.ErrUnknownBatchOp)
			})

			t.Run("iterator range", func(t *testing.T) {
				for i := 0; i < 5; i++ {
					key := []byte(fmt.Sprintf("it/%02d", i))
					require.NoError(t, db.Write(ctx, key, []byte{byte(i)}))
				}
				require.NoError(t, db.Write(ctx, []byte("iu"), []byte("after")))

				it, err := db.Iterator(ctx, []byte("it/"), database.PrefixEnd([]byte("it/")))
				require.NoError(t, err)
				var keys []string
				for it.Next() {
					keys = append(keys, string(it.Key()))
					assert.Len(t, it.Value(), 1)
				}
				require.NoError(t, it.Error())
				require.NoError(t, it.Close())
				assert.Equal(t, []string{"it/00", "it/01", "it/02", "it/03", "it/04"}, keys)
			})

			require.NoError(t, db.Close())
			require.NoError(t, db.Close())
			_, err := db.Read(ctx, []byte("k"))
			assert.ErrorIs(t, err, database.ErrDBClosed)
		})
	}
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("run0"), database.PrefixEnd([]byte("run/")))
	assert.Equal(t, []byte{0x02}, database.PrefixEnd([]byte{0x01, 0xff}))
	assert.Nil(t, database.PrefixEnd([]byte{0xff, 0xff}))
	assert.Nil(t, database.PrefixEnd(nil))
}
