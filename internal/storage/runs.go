// Package storage persists finished spanning tree runs in an ordered key-value store.
package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ugorji/go/codec"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/result"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/storage/compression"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/storage/database"
)

var (
	ErrRunNotFound = errors.New("run not found")
	ErrNoRuns      = errors.New("no runs stored")
)

const runPrefix = "run/"

// lastKey holds the highest id ever assigned, so deleted ids are not handed out again.
var lastKey = []byte("meta/last")

var runHandle = &codec.MsgpackHandle{WriteExt: true}

func runKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", runPrefix, id))
}

func parseRunKey(key []byte) (uint64, error) {
	s := strings.TrimPrefix(string(key), runPrefix)
	return strconv.ParseUint(s, 10, 64)
}

// RunStore keeps finished runs under monotonically increasing ids. Recently read or
// written runs are served from an LRU cache.
type RunStore struct {
	mu    sync.Mutex
	db    database.DB
	comp  compression.Compressor
	cache *lru.Cache[uint64, *result.Result]
	last  uint64
}

// RunStoreOption configures a RunStore.
type RunStoreOption func(*RunStore)

// WithCompressor compresses records written from now on. Records are readable
// whatever compressor wrote them.
func WithCompressor(c compression.Compressor) RunStoreOption {
	return func(s *RunStore) {
		s.comp = c
	}
}

// NewRunStore wraps db and recovers the last assigned id.
func NewRunStore(ctx context.Context, db database.DB, cacheSize int, opts ...RunStoreOption) (*RunStore, error) {
	if cacheSize <= 0 {
		cacheSize = 64
	}
	cache, err := lru.New[uint64, *result.Result](cacheSize)
	if err != nil {
		return nil, err
	}
	s := &RunStore{db: db, comp: compression.NoCompressor{}, cache: cache}
	for _, opt := range opts {
		opt(s)
	}
	last, err := s.readLast(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := s.ids(ctx)
	if err != nil {
		return nil, err
	}
	if n := len(ids); n > 0 && ids[n-1] > last {
		last = ids[n-1]
	}
	s.last = last
	return s, nil
}

func (s *RunStore) readLast(ctx context.Context) (uint64, error) {
	data, err := s.db.Read(ctx, lastKey)
	if errors.Is(err, database.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("bad %s record of %d bytes", lastKey, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// Save assigns the next id to res, stores it and returns the id.
func (s *RunStore) Save(ctx context.Context, res *result.Result) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.last + 1
	stored := *res
	stored.ID = id

	var data []byte
	if err := codec.NewEncoderBytes(&data, runHandle).Encode(&stored); err != nil {
		return 0, fmt.Errorf("encode run %d: %w", id, err)
	}
	data, err := compression.Pack(s.comp, data)
	if err != nil {
		return 0, fmt.Errorf("compress run %d: %w", id, err)
	}
	err = s.db.Batch(ctx, []database.BatchOperation{
		{Type: database.BatchPut, Key: runKey(id), Value: data},
		{Type: database.BatchPut, Key: lastKey, Value: binary.BigEndian.AppendUint64(nil, id)},
	})
	if err != nil {
		return 0, fmt.Errorf("write run %d: %w", id, err)
	}
	s.last = id
	res.ID = id
	s.cache.Add(id, &stored)
	return id, nil
}

// Get returns the run with the given id.
func (s *RunStore) Get(ctx context.Context, id uint64) (*result.Result, error) {
	if res, ok := s.cache.Get(id); ok {
		return res, nil
	}
	data, err := s.db.Read(ctx, runKey(id))
	if errors.Is(err, database.ErrKeyNotFound) {
		return nil, fmt.Errorf("run %d: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}
	res, err := decodeRun(data)
	if err != nil {
		return nil, fmt.Errorf("decode run %d: %w", id, err)
	}
	s.cache.Add(id, res)
	return res, nil
}

// Latest returns the stored run with the highest id.
func (s *RunStore) Latest(ctx context.Context) (*result.Result, error) {
	ids, err := s.ids(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoRuns
	}
	return s.Get(ctx, ids[len(ids)-1])
}

// List returns every stored run in id order.
func (s *RunStore) List(ctx context.Context) ([]*result.Result, error) {
	it, err := s.db.Iterator(ctx, []byte(runPrefix), database.PrefixEnd([]byte(runPrefix)))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []*result.Result
	for it.Next() {
		res, err := decodeRun(it.Value())
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", it.Key(), err)
		}
		out = append(out, res)
	}
	return out, it.Error()
}

// Delete removes the run with the given id. Ids are never reused.
func (s *RunStore) Delete(ctx context.Context, id uint64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	s.cache.Remove(id)
	return s.db.Delete(ctx, runKey(id))
}

// Close closes the underlying database.
func (s *RunStore) Close() error {
	s.cache.Purge()
	return s.db.Close()
}

func (s *RunStore) ids(ctx context.Context) ([]uint64, error) {
	it, err := s.db.Iterator(ctx, []byte(runPrefix), database.PrefixEnd([]byte(runPrefix)))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var ids []uint64
	for it.Next() {
		id, err := parseRunKey(it.Key())
		if err != nil {
			return nil, fmt.Errorf("bad run key %q: %w", it.Key(), err)
		}
		ids = append(ids, id)
	}
	return ids, it.Error()
}

func decodeRun(frame []byte) (*result.Result, error) {
	data, err := compression.Unpack(frame)
	if err != nil {
		return nil, err
	}
	res := &result.Result{}
	if err := codec.NewDecoderBytes(data, runHandle).Decode(res); err != nil {
		return nil, err
	}
	return res, nil
}
