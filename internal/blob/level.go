package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelStore keeps blobs in a goleveldb database.
type LevelStore struct {
	db *leveldb.DB
}

// OpenLevelStore opens or creates the database at path.
func OpenLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{ErrorIfExist: false})
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelStore{db: db}, nil
}

// Close releases the database.
func (l *LevelStore) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *LevelStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := l.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return data, nil
}

func (l *LevelStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.db.Put([]byte(key), data, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (l *LevelStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := l.db.Has([]byte(key), nil)
	if err != nil {
		return false, fmt.Errorf("has %s: %w", key, err)
	}
	return ok, nil
}
