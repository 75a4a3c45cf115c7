package storage

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var levelDBOptions = opt.Options{
	Compression:            opt.NoCompression,
	DisableSeeksCompaction: true,
}

// LevelDBStore is a KV backed by a leveldb database directory.
type LevelDBStore struct {
	ldb *leveldb.DB
}

var _ KV = (*LevelDBStore)(nil)

// OpenLevelDBStore opens or creates the leveldb database in dir. A corrupted
// database is recovered before use.
func OpenLevelDBStore(dir string, logger zerolog.Logger) (*LevelDBStore, error) {
	ldb, err := leveldb.OpenFile(dir, &levelDBOptions)
	if ldberrors.IsCorrupted(err) {
		logger.Warn().Str("path", dir).Err(err).Msg("leveldb corruption detected")
		ldb, err = leveldb.RecoverFile(dir, &levelDBOptions)
		if err == nil {
			logger.Warn().Str("path", dir).Msg("leveldb recovered from corruption")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open leveldb: %w", err)
	}
	return &LevelDBStore{ldb: ldb}, nil
}

func (s *LevelDBStore) Get(key []byte) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	data, err := s.ldb.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *LevelDBStore) Put(key, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return s.ldb.Put(key, value, nil)
}

func (s *LevelDBStore) Delete(key []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return s.ldb.Delete(key, nil)
}

func (s *LevelDBStore) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	iter := s.ldb.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		if err := fn(clone(iter.Key()), clone(iter.Value())); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Close closes the underlying database.
func (s *LevelDBStore) Close() error { return s.ldb.Close() }
