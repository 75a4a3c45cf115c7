package storage

import (
	"bytes"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var bucketKV = []byte("kv")

// BoltStore is a KV backed by a single bbolt bucket.
type BoltStore struct {
	db *bbolt.DB
}

var _ KV = (*BoltStore)(nil)

// OpenBoltStore opens or creates the bbolt database file at dbPath.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open bolt db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketKV); err != nil {
			return fmt.Errorf("storage: create bucket %q: %w", bucketKV, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Get returns a copy of the value stored under key.
func (s *BoltStore) Get(key []byte) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketKV).Get(key)
		if v == nil {
			return ErrNotFound
		}
		out = clone(v)
		return nil
	})
	return out, err
}

func (s *BoltStore) Put(key, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketKV).Put(key, value); err != nil {
			return fmt.Errorf("storage: bolt put: %w", err)
		}
		return nil
	})
}

func (s *BoltStore) Delete(key []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketKV).Delete(key)
	})
}

func (s *BoltStore) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketKV).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := fn(clone(k), clone(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }
