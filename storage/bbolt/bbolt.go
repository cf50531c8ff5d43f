// Package bbolt provides a BBolt-backed token store.
package bbolt

import (
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/occasio/occasio/storage"
)

// DefaultProfile is the bucket used when no profile name is given.
const DefaultProfile = "default"

// Store implements storage.TokenStore backed by a BBolt database. Each
// profile gets its own bucket so several accounts can share one file.
type Store struct {
	db     *bbolt.DB
	bucket []byte
	owned  bool
}

var _ storage.TokenStore = (*Store)(nil)

// NewStore returns a Store for profile backed by the given BBolt database.
// The caller keeps ownership of db.
func NewStore(db *bbolt.DB, profile string) *Store {
	if profile == "" {
		profile = DefaultProfile
	}
	return &Store{db: db, bucket: []byte(profile)}
}

// NewStoreFromFile opens a BBolt database at the given path and returns a
// Store for profile. Close releases the file lock.
func NewStoreFromFile(path, profile string, options *bbolt.Options) (*Store, error) {
	if options == nil {
		// Another CLI process may hold the lock briefly; don't block forever.
		options = &bbolt.Options{Timeout: 2 * time.Second}
	}
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s := NewStore(db, profile)
	s.owned = true
	return s, nil
}

// Close closes the underlying BBolt database if the Store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return fmt.Errorf("%s/%s: %w", s.bucket, key, storage.ErrNotFound)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s/%s: %w", s.bucket, key, storage.ErrNotFound)
		}
		// data is only valid inside the transaction.
		value = string(data)
		return nil
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Store) Set(key, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), []byte(value))
	})
}

func (s *Store) Delete(keys ...string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		for _, k := range keys {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Profiles lists the profiles that have stored state in the database.
func (s *Store) Profiles() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// DropProfile removes every key stored for the Store's profile.
func (s *Store) DropProfile() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket(s.bucket)
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}
