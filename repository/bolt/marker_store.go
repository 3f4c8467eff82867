package bolt

import (
	"os"
	"path/filepath"
	"time"

	boltdb "go.etcd.io/bbolt"

	"github.com/stampcard/backend/repository"
)

// Store persists session markers (app version and the like) across restarts.
type Store struct {
	db     *boltdb.DB
	bucket []byte
}

// Open initializes the BoltDB file and ensures the bucket exists.
func Open(path string, bucket string) (*Store, error) {
	if bucket == "" {
		bucket = "markers"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := boltdb.Open(path, 0o600, &boltdb.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *boltdb.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		bucket: []byte(bucket),
	}, nil
}

func (s *Store) Get(key string) (string, error) {
	if s == nil || s.db == nil {
		return "", boltdb.ErrDatabaseNotOpen
	}
	var value string
	err := s.db.View(func(tx *boltdb.Tx) error {
		if raw := tx.Bucket(s.bucket).Get([]byte(key)); raw != nil {
			value = string(raw)
		}
		return nil
	})
	return value, err
}

func (s *Store) Set(key, value string) error {
	if s == nil || s.db == nil {
		return boltdb.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *boltdb.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), []byte(value))
	})
}

func (s *Store) Delete(key string) error {
	if s == nil || s.db == nil {
		return boltdb.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *boltdb.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
}

// Clear drops every marker by recreating the bucket.
func (s *Store) Clear() error {
	if s == nil || s.db == nil {
		return boltdb.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *boltdb.Tx) error {
		if err := tx.DeleteBucket(s.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(s.bucket)
		return err
	})
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ repository.MarkerStore = (*Store)(nil)
