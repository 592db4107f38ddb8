// Package bolt persists application state bundles to a local bbolt file, so
// gateway and data-item state survives a process restart without requiring
// an external database.
package bolt

import (
	"context"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/gboxsw/miniac"
	"github.com/gboxsw/miniac/errors"
	"github.com/gboxsw/miniac/internal/retry"
)

var bucketName = []byte("state")

// Storage is a miniac.PersistentStorage backed by a bbolt file. Every key
// is stored as a JSON-encoded bundle in a single bucket.
type Storage struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bbolt file at path, retrying the
// open per cfg in case another process briefly holds the file lock.
func Open(path string, cfg retry.Config) (*Storage, error) {
	db, err := retry.DoWithResult(context.Background(), cfg, func() (*bolt.DB, error) {
		return bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	})
	if err != nil {
		return nil, errors.WrapFatal(err, "bolt.Storage", "Open")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.WrapFatal(err, "bolt.Storage", "Open")
	}

	return &Storage{db: db}, nil
}

// Close closes the underlying bbolt file.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Load implements miniac.PersistentStorage.
func (s *Storage) Load(key string) (miniac.Bundle, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "bolt.Storage", "Load")
	}
	if raw == nil {
		return nil, nil
	}

	bundle := miniac.NewBundle()
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, errors.WrapTransient(err, "bolt.Storage", "Load")
	}
	return bundle, nil
}

// Save implements miniac.PersistentStorage.
func (s *Storage) Save(key string, bundle miniac.Bundle) error {
	raw, err := json.Marshal(bundle)
	if err != nil {
		return errors.WrapTransient(err, "bolt.Storage", "Save")
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		return b.Put([]byte(key), raw)
	})
	if err != nil {
		return errors.WrapTransient(err, "bolt.Storage", "Save")
	}
	return nil
}
