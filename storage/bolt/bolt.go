// Package bolt provides a bbolt-backed durable slot for conversation state.
package bolt

import (
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"
)

var bucketName = []byte("slots")

// Slot stores serialized conversation blobs in a single-file bbolt database,
// one key per namespace.
type Slot struct {
	db *bbolt.DB
}

// Open opens the database at path, creating it if needed.
func Open(path string) (*Slot, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening slot database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating slot bucket: %w", err)
	}

	return &Slot{db: db}, nil
}

// Read returns the blob stored under key, reporting absence with ok=false.
func (s *Slot) Read(key string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v != nil {
			out = make([]byte, len(v))
			copy(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("reading slot %s: %w", key, err)
	}
	return out, out != nil, nil
}

// Write stores the blob under key.
func (s *Slot) Write(key string, data []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("writing slot %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Slot) Close() error {
	return s.db.Close()
}
