// Package state persists base snapshots: the rendered content of each
// record as last written by sync. The snapshot is the common ancestor
// for three-way merging when the server does not supply one alongside a
// changed item.
package state

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/alexjbarnes/content-mirror/internal/remote"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the directory holding the
	// snapshot database.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt
	// database lock, so two overlapping invocations fail fast instead
	// of hanging.
	stateOpenTimeout = 5 * time.Second
)

func baseBucket(kind remote.Kind) []byte {
	return []byte("base:" + kind.String())
}

func idKey(id int64) []byte {
	return []byte(strconv.FormatInt(id, 10))
}

// Store wraps a bbolt database holding base snapshots per entity kind.
type Store struct {
	db *bolt.DB
}

// Open opens the snapshot database at the given path, creating it and
// the per-kind buckets if they do not exist.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, kind := range remote.AllKinds() {
			if _, err := tx.CreateBucketIfNotExists(baseBucket(kind)); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Base returns the stored snapshot for a record, or nil if none exists.
func (s *Store) Base(kind remote.Kind, id int64) ([]byte, error) {
	var content []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(baseBucket(kind))
		if b == nil {
			return nil
		}

		v := b.Get(idKey(id))
		if v != nil {
			content = append([]byte(nil), v...)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading base snapshot: %w", err)
	}

	return content, nil
}

// SetBase records the snapshot for a record, replacing any prior value.
func (s *Store) SetBase(kind remote.Kind, id int64, content []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(baseBucket(kind))
		if err != nil {
			return err
		}

		return b.Put(idKey(id), content)
	})
}

// DeleteBase removes the snapshot for a record. Deleting a missing
// entry is not an error.
func (s *Store) DeleteBase(kind remote.Kind, id int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(baseBucket(kind))
		if b == nil {
			return nil
		}

		return b.Delete(idKey(id))
	})
}

// DropKind removes every snapshot for an entity kind. Used by the reset
// entry point.
func (s *Store) DropKind(kind remote.Kind) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(baseBucket(kind)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}

		_, err := tx.CreateBucketIfNotExists(baseBucket(kind))

		return err
	})
}
