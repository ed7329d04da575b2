package refs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketReferences = []byte("references")

// Store persists FileReferences in a bbolt database.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the reference database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open reference db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketReferences)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put saves a reference, assigning an id when absent.
func (s *Store) Put(ref *FileReference) error {
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("failed to encode reference: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReferences).Put([]byte(ref.ID), data)
	})
}

// Get loads a reference by id.
func (s *Store) Get(id string) (*FileReference, error) {
	var ref FileReference
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketReferences).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &ref)
	})
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// List returns all stored references in key order.
func (s *Store) List() ([]FileReference, error) {
	var out []FileReference
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReferences).ForEach(func(_, v []byte) error {
			var ref FileReference
			if err := json.Unmarshal(v, &ref); err != nil {
				// A corrupt record must not hide its siblings.
				return nil
			}
			out = append(out, ref)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a reference. Missing ids are not an error.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReferences).Delete([]byte(id))
	})
}
