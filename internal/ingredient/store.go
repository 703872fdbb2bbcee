package ingredient

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	listBucketPrefix = "list:"

	// DefaultList is used when no list name is given
	DefaultList = "shopping"
)

// Store defines the interface for ledger persistence
type Store interface {
	// SaveEntry inserts or replaces an entry
	SaveEntry(entry *Entry) error

	// LoadEntries returns all entries ordered by insertion sequence
	LoadEntries() ([]Entry, error)

	// DeleteEntry removes an entry; deleting a missing entry is not an error
	DeleteEntry(label Label) error

	// Close closes the underlying storage
	Close() error
}

// BoltStore implements the Store interface using BoltDB.
// Each named list lives in its own bucket so a shopping list and a recipe list can share one file.
type BoltStore struct {
	db     *bbolt.DB
	bucket []byte
}

// NewBoltStore opens (or creates) the database file and the bucket for the named list
func NewBoltStore(path string, list string) (*BoltStore, error) {
	if list == "" {
		list = DefaultList
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	bucket := []byte(listBucketPrefix + list)
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltStore{db: db, bucket: bucket}, nil
}

// SaveEntry saves an entry keyed by its label
func (b *BoltStore) SaveEntry(entry *Entry) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshaling entry: %w", err)
		}
		return bucket.Put([]byte(entry.Label), data)
	})
}

// LoadEntries returns all entries of the list in insertion order
func (b *BoltStore) LoadEntries() ([]Entry, error) {
	entries := make([]Entry, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		return bucket.ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshaling entry %s: %w", k, err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Sequence < entries[j].Sequence
	})
	return entries, nil
}

// DeleteEntry removes an entry from the list
func (b *BoltStore) DeleteEntry(label Label) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(b.bucket).Delete([]byte(label))
	})
}

// Close closes the database connection
func (b *BoltStore) Close() error {
	return b.db.Close()
}
