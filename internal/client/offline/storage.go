package offline

import (
	"context"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"
)

const (
	bucketName = "stallauth"
	// StorageKey is the fixed key the mirror blob is stored under.
	StorageKey = "offline_credentials"
)

// Storage persists the mirror as a single blob. Load returns nil, nil when
// nothing has been saved yet.
type Storage interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// BoltStorage keeps the blob in a bbolt file.
type BoltStorage struct {
	db *bbolt.DB
}

var _ Storage = (*BoltStorage)(nil)

// NewBoltStorage wraps an open bbolt database.
func NewBoltStorage(db *bbolt.DB) *BoltStorage {
	return &BoltStorage{db: db}
}

// OpenBoltStorage opens (or creates) the bbolt file at path.
func OpenBoltStorage(path string, options *bbolt.Options) (*BoltStorage, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening offline store: %w", err)
	}
	return NewBoltStorage(db), nil
}

// Close closes the underlying database.
func (s *BoltStorage) Close() error {
	return s.db.Close()
}

func (s *BoltStorage) Load(_ context.Context) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(StorageKey)); v != nil {
			// v is only valid inside the transaction.
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading offline store: %w", err)
	}
	return data, nil
}

func (s *BoltStorage) Save(_ context.Context, data []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return err
		}
		return b.Put([]byte(StorageKey), data)
	})
	if err != nil {
		return fmt.Errorf("saving offline store: %w", err)
	}
	return nil
}

// MemoryStorage keeps the blob in memory.
type MemoryStorage struct {
	mu   sync.RWMutex
	data []byte
}

var _ Storage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Load(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return nil, nil
	}
	return append([]byte(nil), s.data...), nil
}

func (s *MemoryStorage) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	return nil
}
