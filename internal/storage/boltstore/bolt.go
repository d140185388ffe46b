package boltstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"vanishbin/internal/storage"
)

var pasteBucket = []byte("pastes")

var _ storage.Store = (*Store)(nil)

// Store implements storage.Store backed by BoltDB.
type Store struct {
	db *bolt.DB
}

// Open initializes a BoltDB-backed store located at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(pasteBucket); err != nil {
			return fmt.Errorf("create paste bucket: %w", err)
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Create persists a new paste. Existing ids are never overwritten.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Normalize timestamps to UTC for consistency.
	paste.CreatedAt = paste.CreatedAt.UTC()
	paste.ExpiresAt = paste.ExpiresAt.UTC()

	data, err := json.Marshal(paste)
	if err != nil {
		return fmt.Errorf("marshal paste: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := pastes(tx)
		if err != nil {
			return err
		}
		if bucket.Get([]byte(paste.ID)) != nil {
			return storage.ErrDuplicateID
		}
		if err := bucket.Put([]byte(paste.ID), data); err != nil {
			return fmt.Errorf("save paste: %w", err)
		}
		return nil
	})
}

// Get retrieves a paste by id.
func (s *Store) Get(ctx context.Context, id string) (*storage.Paste, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out *storage.Paste
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket, err := pastes(tx)
		if err != nil {
			return err
		}
		paste, err := load(bucket, id)
		if err != nil {
			return err
		}
		out = paste
		return nil
	})

	return out, err
}

// UpdateDeadline overwrites the stored deadline of a paste.
func (s *Store) UpdateDeadline(ctx context.Context, id string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.modify(id, func(p *storage.Paste) error {
		p.ExpiresAt = expiresAt.UTC()
		return nil
	})
}

// IncrementViews bumps the view counter inside a single write transaction,
// refusing once the counter has reached maxViews.
func (s *Store) IncrementViews(ctx context.Context, id string, maxViews int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var views int
	err := s.modify(id, func(p *storage.Paste) error {
		views = p.Views
		if maxViews > 0 && p.Views >= maxViews {
			return storage.ErrViewLimitReached
		}
		p.Views++
		views = p.Views
		return nil
	})
	return views, err
}

// Ping checks that the paste bucket is readable.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		_, err := pastes(tx)
		return err
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// modify runs a read-modify-write of one paste in a single transaction.
// bbolt serialises writers, so fn observes the latest committed state.
func (s *Store) modify(id string, fn func(*storage.Paste) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := pastes(tx)
		if err != nil {
			return err
		}
		paste, err := load(bucket, id)
		if err != nil {
			return err
		}
		if err := fn(paste); err != nil {
			return err
		}
		data, err := json.Marshal(paste)
		if err != nil {
			return fmt.Errorf("marshal paste: %w", err)
		}
		if err := bucket.Put([]byte(id), data); err != nil {
			return fmt.Errorf("save paste: %w", err)
		}
		return nil
	})
}

func pastes(tx *bolt.Tx) (*bolt.Bucket, error) {
	bucket := tx.Bucket(pasteBucket)
	if bucket == nil {
		return nil, errors.New("pastes bucket missing")
	}
	return bucket, nil
}

func load(bucket *bolt.Bucket, id string) (*storage.Paste, error) {
	raw := bucket.Get([]byte(id))
	if raw == nil {
		return nil, storage.ErrNotFound
	}
	var paste storage.Paste
	if err := json.Unmarshal(raw, &paste); err != nil {
		return nil, fmt.Errorf("unmarshal paste: %w", err)
	}
	return &paste, nil
}
