package memstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"vanishbin/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store keeps pastes in process memory. Contents are lost on restart.
type Store struct {
	mu     sync.RWMutex
	pastes map[string]*storage.Paste
	closed bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{pastes: make(map[string]*storage.Paste)}
}

// Create stores a copy of paste.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pastes[paste.ID]; ok {
		return storage.ErrDuplicateID
	}
	cp := *paste
	s.pastes[paste.ID] = &cp
	return nil
}

// Get returns a copy of the stored paste.
func (s *Store) Get(ctx context.Context, id string) (*storage.Paste, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pastes[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// UpdateDeadline overwrites the stored deadline.
func (s *Store) UpdateDeadline(ctx context.Context, id string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pastes[id]
	if !ok {
		return storage.ErrNotFound
	}
	p.ExpiresAt = expiresAt.UTC()
	return nil
}

// IncrementViews bumps the view counter while it is below maxViews.
func (s *Store) IncrementViews(ctx context.Context, id string, maxViews int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pastes[id]
	if !ok {
		return 0, storage.ErrNotFound
	}
	if maxViews > 0 && p.Views >= maxViews {
		return p.Views, storage.ErrViewLimitReached
	}
	p.Views++
	return p.Views, nil
}

// Ping fails once the store has been closed.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("memory store closed")
	}
	return nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
