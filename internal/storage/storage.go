package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a paste does not exist.
	ErrNotFound = errors.New("paste not found")
	// ErrDuplicateID is returned by Create when the id is already taken.
	ErrDuplicateID = errors.New("paste id already exists")
	// ErrViewLimitReached is returned by IncrementViews when the paste has
	// already been served maxViews times.
	ErrViewLimitReached = errors.New("paste view limit reached")
)

// Paste represents a stored paste entry.
//
// TTLSeconds and MaxViews are zero when the paste has no such limit.
// ExpiresAt is the zero time until a deadline has been stored.
type Paste struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	TTLSeconds int       `json:"ttl_seconds,omitempty"`
	MaxViews   int       `json:"max_views,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Views      int       `json:"views"`
}

// HasTTL reports whether the paste carries a time limit.
func (p Paste) HasTTL() bool {
	return p.TTLSeconds > 0
}

// TTL returns the time limit as a duration, or zero.
func (p Paste) TTL() time.Duration {
	if p.TTLSeconds <= 0 {
		return 0
	}
	return time.Duration(p.TTLSeconds) * time.Second
}

// HasViewLimit reports whether the paste carries a view limit.
func (p Paste) HasViewLimit() bool {
	return p.MaxViews > 0
}

// HasExpiration reports whether a deadline has been stored.
func (p Paste) HasExpiration() bool {
	return !p.ExpiresAt.IsZero()
}

// Store defines the storage backend contract.
//
// IncrementViews adds one to the view counter only while the counter is
// below maxViews (maxViews <= 0 means unbounded) and returns the new count.
// The check and the increment happen as one atomic step.
type Store interface {
	Create(ctx context.Context, paste *Paste) error
	Get(ctx context.Context, id string) (*Paste, error)
	UpdateDeadline(ctx context.Context, id string, expiresAt time.Time) error
	IncrementViews(ctx context.Context, id string, maxViews int) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// ToMillis converts t to a unix millisecond timestamp, zero for the zero time.
func ToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromMillis is the inverse of ToMillis.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
