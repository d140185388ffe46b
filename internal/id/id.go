package id

import (
	"context"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/xid"
)

const defaultLength = 12

// Generator produces unique, URL-safe identifiers.
type Generator interface {
	Generate(ctx context.Context) (string, error)
}

// NanoID generates random ids over the 64-symbol URL-safe alphabet.
type NanoID struct {
	length int
}

// New returns a NanoID generator with the provided length. If length <= 0, a sane default is used.
func New(length int) *NanoID {
	if length <= 0 {
		length = defaultLength
	}
	return &NanoID{length: length}
}

// Generate returns a new identifier.
func (g *NanoID) Generate(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return gonanoid.New(g.length)
}

// XID generates 20-character, time-sortable ids.
type XID struct{}

// Generate returns a new identifier.
func (XID) Generate(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return xid.New().String(), nil
}

// FromKind selects a generator by name ("nanoid" or "xid").
func FromKind(kind string, length int) (Generator, error) {
	switch kind {
	case "", "nanoid":
		return New(length), nil
	case "xid":
		return XID{}, nil
	default:
		return nil, fmt.Errorf("unknown id kind %q", kind)
	}
}
