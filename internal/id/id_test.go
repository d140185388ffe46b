package id

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var urlSafe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func TestNanoIDLength(t *testing.T) {
	tests := []struct {
		name   string
		length int
		want   int
	}{
		{"default", 0, defaultLength},
		{"negative falls back", -4, defaultLength},
		{"custom", 21, 21},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(tt.length).Generate(context.Background())
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
			assert.Regexp(t, urlSafe, got)
		})
	}
}

func TestNanoIDUnique(t *testing.T) {
	g := New(0)
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		v, err := g.Generate(context.Background())
		require.NoError(t, err)
		_, dup := seen[v]
		require.False(t, dup, "duplicate id %s", v)
		seen[v] = struct{}{}
	}
}

func TestXID(t *testing.T) {
	v, err := XID{}.Generate(context.Background())
	require.NoError(t, err)
	assert.Len(t, v, 20)
	assert.Regexp(t, urlSafe, v)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, g := range []Generator{New(0), XID{}} {
		_, err := g.Generate(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestFromKind(t *testing.T) {
	g, err := FromKind("xid", 0)
	require.NoError(t, err)
	assert.IsType(t, XID{}, g)

	g, err = FromKind("", 8)
	require.NoError(t, err)
	assert.IsType(t, &NanoID{}, g)

	_, err = FromKind("uuid", 0)
	assert.Error(t, err)
}
