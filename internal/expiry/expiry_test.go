package expiry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vanishbin/internal/storage"
)

var t0 = time.UnixMilli(1_700_000_000_000).UTC()

func paste(ttl, maxViews, views int) storage.Paste {
	return storage.Paste{
		ID:         "abc",
		Content:    "x",
		TTLSeconds: ttl,
		MaxViews:   maxViews,
		CreatedAt:  t0,
		Views:      views,
	}
}

func ms(n int64) time.Duration { return time.Duration(n) * time.Millisecond }

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Evaluator
		wantErr bool
	}{
		{"fixed", FixedTTL{}, false},
		{"SLIDING", SlidingTTL{}, false},
		{" sliding ", SlidingTTL{}, false},
		{"", nil, true},
		{"lru", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequiresConstraint(t *testing.T) {
	assert.False(t, FixedTTL{}.RequiresConstraint())
	assert.True(t, SlidingTTL{}.RequiresConstraint())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "available", Available.String())
	assert.Equal(t, "expired", Expired.String())
	assert.Equal(t, "view_limit_exceeded", ViewLimitExceeded.String())
	assert.Equal(t, "outcome(9)", Outcome(9).String())
}

func TestFixedTTL(t *testing.T) {
	tests := []struct {
		name        string
		p           storage.Paste
		now         time.Time
		want        Outcome
		wantExpires time.Time
		wantRemain  *int
	}{
		{
			name:        "before deadline",
			p:           paste(10, 0, 0),
			now:         t0.Add(9 * time.Second),
			want:        Available,
			wantExpires: t0.Add(10 * time.Second),
		},
		{
			name:        "exactly at deadline",
			p:           paste(10, 0, 0),
			now:         t0.Add(10 * time.Second),
			want:        Available,
			wantExpires: t0.Add(10 * time.Second),
		},
		{
			name:        "after deadline",
			p:           paste(10, 0, 0),
			now:         t0.Add(11 * time.Second),
			want:        Expired,
			wantExpires: t0.Add(10 * time.Second),
		},
		{
			name:       "last view",
			p:          paste(0, 3, 2),
			now:        t0,
			want:       Available,
			wantRemain: intPtr(0),
		},
		{
			name: "views exhausted",
			p:    paste(0, 3, 3),
			now:  t0,
			want: ViewLimitExceeded,
		},
		{
			name: "expiry wins over exhaustion",
			p:    paste(10, 1, 1),
			now:  t0.Add(time.Minute),
			want: Expired,
			// deadline still reported for rendering
			wantExpires: t0.Add(10 * time.Second),
		},
		{
			name: "immortal",
			p:    paste(0, 0, 1_000_000),
			now:  t0.Add(24 * 365 * time.Hour),
			want: Available,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := FixedTTL{}.Evaluate(tt.p, tt.now)
			assert.Equal(t, tt.want, v.Outcome)
			assert.False(t, v.RefreshDeadline, "fixed never refreshes")
			assert.Equal(t, tt.want == Available, v.IncrementViews)
			assert.True(t, tt.wantExpires.Equal(v.ExpiresAt), "expires_at %v want %v", v.ExpiresAt, tt.wantExpires)
			assert.Equal(t, tt.wantRemain, v.RemainingViews)
		})
	}
}

func TestSlidingTTL(t *testing.T) {
	t.Run("first read sets deadline from access time", func(t *testing.T) {
		now := t0.Add(ms(5000))
		v := SlidingTTL{}.Evaluate(paste(10, 0, 0), now)
		assert.Equal(t, Available, v.Outcome)
		assert.True(t, v.RefreshDeadline)
		assert.True(t, v.IncrementViews)
		assert.True(t, v.ExpiresAt.Equal(t0.Add(ms(15000))))
	})

	t.Run("read long after creation never self-expires", func(t *testing.T) {
		v := SlidingTTL{}.Evaluate(paste(10, 0, 0), t0.Add(time.Hour))
		assert.Equal(t, Available, v.Outcome)
		assert.True(t, v.ExpiresAt.Equal(t0.Add(time.Hour+10*time.Second)))
	})

	t.Run("read before stored deadline extends it", func(t *testing.T) {
		p := paste(10, 0, 1)
		p.ExpiresAt = t0.Add(ms(15000))
		now := t0.Add(ms(14999))
		v := SlidingTTL{}.Evaluate(p, now)
		assert.Equal(t, Available, v.Outcome)
		assert.True(t, v.RefreshDeadline)
		assert.True(t, v.ExpiresAt.Equal(now.Add(10*time.Second)))
	})

	t.Run("read after stored deadline re-arms it", func(t *testing.T) {
		p := paste(10, 0, 1)
		p.ExpiresAt = t0.Add(ms(15000))
		now := t0.Add(ms(20000))
		v := SlidingTTL{}.Evaluate(p, now)
		assert.Equal(t, Available, v.Outcome)
		assert.True(t, v.RefreshDeadline)
		assert.True(t, v.IncrementViews)
		assert.True(t, v.ExpiresAt.Equal(t0.Add(ms(30000))))
	})

	t.Run("stored deadline without ttl still expires", func(t *testing.T) {
		p := paste(0, 5, 1)
		p.ExpiresAt = t0.Add(ms(15000))
		v := SlidingTTL{}.Evaluate(p, t0.Add(ms(15001)))
		assert.Equal(t, Expired, v.Outcome)
		assert.False(t, v.RefreshDeadline)
		assert.False(t, v.IncrementViews)
	})

	t.Run("exhausted still refreshes but does not consume", func(t *testing.T) {
		p := paste(10, 2, 2)
		v := SlidingTTL{}.Evaluate(p, t0.Add(time.Second))
		assert.Equal(t, ViewLimitExceeded, v.Outcome)
		assert.True(t, v.RefreshDeadline)
		assert.False(t, v.IncrementViews)
	})

	t.Run("view limit without ttl", func(t *testing.T) {
		v := SlidingTTL{}.Evaluate(paste(0, 2, 0), t0)
		assert.Equal(t, Available, v.Outcome)
		assert.False(t, v.RefreshDeadline)
		assert.True(t, v.ExpiresAt.IsZero())
		require.NotNil(t, v.RemainingViews)
		assert.Equal(t, 1, *v.RemainingViews)
	})
}

// Scenario: {content:"x", ttl_seconds:10} created at T0, read at T0+5s and
// again at T0+11s.
func TestTTLScenario(t *testing.T) {
	t.Run("fixed", func(t *testing.T) {
		p := paste(10, 0, 0)
		first := FixedTTL{}.Evaluate(p, t0.Add(ms(5000)))
		require.Equal(t, Available, first.Outcome)
		assert.True(t, first.ExpiresAt.Equal(t0.Add(ms(10000))))

		p.Views++
		second := FixedTTL{}.Evaluate(p, t0.Add(ms(11000)))
		assert.Equal(t, Expired, second.Outcome)
	})

	t.Run("sliding", func(t *testing.T) {
		p := paste(10, 0, 0)
		first := SlidingTTL{}.Evaluate(p, t0.Add(ms(5000)))
		require.Equal(t, Available, first.Outcome)
		assert.True(t, first.ExpiresAt.Equal(t0.Add(ms(15000))))

		p.Views++
		p.ExpiresAt = first.ExpiresAt
		second := SlidingTTL{}.Evaluate(p, t0.Add(ms(11000)))
		assert.Equal(t, Available, second.Outcome)
		assert.True(t, second.ExpiresAt.Equal(t0.Add(ms(21000))))
	})
}

// Exactly N reads succeed and remaining_views counts down to zero.
func TestMaxViewsCountdown(t *testing.T) {
	for _, ev := range []Evaluator{FixedTTL{}, SlidingTTL{}} {
		t.Run(ev.Name(), func(t *testing.T) {
			const n = 4
			p := paste(0, n, 0)
			for i := 0; i < n; i++ {
				v := ev.Evaluate(p, t0)
				require.Equal(t, Available, v.Outcome, "read %d", i+1)
				require.NotNil(t, v.RemainingViews)
				assert.Equal(t, n-(i+1), *v.RemainingViews)
				p.Views++
			}
			assert.Equal(t, ViewLimitExceeded, ev.Evaluate(p, t0).Outcome)
		})
	}
}

func TestRemainingFloorsAtZero(t *testing.T) {
	assert.Equal(t, 0, *Remaining(2, 5))
	assert.Equal(t, 1, *Remaining(2, 1))
}

func intPtr(n int) *int { return &n }
