// Package expiry decides whether a paste may still be read.
//
// An Evaluator is a pure function of a stored record and the current time.
// It never touches storage; the caller applies the mutations named in the
// returned Verdict (deadline refresh first, then the view increment).
package expiry

import (
	"fmt"
	"strings"
	"time"

	"vanishbin/internal/storage"
)

// Outcome is the accessibility decision for one read.
type Outcome int

const (
	Available Outcome = iota
	Expired
	ViewLimitExceeded
)

func (o Outcome) String() string {
	switch o {
	case Available:
		return "available"
	case Expired:
		return "expired"
	case ViewLimitExceeded:
		return "view_limit_exceeded"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Verdict is the result of evaluating one read.
type Verdict struct {
	Outcome Outcome

	// RefreshDeadline asks the caller to persist ExpiresAt before the view
	// increment.
	RefreshDeadline bool
	// IncrementViews asks the caller to consume one view.
	IncrementViews bool

	// ExpiresAt is the deadline in force for this read, zero when none.
	ExpiresAt time.Time
	// RemainingViews is max_views - (views + 1) for an available paste with
	// a view limit, nil otherwise.
	RemainingViews *int
}

// Evaluator is an expiration strategy.
type Evaluator interface {
	Evaluate(p storage.Paste, now time.Time) Verdict
	// RequiresConstraint reports whether creation must set a TTL or a view
	// limit.
	RequiresConstraint() bool
	Name() string
}

const (
	NameFixed   = "fixed"
	NameSliding = "sliding"
)

// Parse returns the evaluator registered under name.
func Parse(name string) (Evaluator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameFixed:
		return FixedTTL{}, nil
	case NameSliding:
		return SlidingTTL{}, nil
	default:
		return nil, fmt.Errorf("unknown expiration mode %q (want %s or %s)", name, NameFixed, NameSliding)
	}
}

// FixedTTL measures the TTL from creation. The deadline is never stored.
type FixedTTL struct{}

func (FixedTTL) Name() string { return NameFixed }

func (FixedTTL) RequiresConstraint() bool { return false }

func (FixedTTL) Evaluate(p storage.Paste, now time.Time) Verdict {
	var deadline time.Time
	if p.HasTTL() {
		deadline = p.CreatedAt.Add(p.TTL())
	}
	return gate(p, now, deadline, false)
}

// SlidingTTL measures the TTL from the most recent access. Every read
// moves the deadline to now + TTL before it is checked, so an access never
// expires itself. The stored deadline only decides pastes without a TTL.
type SlidingTTL struct{}

func (SlidingTTL) Name() string { return NameSliding }

func (SlidingTTL) RequiresConstraint() bool { return true }

func (SlidingTTL) Evaluate(p storage.Paste, now time.Time) Verdict {
	deadline := p.ExpiresAt
	refresh := false
	if p.HasTTL() {
		deadline = now.Add(p.TTL())
		refresh = true
	}
	return gate(p, now, deadline, refresh)
}

// gate applies the deadline and view-limit checks shared by both strategies.
func gate(p storage.Paste, now, deadline time.Time, refresh bool) Verdict {
	if !deadline.IsZero() && now.After(deadline) {
		return Verdict{Outcome: Expired, ExpiresAt: deadline}
	}
	v := Verdict{
		RefreshDeadline: refresh,
		ExpiresAt:       deadline,
	}
	if p.HasViewLimit() && p.Views >= p.MaxViews {
		v.Outcome = ViewLimitExceeded
		return v
	}
	v.Outcome = Available
	v.IncrementViews = true
	if p.HasViewLimit() {
		v.RemainingViews = Remaining(p.MaxViews, p.Views+1)
	}
	return v
}

// Remaining returns max - served, floored at zero.
func Remaining(maxViews, served int) *int {
	n := maxViews - served
	if n < 0 {
		n = 0
	}
	return &n
}
