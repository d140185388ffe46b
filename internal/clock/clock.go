// Package clock supplies the current time to request handlers so that
// expiration can be tested without sleeping.
package clock

import "time"

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

// Now returns time.Now in UTC.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Func adapts a function to Clock.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time {
	return f()
}

// Fixed returns a Clock that always reports t.
func Fixed(t time.Time) Clock {
	return Func(func() time.Time { return t })
}

// HeaderNowMs carries an injected "now" as unix milliseconds. It is only
// honoured by binaries built with the testclock tag.
const HeaderNowMs = "X-Test-Now-Ms"
