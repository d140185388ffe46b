//go:build !testclock

package clock

import "net/http"

// FromRequest returns base. Production builds never read time from requests.
func FromRequest(_ *http.Request, base Clock) Clock {
	return base
}

// OverrideEnabled reports whether request time overrides are compiled in.
func OverrideEnabled() bool {
	return false
}
