//go:build testclock

package clock

import (
	"net/http"
	"os"
	"strconv"
	"time"
)

// FromRequest returns a fixed clock at the X-Test-Now-Ms header value when
// TEST_MODE=1 is set in the environment, and base otherwise.
func FromRequest(r *http.Request, base Clock) Clock {
	if os.Getenv("TEST_MODE") != "1" {
		return base
	}
	raw := r.Header.Get(HeaderNowMs)
	if raw == "" {
		return base
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return base
	}
	return Fixed(time.UnixMilli(ms).UTC())
}

// OverrideEnabled reports whether request time overrides are compiled in.
func OverrideEnabled() bool {
	return true
}
