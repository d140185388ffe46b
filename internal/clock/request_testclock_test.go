//go:build testclock

package clock

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestHeaderOverride(t *testing.T) {
	base := Fixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderNowMs, "1700000005000")

	t.Run("disabled without TEST_MODE", func(t *testing.T) {
		t.Setenv("TEST_MODE", "")
		if got := FromRequest(req, base).Now(); !got.Equal(base.Now()) {
			t.Fatalf("expected base clock, got %v", got)
		}
	})

	t.Run("enabled with TEST_MODE", func(t *testing.T) {
		t.Setenv("TEST_MODE", "1")
		want := time.UnixMilli(1700000005000).UTC()
		if got := FromRequest(req, base).Now(); !got.Equal(want) {
			t.Fatalf("expected %v got %v", want, got)
		}
	})

	t.Run("malformed header falls back", func(t *testing.T) {
		t.Setenv("TEST_MODE", "1")
		bad := httptest.NewRequest("GET", "/", nil)
		bad.Header.Set(HeaderNowMs, "soon")
		if got := FromRequest(bad, base).Now(); !got.Equal(base.Now()) {
			t.Fatalf("expected base clock, got %v", got)
		}
	})
}
