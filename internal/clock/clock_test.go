package clock

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestFixed(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := Fixed(at)
	if !c.Now().Equal(at) {
		t.Fatalf("expected %v got %v", at, c.Now())
	}
}

func TestSystemIsUTC(t *testing.T) {
	if loc := (System{}).Now().Location(); loc != time.UTC {
		t.Fatalf("expected UTC got %v", loc)
	}
}

func TestFromRequestWithoutHeader(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	req := httptest.NewRequest("GET", "/", nil)
	if got := FromRequest(req, Fixed(at)).Now(); !got.Equal(at) {
		t.Fatalf("expected base clock, got %v", got)
	}
}
