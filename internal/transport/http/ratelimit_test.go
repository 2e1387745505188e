package http

import (
	"context"
	"testing"
	"time"

	"github.com/synctalk/relay/internal/config"
)

func TestRateLimiterCapsWithinWindow(t *testing.T) {
	rl := newRateLimiter(2)

	if !rl.allow() || !rl.allow() {
		t.Fatal("first two connections should pass")
	}
	if rl.allow() {
		t.Fatal("third connection within the window should be rejected")
	}
}

func TestRateLimiterZeroDisables(t *testing.T) {
	rl := newRateLimiter(0)

	for i := 0; i < 100; i++ {
		if !rl.allow() {
			t.Fatalf("connection %d rejected with limit disabled", i)
		}
	}
}

func TestWebSocketConnectionRateLimit(t *testing.T) {
	s := newTestServerWith(t, func(cfg *config.Config) {
		cfg.WSConnPerMinute = 1
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// First dial consumes the window.
	s.dialWS(t, ctx)

	resp, err := s.ts.Client().Get(s.ts.URL + "/ws")
	if err != nil {
		t.Fatalf("second connection attempt: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 429 {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
}
