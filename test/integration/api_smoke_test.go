package integration_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kakcer47/BotTG/internal/app/apiapp"
	"github.com/kakcer47/BotTG/internal/config"
)

func newApp(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()

	cfg := config.Default()
	cfg.HTTP.Addr = ":0"
	cfg.StaticDir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}

	app, err := apiapp.New(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("create app: %v", err)
	}

	ts := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = app.Shutdown(ctx)
		ts.Close()
	})
	return ts
}

func TestHealthzReportsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ts := newApp(t, func(cfg *config.Config) {
		cfg.Redis.Addr = mr.Addr()
	})

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", resp.StatusCode, http.StatusOK)
	}

	var payload struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "ok" || payload.Checks["redis"] != "ok" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

// The limiter counts in Redis, so the third mutating request inside a minute
// is refused with a rate_limited error event.
func TestWebsocketRateLimitBackedByRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ts := newApp(t, func(cfg *config.Config) {
		cfg.Redis.Addr = mr.Addr()
		cfg.Rate.RequestsPerMinute = 2
	})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	got := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		msg := map[string]any{"type": "create_post", "user_id": 11, "description": "desk", "category": "home"}
		if err := conn.WriteJSON(msg); err != nil {
			t.Fatalf("write: %v", err)
		}
		got = append(got, readReply(t, conn))
	}

	if got[0] != "post_created" || got[1] != "post_created" {
		t.Fatalf("first two creates should pass, got %v", got)
	}
	if got[2] != "error" {
		t.Fatalf("third create should be throttled, got %v", got)
	}
}

// readReply returns the type of the next frame addressed to this client,
// skipping the post_updated broadcasts that auto-approval produces.
func readReply(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var frame struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read: %v", err)
		}
		if frame.Type != "post_updated" {
			return frame.Type
		}
	}
}
