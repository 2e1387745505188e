package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/synctalk/relay/internal/auth"
	"github.com/synctalk/relay/internal/config"
	"github.com/synctalk/relay/internal/log"
	"github.com/synctalk/relay/internal/proto"
	"github.com/synctalk/relay/internal/relay"
	"github.com/synctalk/relay/internal/store"
	"github.com/synctalk/relay/internal/store/sqlite"
)

type testServer struct {
	ts    *httptest.Server
	store store.Store
	auth  *auth.Service
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, tweak func(*config.Config)) *testServer {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := log.Nop()
	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.SessionBuffer = 16
	if tweak != nil {
		tweak(&cfg)
	}

	sessions := NewSessionTable(cfg.SessionBuffer, logger)
	rl := relay.New(sessions, testAuthorizer{store: st}, logger)

	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })

	server := NewServer(rl, sessions, authService, st, cfg, stop, logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{ts: ts, store: st, auth: authService}
}

// testAuthorizer mirrors the app wiring: conversation participants decide
// room membership.
type testAuthorizer struct {
	store store.Store
}

func (a testAuthorizer) IsMember(ctx context.Context, userID int64, roomID string) (bool, error) {
	var conversationID int64
	if _, err := fmt.Sscanf(roomID, "%d", &conversationID); err != nil {
		return false, nil
	}
	return a.store.IsParticipant(ctx, conversationID, userID)
}

// registerUser creates an account through the REST API and returns its token
// and user ID.
func (s *testServer) registerUser(t *testing.T, username string) (token string, userID int64) {
	t.Helper()

	body, _ := json.Marshal(RegisterRequest{Username: username, Password: "password123"})
	resp, err := s.ts.Client().Post(s.ts.URL+"/api/auth/register", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 201 {
		t.Fatalf("register %s: unexpected status %d", username, resp.StatusCode)
	}

	var authResp AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		t.Fatalf("decode auth response: %v", err)
	}

	claims, err := s.auth.ValidateToken(authResp.Token)
	if err != nil {
		t.Fatalf("validate issued token: %v", err)
	}
	return authResp.Token, claims.UserID
}

// dialWS opens a WebSocket session against the test server.
func (s *testServer) dialWS(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(s.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendInbound(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", msgType, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: payload}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// outboundFrame mirrors proto.Outbound with raw data for test decoding.
type outboundFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// readFrame reads a single frame, returning the context error on timeout.
func readFrame(ctx context.Context, conn *websocket.Conn, frame *outboundFrame) error {
	return wsjson.Read(ctx, conn, frame)
}

// mustRead reads frames until one matches the wanted type/event pair.
func mustRead(t *testing.T, ctx context.Context, conn *websocket.Conn, frameType, event string) outboundFrame {
	t.Helper()

	for {
		var frame outboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("read waiting for %s/%s: %v", frameType, event, err)
		}
		if frame.Type == frameType && (event == "" || frame.Event == event) {
			return frame
		}
	}
}
