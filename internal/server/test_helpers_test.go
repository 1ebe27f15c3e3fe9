package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"blank-slate/internal/config"
)

func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test; listen unavailable: %v", err)
	}
	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	ts.Start()
	return ts
}

// stubGenerator is a deterministic cardGenerator for tests. failures counts
// down before calls start succeeding.
type stubGenerator struct {
	mu       sync.Mutex
	failures int
	theme    string
	calls    int
}

func (g *stubGenerator) ResponseCards(_ context.Context, _, _ string, count int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failures > 0 {
		g.failures--
		return nil, fmt.Errorf("stub generator failure")
	}
	cards := make([]string, count)
	for i := range cards {
		cards[i] = fmt.Sprintf("response card %d", i+1)
	}
	return cards, nil
}

func (g *stubGenerator) ThemeCard(_ context.Context, _, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failures > 0 {
		g.failures--
		return "", fmt.Errorf("stub generator failure")
	}
	if g.theme != "" {
		return g.theme, nil
	}
	return "My favorite thing about Mondays is " + blankMarker + ".", nil
}

// newGameServer builds a server without persistence and with the content
// service stubbed out.
func newGameServer(t *testing.T) (*Server, *stubGenerator) {
	t.Helper()
	cfg := config.Default()
	cfg.ResponseCardBuffer = 60
	srv := New(nil, cfg)
	gen := &stubGenerator{}
	srv.generator = gen
	return srv, gen
}

func testIdentity(n int) Identity {
	return Identity{UserID: int64(n), Username: fmt.Sprintf("player%d", n)}
}

func issueToken(t *testing.T, srv *Server, identity Identity) string {
	t.Helper()
	token, err := srv.auth.Issue(identity, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

// roomState reads a consistent copy of the room through the session worker
// and hands it to the test goroutine, so assertions inside read never run on
// the worker.
func roomState(t *testing.T, session *roomSession, read func(room *Room)) {
	t.Helper()
	var clone Room
	if err := session.exec(func(room *Room) error {
		clone = *room
		clone.Players = append([]Player(nil), room.Players...)
		clone.PlayedCards = append([]PlayedCard(nil), room.PlayedCards...)
		clone.RoundWinners = append([]int(nil), room.RoundWinners...)
		return nil
	}); err != nil {
		t.Fatalf("read room state: %v", err)
	}
	read(&clone)
}

// firstHandCardID returns the id of a player's first hand entry.
func firstHandCardID(t *testing.T, session *roomSession, playerID int) int {
	t.Helper()
	id := 0
	roomState(t, session, func(room *Room) {
		if player := room.playerByID(playerID); player != nil && len(player.Hand) > 0 {
			id = player.Hand[0].ID
		}
	})
	if id == 0 {
		t.Fatalf("player %d has no hand", playerID)
	}
	return id
}
