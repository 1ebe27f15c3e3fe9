package server

import (
	"encoding/json"
	"sync"
	"testing"
)

// joinAndConnect seats identities 1..n and marks them all connected,
// returning userID -> playerID.
func joinAndConnect(t *testing.T, session *roomSession, n int) map[int]int {
	t.Helper()
	ids := make(map[int]int, n)
	for i := 2; i <= n; i++ {
		if _, err := session.Join(testIdentity(i)); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
	}
	for i := 1; i <= n; i++ {
		playerID, ok := session.MemberID(testIdentity(i))
		if !ok {
			t.Fatalf("member %d not found", i)
		}
		if err := session.Connected(playerID); err != nil {
			t.Fatalf("connect %d: %v", i, err)
		}
		ids[i] = playerID
	}
	return ids
}

func action(t *testing.T, session *roomSession, playerID int, name, payload string) error {
	t.Helper()
	var raw json.RawMessage
	if payload != "" {
		raw = json.RawMessage(payload)
	}
	return session.HandleAction(playerID, name, raw)
}

func mustAction(t *testing.T, session *roomSession, playerID int, name, payload string) {
	t.Helper()
	if err := action(t, session, playerID, name, payload); err != nil {
		t.Fatalf("action %s by player %d: %v", name, playerID, err)
	}
}

func TestFullGameFlow(t *testing.T) {
	srv, _ := newGameServer(t)
	session, err := srv.store.Create(srv, testIdentity(1))
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	ids := joinAndConnect(t, session, 3)

	mustAction(t, session, ids[1], "set_game_settings", `{"topic_id":1,"personality_id":1,"total_rounds":2}`)
	mustAction(t, session, ids[1], "start_game", "")

	roomState(t, session, func(room *Room) {
		if room.GameState != stateInGame || room.RoundPhase != phaseThemeSelection {
			t.Fatalf("unexpected state after start: %s/%s", room.GameState, room.RoundPhase)
		}
		if room.ThemeMasterID != ids[1] {
			t.Fatalf("expected host as first theme master, got %d", room.ThemeMasterID)
		}
	})

	mustAction(t, session, ids[1], "choose_theme_card", "")
	roomState(t, session, func(room *Room) {
		if room.RoundPhase != phaseCardPlaying {
			t.Fatalf("expected CardPlaying, got %s", room.RoundPhase)
		}
		if room.CurrentThemeCard == nil {
			t.Fatal("no theme card installed")
		}
	})

	for _, user := range []int{2, 3} {
		cardID := firstHandCardID(t, session, ids[user])
		mustAction(t, session, ids[user], "play_card", payloadPlayCard(cardID))
	}
	roomState(t, session, func(room *Room) {
		if room.RoundPhase != phaseVoting {
			t.Fatalf("expected Voting, got %s", room.RoundPhase)
		}
	})

	mustAction(t, session, ids[1], "select_winners", payloadWinners(ids[2]))
	roomState(t, session, func(room *Room) {
		if room.RoundPhase != phaseRoundOver {
			t.Fatalf("expected RoundOver, got %s", room.RoundPhase)
		}
		if room.playerByID(ids[2]).Score != firstPlacePoints {
			t.Fatalf("winner score: %d", room.playerByID(ids[2]).Score)
		}
	})

	mustAction(t, session, ids[1], "start_next_round", "")
	roomState(t, session, func(room *Room) {
		if room.CurrentRound != 2 {
			t.Fatalf("expected round 2, got %d", room.CurrentRound)
		}
		if room.ThemeMasterID != ids[2] {
			t.Fatalf("expected rotation to player %d, got %d", ids[2], room.ThemeMasterID)
		}
	})

	mustAction(t, session, ids[2], "choose_theme_card", "")
	for _, user := range []int{1, 3} {
		cardID := firstHandCardID(t, session, ids[user])
		mustAction(t, session, ids[user], "play_card", payloadPlayCard(cardID))
	}
	mustAction(t, session, ids[2], "select_winners", payloadWinners(ids[3]))
	mustAction(t, session, ids[2], "start_next_round", "")

	roomState(t, session, func(room *Room) {
		if room.GameState != stateFinished {
			t.Fatalf("expected Finished, got %s", room.GameState)
		}
	})
}

func payloadPlayCard(cardID int) string {
	data, _ := json.Marshal(playCardPayload{PlayerCardID: cardID})
	return string(data)
}

func payloadWinners(ids ...int) string {
	data, _ := json.Marshal(selectWinnersPayload{WinnerIDs: ids})
	return string(data)
}

func startedSession(t *testing.T, players int) (*Server, *roomSession, map[int]int) {
	t.Helper()
	srv, _ := newGameServer(t)
	session, err := srv.store.Create(srv, testIdentity(1))
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	ids := joinAndConnect(t, session, players)
	mustAction(t, session, ids[1], "set_game_settings", `{"topic_id":1,"personality_id":1,"total_rounds":5}`)
	mustAction(t, session, ids[1], "start_game", "")
	mustAction(t, session, ids[1], "choose_theme_card", "")
	return srv, session, ids
}

func TestSimultaneousPlaysBothApply(t *testing.T) {
	_, session, ids := startedSession(t, 3)

	cards := map[int]int{
		ids[2]: firstHandCardID(t, session, ids[2]),
		ids[3]: firstHandCardID(t, session, ids[3]),
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(cards))
	for playerID, cardID := range cards {
		wg.Add(1)
		go func(playerID, cardID int) {
			defer wg.Done()
			errs <- session.HandleAction(playerID, "play_card", json.RawMessage(payloadPlayCard(cardID)))
		}(playerID, cardID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent play failed: %v", err)
		}
	}

	roomState(t, session, func(room *Room) {
		if len(room.PlayedCards) != 2 {
			t.Fatalf("expected 2 played cards, got %d", len(room.PlayedCards))
		}
		if room.RoundPhase != phaseVoting {
			t.Fatalf("expected Voting, got %s", room.RoundPhase)
		}
	})
}

func TestSecondWinnerSelectionRejected(t *testing.T) {
	_, session, ids := startedSession(t, 3)
	for _, user := range []int{2, 3} {
		cardID := firstHandCardID(t, session, ids[user])
		mustAction(t, session, ids[user], "play_card", payloadPlayCard(cardID))
	}
	mustAction(t, session, ids[1], "select_winners", payloadWinners(ids[2]))
	err := action(t, session, ids[1], "select_winners", payloadWinners(ids[3]))
	if err == nil {
		t.Fatal("second winner selection must be rejected")
	}
	if kind, _ := kindOf(err); kind != errKindPermission {
		t.Fatalf("expected permission error, got %v", err)
	}
	roomState(t, session, func(room *Room) {
		if room.playerByID(ids[3]).Score != 0 {
			t.Fatal("rejected selection must not award points")
		}
	})
}

func TestStartGameFailureRevertsToLobby(t *testing.T) {
	srv, gen := newGameServer(t)
	session, err := srv.store.Create(srv, testIdentity(1))
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	ids := joinAndConnect(t, session, 3)
	mustAction(t, session, ids[1], "set_game_settings", `{"topic_id":1,"personality_id":1,"total_rounds":5}`)

	gen.mu.Lock()
	gen.failures = 2
	gen.mu.Unlock()

	if err := action(t, session, ids[1], "start_game", ""); err == nil {
		t.Fatal("expected start_game to fail")
	} else if kind, _ := kindOf(err); kind != errKindExternal {
		t.Fatalf("expected external error, got %v", err)
	}
	roomState(t, session, func(room *Room) {
		if room.GameState != stateLobby {
			t.Fatalf("failed start must revert to Lobby, got %s", room.GameState)
		}
	})

	mustAction(t, session, ids[1], "start_game", "")
	roomState(t, session, func(room *Room) {
		if room.GameState != stateInGame {
			t.Fatalf("retry should start the game, got %s", room.GameState)
		}
	})
}

func TestThemeWithoutBlankIsRejected(t *testing.T) {
	srv, gen := newGameServer(t)
	session, err := srv.store.Create(srv, testIdentity(1))
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	ids := joinAndConnect(t, session, 3)
	mustAction(t, session, ids[1], "set_game_settings", `{"topic_id":1,"personality_id":1,"total_rounds":5}`)
	mustAction(t, session, ids[1], "start_game", "")

	gen.mu.Lock()
	gen.theme = "a theme card with no blank at all"
	gen.mu.Unlock()

	if err := action(t, session, ids[1], "choose_theme_card", ""); err == nil {
		t.Fatal("theme without a blank must be rejected")
	}
	roomState(t, session, func(room *Room) {
		if room.RoundPhase != phaseThemeSelection {
			t.Fatalf("round must stay in ThemeSelection, got %s", room.RoundPhase)
		}
		if room.GeneratingTheme {
			t.Fatal("generating flag must be cleared after failure")
		}
	})

	gen.mu.Lock()
	gen.theme = ""
	gen.mu.Unlock()
	mustAction(t, session, ids[1], "choose_theme_card", "")
}

func TestCustomThemeEntersCardPlaying(t *testing.T) {
	srv, _ := newGameServer(t)
	session, err := srv.store.Create(srv, testIdentity(1))
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	ids := joinAndConnect(t, session, 3)
	mustAction(t, session, ids[1], "set_game_settings", `{"topic_id":1,"personality_id":1,"total_rounds":5}`)
	mustAction(t, session, ids[1], "start_game", "")

	if err := action(t, session, ids[1], "submit_custom_theme", `{"text":"too short"}`); err == nil {
		t.Fatal("short custom theme must be rejected")
	}
	mustAction(t, session, ids[1], "submit_custom_theme",
		`{"text":"Nobody expects `+blankMarker+` at the office party."}`)
	roomState(t, session, func(room *Room) {
		if room.RoundPhase != phaseCardPlaying {
			t.Fatalf("expected CardPlaying, got %s", room.RoundPhase)
		}
		if room.CurrentThemeCard == nil || room.CurrentThemeCard.CardType != cardTypeTheme {
			t.Fatal("custom theme card not installed")
		}
	})
}

func TestDisconnectAdvancesVotingAndExpiryRemoves(t *testing.T) {
	_, session, ids := startedSession(t, 3)

	cardID := firstHandCardID(t, session, ids[2])
	mustAction(t, session, ids[2], "play_card", payloadPlayCard(cardID))

	session.Disconnected(ids[3])
	roomState(t, session, func(room *Room) {
		if room.RoundPhase != phaseVoting {
			t.Fatalf("disconnect of the last pending player must advance to Voting, got %s", room.RoundPhase)
		}
	})

	// The grace timer would call this after the configured window.
	session.expirePlayer(ids[3])
	roomState(t, session, func(room *Room) {
		if room.playerByID(ids[3]) != nil {
			t.Fatal("expired player still in the roster")
		}
	})
}

func TestAllPlayersDisconnectingEndsRound(t *testing.T) {
	_, session, ids := startedSession(t, 3)

	session.Disconnected(ids[2])
	session.Disconnected(ids[3])
	roomState(t, session, func(room *Room) {
		if room.RoundPhase != phaseRoundOver {
			t.Fatalf("round with no cards to vote on must end, got %s", room.RoundPhase)
		}
		if len(room.PlayedCards) != 0 || len(room.RoundWinners) != 0 {
			t.Fatal("no cards or winners expected")
		}
	})

	mustAction(t, session, ids[1], "start_next_round", "")
	roomState(t, session, func(room *Room) {
		if room.CurrentRound != 2 {
			t.Fatalf("expected round 2, got %d", room.CurrentRound)
		}
	})
}

func TestReconnectBeforeExpiryKeepsSeat(t *testing.T) {
	_, session, ids := startedSession(t, 3)
	session.Disconnected(ids[3])
	if err := session.Connected(ids[3]); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	session.expirePlayer(ids[3])
	roomState(t, session, func(room *Room) {
		if room.playerByID(ids[3]) == nil {
			t.Fatal("reconnected player must keep the seat")
		}
	})
}

func TestLastPlayerExpiryClosesRoom(t *testing.T) {
	srv, _ := newGameServer(t)
	session, err := srv.store.Create(srv, testIdentity(1))
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	playerID, _ := session.MemberID(testIdentity(1))

	session.expirePlayer(playerID)

	if srv.store.Count() != 0 {
		t.Fatalf("expected empty store, got %d rooms", srv.store.Count())
	}
	err = session.HandleAction(playerID, "start_game", nil)
	if kind, _ := kindOf(err); kind != errKindRoomClosed {
		t.Fatalf("expected room closed error, got %v", err)
	}
}

func TestDeckExhaustionClosesRoom(t *testing.T) {
	srv, _ := newGameServer(t)
	srv.cfg.ResponseCardBuffer = 15
	session, err := srv.store.Create(srv, testIdentity(1))
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	ids := joinAndConnect(t, session, 3)
	mustAction(t, session, ids[1], "set_game_settings", `{"topic_id":1,"personality_id":1,"total_rounds":5}`)
	mustAction(t, session, ids[1], "start_game", "")

	// 15 cards cannot cover two hands of 7 plus the next top-up.
	mustAction(t, session, ids[1], "choose_theme_card", "")
	for _, user := range []int{2, 3} {
		cardID := firstHandCardID(t, session, ids[user])
		mustAction(t, session, ids[user], "play_card", payloadPlayCard(cardID))
	}
	mustAction(t, session, ids[1], "select_winners", payloadWinners(ids[2]))
	mustAction(t, session, ids[1], "start_next_round", "")

	err = action(t, session, ids[2], "choose_theme_card", "")
	if !isFatal(err) {
		t.Fatalf("expected fatal deck exhaustion, got %v", err)
	}
	if srv.store.Count() != 0 {
		t.Fatal("fatal error must close the room")
	}
}

func TestUnknownActionRejected(t *testing.T) {
	srv, _ := newGameServer(t)
	session, err := srv.store.Create(srv, testIdentity(1))
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	playerID, _ := session.MemberID(testIdentity(1))
	if err := session.HandleAction(playerID, "do_the_dishes", nil); err == nil {
		t.Fatal("unknown action must be rejected")
	}
}
