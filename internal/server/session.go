package server

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"
)

// roomSession owns one room's state. A single worker goroutine consumes a
// task mailbox, so actions for a room apply strictly one at a time and in
// receipt order; rooms stay fully parallel with each other. Connection read
// loops and REST handlers only enqueue work here, never touch the Room.
type roomSession struct {
	code string
	srv  *Server
	room *Room

	tasks chan *sessionTask
	quit  chan struct{}
	stop  sync.Once

	timersMu    sync.Mutex
	graceTimers map[int]*time.Timer
}

type sessionTask struct {
	fn   func(room *Room) error
	done chan error
}

func newRoomSession(srv *Server, room *Room) *roomSession {
	s := &roomSession{
		code:        room.Code,
		srv:         srv,
		room:        room,
		tasks:       make(chan *sessionTask, 32),
		quit:        make(chan struct{}),
		graceTimers: make(map[int]*time.Timer),
	}
	go s.loop()
	return s
}

func (s *roomSession) loop() {
	defer s.drainTasks()
	for {
		select {
		case t := <-s.tasks:
			s.runTask(t)
		case <-s.quit:
			return
		}
	}
}

// runTask applies one task. A panic inside a task is contained to this room:
// the worker logs it, answers the caller, and tears the room down cleanly.
func (s *roomSession) runTask(t *sessionTask) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("room worker panic room=%s panic=%v", s.code, r)
			t.done <- errFatal("the room hit an internal error")
			s.teardown("The room hit an internal error and was closed.")
		}
	}()
	err := t.fn(s.room)
	if isFatal(err) {
		endGame(s.room)
		s.srv.recordEvent(s.room, "room_failed", map[string]any{"reason": userMessage(err)})
	}
	t.done <- err
	if isFatal(err) {
		s.teardown(userMessage(err))
	}
}

// exec runs fn on the session worker and waits for the result. Tasks queued
// behind a suspended action (for example a theme card generation) stay
// ordered; tasks still queued when the room closes resolve to errRoomClosed.
func (s *roomSession) exec(fn func(room *Room) error) error {
	t := &sessionTask{fn: fn, done: make(chan error, 1)}
	select {
	case s.tasks <- t:
	case <-s.quit:
		return errRoomClosed
	}
	select {
	case err := <-t.done:
		return err
	case <-s.quit:
		// The worker may still answer while shutting down.
		select {
		case err := <-t.done:
			return err
		default:
			return errRoomClosed
		}
	}
}

func (s *roomSession) drainTasks() {
	for {
		select {
		case t := <-s.tasks:
			t.done <- errRoomClosed
		default:
			return
		}
	}
}

// teardown closes the room exactly once: unregisters it, notifies every
// attached connection, and stops the worker. Safe to call from any
// goroutine, including the worker itself.
func (s *roomSession) teardown(message string) {
	s.stop.Do(func() {
		s.timersMu.Lock()
		for _, timer := range s.graceTimers {
			timer.Stop()
		}
		s.graceTimers = map[int]*time.Timer{}
		s.timersMu.Unlock()

		s.srv.store.Remove(s.code)
		s.srv.registry.CloseRoom(s.code, message)
		log.Printf("room closed room=%s reason=%q", s.code, message)
		close(s.quit)
	})
}

// --- lifecycle entry points (REST + connection registry) ---

// Join adds or reconnects an identity and returns the public snapshot. A
// freshly joined player starts a grace timer; if no connection attaches
// before it fires, the seat is released again.
func (s *roomSession) Join(identity Identity) (map[string]any, error) {
	var snap map[string]any
	err := s.exec(func(room *Room) error {
		player, err := addPlayer(room, identity)
		if err != nil {
			return err
		}
		if !player.Connected {
			s.scheduleExpiry(player.ID)
		}
		snap = publicSnapshot(room)
		s.broadcast(room)
		return nil
	})
	return snap, err
}

// SnapshotFor returns the public snapshot to a room member.
func (s *roomSession) SnapshotFor(identity Identity) (map[string]any, error) {
	var snap map[string]any
	err := s.exec(func(room *Room) error {
		if room.playerByUser(identity.UserID) == nil {
			return errPermission("you are not a member of this room")
		}
		snap = publicSnapshot(room)
		return nil
	})
	return snap, err
}

// MemberID resolves an identity to its player id, if any.
func (s *roomSession) MemberID(identity Identity) (int, bool) {
	playerID := 0
	err := s.exec(func(room *Room) error {
		player := room.playerByUser(identity.UserID)
		if player == nil {
			return errNotFound("player is not in this room")
		}
		playerID = player.ID
		return nil
	})
	return playerID, err == nil
}

// Connected marks a player's connection live and pushes the current state
// and private hand to that connection only.
func (s *roomSession) Connected(playerID int) error {
	return s.exec(func(room *Room) error {
		player := room.playerByID(playerID)
		if player == nil {
			return errNotFound("player is not in this room")
		}
		player.Connected = true
		s.cancelExpiry(playerID)
		s.srv.registry.SendTo(room.Code, player.UserID, pushEnvelope("game_state_update", publicSnapshot(room)))
		s.srv.registry.SendTo(room.Code, player.UserID, pushEnvelope("player_hand_update", handPayload(player)))
		s.broadcast(room)
		return nil
	})
}

// Disconnected marks a player offline and starts the removal grace timer.
// An offline player no longer counts toward the CardPlaying quorum, so the
// round advances if everyone else already submitted.
func (s *roomSession) Disconnected(playerID int) {
	_ = s.exec(func(room *Room) error {
		player := room.playerByID(playerID)
		if player == nil {
			return nil
		}
		player.Connected = false
		s.scheduleExpiry(playerID)
		maybeAdvanceToVoting(room)
		s.broadcast(room)
		return nil
	})
}

func (s *roomSession) scheduleExpiry(playerID int) {
	grace := time.Duration(s.srv.cfg.DisconnectGraceSeconds) * time.Second
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if existing, ok := s.graceTimers[playerID]; ok {
		existing.Stop()
	}
	s.graceTimers[playerID] = time.AfterFunc(grace, func() {
		s.expirePlayer(playerID)
	})
}

func (s *roomSession) cancelExpiry(playerID int) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if timer, ok := s.graceTimers[playerID]; ok {
		timer.Stop()
		delete(s.graceTimers, playerID)
	}
}

// expirePlayer removes a player whose grace window lapsed without a
// reconnect. Removing the last player destroys the room.
func (s *roomSession) expirePlayer(playerID int) {
	empty := false
	err := s.exec(func(room *Room) error {
		player := room.playerByID(playerID)
		if player == nil || player.Connected {
			return nil
		}
		username := player.Username
		result := removePlayer(room, playerID)
		empty = result.Empty
		log.Printf("player removed room=%s player_id=%d username=%s host_changed=%v round_reset=%v",
			room.Code, playerID, username, result.HostChanged, result.RoundReset)
		if !empty {
			s.broadcast(room)
			if result.RoundReset {
				s.pushAllHands(room)
			}
		}
		return nil
	})
	if err == nil && empty {
		s.srv.recordEventByCode(s.code, "room_closed", map[string]any{"reason": "empty"})
		s.teardown("The room has been closed.")
	}
}

// --- wire actions ---

type settingsPayload struct {
	TopicID       int64 `json:"topic_id"`
	PersonalityID int64 `json:"personality_id"`
	TotalRounds   int   `json:"total_rounds"`
}

type customThemePayload struct {
	Text string `json:"text"`
}

type playCardPayload struct {
	PlayerCardID int `json:"player_card_id"`
}

type selectWinnersPayload struct {
	WinnerIDs []int `json:"winner_ids"`
}

// HandleAction applies one client action for playerID. The returned error is
// already classified; callers push it to the acting connection only.
func (s *roomSession) HandleAction(playerID int, action string, payload json.RawMessage) error {
	switch action {
	case "set_game_settings":
		var req settingsPayload
		if err := unmarshalPayload(payload, &req); err != nil {
			return err
		}
		return s.setGameSettings(playerID, req)
	case "start_game":
		return s.startGame(playerID)
	case "choose_theme_card":
		return s.chooseThemeCard(playerID)
	case "submit_custom_theme":
		var req customThemePayload
		if err := unmarshalPayload(payload, &req); err != nil {
			return err
		}
		return s.submitCustomTheme(playerID, req.Text)
	case "play_card":
		var req playCardPayload
		if err := unmarshalPayload(payload, &req); err != nil {
			return err
		}
		return s.playCard(playerID, req.PlayerCardID)
	case "select_winners":
		var req selectWinnersPayload
		if err := unmarshalPayload(payload, &req); err != nil {
			return err
		}
		return s.selectWinners(playerID, req.WinnerIDs)
	case "start_next_round":
		return s.startNextRound(playerID)
	default:
		return errValidation("unknown action %q", action)
	}
}

func unmarshalPayload(payload json.RawMessage, out any) error {
	if len(payload) == 0 {
		return errValidation("missing action payload")
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return errValidation("malformed action payload")
	}
	return nil
}

func (s *roomSession) setGameSettings(playerID int, req settingsPayload) error {
	return s.exec(func(room *Room) error {
		actor := room.playerByID(playerID)
		if actor == nil {
			return errNotFound("player is not in this room")
		}
		if _, err := s.srv.catalog.Topic(req.TopicID); err != nil {
			return errValidation("that topic does not exist")
		}
		if _, err := s.srv.catalog.Personality(req.PersonalityID); err != nil {
			return errValidation("that personality does not exist")
		}
		if err := applySettings(room, playerID, req.TopicID, req.PersonalityID, req.TotalRounds); err != nil {
			return err
		}
		log.Printf("settings updated room=%s host=%s topic_id=%d personality_id=%d rounds=%d",
			room.Code, actor.Username, req.TopicID, req.PersonalityID, req.TotalRounds)
		s.broadcast(room)
		return nil
	})
}

// startGame generates the response deck before entering the first round. The
// room surfaces the Generating state while the worker waits on the content
// service; queued actions are applied afterwards, in order.
func (s *roomSession) startGame(playerID int) error {
	return s.exec(func(room *Room) error {
		if err := startGameChecks(room, playerID); err != nil {
			return err
		}
		topic, personality, err := s.roomContent(room)
		if err != nil {
			return err
		}

		room.GameState = stateGenerating
		s.broadcast(room)

		texts, genErr := s.generateResponses(topic.Prompt, personality.TemplatePrompt, s.srv.cfg.ResponseCardBuffer)
		if genErr != nil {
			room.GameState = stateLobby
			s.broadcast(room)
			return errExternal("card generation failed, try again", genErr)
		}

		beginGame(room, texts)
		s.srv.recordEvent(room, "game_started", map[string]any{
			"players": len(room.Players),
			"rounds":  room.TotalRounds,
		})
		log.Printf("game started room=%s players=%d rounds=%d deck=%d",
			room.Code, len(room.Players), room.TotalRounds, len(room.DrawPile))
		s.broadcast(room)
		return nil
	})
}

// chooseThemeCard asks the content service for this round's theme card. The
// generating flag is broadcast before the await so clients can block on it,
// and cleared again on both outcomes.
func (s *roomSession) chooseThemeCard(playerID int) error {
	return s.exec(func(room *Room) error {
		if err := themeSelectionChecks(room, playerID); err != nil {
			return err
		}
		topic, personality, err := s.roomContent(room)
		if err != nil {
			return err
		}

		room.GeneratingTheme = true
		s.broadcast(room)

		text, genErr := s.generateTheme(topic.Prompt, personality.TemplatePrompt)
		room.GeneratingTheme = false
		if genErr != nil {
			s.broadcast(room)
			return errExternal("theme card generation failed, try again", genErr)
		}

		card := Card{ID: room.nextCardID, Text: text, CardType: cardTypeTheme}
		room.nextCardID++
		return s.finishThemeSelection(room, card)
	})
}

func (s *roomSession) submitCustomTheme(playerID int, text string) error {
	return s.exec(func(room *Room) error {
		if err := themeSelectionChecks(room, playerID); err != nil {
			return err
		}
		cleaned, err := validateCustomTheme(text)
		if err != nil {
			return err
		}
		card := Card{ID: room.nextCardID, Text: cleaned, CardType: cardTypeTheme}
		room.nextCardID++
		return s.finishThemeSelection(room, card)
	})
}

func (s *roomSession) finishThemeSelection(room *Room, card Card) error {
	changed, err := installTheme(room, card)
	if err != nil {
		return err
	}
	log.Printf("theme installed room=%s round=%d theme_master_id=%d", room.Code, room.CurrentRound, room.ThemeMasterID)
	s.broadcast(room)
	s.pushHands(room, changed)
	return nil
}

func (s *roomSession) playCard(playerID, handCardID int) error {
	return s.exec(func(room *Room) error {
		advanced, err := playCard(room, playerID, handCardID)
		if err != nil {
			return err
		}
		if advanced {
			log.Printf("voting started room=%s round=%d cards=%d", room.Code, room.CurrentRound, len(room.PlayedCards))
		}
		s.broadcast(room)
		s.pushHands(room, []int{playerID})
		return nil
	})
}

func (s *roomSession) selectWinners(playerID int, winnerIDs []int) error {
	return s.exec(func(room *Room) error {
		if err := selectWinners(room, playerID, winnerIDs); err != nil {
			return err
		}
		s.srv.recordEvent(room, "round_completed", map[string]any{
			"round":   room.CurrentRound,
			"winners": winnerIDs,
		})
		log.Printf("winners selected room=%s round=%d winners=%v", room.Code, room.CurrentRound, winnerIDs)
		s.broadcast(room)
		return nil
	})
}

func (s *roomSession) startNextRound(playerID int) error {
	return s.exec(func(room *Room) error {
		changed, err := startNextRound(room, playerID)
		if err != nil {
			return err
		}
		if room.GameState == stateFinished {
			s.srv.recordEvent(room, "game_finished", map[string]any{"rounds": room.TotalRounds})
			log.Printf("game finished room=%s rounds=%d", room.Code, room.TotalRounds)
		} else {
			log.Printf("round started room=%s round=%d theme_master_id=%d", room.Code, room.CurrentRound, room.ThemeMasterID)
		}
		s.broadcast(room)
		s.pushHands(room, changed)
		return nil
	})
}

// --- collaborators ---

func (s *roomSession) roomContent(room *Room) (*CatalogTopic, *CatalogPersonality, error) {
	topic, err := s.srv.catalog.Topic(room.TopicID)
	if err != nil {
		return nil, nil, errValidation("the selected topic no longer exists")
	}
	personality, err := s.srv.catalog.Personality(room.PersonalityID)
	if err != nil {
		return nil, nil, errValidation("the selected personality no longer exists")
	}
	return topic, personality, nil
}

// generateResponses calls the content service with a deadline and one
// bounded retry; failures surface to the caller, never loop.
func (s *roomSession) generateResponses(topicPrompt, personalityPrompt string, count int) ([]string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.generationTimeout())
		texts, err := s.srv.generator.ResponseCards(ctx, topicPrompt, personalityPrompt, count)
		cancel()
		if err == nil && len(texts) > 0 {
			return texts, nil
		}
		if err == nil {
			err = errExternal("content service returned no cards", nil)
		}
		lastErr = err
		log.Printf("response generation failed room=%s attempt=%d error=%v", s.code, attempt+1, err)
	}
	return nil, lastErr
}

func (s *roomSession) generateTheme(topicPrompt, personalityPrompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.generationTimeout())
		text, err := s.srv.generator.ThemeCard(ctx, topicPrompt, personalityPrompt)
		cancel()
		if err == nil && strings.Contains(text, blankMarker) {
			return text, nil
		}
		if err == nil {
			err = errExternal("generated theme card has no blank to fill", nil)
		}
		lastErr = err
		log.Printf("theme generation failed room=%s attempt=%d error=%v", s.code, attempt+1, err)
	}
	return "", lastErr
}

func (s *roomSession) generationTimeout() time.Duration {
	return time.Duration(s.srv.cfg.GenerationTimeoutSeconds) * time.Second
}

// --- fan-out ---

func (s *roomSession) broadcast(room *Room) {
	s.srv.registry.Broadcast(room.Code, pushEnvelope("game_state_update", publicSnapshot(room)))
}

func (s *roomSession) pushHands(room *Room, playerIDs []int) {
	for _, id := range playerIDs {
		if player := room.playerByID(id); player != nil {
			s.srv.registry.SendTo(room.Code, player.UserID, pushEnvelope("player_hand_update", handPayload(player)))
		}
	}
}

func (s *roomSession) pushAllHands(room *Room) {
	for i := range room.Players {
		p := &room.Players[i]
		s.srv.registry.SendTo(room.Code, p.UserID, pushEnvelope("player_hand_update", handPayload(p)))
	}
}
