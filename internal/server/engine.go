package server

// The round engine is the pure transition logic consumed by the room
// session. Functions here validate an action against the current state,
// mutate the room, and report which hands changed; they perform no I/O so
// the whole state machine is testable without sockets.

func newRoom(code string, host Identity, handSize, maxPlayers, minPlayers int) *Room {
	room := &Room{
		Code:         code,
		GameState:    stateLobby,
		TotalRounds:  defaultTotalRounds,
		HandSize:     handSize,
		MaxPlayers:   maxPlayers,
		MinPlayers:   minPlayers,
		nextPlayerID: 1,
		nextHandID:   1,
		nextCardID:   1,
	}
	addPlayer(room, host)
	return room
}

// addPlayer joins an identity to the room. The first player becomes host;
// anyone joining after the game started becomes a spectator. An identity
// already in the room reconnects to its existing seat.
func addPlayer(room *Room, identity Identity) (*Player, error) {
	if existing := room.playerByUser(identity.UserID); existing != nil {
		return existing, nil
	}
	if room.GameState == stateFinished {
		return nil, errPermission("the game has already finished")
	}
	if room.GameState == stateLobby && len(room.Players) >= room.MaxPlayers {
		return nil, errCapacity("the room is full")
	}
	player := Player{
		ID:           room.nextPlayerID,
		UserID:       identity.UserID,
		Username:     identity.Username,
		IsHost:       len(room.Players) == 0,
		IsSpectating: room.GameState != stateLobby,
	}
	room.nextPlayerID++
	room.Players = append(room.Players, player)
	return &room.Players[len(room.Players)-1], nil
}

func applySettings(room *Room, actorID int, topicID, personalityID int64, totalRounds int) error {
	actor := room.playerByID(actorID)
	if actor == nil {
		return errNotFound("player is not in this room")
	}
	if !actor.IsHost {
		return errPermission("only the host can change game settings")
	}
	if room.GameState != stateLobby {
		return errPermission("settings can only be changed in the lobby")
	}
	if topicID <= 0 || personalityID <= 0 {
		return errValidation("a topic and a personality are required")
	}
	if totalRounds < minTotalRounds || totalRounds > maxTotalRounds {
		return errValidation("rounds must be between %d and %d", minTotalRounds, maxTotalRounds)
	}
	room.TopicID = topicID
	room.PersonalityID = personalityID
	room.TotalRounds = totalRounds
	return nil
}

// startGameChecks validates the start_game preconditions without mutating
// anything; the session runs the deck generation between the check and
// beginGame.
func startGameChecks(room *Room, actorID int) error {
	actor := room.playerByID(actorID)
	if actor == nil {
		return errNotFound("player is not in this room")
	}
	if !actor.IsHost {
		return errPermission("only the host can start the game")
	}
	if room.GameState != stateLobby {
		return errPermission("the game has already started")
	}
	if room.TopicID == 0 || room.PersonalityID == 0 {
		return errValidation("choose a topic and a personality before starting")
	}
	if len(room.activePlayers()) < room.MinPlayers {
		return errValidation("at least %d players are needed to start", room.MinPlayers)
	}
	return nil
}

// beginGame installs the generated response deck and enters the first round.
// No hands are dealt yet; dealing happens when the round reaches CardPlaying.
func beginGame(room *Room, responseTexts []string) {
	room.DrawPile = room.DrawPile[:0]
	for _, text := range responseTexts {
		room.DrawPile = append(room.DrawPile, Card{
			ID:       room.nextCardID,
			Text:     text,
			CardType: cardTypeResponse,
		})
		room.nextCardID++
	}
	room.GameState = stateInGame
	room.RoundPhase = phaseThemeSelection
	room.CurrentRound = 1
	active := room.activePlayers()
	if len(active) > 0 {
		active[0].IsThemeMaster = true
		room.ThemeMasterID = active[0].ID
	}
}

func themeMasterChecks(room *Room, actorID int) error {
	actor := room.playerByID(actorID)
	if actor == nil {
		return errNotFound("player is not in this room")
	}
	if room.GameState != stateInGame {
		return errPermission("the game is not running")
	}
	if actorID != room.ThemeMasterID {
		return errPermission("only the theme master can do that")
	}
	return nil
}

func themeSelectionChecks(room *Room, actorID int) error {
	if err := themeMasterChecks(room, actorID); err != nil {
		return err
	}
	if room.RoundPhase != phaseThemeSelection {
		return errPermission("a theme has already been chosen this round")
	}
	if room.GeneratingTheme {
		return errPermission("a theme card is already being generated")
	}
	return nil
}

// installTheme puts the theme card in play and moves the round to
// CardPlaying, topping every eligible player's hand up to the hand size.
// Returns the ids of players whose hands changed.
func installTheme(room *Room, card Card) ([]int, error) {
	room.CurrentThemeCard = &card
	room.RoundPhase = phaseCardPlaying
	return dealToHandSize(room)
}

// dealToHandSize draws cards for every eligible player until each holds
// HandSize cards. Running out of cards is an explicit error; the deck is
// never silently reshuffled.
func dealToHandSize(room *Room) ([]int, error) {
	changed := make([]int, 0, len(room.Players))
	for _, p := range room.eligiblePlayers() {
		dealt := false
		for len(p.Hand) < room.HandSize {
			if len(room.DrawPile) == 0 {
				return changed, errFatal("the deck has run out of response cards")
			}
			card := room.DrawPile[len(room.DrawPile)-1]
			room.DrawPile = room.DrawPile[:len(room.DrawPile)-1]
			p.Hand = append(p.Hand, HandCard{ID: room.nextHandID, Card: card})
			room.nextHandID++
			dealt = true
		}
		if dealt {
			changed = append(changed, p.ID)
		}
	}
	return changed, nil
}

// playCard removes the referenced card from the actor's hand and records it
// as played. The round advances to Voting automatically once every eligible
// player has submitted; players who disconnected mid-round do not block it.
func playCard(room *Room, actorID, handCardID int) (bool, error) {
	actor := room.playerByID(actorID)
	if actor == nil {
		return false, errNotFound("player is not in this room")
	}
	if room.GameState != stateInGame || room.RoundPhase != phaseCardPlaying {
		return false, errPermission("cards cannot be played right now")
	}
	if actor.IsThemeMaster {
		return false, errPermission("the theme master does not play a card")
	}
	if actor.IsSpectating {
		return false, errPermission("spectators join the game next round")
	}
	if actor.HasPlayed {
		return false, errValidation("you have already played a card this round")
	}
	handIndex := -1
	for i := range actor.Hand {
		if actor.Hand[i].ID == handCardID {
			handIndex = i
			break
		}
	}
	if handIndex < 0 {
		return false, errNotFound("that card is not in your hand")
	}
	card := actor.Hand[handIndex].Card
	actor.Hand = append(actor.Hand[:handIndex], actor.Hand[handIndex+1:]...)
	actor.HasPlayed = true
	room.PlayedCards = append(room.PlayedCards, PlayedCard{
		PlayerID:   actor.ID,
		PlayerName: actor.Username,
		CardText:   card.Text,
	})
	return maybeAdvanceToVoting(room), nil
}

// maybeAdvanceToVoting moves CardPlaying to Voting once no eligible player
// is still due to submit. With every eligible player gone the round advances
// with whatever was played; an empty table has nothing to vote on, so the
// round skips straight to RoundOver with no winners instead of entering a
// Voting phase that has no exit.
func maybeAdvanceToVoting(room *Room) bool {
	if room.RoundPhase != phaseCardPlaying {
		return false
	}
	for _, p := range room.eligiblePlayers() {
		if !p.HasPlayed {
			return false
		}
	}
	if len(room.PlayedCards) == 0 {
		room.RoundWinners = room.RoundWinners[:0]
		room.RoundPhase = phaseRoundOver
		return true
	}
	room.RoundPhase = phaseVoting
	return true
}

// selectWinners applies the ranked score deltas and ends the voting phase.
// Winner ids must be distinct and must each have a played card on the table.
func selectWinners(room *Room, actorID int, winnerIDs []int) error {
	if err := themeMasterChecks(room, actorID); err != nil {
		return err
	}
	if room.RoundPhase != phaseVoting {
		return errPermission("winners can only be chosen during voting")
	}
	limit := len(room.PlayedCards)
	if limit > maxWinners {
		limit = maxWinners
	}
	if len(winnerIDs) < 1 || len(winnerIDs) > limit {
		return errValidation("select between 1 and %d winners", limit)
	}
	seen := make(map[int]struct{}, len(winnerIDs))
	for _, id := range winnerIDs {
		if _, dup := seen[id]; dup {
			return errValidation("each winner can only be selected once")
		}
		seen[id] = struct{}{}
		if !room.hasPlayed(id) {
			return errValidation("winner did not play a card this round")
		}
	}
	points := []int{firstPlacePoints, secondPlacePoints, thirdPlacePoints}
	for i, id := range winnerIDs {
		if winner := room.playerByID(id); winner != nil {
			winner.Score += points[i]
		}
	}
	room.RoundWinners = append([]int(nil), winnerIDs...)
	room.RoundPhase = phaseRoundOver
	return nil
}

// startNextRound rotates the theme master, activates spectators, and either
// enters the next ThemeSelection or finishes the game after the last round.
// Activated spectators are dealt a full hand immediately; the ids of players
// whose hands changed are returned.
func startNextRound(room *Room, actorID int) ([]int, error) {
	if err := themeMasterChecks(room, actorID); err != nil {
		return nil, err
	}
	if room.RoundPhase != phaseRoundOver {
		return nil, errPermission("the round is not over yet")
	}
	if room.CurrentRound >= room.TotalRounds {
		endGame(room)
		return nil, nil
	}

	next := nextThemeMaster(room)
	if next == nil || next.ID == room.ThemeMasterID {
		return nil, errFatal("not enough players left to continue the game")
	}

	changed := make([]int, 0, len(room.Players))
	for i := range room.Players {
		p := &room.Players[i]
		if !p.IsSpectating {
			continue
		}
		p.IsSpectating = false
		for len(p.Hand) < room.HandSize {
			if len(room.DrawPile) == 0 {
				return changed, errFatal("the deck has run out of response cards")
			}
			card := room.DrawPile[len(room.DrawPile)-1]
			room.DrawPile = room.DrawPile[:len(room.DrawPile)-1]
			p.Hand = append(p.Hand, HandCard{ID: room.nextHandID, Card: card})
			room.nextHandID++
		}
		changed = append(changed, p.ID)
	}

	if current := room.playerByID(room.ThemeMasterID); current != nil {
		current.IsThemeMaster = false
	}
	next.IsThemeMaster = true
	room.ThemeMasterID = next.ID

	resetRound(room)
	room.CurrentRound++
	return changed, nil
}

// nextThemeMaster walks the roster in join order starting after the current
// theme master, skipping spectators; departed players are no longer in the
// roster and are skipped implicitly.
func nextThemeMaster(room *Room) *Player {
	active := room.activePlayers()
	if len(active) == 0 {
		return nil
	}
	current := -1
	for i, p := range active {
		if p.ID == room.ThemeMasterID {
			current = i
			break
		}
	}
	return active[(current+1)%len(active)]
}

func resetRound(room *Room) {
	room.RoundPhase = phaseThemeSelection
	room.CurrentThemeCard = nil
	room.PlayedCards = room.PlayedCards[:0]
	room.RoundWinners = room.RoundWinners[:0]
	for i := range room.Players {
		room.Players[i].HasPlayed = false
	}
}

func endGame(room *Room) {
	room.GameState = stateFinished
	room.RoundPhase = ""
	room.GeneratingTheme = false
}

// removalResult reports the side effects of a player leaving for good.
type removalResult struct {
	Empty          bool
	HostChanged    bool
	RoundReset     bool
	AdvancedVoting bool
}

// removePlayer deletes a player from the roster and repairs the room's role
// invariants: the earliest-joined remaining player inherits the host seat,
// and a departing theme master resets the round with a fresh theme master.
// A departing regular player may unblock CardPlaying if everyone else
// already submitted.
func removePlayer(room *Room, playerID int) removalResult {
	var result removalResult
	index := -1
	for i := range room.Players {
		if room.Players[i].ID == playerID {
			index = i
			break
		}
	}
	if index < 0 {
		return result
	}
	leaving := room.Players[index]
	room.Players = append(room.Players[:index], room.Players[index+1:]...)

	if len(room.Players) == 0 {
		result.Empty = true
		return result
	}

	if leaving.IsHost {
		room.Players[0].IsHost = true
		result.HostChanged = true
	}

	if room.GameState != stateInGame {
		return result
	}

	if leaving.IsThemeMaster {
		active := room.activePlayers()
		if len(active) == 0 {
			result.Empty = true
			return result
		}
		active[0].IsThemeMaster = true
		room.ThemeMasterID = active[0].ID
		resetRound(room)
		result.RoundReset = true
		return result
	}

	result.AdvancedVoting = maybeAdvanceToVoting(room)
	return result
}
