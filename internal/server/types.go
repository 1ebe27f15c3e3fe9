package server

const (
	stateLobby      = "Lobby"
	stateGenerating = "Generating"
	stateInGame     = "InGame"
	stateFinished   = "Finished"
)

const (
	phaseThemeSelection = "ThemeSelection"
	phaseCardPlaying    = "CardPlaying"
	phaseVoting         = "Voting"
	phaseRoundOver      = "RoundOver"
)

const (
	cardTypeResponse = "response"
	cardTypeTheme    = "theme"
)

// blankMarker is the fill-in slot inside a theme card's text.
const blankMarker = "______"

const (
	firstPlacePoints  = 20
	secondPlacePoints = 10
	thirdPlacePoints  = 5
	maxWinners        = 3
)

const (
	minCustomThemeLength = 10
	maxCustomThemeLength = 280
	minTotalRounds       = 1
	maxTotalRounds       = 20
	defaultTotalRounds   = 5
)

// Identity is the authenticated principal resolved from a bearer token.
// It is owned by the external auth service; rooms only hold a reference.
type Identity struct {
	UserID   int64
	Username string
}

// Room is the authoritative state of one game instance. All mutation goes
// through the owning session worker; nothing outside the session touches a
// Room directly.
type Room struct {
	Code             string
	GameState        string
	TopicID          int64
	PersonalityID    int64
	ThemeMasterID    int
	CurrentThemeCard *Card
	RoundPhase       string
	Players          []Player
	PlayedCards      []PlayedCard
	RoundWinners     []int
	CurrentRound     int
	TotalRounds      int

	// GeneratingTheme is a transient sub-state while a theme card fetch is
	// in flight; surfaced to clients, not a first-class game state.
	GeneratingTheme bool

	DrawPile   []Card
	HandSize   int
	MaxPlayers int
	MinPlayers int

	nextPlayerID int
	nextHandID   int
	nextCardID   int
}

// Player is per-room state for one identity.
type Player struct {
	ID            int
	UserID        int64
	Username      string
	Score         int
	IsHost        bool
	IsThemeMaster bool
	HasPlayed     bool
	IsSpectating  bool
	Connected     bool
	Hand          []HandCard
}

// HandCard pairs a hand-entry id with the underlying card. Hand entries are
// private to their owner and never appear in broadcast state.
type HandCard struct {
	ID   int
	Card Card
}

type Card struct {
	ID       int
	Text     string
	CardType string
}

// PlayedCard is one entry of played_cards_info. Field names match the wire
// contract the front-end consumes; voting is not anonymous, so author
// attribution goes to every recipient.
type PlayedCard struct {
	PlayerID   int    `json:"playerId"`
	PlayerName string `json:"playerName"`
	CardText   string `json:"cardText"`
}

func (r *Room) playerByID(id int) *Player {
	for i := range r.Players {
		if r.Players[i].ID == id {
			return &r.Players[i]
		}
	}
	return nil
}

func (r *Room) playerByUser(userID int64) *Player {
	for i := range r.Players {
		if r.Players[i].UserID == userID {
			return &r.Players[i]
		}
	}
	return nil
}

// activePlayers returns non-spectating players in join order.
func (r *Room) activePlayers() []*Player {
	out := make([]*Player, 0, len(r.Players))
	for i := range r.Players {
		if !r.Players[i].IsSpectating {
			out = append(out, &r.Players[i])
		}
	}
	return out
}

// eligiblePlayers are the players expected to submit a card this round:
// non-spectating, non-theme-master, still connected.
func (r *Room) eligiblePlayers() []*Player {
	out := make([]*Player, 0, len(r.Players))
	for i := range r.Players {
		p := &r.Players[i]
		if p.IsSpectating || p.IsThemeMaster || !p.Connected {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (r *Room) hasPlayed(playerID int) bool {
	for _, played := range r.PlayedCards {
		if played.PlayerID == playerID {
			return true
		}
	}
	return false
}
