package server

import (
	"crypto/rand"
	"log"
	"strings"
	"sync"
)

const roomCodeLength = 6

// roomCodeAlphabet drops the characters players confuse when typing a code
// from a friend's screen.
const roomCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeRetryBudget = 20

// RoomStore is the registry of live room sessions keyed by room code. It
// only guards the map; each session serializes its own room's mutations.
type RoomStore struct {
	mu       sync.Mutex
	sessions map[string]*roomSession
}

func NewRoomStore() *RoomStore {
	return &RoomStore{sessions: make(map[string]*roomSession)}
}

// Create registers a new lobby with the creator as sole player and host.
// Codes are random and retried on collision; exhausting the retry budget is
// a transient capacity error and leaves no partial registration behind.
func (s *RoomStore) Create(srv *Server, creator Identity) (*roomSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for attempt := 0; attempt < codeRetryBudget; attempt++ {
		code := newRoomCode()
		if _, taken := s.sessions[code]; taken {
			log.Printf("room code collision code=%s attempt=%d", code, attempt+1)
			continue
		}
		room := newRoom(code, creator, srv.cfg.HandSize, srv.cfg.MaxPlayers, srv.cfg.MinPlayers)
		if srv.cfg.DefaultTotalRounds >= minTotalRounds && srv.cfg.DefaultTotalRounds <= maxTotalRounds {
			room.TotalRounds = srv.cfg.DefaultTotalRounds
		}
		session := newRoomSession(srv, room)
		session.scheduleExpiry(room.Players[0].ID)
		s.sessions[code] = session
		srv.recordEventByCode(code, "room_created", map[string]any{"host": creator.Username})
		log.Printf("room created room=%s host=%s", code, creator.Username)
		return session, nil
	}
	return nil, errCapacity("could not allocate a room code, try again")
}

func (s *RoomStore) Get(code string) (*roomSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[strings.ToUpper(code)]
	return session, ok
}

// Remove drops a session from the registry. Invoked by sessions that decided
// to self-destruct; the code becomes reusable afterwards.
func (s *RoomStore) Remove(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, code)
}

// FindByUser returns the session of the room the identity currently
// occupies, if any. Used by the session-recovery endpoint.
func (s *RoomStore) FindByUser(userID int64) (*roomSession, bool) {
	s.mu.Lock()
	sessions := make([]*roomSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	for _, session := range sessions {
		if _, ok := session.MemberID(Identity{UserID: userID}); ok {
			return session, true
		}
	}
	return nil, false
}

func (s *RoomStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func newRoomCode() string {
	buf := make([]byte, roomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return strings.Repeat("A", roomCodeLength)
	}
	for i := range buf {
		buf[i] = roomCodeAlphabet[int(buf[i])%len(roomCodeAlphabet)]
	}
	return string(buf)
}
