package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// wsRegistry owns the live connections. Each connection is bound to exactly
// one (identity, room) pair, with at most one active connection per
// identity. The registry is a dumb fan-out layer: it never mutates room
// state, sessions invoke it after every authoritative change.
type wsRegistry struct {
	mu    sync.Mutex
	rooms map[string]map[int64]*playerConn
	users map[int64]string
}

type playerConn struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

func newWSRegistry() *wsRegistry {
	return &wsRegistry{
		rooms: make(map[string]map[int64]*playerConn),
		users: make(map[int64]string),
	}
}

func (c *playerConn) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *playerConn) sendJSON(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.send(data)
}

// Attach registers a connection for an identity in a room. An identity with
// a live connection anywhere is rejected; the client must drop the old
// socket first.
func (r *wsRegistry) Attach(code string, userID int64, conn *websocket.Conn) (*playerConn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, attached := r.users[userID]; attached {
		return nil, errPermission("this account already has an active connection")
	}
	group := r.rooms[code]
	if group == nil {
		group = make(map[int64]*playerConn)
		r.rooms[code] = group
	}
	pc := &playerConn{conn: conn}
	group[userID] = pc
	r.users[userID] = code
	return pc, nil
}

// Detach removes a connection after a socket close or error. Pending
// private pushes for that identity are dropped; room mutations in flight
// are unaffected.
func (r *wsRegistry) Detach(code string, userID int64, pc *playerConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	group := r.rooms[code]
	if group == nil || group[userID] != pc {
		return
	}
	delete(group, userID)
	if len(group) == 0 {
		delete(r.rooms, code)
	}
	delete(r.users, userID)
	_ = pc.conn.Close()
}

// Broadcast sends the payload to every connection attached to a room. The
// payload is marshaled once; delivery to individual connections may
// interleave but all complete before the session applies its next action.
func (r *wsRegistry) Broadcast(code string, payload any) {
	r.mu.Lock()
	conns := make([]*playerConn, 0, len(r.rooms[code]))
	for _, pc := range r.rooms[code] {
		conns = append(conns, pc)
	}
	r.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("broadcast marshal failed room=%s error=%v", code, err)
		return
	}
	for _, pc := range conns {
		if err := pc.send(data); err != nil {
			_ = pc.conn.Close()
		}
	}
}

// SendTo delivers a payload to one identity's connection, if attached.
func (r *wsRegistry) SendTo(code string, userID int64, payload any) {
	r.mu.Lock()
	var pc *playerConn
	if group := r.rooms[code]; group != nil {
		pc = group[userID]
	}
	r.mu.Unlock()
	if pc == nil {
		return
	}
	if err := pc.sendJSON(payload); err != nil {
		_ = pc.conn.Close()
	}
}

// CloseRoom notifies every connection that the room is gone, then closes
// the sockets and forgets them.
func (r *wsRegistry) CloseRoom(code, message string) {
	r.mu.Lock()
	group := r.rooms[code]
	delete(r.rooms, code)
	conns := make([]*playerConn, 0, len(group))
	for userID, pc := range group {
		delete(r.users, userID)
		conns = append(conns, pc)
	}
	r.mu.Unlock()

	payload := pushEnvelope("room_closed", map[string]any{"message": message})
	for _, pc := range conns {
		_ = pc.sendJSON(payload)
		_ = pc.conn.Close()
	}
}

func pushEnvelope(msgType string, data any) map[string]any {
	return map[string]any{"type": msgType, "data": data}
}

// actionEnvelope is the client-to-server frame.
type actionEnvelope struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Server) handleGameWebsocket(w http.ResponseWriter, r *http.Request) {
	code, ok := parseWebsocketPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	session, ok := s.store.Get(code)
	if !ok {
		http.NotFound(w, r)
		return
	}

	// Authenticate and authorize before committing to the upgrade so that
	// rejected clients get a plain HTTP status instead of a short-lived
	// socket.
	identity, err := s.auth.Resolve(r.URL.Query().Get("token"))
	if err != nil {
		log.Printf("ws auth failed room=%s remote=%s error=%v", code, r.RemoteAddr, err)
		writeError(w, http.StatusUnauthorized, "authentication failed")
		return
	}
	playerID, member := session.MemberID(identity)
	if !member {
		log.Printf("ws rejected room=%s user=%s reason=not_a_member", code, identity.Username)
		writeError(w, http.StatusForbidden, "you are not a player in this room")
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	pc, err := s.registry.Attach(code, identity.UserID, conn)
	if err != nil {
		closeWithPolicyViolation(conn, userMessage(err))
		return
	}
	log.Printf("ws connected room=%s user=%s player_id=%d remote=%s", code, identity.Username, playerID, r.RemoteAddr)

	if err := session.Connected(playerID); err != nil {
		s.registry.Detach(code, identity.UserID, pc)
		return
	}

	go s.readLoop(session, code, identity, playerID, pc)
}

func (s *Server) readLoop(session *roomSession, code string, identity Identity, playerID int, pc *playerConn) {
	defer func() {
		s.registry.Detach(code, identity.UserID, pc)
		session.Disconnected(playerID)
	}()
	for {
		_, data, err := pc.conn.ReadMessage()
		if err != nil {
			log.Printf("ws disconnected room=%s user=%s error=%v", code, identity.Username, err)
			return
		}
		var envelope actionEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			s.pushError(code, identity.UserID, "malformed message")
			continue
		}
		if err := session.HandleAction(playerID, envelope.Action, envelope.Payload); err != nil {
			if kind, _ := kindOf(err); kind == errKindRoomClosed {
				return
			}
			s.pushError(code, identity.UserID, userMessage(err))
		}
	}
}

// pushError surfaces a non-fatal failure to the acting client only.
func (s *Server) pushError(code string, userID int64, message string) {
	s.registry.SendTo(code, userID, pushEnvelope("error", map[string]any{"message": message}))
}

func closeWithPolicyViolation(conn *websocket.Conn, reason string) {
	message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteMessage(websocket.CloseMessage, message)
	_ = conn.Close()
}
