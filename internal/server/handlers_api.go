package server

import (
	"log"
	"net/http"
)

// handleCreateRoom opens a new lobby with the caller as host. The caller is
// counted as joined immediately; the websocket attach follows separately.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	identity, err := s.bearerIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, userMessage(err))
		return
	}
	if existing, ok := s.store.FindByUser(identity.UserID); ok {
		writeError(w, http.StatusConflict, "you are already in room "+existing.code)
		return
	}
	session, err := s.store.Create(s, identity)
	if err != nil {
		writeGameError(w, err)
		return
	}
	snap, err := session.SnapshotFor(identity)
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// handleActiveRoom finds the room the caller currently occupies, so a client
// can recover its session after a page reload.
func (s *Server) handleActiveRoom(w http.ResponseWriter, r *http.Request) {
	identity, err := s.bearerIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, userMessage(err))
		return
	}
	session, ok := s.store.FindByUser(identity.UserID)
	if !ok {
		writeError(w, http.StatusNotFound, "no active room")
		return
	}
	snap, err := session.SnapshotFor(identity)
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRoomSubroutes(w http.ResponseWriter, r *http.Request) {
	code, action, ok := parseRoomPath(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	identity, err := s.bearerIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, userMessage(err))
		return
	}
	session, ok := s.store.Get(code)
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}

	switch {
	case r.Method == http.MethodGet && action == "":
		snap, err := session.SnapshotFor(identity)
		if err != nil {
			writeGameError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	case r.Method == http.MethodPost && action == "join":
		snap, err := session.Join(identity)
		if err != nil {
			writeGameError(w, err)
			return
		}
		log.Printf("player joined room=%s username=%s", code, identity.Username)
		writeJSON(w, http.StatusOK, snap)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}
