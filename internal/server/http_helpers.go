package server

import (
	"encoding/json"
	"net/http"
	"strings"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// bearerIdentity resolves the Authorization header to an identity.
func (s *Server) bearerIdentity(r *http.Request) (Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Identity{}, errPermission("authentication required")
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return Identity{}, errPermission("authorization header must be a bearer token")
	}
	return s.auth.Resolve(token)
}

// writeGameError maps a classified game error to an HTTP response.
func writeGameError(w http.ResponseWriter, err error) {
	kind, ok := kindOf(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	status := http.StatusInternalServerError
	switch kind {
	case errKindValidation:
		status = http.StatusBadRequest
	case errKindPermission:
		status = http.StatusForbidden
	case errKindNotFound:
		status = http.StatusNotFound
	case errKindCapacity:
		status = http.StatusConflict
	case errKindExternal:
		status = http.StatusBadGateway
	case errKindRoomClosed:
		status = http.StatusGone
	}
	writeError(w, status, userMessage(err))
}
