package server

import (
	"encoding/json"
	"log"

	"blank-slate/internal/db"
)

// recordEvent appends a lifecycle event to the database. Persistence is
// best-effort: a write failure is logged and never blocks or fails the
// game action that produced it.
func (s *Server) recordEvent(room *Room, eventType string, payload map[string]any) {
	s.recordEventByCode(room.Code, eventType, payload)
}

func (s *Server) recordEventByCode(code, eventType string, payload map[string]any) {
	if s.db == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("event payload marshal failed room=%s type=%s error=%v", code, eventType, err)
		return
	}
	event := db.Event{
		RoomCode: code,
		Type:     eventType,
		Payload:  data,
	}
	if err := s.db.Create(&event).Error; err != nil {
		log.Printf("event persist failed room=%s type=%s error=%v", code, eventType, err)
	}
}
