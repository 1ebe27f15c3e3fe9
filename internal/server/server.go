package server

import (
	"net/http"
	"time"

	"blank-slate/internal/config"

	"gorm.io/gorm"
)

type Server struct {
	store     *RoomStore
	registry  *wsRegistry
	db        *gorm.DB
	cfg       config.Config
	auth      *tokenResolver
	generator cardGenerator
	catalog   contentCatalog
}

// New wires a server from its collaborators. conn may be nil; the server
// then runs without persistence on a seeded in-memory catalog, which is
// how the tests and local development without Postgres operate.
func New(conn *gorm.DB, cfg config.Config) *Server {
	srv := &Server{
		store:    NewRoomStore(),
		registry: newWSRegistry(),
		db:       conn,
		cfg:      cfg,
		auth:     newTokenResolver(cfg.SecretKey),
	}
	srv.generator = newGeminiGenerator(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL,
		time.Duration(cfg.GenerationTimeoutSeconds)*time.Second)
	if conn != nil {
		srv.catalog = newDBCatalog(conn)
	} else {
		srv.catalog = newMemoryCatalog()
	}
	return srv
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/rooms", s.handleCreateRoom)
	mux.HandleFunc("GET /api/v1/rooms/active", s.handleActiveRoom)
	mux.HandleFunc("GET /api/v1/rooms/", s.handleRoomSubroutes)
	mux.HandleFunc("POST /api/v1/rooms/", s.handleRoomSubroutes)
	mux.HandleFunc("GET /ws/game/", s.handleGameWebsocket)

	catalog := s.catalogRouter()
	mux.Handle("/api/v1/topics", catalog)
	mux.Handle("/api/v1/topics/", catalog)
	mux.Handle("/api/v1/personalities", catalog)
	return mux
}
