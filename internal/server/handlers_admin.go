package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// catalogRouter serves the topic and personality catalog. It is a separate
// gin router mounted under the main mux; catalog management is ordinary
// validated CRUD, not game traffic.
func (s *Server) catalogRouter() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	api := engine.Group("/api/v1", s.requireIdentity)
	api.GET("/topics", s.handleListTopics)
	api.POST("/topics", s.handleCreateTopic)
	api.DELETE("/topics/:id", s.handleDeleteTopic)
	api.GET("/personalities", s.handleListPersonalities)
	return engine
}

const identityContextKey = "identity"

func (s *Server) requireIdentity(c *gin.Context) {
	identity, err := s.bearerIdentity(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": userMessage(err)})
		return
	}
	c.Set(identityContextKey, identity)
	c.Next()
}

func contextIdentity(c *gin.Context) Identity {
	identity, _ := c.MustGet(identityContextKey).(Identity)
	return identity
}

type topicResponse struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Prompt   string `json:"prompt"`
	IsPublic bool   `json:"is_public"`
	IsOwn    bool   `json:"is_own"`
}

type personalityResponse struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) handleListTopics(c *gin.Context) {
	identity := contextIdentity(c)
	topics, err := s.catalog.TopicsFor(identity.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load topics"})
		return
	}
	out := make([]topicResponse, 0, len(topics))
	for _, topic := range topics {
		out = append(out, topicResponse{
			ID:       topic.ID,
			Title:    topic.Title,
			Prompt:   topic.Prompt,
			IsPublic: topic.IsPublic,
			IsOwn:    topic.OwnerID == identity.UserID,
		})
	}
	c.JSON(http.StatusOK, out)
}

type createTopicRequest struct {
	Title    string `json:"title" binding:"required,min=3,max=100"`
	Prompt   string `json:"prompt" binding:"required,min=10,max=1000"`
	IsPublic bool   `json:"is_public"`
}

var createTopicMessages = bindMessages{
	"Title": {
		"required": "a title is required",
		"min":      "the title must be at least 3 characters",
		"max":      "the title must be at most 100 characters",
	},
	"Prompt": {
		"required": "a prompt is required",
		"min":      "the prompt must be at least 10 characters",
		"max":      "the prompt must be at most 1000 characters",
	},
}

func (s *Server) handleCreateTopic(c *gin.Context) {
	identity := contextIdentity(c)
	var req createTopicRequest
	if !bindJSON(c, &req, createTopicMessages, "invalid topic") {
		return
	}
	topic := CatalogTopic{
		Title:    normalizeText(req.Title),
		Prompt:   normalizeText(req.Prompt),
		IsPublic: req.IsPublic,
		OwnerID:  identity.UserID,
	}
	if err := s.catalog.CreateTopic(&topic); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save topic"})
		return
	}
	c.JSON(http.StatusCreated, topicResponse{
		ID:       topic.ID,
		Title:    topic.Title,
		Prompt:   topic.Prompt,
		IsPublic: topic.IsPublic,
		IsOwn:    true,
	})
}

type topicURI struct {
	ID int64 `uri:"id" binding:"required,min=1"`
}

func (s *Server) handleDeleteTopic(c *gin.Context) {
	identity := contextIdentity(c)
	var uri topicURI
	if !bindURI(c, &uri) {
		return
	}
	if err := s.catalog.DeleteTopic(uri.ID, identity.UserID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "topic not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListPersonalities(c *gin.Context) {
	personalities, err := s.catalog.Personalities()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load personalities"})
		return
	}
	out := make([]personalityResponse, 0, len(personalities))
	for _, personality := range personalities {
		out = append(out, personalityResponse{
			ID:          personality.ID,
			Title:       personality.Title,
			Description: personality.Description,
		})
	}
	c.JSON(http.StatusOK, out)
}
