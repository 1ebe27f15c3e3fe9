package server

import (
	"errors"
	"sync"

	"blank-slate/internal/db"

	"gorm.io/gorm"
)

// CatalogTopic and CatalogPersonality are the read models the room session
// consumes when validating set_game_settings and when prompting the content
// service.
type CatalogTopic struct {
	ID       int64
	Title    string
	Prompt   string
	IsPublic bool
	OwnerID  int64
}

type CatalogPersonality struct {
	ID             int64
	Title          string
	Description    string
	TemplatePrompt string
}

var errCatalogNotFound = errors.New("catalog entry not found")

type contentCatalog interface {
	Topic(id int64) (*CatalogTopic, error)
	Personality(id int64) (*CatalogPersonality, error)
	TopicsFor(ownerID int64) ([]CatalogTopic, error)
	Personalities() ([]CatalogPersonality, error)
	CreateTopic(topic *CatalogTopic) error
	DeleteTopic(id, ownerID int64) error
}

// --- Postgres-backed catalog ---

type dbCatalog struct {
	conn *gorm.DB
}

func newDBCatalog(conn *gorm.DB) *dbCatalog {
	return &dbCatalog{conn: conn}
}

func (c *dbCatalog) Topic(id int64) (*CatalogTopic, error) {
	var record db.Topic
	if err := c.conn.First(&record, id).Error; err != nil {
		return nil, errCatalogNotFound
	}
	topic := topicFromRecord(record)
	return &topic, nil
}

func (c *dbCatalog) Personality(id int64) (*CatalogPersonality, error) {
	var record db.Personality
	if err := c.conn.First(&record, id).Error; err != nil {
		return nil, errCatalogNotFound
	}
	return &CatalogPersonality{
		ID:             record.ID,
		Title:          record.Title,
		Description:    record.Description,
		TemplatePrompt: record.TemplatePrompt,
	}, nil
}

func (c *dbCatalog) TopicsFor(ownerID int64) ([]CatalogTopic, error) {
	var records []db.Topic
	if err := c.conn.Where("is_public = ? OR owner_id = ?", true, ownerID).Order("id").Find(&records).Error; err != nil {
		return nil, err
	}
	topics := make([]CatalogTopic, 0, len(records))
	for _, record := range records {
		topics = append(topics, topicFromRecord(record))
	}
	return topics, nil
}

func (c *dbCatalog) Personalities() ([]CatalogPersonality, error) {
	var records []db.Personality
	if err := c.conn.Order("id").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]CatalogPersonality, 0, len(records))
	for _, record := range records {
		out = append(out, CatalogPersonality{
			ID:             record.ID,
			Title:          record.Title,
			Description:    record.Description,
			TemplatePrompt: record.TemplatePrompt,
		})
	}
	return out, nil
}

func (c *dbCatalog) CreateTopic(topic *CatalogTopic) error {
	record := db.Topic{
		Title:    topic.Title,
		Prompt:   topic.Prompt,
		IsPublic: topic.IsPublic,
		OwnerID:  topic.OwnerID,
	}
	if err := c.conn.Create(&record).Error; err != nil {
		return err
	}
	topic.ID = record.ID
	return nil
}

func (c *dbCatalog) DeleteTopic(id, ownerID int64) error {
	result := c.conn.Where("id = ? AND owner_id = ?", id, ownerID).Delete(&db.Topic{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errCatalogNotFound
	}
	return nil
}

func topicFromRecord(record db.Topic) CatalogTopic {
	return CatalogTopic{
		ID:       record.ID,
		Title:    record.Title,
		Prompt:   record.Prompt,
		IsPublic: record.IsPublic,
		OwnerID:  record.OwnerID,
	}
}

// --- in-memory catalog ---

// memoryCatalog backs the server when no database is configured (local dev,
// tests). It starts with a small seed so a lobby can always be configured.
type memoryCatalog struct {
	mu            sync.Mutex
	nextTopicID   int64
	topics        map[int64]CatalogTopic
	personalities map[int64]CatalogPersonality
}

func newMemoryCatalog() *memoryCatalog {
	c := &memoryCatalog{
		topics:        make(map[int64]CatalogTopic),
		personalities: make(map[int64]CatalogPersonality),
		nextTopicID:   1,
	}
	seeds := []CatalogTopic{
		{Title: "Office life", Prompt: "Everyday absurdities of working in an open-plan office.", IsPublic: true},
		{Title: "Space travel", Prompt: "The glamorous and not so glamorous sides of interplanetary tourism.", IsPublic: true},
	}
	for _, seed := range seeds {
		seed.ID = c.nextTopicID
		c.topics[seed.ID] = seed
		c.nextTopicID++
	}
	c.personalities[1] = CatalogPersonality{
		ID:             1,
		Title:          "Deadpan robot",
		Description:    "Dry, literal, vaguely menacing.",
		TemplatePrompt: "You are a deadpan robot comedian. Write cards in a dry, literal voice.",
	}
	c.personalities[2] = CatalogPersonality{
		ID:             2,
		Title:          "Overexcited intern",
		Description:    "Everything is amazing and slightly wrong.",
		TemplatePrompt: "You are an overexcited intern. Write cards with breathless enthusiasm.",
	}
	return c
}

func (c *memoryCatalog) Topic(id int64) (*CatalogTopic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	topic, ok := c.topics[id]
	if !ok {
		return nil, errCatalogNotFound
	}
	return &topic, nil
}

func (c *memoryCatalog) Personality(id int64) (*CatalogPersonality, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	personality, ok := c.personalities[id]
	if !ok {
		return nil, errCatalogNotFound
	}
	return &personality, nil
}

func (c *memoryCatalog) TopicsFor(ownerID int64) ([]CatalogTopic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CatalogTopic, 0, len(c.topics))
	for id := int64(1); id < c.nextTopicID; id++ {
		topic, ok := c.topics[id]
		if !ok {
			continue
		}
		if topic.IsPublic || topic.OwnerID == ownerID {
			out = append(out, topic)
		}
	}
	return out, nil
}

func (c *memoryCatalog) Personalities() ([]CatalogPersonality, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CatalogPersonality, 0, len(c.personalities))
	for id := int64(1); id <= int64(len(c.personalities)); id++ {
		if personality, ok := c.personalities[id]; ok {
			out = append(out, personality)
		}
	}
	return out, nil
}

func (c *memoryCatalog) CreateTopic(topic *CatalogTopic) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	topic.ID = c.nextTopicID
	c.nextTopicID++
	c.topics[topic.ID] = *topic
	return nil
}

func (c *memoryCatalog) DeleteTopic(id, ownerID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	topic, ok := c.topics[id]
	if !ok || topic.OwnerID != ownerID {
		return errCatalogNotFound
	}
	delete(c.topics, id)
	return nil
}
