package search

import (
	"thoughtful/api/internal/store"
)

// IdeaRecord is the data we index for an idea.
type IdeaRecord struct {
	ID          string   `json:"id"`
	UserID      string   `json:"userId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	StatusID    string   `json:"statusId"`
	UpdatedAt   int64    `json:"updatedAt"`
}

func RecordFromIdea(idea store.Idea) IdeaRecord {
	tags := []string(idea.Tags)
	if tags == nil {
		tags = []string{}
	}
	record := IdeaRecord{
		ID:          idea.ID,
		UserID:      idea.UserID,
		Title:       idea.Title,
		Description: idea.Description,
		Tags:        tags,
		UpdatedAt:   idea.UpdatedAt.UnixMilli(),
	}
	if idea.StatusID != nil {
		record.StatusID = *idea.StatusID
	}
	return record
}

// Engine is a relevance index over ideas. Meili is the production engine.
type Engine interface {
	Healthy() bool
	SearchIdeas(userID, text string, limit int) ([]string, error)
	IndexIdeas(records []IdeaRecord) error
	DeleteIdea(id string) error
	DeleteUserIdeas(userID string) error
}
