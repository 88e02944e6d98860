package search

import (
	"context"
	"fmt"
	"log"
	"sync"

	"thoughtful/api/internal/store"
)

const reindexBatchSize = 500

// IdeaSource pages through every stored idea.
type IdeaSource interface {
	ListIdeasAfter(ctx context.Context, afterID string, limit int) ([]store.Idea, error)
}

// Service is the facade over the optional relevance engine. A Service with
// no engine is valid and reports itself unavailable.
type Service struct {
	engine Engine
	wg     sync.WaitGroup
}

// NewService creates a search service. engine may be nil if Meilisearch is not configured.
func NewService(engine Engine) *Service {
	return &Service{engine: engine}
}

// Available reports whether relevance search can be served right now.
func (s *Service) Available() bool {
	return s != nil && s.engine != nil && s.engine.Healthy()
}

// Search returns ranked idea ids for userID. ok is false when the caller
// should fall back to substring search.
func (s *Service) Search(userID, text string, limit int) (ids []string, ok bool) {
	if !s.Available() {
		return nil, false
	}
	ids, err := s.engine.SearchIdeas(userID, text, limit)
	if err != nil {
		log.Printf("search: meilisearch error, falling back to substring search: %v", err)
		return nil, false
	}
	return ids, true
}

// IndexIdea indexes an idea (fire-and-forget to Meilisearch).
func (s *Service) IndexIdea(idea store.Idea) {
	if !s.Available() {
		return
	}
	record := RecordFromIdea(idea)
	s.background(func() {
		if err := s.engine.IndexIdeas([]IdeaRecord{record}); err != nil {
			log.Printf("search: index idea %s: %v", record.ID, err)
		}
	})
}

// DeleteIdea removes an idea from the search index (fire-and-forget).
func (s *Service) DeleteIdea(id string) {
	if !s.Available() {
		return
	}
	s.background(func() {
		if err := s.engine.DeleteIdea(id); err != nil {
			log.Printf("search: delete idea %s: %v", id, err)
		}
	})
}

// DeleteUser removes every indexed idea of userID (fire-and-forget).
func (s *Service) DeleteUser(userID string) {
	if !s.Available() {
		return
	}
	s.background(func() {
		if err := s.engine.DeleteUserIdeas(userID); err != nil {
			log.Printf("search: delete ideas of user %s: %v", userID, err)
		}
	})
}

// Wait blocks until pending index updates have finished.
func (s *Service) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

func (s *Service) background(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// ReindexAll reads every idea from source and pushes it to the engine in
// batches. It returns the number of ideas indexed.
func (s *Service) ReindexAll(ctx context.Context, source IdeaSource) (int, error) {
	if !s.Available() {
		return 0, fmt.Errorf("search engine unavailable")
	}

	total := 0
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		ideas, err := source.ListIdeasAfter(ctx, after, reindexBatchSize)
		if err != nil {
			return total, fmt.Errorf("load ideas: %w", err)
		}
		if len(ideas) == 0 {
			return total, nil
		}

		records := make([]IdeaRecord, 0, len(ideas))
		for _, idea := range ideas {
			records = append(records, RecordFromIdea(idea))
		}
		if err := s.engine.IndexIdeas(records); err != nil {
			return total, fmt.Errorf("index ideas: %w", err)
		}
		total += len(records)
		after = ideas[len(ideas)-1].ID

		if len(ideas) < reindexBatchSize {
			return total, nil
		}
	}
}
