package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"thoughtful/api/internal/auth"
	"thoughtful/api/internal/store"
	"thoughtful/api/internal/util"
)

const (
	defaultIdeaIcon     = "Lightbulb"
	relevanceSearchMode = "relevance"
	relevanceLimit      = 50
)

type CreateIdeaInput struct {
	Title       string           `json:"title" validate:"min=1,max=200"`
	Description string           `json:"description" validate:"min=1,max=5000"`
	Tags        []string         `json:"tags" validate:"max=5"`
	Icon        string           `json:"icon"`
	StatusID    *string          `json:"statusId"`
	Todos       []store.TodoList `json:"todos" validate:"max=5,dive"`
	Resources   []store.Resource `json:"resources" validate:"dive"`
}

// UpdateIdeaInput changes only the fields that are present.
type UpdateIdeaInput struct {
	ID          string            `json:"id" validate:"required"`
	Title       *string           `json:"title" validate:"omitnil,min=1,max=200"`
	Description *string           `json:"description" validate:"omitnil,min=1,max=5000"`
	Tags        *[]string         `json:"tags" validate:"omitnil,max=5"`
	Icon        *string           `json:"icon"`
	StatusID    *string           `json:"statusId"`
	Todos       *[]store.TodoList `json:"todos" validate:"omitnil,max=5,dive"`
	Resources   *[]store.Resource `json:"resources" validate:"omitnil,dive"`
}

type DeleteIdeaInput struct {
	ID string `json:"id" validate:"required"`
}

type ListIdeasInput struct {
	StatusID  string `json:"statusId"`
	SortBy    string `json:"sortBy" validate:"omitempty,oneof=createdAt updatedAt title"`
	SortOrder string `json:"sortOrder" validate:"omitempty,oneof=asc desc"`
}

func (s *Service) CreateIdea(ctx context.Context, identity auth.Identity, input CreateIdeaInput) (store.Idea, error) {
	if err := validateInput(input); err != nil {
		return store.Idea{}, err
	}

	now := s.now().UTC()
	idea := store.Idea{
		ID:          util.NewID(),
		UserID:      identity.UserID,
		Title:       input.Title,
		Description: input.Description,
		Tags:        input.Tags,
		Icon:        input.Icon,
		StatusID:    input.StatusID,
		Todos:       input.Todos,
		Resources:   input.Resources,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if idea.Tags == nil {
		idea.Tags = []string{}
	}
	if idea.Icon == "" {
		idea.Icon = defaultIdeaIcon
	}
	if idea.StatusID != nil && *idea.StatusID == "" {
		idea.StatusID = nil
	}
	if idea.Todos == nil {
		idea.Todos = store.TodoLists{}
	}
	if idea.Resources == nil {
		idea.Resources = store.Resources{}
	}

	if err := s.store.InsertIdea(ctx, idea); err != nil {
		return store.Idea{}, err
	}
	s.search.IndexIdea(idea)
	return idea, nil
}

// UpdateIdea applies the present fields and returns the stored result.
// updatedAt always moves forward.
func (s *Service) UpdateIdea(ctx context.Context, identity auth.Identity, input UpdateIdeaInput) (store.Idea, error) {
	if err := validateInput(input); err != nil {
		return store.Idea{}, err
	}
	notFound := notFoundError("Idea not found or you don't have permission to update it")

	existing, err := s.store.GetIdea(ctx, identity.UserID, input.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Idea{}, notFound
		}
		return store.Idea{}, err
	}

	updatedAt := s.now().UTC()
	if !updatedAt.After(existing.UpdatedAt) {
		updatedAt = existing.UpdatedAt.Add(time.Millisecond)
	}
	patch := store.IdeaPatch{
		Title:       input.Title,
		Description: input.Description,
		Tags:        input.Tags,
		Icon:        input.Icon,
		StatusID:    input.StatusID,
		Todos:       input.Todos,
		Resources:   input.Resources,
	}
	if err := s.store.UpdateIdea(ctx, identity.UserID, input.ID, patch, updatedAt); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Idea{}, notFound
		}
		return store.Idea{}, err
	}

	updated, err := s.store.GetIdea(ctx, identity.UserID, input.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Idea{}, notFound
		}
		return store.Idea{}, err
	}
	s.search.IndexIdea(updated)
	return updated, nil
}

func (s *Service) DeleteIdea(ctx context.Context, identity auth.Identity, input DeleteIdeaInput) error {
	if err := validateInput(input); err != nil {
		return err
	}
	if _, err := s.store.GetIdea(ctx, identity.UserID, input.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError("Idea not found or you don't have permission to delete it")
		}
		return err
	}
	deleted, err := s.store.DeleteIdea(ctx, identity.UserID, input.ID)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return domainError(http.StatusInternalServerError, codeServerError, "Failed to delete idea", nil)
	}
	s.search.DeleteIdea(input.ID)
	return nil
}

func (s *Service) ListIdeas(ctx context.Context, identity auth.Identity, input ListIdeasInput) ([]store.Idea, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	filter := store.IdeaFilter{
		StatusID:  input.StatusID,
		SortBy:    store.SortField(input.SortBy),
		SortOrder: store.SortOrder(input.SortOrder),
	}
	if filter.SortBy == "" {
		filter.SortBy = store.SortUpdatedAt
	}
	if filter.SortOrder == "" {
		filter.SortOrder = store.SortDesc
	}
	return s.store.ListIdeas(ctx, identity.UserID, filter)
}

// SearchIdeas matches query against title, description and tags. With mode
// "relevance" and a healthy index the ranked index order is used instead of
// newest first.
func (s *Service) SearchIdeas(ctx context.Context, identity auth.Identity, query, mode string) ([]store.Idea, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, validationError("Search query parameter 'q' is required", nil)
	}
	if mode == relevanceSearchMode {
		if ids, ok := s.search.Search(identity.UserID, query, relevanceLimit); ok {
			return s.loadIdeas(ctx, identity.UserID, ids)
		}
	}
	return s.store.SearchIdeas(ctx, identity.UserID, query)
}

// loadIdeas fetches ids in order, skipping ids the index still holds but the
// store no longer has.
func (s *Service) loadIdeas(ctx context.Context, userID string, ids []string) ([]store.Idea, error) {
	ideas := make([]store.Idea, 0, len(ids))
	for _, id := range ids {
		idea, err := s.store.GetIdea(ctx, userID, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		ideas = append(ideas, idea)
	}
	return ideas, nil
}
