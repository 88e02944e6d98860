package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"thoughtful/api/internal/store"
)

// DataStore defines the interface for data access
type DataStore interface {
	ListIdeas(ctx context.Context, userID string, filter store.IdeaFilter) ([]store.Idea, error)
}

// Service provides data export functionality
type Service struct {
	store     DataStore
	now       func() time.Time
	renderPDF func(ctx context.Context, html string) ([]byte, error)
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{
		store:     store,
		now:       time.Now,
		renderPDF: renderPDF,
	}
}

// Snapshot collects the profile and every idea of user, newest first.
func (s *Service) Snapshot(ctx context.Context, user store.User) (Snapshot, error) {
	ideas, err := s.store.ListIdeas(ctx, user.ID, store.IdeaFilter{
		SortBy:    store.SortUpdatedAt,
		SortOrder: store.SortDesc,
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("list ideas: %w", err)
	}
	if ideas == nil {
		ideas = []store.Idea{}
	}
	statuses := []store.StatusDefinition(user.StatusDefinitions)
	if statuses == nil {
		statuses = []store.StatusDefinition{}
	}
	return Snapshot{
		User: Profile{
			ID:                user.ID,
			Username:          user.Username,
			CreatedAt:         user.CreatedAt,
			StatusDefinitions: statuses,
		},
		Ideas:      ideas,
		ExportedAt: s.now().UTC(),
	}, nil
}

// Export generates an export of user in the requested format
func (s *Service) Export(ctx context.Context, user store.User, format Format) (*Result, error) {
	snapshot, err := s.Snapshot(ctx, user)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(snapshot, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal export: %w", err)
		}
		return &Result{
			Data:     data,
			Filename: Filename(user.Username, snapshot.ExportedAt, FormatJSON),
			MimeType: "application/json",
		}, nil
	case FormatPDF:
		html, err := RenderNotebookHTML(snapshot)
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		data, err := s.renderPDF(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{
			Data:     data,
			Filename: Filename(user.Username, snapshot.ExportedAt, FormatPDF),
			MimeType: "application/pdf",
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// Filename returns thoughtful-data-<username>-<unix millis>.<format>.
func Filename(username string, at time.Time, format Format) string {
	return fmt.Sprintf("thoughtful-data-%s-%d.%s", sanitizeFilename(username), at.UnixMilli(), format)
}

// sanitizeFilename creates a safe filename component from a username
func sanitizeFilename(name string) string {
	result := ""
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result += string(r)
		case r == '-', r == '_':
			result += string(r)
		default:
			// Skip other characters
		}
	}
	if result == "" {
		result = "user"
	}
	return result
}
