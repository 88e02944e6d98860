package app

import (
	"context"
	"fmt"

	"thoughtful/api/internal/auth"
	"thoughtful/api/internal/store"
	"thoughtful/api/internal/util"
)

type SaveStatusInput struct {
	ID    string `json:"id"`
	Name  string `json:"name" validate:"min=1,max=50"`
	Color string `json:"color" validate:"statuscolor"`
}

type FixUnknownInput struct {
	NewStatusID string `json:"newStatusId" validate:"min=1"`
}

// StatusDeleteResult is either a completed delete or, when ideas still use
// the status, a warning that nothing was changed.
type StatusDeleteResult struct {
	Warning    bool
	IdeasCount int
}

func (s *Service) ListStatuses(identity auth.Identity) []store.StatusDefinition {
	statuses := []store.StatusDefinition(identity.User.StatusDefinitions)
	if statuses == nil {
		return []store.StatusDefinition{}
	}
	return statuses
}

// SaveStatus replaces the custom status with the same id in place, or
// appends a new one.
func (s *Service) SaveStatus(ctx context.Context, identity auth.Identity, input SaveStatusInput) (store.StatusDefinition, error) {
	if err := validateInput(input); err != nil {
		return store.StatusDefinition{}, err
	}
	if input.ID != "" && store.IsReservedStatusID(input.ID) {
		return store.StatusDefinition{}, reservedIDError("Cannot modify default statuses")
	}

	saved := store.StatusDefinition{ID: input.ID, Name: input.Name, Color: input.Color}
	if saved.ID == "" {
		saved.ID = util.NewID()
	}
	_, err := s.mutateUser(ctx, identity.UserID, func(user *store.User) (bool, error) {
		for i, status := range user.StatusDefinitions {
			if status.ID == saved.ID {
				user.StatusDefinitions[i] = saved
				return true, nil
			}
		}
		user.StatusDefinitions = append(user.StatusDefinitions, saved)
		return true, nil
	})
	if err != nil {
		return store.StatusDefinition{}, err
	}
	return saved, nil
}

// DeleteStatus removes a custom status that no idea uses. When ideas still
// reference it nothing changes and the result carries their count.
func (s *Service) DeleteStatus(ctx context.Context, identity auth.Identity, statusID string) (StatusDeleteResult, error) {
	if store.IsReservedStatusID(statusID) {
		return StatusDeleteResult{}, reservedIDError("Cannot delete default statuses")
	}
	count, err := s.store.CountIdeasWithStatus(ctx, identity.UserID, statusID)
	if err != nil {
		return StatusDeleteResult{}, err
	}
	if count > 0 {
		return StatusDeleteResult{Warning: true, IdeasCount: count}, nil
	}
	if err := s.removeStatus(ctx, identity.UserID, statusID); err != nil {
		return StatusDeleteResult{}, err
	}
	return StatusDeleteResult{}, nil
}

// ForceDeleteStatus moves every idea at statusID to the unknown status and
// then removes the definition.
func (s *Service) ForceDeleteStatus(ctx context.Context, identity auth.Identity, statusID string) error {
	if store.IsReservedStatusID(statusID) {
		return reservedIDError("Cannot delete default statuses")
	}
	if _, err := s.store.ReassignIdeaStatus(ctx, identity.UserID, statusID, store.UnknownStatusID); err != nil {
		return err
	}
	return s.removeStatus(ctx, identity.UserID, statusID)
}

// FixUnknown moves every idea at the unknown status to newStatusID and
// returns how many changed. newStatusID is not checked against the
// caller's statuses.
func (s *Service) FixUnknown(ctx context.Context, identity auth.Identity, input FixUnknownInput) (int64, error) {
	if err := validateInput(input); err != nil {
		return 0, err
	}
	updated, err := s.store.ReassignIdeaStatus(ctx, identity.UserID, store.UnknownStatusID, input.NewStatusID)
	if err != nil {
		return 0, fmt.Errorf("fix unknown statuses: %w", err)
	}
	return updated, nil
}

func (s *Service) removeStatus(ctx context.Context, userID, statusID string) error {
	_, err := s.mutateUser(ctx, userID, func(user *store.User) (bool, error) {
		kept := make(store.StatusDefinitions, 0, len(user.StatusDefinitions))
		for _, status := range user.StatusDefinitions {
			if status.ID != statusID {
				kept = append(kept, status)
			}
		}
		if len(kept) == len(user.StatusDefinitions) {
			return false, nil
		}
		user.StatusDefinitions = kept
		return true, nil
	})
	return err
}
