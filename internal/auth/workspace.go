package auth

import (
	"context"
	"fmt"
)

var membershipStatuses = []int{StatusInactive, StatusActive}

// WorkspaceSelector narrows a user's memberships to the ones eligible for token issuance.
type WorkspaceSelector struct {
	store CredentialStore
}

func NewWorkspaceSelector(store CredentialStore) *WorkspaceSelector {
	return &WorkspaceSelector{store: store}
}

func (s *WorkspaceSelector) SelectActive(ctx context.Context, username string, softwareID int64) ([]Workspace, error) {
	workspaces, err := s.store.FindWorkspaces(ctx, username, softwareID, membershipStatuses)
	if err != nil {
		return nil, fmt.Errorf("find workspaces: %w", err)
	}
	return activeOnly(workspaces), nil
}

func (s *WorkspaceSelector) SelectActiveForUser(ctx context.Context, userID string, softwareID int64) ([]Workspace, error) {
	workspaces, err := s.store.FindWorkspacesByUserID(ctx, userID, softwareID, membershipStatuses)
	if err != nil {
		return nil, fmt.Errorf("find workspaces by user: %w", err)
	}
	return activeOnly(workspaces), nil
}

func ownedBy(workspaces []Workspace, userID string) []Workspace {
	owned := make([]Workspace, 0, len(workspaces))
	for _, ws := range workspaces {
		if ws.UserID == userID {
			owned = append(owned, ws)
		}
	}
	return owned
}

func activeOnly(workspaces []Workspace) []Workspace {
	active := make([]Workspace, 0, len(workspaces))
	for _, ws := range workspaces {
		if ws.IsActive() {
			active = append(active, ws)
		}
	}
	return active
}
