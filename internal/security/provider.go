package security

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ActiveWorkspaceSource looks up the workspace a user has selected for their session.
type ActiveWorkspaceSource interface {
	GetActiveWorkspace(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error)
}

// RequestContextProvider reads the caller from the request context and fills in
// the active workspace from the session store.
type RequestContextProvider struct {
	sessions ActiveWorkspaceSource
}

func NewRequestContextProvider(sessions ActiveWorkspaceSource) *RequestContextProvider {
	return &RequestContextProvider{sessions: sessions}
}

func (p *RequestContextProvider) UserContext(ctx context.Context) (*UserContext, error) {
	uc, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNoUserContext
	}

	// Return a copy so callers never alias the request's value.
	out := *uc
	out.AssignedRoles = append([]Role(nil), uc.AssignedRoles...)

	if out.ActiveWorkspaceID != nil || out.User.ID == nil || p.sessions == nil {
		return &out, nil
	}

	active, err := p.sessions.GetActiveWorkspace(ctx, *out.User.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read active workspace: %w", err)
	}
	out.ActiveWorkspaceID = active

	return &out, nil
}
