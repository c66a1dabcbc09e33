// Package security carries the authenticated caller through a request.
//
// The API middleware places a UserContext in the request's context.Context after
// the access token is verified. Services read it back through a ContextProvider
// instead of a process-wide holder.
package security

import (
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"
)

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrNoUserContext          = errors.New("no user context on request")
)

// Role is the security-context representation of a role. Its value is also the
// role name persisted in user_entity_roles.
type Role string

const (
	RoleGlobalAdmin    Role = "ROLE_GLOBAL_ADMIN"
	RoleExaminee       Role = "ROLE_EXAMINEE"
	RoleWorkspaceAdmin Role = "ROLE_WORKSPACE_ADMIN"
	RoleExaminer       Role = "ROLE_EXAMINER"
	RoleReviewer       Role = "ROLE_REVIEWER"
)

// User is the identity part of a UserContext. ID is nil until login completes.
type User struct {
	ID    *uuid.UUID `json:"id"`
	Email string     `json:"email"`
	Name  string     `json:"name"`
}

// UserContext describes the caller of the current request.
type UserContext struct {
	User              User       `json:"user"`
	ActiveWorkspaceID *uuid.UUID `json:"active_workspace_id"`
	AssignedRoles     []Role     `json:"assigned_roles"`
}

// HasRole reports whether the caller holds r globally.
func (u *UserContext) HasRole(r Role) bool {
	return slices.Contains(u.AssignedRoles, r)
}

type userContextKey struct{}

// WithUserContext returns a copy of ctx carrying uc.
func WithUserContext(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, uc)
}

// FromContext returns the UserContext stored by WithUserContext.
func FromContext(ctx context.Context) (*UserContext, bool) {
	uc, ok := ctx.Value(userContextKey{}).(*UserContext)
	return uc, ok && uc != nil
}

// ContextProvider resolves the caller of a request.
type ContextProvider interface {
	UserContext(ctx context.Context) (*UserContext, error)
}
