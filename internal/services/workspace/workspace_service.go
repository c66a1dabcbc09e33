package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/curaious/xm/internal/security"
	"github.com/curaious/xm/internal/services/role"
	"github.com/curaious/xm/internal/services/user"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Store persists workspaces and user role assignments
type Store interface {
	GetAllWorkspaces(ctx context.Context) ([]*Workspace, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Workspace, error)
	GetActiveWorkspaceIDAndRoleByUserIDAndRole(ctx context.Context, userID uuid.UUID, secRole security.Role) (*ActiveWorkspaceIDAndRole, error)
	GetWorkspacesOfUser(ctx context.Context, userID uuid.UUID) ([]*Workspace, error)
	GetRolesOfUserByWorkspace(ctx context.Context, userID, workspaceID uuid.UUID) ([]UserEntityRole, error)
	AddUserToWorkspace(ctx context.Context, workspaceID, userID uuid.UUID, rl role.Role) (*Workspace, error)
	RevokeUserRole(ctx context.Context, userID uuid.UUID, rl role.Role) error
	RevokeUserRoleFromWorkspace(ctx context.Context, workspaceID, userID uuid.UUID, rl role.Role) error
	Save(ctx context.Context, workspace *Workspace) (*Workspace, error)
	Update(ctx context.Context, workspace *Workspace) (*Workspace, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserStore looks up users and their current global roles
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	GlobalRoles(ctx context.Context, id uuid.UUID) ([]security.Role, error)
}

// RoleTransformer converts persisted role names into application roles
type RoleTransformer interface {
	TransformUserEntityRole(roleName string) (role.Role, error)
	TransformUserEntityRoles(roleNames []string) (role.Set, error)
}

// SessionStore remembers which workspace a user has selected
type SessionStore interface {
	SetActiveWorkspace(ctx context.Context, userID, workspaceID uuid.UUID) error
	ClearActiveWorkspace(ctx context.Context, userID uuid.UUID, workspaceID *uuid.UUID) error
}

// RetryConfig bounds how long GetWorkspacesOfUser waits for the caller's user id.
// MaxRetries of zero fails on the first miss.
type RetryConfig struct {
	MaxRetries      uint
	MaxWait         time.Duration
	InitialInterval time.Duration
}

var errUserIDPending = errors.New("user id not yet available")

// WorkspaceService contains business logic for workspaces and role assignments
type WorkspaceService struct {
	store    Store
	users    UserStore
	roles    RoleTransformer
	security security.ContextProvider
	sessions SessionStore
	retry    RetryConfig
	tracer   trace.Tracer
}

// NewWorkspaceService constructs a new WorkspaceService
func NewWorkspaceService(store Store, users UserStore, roles RoleTransformer, sec security.ContextProvider, sessions SessionStore, retry RetryConfig) *WorkspaceService {
	if retry.InitialInterval <= 0 {
		retry.InitialInterval = 50 * time.Millisecond
	}

	return &WorkspaceService{
		store:    store,
		users:    users,
		roles:    roles,
		security: sec,
		sessions: sessions,
		retry:    retry,
		tracer:   otel.Tracer("github.com/curaious/xm/internal/services/workspace"),
	}
}

// GetAllWorkspaces returns every workspace
func (s *WorkspaceService) GetAllWorkspaces(ctx context.Context) ([]*Workspace, error) {
	return s.store.GetAllWorkspaces(ctx)
}

// GetWorkspaceByID fetches a workspace by its identifier
func (s *WorkspaceService) GetWorkspaceByID(ctx context.Context, id uuid.UUID) (*Workspace, error) {
	return s.store.GetByID(ctx, id)
}

// GetActiveWorkspace returns the caller's active workspace, or nil when none is selected
func (s *WorkspaceService) GetActiveWorkspace(ctx context.Context) (*Workspace, error) {
	activeID, err := s.GetActiveWorkspaceID(ctx)
	if err != nil {
		return nil, err
	}
	if activeID == nil {
		return nil, nil
	}

	return s.store.GetByID(ctx, *activeID)
}

// GetActiveWorkspaceID returns the caller's active workspace id, nil when unset
func (s *WorkspaceService) GetActiveWorkspaceID(ctx context.Context) (*uuid.UUID, error) {
	uc, err := s.security.UserContext(ctx)
	if err != nil {
		return nil, err
	}

	return uc.ActiveWorkspaceID, nil
}

// GetWorkspacesByUserIDAndRole returns the workspaces where the user holds the role
func (s *WorkspaceService) GetWorkspacesByUserIDAndRole(ctx context.Context, userID uuid.UUID, rl role.Role) ([]*Workspace, error) {
	secRole, err := role.ToSecurityRole(rl)
	if err != nil {
		return nil, err
	}

	dto, err := s.store.GetActiveWorkspaceIDAndRoleByUserIDAndRole(ctx, userID, secRole)
	if err != nil {
		return nil, err
	}

	return dto.AssignedWorkspacesToUser, nil
}

// GetUserIDFromUserContext returns the caller's user id
func (s *WorkspaceService) GetUserIDFromUserContext(ctx context.Context) (uuid.UUID, error) {
	uc, err := s.security.UserContext(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if uc.User.ID == nil {
		return uuid.Nil, security.ErrAuthenticationRequired
	}

	return *uc.User.ID, nil
}

// GetWorkspacesOfUser returns the workspaces available to the caller. The user id
// may still be on its way into the security context right after login, so it is
// polled with backoff until RetryConfig runs out.
func (s *WorkspaceService) GetWorkspacesOfUser(ctx context.Context) ([]*Workspace, error) {
	ctx, span := s.tracer.Start(ctx, "WorkspaceService.GetWorkspacesOfUser")
	defer span.End()

	userID, err := s.waitForLogin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "user context unavailable")
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", userID.String()))

	return s.store.GetWorkspacesOfUser(ctx, userID)
}

func (s *WorkspaceService) waitForLogin(ctx context.Context) (uuid.UUID, error) {
	attempt := 0
	op := func() (uuid.UUID, error) {
		attempt++
		uc, err := s.security.UserContext(ctx)
		switch {
		case errors.Is(err, security.ErrNoUserContext):
			return uuid.Nil, err
		case err != nil:
			return uuid.Nil, backoff.Permanent(err)
		case uc.User.ID == nil:
			return uuid.Nil, errUserIDPending
		}
		return *uc.User.ID, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retry.InitialInterval

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.retry.MaxRetries + 1),
	}
	if s.retry.MaxWait > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(s.retry.MaxWait))
	}

	userID, err := backoff.Retry(ctx, op, opts...)
	if err == nil {
		return userID, nil
	}

	// Retry hands back the wrapper untouched when the last allowed try was permanent.
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}

	if errors.Is(err, errUserIDPending) || errors.Is(err, security.ErrNoUserContext) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.WarnContext(ctx, "User context did not yield a user id", slog.Int("attempts", attempt), slog.Any("error", err))
		return uuid.Nil, fmt.Errorf("%w: %w", security.ErrAuthenticationRequired, err)
	}

	return uuid.Nil, err
}

// ExtendUserAssignedRoles returns a copy of dto whose workspace roles also include the
// global-admin and examinee roles when the caller holds them globally.
func (s *WorkspaceService) ExtendUserAssignedRoles(ctx context.Context, dto ActiveWorkspaceIDAndRole) (ActiveWorkspaceIDAndRole, error) {
	uc, err := s.security.UserContext(ctx)
	if err != nil {
		return ActiveWorkspaceIDAndRole{}, err
	}

	out := dto
	out.AssignedRolesToWorkspace = append(make([]security.Role, 0, len(dto.AssignedRolesToWorkspace)+2), dto.AssignedRolesToWorkspace...)
	out.AssignedWorkspacesToUser = slices.Clone(dto.AssignedWorkspacesToUser)

	for _, global := range []security.Role{security.RoleGlobalAdmin, security.RoleExaminee} {
		if uc.HasRole(global) && !slices.Contains(out.AssignedRolesToWorkspace, global) {
			out.AssignedRolesToWorkspace = append(out.AssignedRolesToWorkspace, global)
		}
	}

	return out, nil
}

// GetRolesOfUserByWorkspace returns the roles a user holds in a workspace
func (s *WorkspaceService) GetRolesOfUserByWorkspace(ctx context.Context, userID, workspaceID uuid.UUID) (role.Set, error) {
	rows, err := s.store.GetRolesOfUserByWorkspace(ctx, userID, workspaceID)
	if err != nil {
		return nil, err
	}

	out := make(role.Set, len(rows))
	for _, row := range rows {
		r, err := s.roles.TransformUserEntityRole(row.RoleName)
		if err != nil {
			return nil, err
		}
		out.Add(r)
	}

	return out, nil
}

// AddUserToWorkspace assigns rl to the user in the workspace. Assigning a role the
// user already holds there fails with a *DuplicateRoleError.
func (s *WorkspaceService) AddUserToWorkspace(ctx context.Context, workspaceID, userID uuid.UUID, rl role.Role) (*Workspace, error) {
	ctx, span := s.tracer.Start(ctx, "WorkspaceService.AddUserToWorkspace", trace.WithAttributes(
		attribute.String("workspace.id", workspaceID.String()),
		attribute.String("user.id", userID.String()),
		attribute.String("role", string(rl)),
	))
	defer span.End()

	if !rl.IsValid() {
		return nil, fmt.Errorf("%w: %s", role.ErrUnknownRole, rl)
	}

	exists, err := s.userWithRoleExistsInWorkspace(ctx, workspaceID, userID, rl)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if exists {
		return nil, s.duplicateRoleError(ctx, userID, rl)
	}

	workspace, err := s.store.AddUserToWorkspace(ctx, workspaceID, userID, rl)
	if err != nil {
		// Lost a race with a concurrent assignment of the same role.
		if errors.Is(err, ErrDuplicateRoleAssignment) {
			return nil, s.duplicateRoleError(ctx, userID, rl)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "add user to workspace failed")
		return nil, err
	}

	slog.InfoContext(ctx, "User added to workspace",
		slog.String("workspace_id", workspaceID.String()),
		slog.String("user_id", userID.String()),
		slog.String("role", string(rl)))

	return workspace, nil
}

func (s *WorkspaceService) userWithRoleExistsInWorkspace(ctx context.Context, workspaceID, userID uuid.UUID, rl role.Role) (bool, error) {
	rows, err := s.store.GetRolesOfUserByWorkspace(ctx, userID, workspaceID)
	if err != nil {
		return false, err
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.RoleName)
	}

	held, err := s.roles.TransformUserEntityRoles(names)
	if err != nil {
		return false, err
	}

	return held.Contains(rl), nil
}

func (s *WorkspaceService) duplicateRoleError(ctx context.Context, userID uuid.UUID, rl role.Role) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to look up user with duplicate role: %w", err)
	}

	return &DuplicateRoleError{Email: u.Email, Role: rl}
}

// RevokeUserRole removes rl from the user in every workspace
func (s *WorkspaceService) RevokeUserRole(ctx context.Context, userID uuid.UUID, rl role.Role) error {
	ctx, span := s.tracer.Start(ctx, "WorkspaceService.RevokeUserRole")
	defer span.End()

	if err := s.store.RevokeUserRole(ctx, userID, rl); err != nil {
		span.RecordError(err)
		return err
	}

	return nil
}

// RevokeUserRoleFromWorkspace removes rl from the user within one workspace
func (s *WorkspaceService) RevokeUserRoleFromWorkspace(ctx context.Context, workspaceID, userID uuid.UUID, rl role.Role) error {
	ctx, span := s.tracer.Start(ctx, "WorkspaceService.RevokeUserRoleFromWorkspace")
	defer span.End()

	if err := s.store.RevokeUserRoleFromWorkspace(ctx, workspaceID, userID, rl); err != nil {
		span.RecordError(err)
		return err
	}

	return nil
}

// SaveWorkspace persists a new workspace
func (s *WorkspaceService) SaveWorkspace(ctx context.Context, workspace *Workspace) (*Workspace, error) {
	return s.store.Save(ctx, workspace)
}

// UpdateWorkspace persists workspace under id. The id argument always overrides
// workspace.ID.
func (s *WorkspaceService) UpdateWorkspace(ctx context.Context, workspace *Workspace, id uuid.UUID) (*Workspace, error) {
	workspace.ID = id
	return s.store.Update(ctx, workspace)
}

// DeleteWorkspace removes a workspace together with its role assignments
func (s *WorkspaceService) DeleteWorkspace(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, id)
}

// SwitchActiveWorkspace makes workspaceID the caller's active workspace. The caller
// must hold a role there unless they are a global admin.
func (s *WorkspaceService) SwitchActiveWorkspace(ctx context.Context, workspaceID uuid.UUID) (*Workspace, error) {
	uc, err := s.security.UserContext(ctx)
	if err != nil {
		return nil, err
	}
	if uc.User.ID == nil {
		return nil, security.ErrAuthenticationRequired
	}

	workspace, err := s.store.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.GetRolesOfUserByWorkspace(ctx, *uc.User.ID, workspaceID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		global, err := s.users.GlobalRoles(ctx, *uc.User.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read global roles: %w", err)
		}
		if !slices.Contains(global, security.RoleGlobalAdmin) {
			return nil, ErrNotWorkspaceMember
		}
	}

	if err := s.sessions.SetActiveWorkspace(ctx, *uc.User.ID, workspaceID); err != nil {
		return nil, fmt.Errorf("failed to store active workspace: %w", err)
	}

	return workspace, nil
}

// ResolveActiveWorkspaceAndRoles reports the caller's active workspace, the roles held
// there (extended with global roles) and every workspace the caller can access. When
// no workspace is selected yet, the first accessible one becomes active.
func (s *WorkspaceService) ResolveActiveWorkspaceAndRoles(ctx context.Context) (ActiveWorkspaceIDAndRole, error) {
	ctx, span := s.tracer.Start(ctx, "WorkspaceService.ResolveActiveWorkspaceAndRoles")
	defer span.End()

	uc, err := s.security.UserContext(ctx)
	if err != nil {
		return ActiveWorkspaceIDAndRole{}, err
	}
	if uc.User.ID == nil {
		return ActiveWorkspaceIDAndRole{}, security.ErrAuthenticationRequired
	}
	userID := *uc.User.ID

	workspaces, err := s.store.GetWorkspacesOfUser(ctx, userID)
	if err != nil {
		return ActiveWorkspaceIDAndRole{}, err
	}

	dto := ActiveWorkspaceIDAndRole{
		ActiveWorkspaceID:        uc.ActiveWorkspaceID,
		AssignedRolesToWorkspace: []security.Role{},
		AssignedWorkspacesToUser: workspaces,
	}

	if dto.ActiveWorkspaceID == nil && len(workspaces) > 0 {
		first := workspaces[0].ID
		dto.ActiveWorkspaceID = &first
		if err := s.sessions.SetActiveWorkspace(ctx, userID, first); err != nil {
			return ActiveWorkspaceIDAndRole{}, fmt.Errorf("failed to store active workspace: %w", err)
		}
	}

	if dto.ActiveWorkspaceID != nil {
		rows, err := s.store.GetRolesOfUserByWorkspace(ctx, userID, *dto.ActiveWorkspaceID)
		if err != nil {
			return ActiveWorkspaceIDAndRole{}, err
		}
		for _, row := range rows {
			dto.AssignedRolesToWorkspace = append(dto.AssignedRolesToWorkspace, security.Role(row.RoleName))
		}
	}

	return s.ExtendUserAssignedRoles(ctx, dto)
}

// ReconcileActiveWorkspace drops workspaceID as the user's active workspace once the
// user no longer holds any role there.
func (s *WorkspaceService) ReconcileActiveWorkspace(ctx context.Context, userID, workspaceID uuid.UUID) error {
	rows, err := s.store.GetRolesOfUserByWorkspace(ctx, userID, workspaceID)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		return nil
	}

	if err := s.sessions.ClearActiveWorkspace(ctx, userID, &workspaceID); err != nil {
		return fmt.Errorf("failed to clear active workspace: %w", err)
	}

	slog.DebugContext(ctx, "Cleared active workspace after role removal",
		slog.String("workspace_id", workspaceID.String()),
		slog.String("user_id", userID.String()))

	return nil
}

// RequireWorkspaceAdmin fails with ErrForbidden unless the caller is a global admin
// or a workspace admin of workspaceID. A nil workspaceID requires a global admin.
// Global roles are read from the user store rather than the access token, so a
// revoked global admin loses access before the token expires.
func (s *WorkspaceService) RequireWorkspaceAdmin(ctx context.Context, workspaceID *uuid.UUID) error {
	uc, err := s.security.UserContext(ctx)
	if err != nil {
		return err
	}
	if uc.User.ID == nil {
		return security.ErrAuthenticationRequired
	}

	if workspaceID != nil {
		held, err := s.GetRolesOfUserByWorkspace(ctx, *uc.User.ID, *workspaceID)
		if err != nil {
			return err
		}
		if held.Contains(role.RoleWorkspaceAdmin) {
			return nil
		}
	}

	global, err := s.users.GlobalRoles(ctx, *uc.User.ID)
	if err != nil {
		return fmt.Errorf("failed to read global roles: %w", err)
	}
	if !slices.Contains(global, security.RoleGlobalAdmin) {
		return ErrForbidden
	}

	return nil
}
