package workspace

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/curaious/xm/internal/security"
	"github.com/curaious/xm/internal/services/role"
	"github.com/curaious/xm/internal/services/user"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// memStore is an in-memory Store used by the service tests.
type memStore struct {
	mu         sync.Mutex
	workspaces map[uuid.UUID]*Workspace
	roles      []UserEntityRole
	addCalls   int
	lastUpdate *Workspace
}

func newMemStore(workspaces ...*Workspace) *memStore {
	s := &memStore{workspaces: map[uuid.UUID]*Workspace{}}
	for _, w := range workspaces {
		s.workspaces[w.ID] = w
	}
	return s
}

func (s *memStore) grant(userID uuid.UUID, workspaceID *uuid.UUID, sec security.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles = append(s.roles, UserEntityRole{ID: uuid.New(), UserID: userID, WorkspaceID: workspaceID, RoleName: string(sec), CreatedAt: time.Now()})
}

func (s *memStore) GetAllWorkspaces(_ context.Context) ([]*Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Workspace, 0, len(s.workspaces))
	for _, w := range s.workspaces {
		out = append(out, w)
	}
	slices.SortFunc(out, func(a, b *Workspace) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workspaces[id]
	if !ok {
		return nil, ErrWorkspaceNotFound
	}
	return w, nil
}

func (s *memStore) GetActiveWorkspaceIDAndRoleByUserIDAndRole(_ context.Context, userID uuid.UUID, secRole security.Role) (*ActiveWorkspaceIDAndRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := &ActiveWorkspaceIDAndRole{AssignedRolesToWorkspace: []security.Role{}}
	for _, r := range s.roles {
		if r.UserID == userID && r.WorkspaceID != nil && r.RoleName == string(secRole) {
			out.AssignedWorkspacesToUser = append(out.AssignedWorkspacesToUser, s.workspaces[*r.WorkspaceID])
		}
	}
	if len(out.AssignedWorkspacesToUser) > 0 {
		id := out.AssignedWorkspacesToUser[0].ID
		out.ActiveWorkspaceID = &id
	}
	return out, nil
}

func (s *memStore) GetWorkspacesOfUser(_ context.Context, userID uuid.UUID) ([]*Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	var out []*Workspace
	for _, r := range s.roles {
		if r.UserID == userID && r.WorkspaceID != nil && !seen[*r.WorkspaceID] {
			seen[*r.WorkspaceID] = true
			out = append(out, s.workspaces[*r.WorkspaceID])
		}
	}
	slices.SortFunc(out, func(a, b *Workspace) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *memStore) GetRolesOfUserByWorkspace(_ context.Context, userID, workspaceID uuid.UUID) ([]UserEntityRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []UserEntityRole
	for _, r := range s.roles {
		if r.UserID == userID && r.WorkspaceID != nil && *r.WorkspaceID == workspaceID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) AddUserToWorkspace(_ context.Context, workspaceID, userID uuid.UUID, rl role.Role) (*Workspace, error) {
	name, err := role.EntityRoleName(rl)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addCalls++
	w, ok := s.workspaces[workspaceID]
	if !ok {
		return nil, ErrWorkspaceNotFound
	}
	for _, r := range s.roles {
		if r.UserID == userID && r.WorkspaceID != nil && *r.WorkspaceID == workspaceID && r.RoleName == name {
			return nil, ErrDuplicateRoleAssignment
		}
	}
	wsID := workspaceID
	s.roles = append(s.roles, UserEntityRole{ID: uuid.New(), UserID: userID, WorkspaceID: &wsID, RoleName: name})
	return w, nil
}

func (s *memStore) RevokeUserRole(_ context.Context, userID uuid.UUID, rl role.Role) error {
	name, _ := role.EntityRoleName(rl)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles = slices.DeleteFunc(s.roles, func(r UserEntityRole) bool {
		return r.UserID == userID && r.RoleName == name
	})
	return nil
}

func (s *memStore) RevokeUserRoleFromWorkspace(_ context.Context, workspaceID, userID uuid.UUID, rl role.Role) error {
	name, _ := role.EntityRoleName(rl)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles = slices.DeleteFunc(s.roles, func(r UserEntityRole) bool {
		return r.UserID == userID && r.RoleName == name && r.WorkspaceID != nil && *r.WorkspaceID == workspaceID
	})
	return nil
}

func (s *memStore) Save(_ context.Context, w *Workspace) (*Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := *w
	saved.ID = uuid.New()
	s.workspaces[saved.ID] = &saved
	return &saved, nil
}

func (s *memStore) Update(_ context.Context, w *Workspace) (*Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUpdate = w
	if _, ok := s.workspaces[w.ID]; !ok {
		return nil, ErrWorkspaceNotFound
	}
	updated := *w
	s.workspaces[w.ID] = &updated
	return &updated, nil
}

func (s *memStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[id]; !ok {
		return ErrWorkspaceNotFound
	}
	delete(s.workspaces, id)
	return nil
}

type mockUsers struct{ mock.Mock }

func (m *mockUsers) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*user.User)
	return u, args.Error(1)
}

func (m *mockUsers) GlobalRoles(ctx context.Context, id uuid.UUID) ([]security.Role, error) {
	args := m.Called(ctx, id)
	roles, _ := args.Get(0).([]security.Role)
	return roles, args.Error(1)
}

type mockSessions struct{ mock.Mock }

func (m *mockSessions) SetActiveWorkspace(ctx context.Context, userID, workspaceID uuid.UUID) error {
	return m.Called(ctx, userID, workspaceID).Error(0)
}

func (m *mockSessions) ClearActiveWorkspace(ctx context.Context, userID uuid.UUID, workspaceID *uuid.UUID) error {
	return m.Called(ctx, userID, workspaceID).Error(0)
}

// providerFunc adapts a function to security.ContextProvider.
type providerFunc func(ctx context.Context) (*security.UserContext, error)

func (f providerFunc) UserContext(ctx context.Context) (*security.UserContext, error) {
	return f(ctx)
}

func callerWith(userID *uuid.UUID, active *uuid.UUID, roles ...security.Role) providerFunc {
	return func(context.Context) (*security.UserContext, error) {
		return &security.UserContext{
			User:              security.User{ID: userID},
			ActiveWorkspaceID: active,
			AssignedRoles:     roles,
		}, nil
	}
}
