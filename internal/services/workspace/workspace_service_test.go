package workspace

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/curaious/xm/internal/security"
	"github.com/curaious/xm/internal/services/role"
	"github.com/curaious/xm/internal/services/user"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fastRetry = RetryConfig{MaxRetries: 5, MaxWait: time.Second, InitialInterval: time.Millisecond}

type fixture struct {
	store    *memStore
	users    *mockUsers
	sessions *mockSessions
	wsA      *Workspace
	wsB      *Workspace
	userID   uuid.UUID
}

func newFixture() *fixture {
	wsA := &Workspace{ID: uuid.New(), Name: "alpha"}
	wsB := &Workspace{ID: uuid.New(), Name: "beta"}
	return &fixture{
		store:    newMemStore(wsA, wsB),
		users:    &mockUsers{},
		sessions: &mockSessions{},
		wsA:      wsA,
		wsB:      wsB,
		userID:   uuid.New(),
	}
}

func (f *fixture) service(sec security.ContextProvider) *WorkspaceService {
	return NewWorkspaceService(f.store, f.users, role.NewTransformer(), sec, f.sessions, fastRetry)
}

func TestGetAllWorkspacesUnique(t *testing.T) {
	f := newFixture()
	svc := f.service(callerWith(&f.userID, nil))

	all, err := svc.GetAllWorkspaces(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)

	seen := map[uuid.UUID]bool{}
	for _, w := range all {
		require.False(t, seen[w.ID])
		seen[w.ID] = true
	}
}

func TestGetWorkspaceByIDNotFound(t *testing.T) {
	f := newFixture()
	svc := f.service(callerWith(&f.userID, nil))

	_, err := svc.GetWorkspaceByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrWorkspaceNotFound)
}

func TestGetActiveWorkspace(t *testing.T) {
	f := newFixture()

	t.Run("unset", func(t *testing.T) {
		svc := f.service(callerWith(&f.userID, nil))
		w, err := svc.GetActiveWorkspace(context.Background())
		require.NoError(t, err)
		require.Nil(t, w)

		id, err := svc.GetActiveWorkspaceID(context.Background())
		require.NoError(t, err)
		require.Nil(t, id)
	})

	t.Run("set", func(t *testing.T) {
		svc := f.service(callerWith(&f.userID, &f.wsB.ID))
		w, err := svc.GetActiveWorkspace(context.Background())
		require.NoError(t, err)
		require.Equal(t, f.wsB.ID, w.ID)

		id, err := svc.GetActiveWorkspaceID(context.Background())
		require.NoError(t, err)
		require.Equal(t, f.wsB.ID, *id)
	})
}

func TestGetWorkspacesByUserIDAndRole(t *testing.T) {
	f := newFixture()
	f.store.grant(f.userID, &f.wsA.ID, security.RoleExaminer)
	f.store.grant(f.userID, &f.wsB.ID, security.RoleReviewer)
	svc := f.service(callerWith(&f.userID, nil))

	got, err := svc.GetWorkspacesByUserIDAndRole(context.Background(), f.userID, role.RoleReviewer)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, f.wsB.ID, got[0].ID)

	_, err = svc.GetWorkspacesByUserIDAndRole(context.Background(), f.userID, role.Role("root"))
	require.ErrorIs(t, err, role.ErrUnknownRole)
}

func TestGetUserIDFromUserContext(t *testing.T) {
	f := newFixture()

	id, err := f.service(callerWith(&f.userID, nil)).GetUserIDFromUserContext(context.Background())
	require.NoError(t, err)
	require.Equal(t, f.userID, id)

	_, err = f.service(callerWith(nil, nil)).GetUserIDFromUserContext(context.Background())
	require.ErrorIs(t, err, security.ErrAuthenticationRequired)
}

func TestGetWorkspacesOfUserWaitsForLogin(t *testing.T) {
	f := newFixture()
	f.store.grant(f.userID, &f.wsA.ID, security.RoleExaminer)

	var calls atomic.Int32
	sec := providerFunc(func(context.Context) (*security.UserContext, error) {
		if calls.Add(1) < 3 {
			return &security.UserContext{}, nil
		}
		return &security.UserContext{User: security.User{ID: &f.userID}}, nil
	})

	got, err := f.service(sec).GetWorkspacesOfUser(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, f.wsA.ID, got[0].ID)
	require.Equal(t, int32(3), calls.Load())
}

func TestGetWorkspacesOfUserGivesUp(t *testing.T) {
	f := newFixture()

	t.Run("retries exhausted", func(t *testing.T) {
		var calls atomic.Int32
		sec := providerFunc(func(context.Context) (*security.UserContext, error) {
			calls.Add(1)
			return &security.UserContext{}, nil
		})

		_, err := f.service(sec).GetWorkspacesOfUser(context.Background())
		require.ErrorIs(t, err, security.ErrAuthenticationRequired)
		require.Equal(t, int32(fastRetry.MaxRetries+1), calls.Load())
	})

	t.Run("fail fast", func(t *testing.T) {
		var calls atomic.Int32
		sec := providerFunc(func(context.Context) (*security.UserContext, error) {
			calls.Add(1)
			return nil, security.ErrNoUserContext
		})
		svc := NewWorkspaceService(f.store, f.users, role.NewTransformer(), sec, f.sessions, RetryConfig{})

		_, err := svc.GetWorkspacesOfUser(context.Background())
		require.ErrorIs(t, err, security.ErrAuthenticationRequired)
		require.Equal(t, int32(1), calls.Load())
	})

	t.Run("context failure is not retried", func(t *testing.T) {
		boom := errors.New("session store down")
		var calls atomic.Int32
		sec := providerFunc(func(context.Context) (*security.UserContext, error) {
			calls.Add(1)
			return nil, boom
		})

		_, err := f.service(sec).GetWorkspacesOfUser(context.Background())
		require.ErrorIs(t, err, boom)
		require.NotErrorIs(t, err, security.ErrAuthenticationRequired)
		require.Equal(t, int32(1), calls.Load())
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := f.service(callerWith(nil, nil)).GetWorkspacesOfUser(ctx)
		require.ErrorIs(t, err, security.ErrAuthenticationRequired)
	})
}

func TestExtendUserAssignedRoles(t *testing.T) {
	f := newFixture()

	cases := []struct {
		name   string
		global []security.Role
		in     []security.Role
		want   []security.Role
	}{
		{"global admin only", []security.Role{security.RoleGlobalAdmin}, nil, []security.Role{security.RoleGlobalAdmin}},
		{"admin and examinee", []security.Role{security.RoleExaminee, security.RoleGlobalAdmin}, nil, []security.Role{security.RoleGlobalAdmin, security.RoleExaminee}},
		{"neither", []security.Role{security.RoleReviewer}, []security.Role{security.RoleExaminer}, []security.Role{security.RoleExaminer}},
		{"already present", []security.Role{security.RoleExaminee}, []security.Role{security.RoleExaminee}, []security.Role{security.RoleExaminee}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := f.service(callerWith(&f.userID, nil, tc.global...))
			in := ActiveWorkspaceIDAndRole{ActiveWorkspaceID: &f.wsA.ID, AssignedRolesToWorkspace: tc.in}
			before := append([]security.Role(nil), tc.in...)

			out, err := svc.ExtendUserAssignedRoles(context.Background(), in)
			require.NoError(t, err)
			require.ElementsMatch(t, tc.want, out.AssignedRolesToWorkspace)
			require.Equal(t, before, in.AssignedRolesToWorkspace)
			require.Equal(t, &f.wsA.ID, out.ActiveWorkspaceID)
		})
	}
}

func TestGetRolesOfUserByWorkspaceIsIdempotent(t *testing.T) {
	f := newFixture()
	f.store.grant(f.userID, &f.wsA.ID, security.RoleExaminer)
	f.store.grant(f.userID, &f.wsA.ID, security.RoleReviewer)
	f.store.grant(f.userID, &f.wsB.ID, security.RoleWorkspaceAdmin)
	svc := f.service(callerWith(&f.userID, nil))

	first, err := svc.GetRolesOfUserByWorkspace(context.Background(), f.userID, f.wsA.ID)
	require.NoError(t, err)
	second, err := svc.GetRolesOfUserByWorkspace(context.Background(), f.userID, f.wsA.ID)
	require.NoError(t, err)

	require.Equal(t, role.NewSet(role.RoleExaminer, role.RoleReviewer), first)
	require.Equal(t, first, second)
}

func TestAddUserToWorkspaceTwice(t *testing.T) {
	f := newFixture()
	f.users.On("GetByID", mock.Anything, f.userID).Return(&user.User{ID: f.userID, Email: "ada@example.com"}, nil).Once()
	svc := f.service(callerWith(&f.userID, nil))

	w, err := svc.AddUserToWorkspace(context.Background(), f.wsA.ID, f.userID, role.RoleExaminer)
	require.NoError(t, err)
	require.Equal(t, f.wsA.ID, w.ID)

	_, err = svc.AddUserToWorkspace(context.Background(), f.wsA.ID, f.userID, role.RoleExaminer)
	require.ErrorIs(t, err, ErrDuplicateRoleAssignment)

	var dup *DuplicateRoleError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "ada@example.com", dup.Email)
	require.Equal(t, role.RoleExaminer, dup.Role)

	require.Equal(t, 1, f.store.addCalls)
	f.users.AssertExpectations(t)
}

func TestAddUserToWorkspaceOtherRoleAllowed(t *testing.T) {
	f := newFixture()
	f.store.grant(f.userID, &f.wsA.ID, security.RoleExaminer)
	svc := f.service(callerWith(&f.userID, nil))

	_, err := svc.AddUserToWorkspace(context.Background(), f.wsA.ID, f.userID, role.RoleReviewer)
	require.NoError(t, err)

	held, err := svc.GetRolesOfUserByWorkspace(context.Background(), f.userID, f.wsA.ID)
	require.NoError(t, err)
	require.Equal(t, []role.Role{role.RoleExaminer, role.RoleReviewer}, held.Slice())
}

func TestAddUserToWorkspaceUnknownRole(t *testing.T) {
	f := newFixture()
	svc := f.service(callerWith(&f.userID, nil))

	_, err := svc.AddUserToWorkspace(context.Background(), f.wsA.ID, f.userID, role.Role("root"))
	require.ErrorIs(t, err, role.ErrUnknownRole)
	require.Zero(t, f.store.addCalls)
}

func TestRevokeUserRoleFromWorkspace(t *testing.T) {
	f := newFixture()
	f.store.grant(f.userID, &f.wsA.ID, security.RoleExaminer)
	f.store.grant(f.userID, &f.wsA.ID, security.RoleReviewer)
	f.store.grant(f.userID, &f.wsB.ID, security.RoleExaminer)
	svc := f.service(callerWith(&f.userID, nil))

	require.NoError(t, svc.RevokeUserRoleFromWorkspace(context.Background(), f.wsA.ID, f.userID, role.RoleExaminer))

	held, err := svc.GetRolesOfUserByWorkspace(context.Background(), f.userID, f.wsA.ID)
	require.NoError(t, err)
	require.False(t, held.Contains(role.RoleExaminer))
	require.True(t, held.Contains(role.RoleReviewer))

	other, err := svc.GetRolesOfUserByWorkspace(context.Background(), f.userID, f.wsB.ID)
	require.NoError(t, err)
	require.True(t, other.Contains(role.RoleExaminer))
}

func TestRevokeUserRoleEverywhere(t *testing.T) {
	f := newFixture()
	f.store.grant(f.userID, &f.wsA.ID, security.RoleExaminer)
	f.store.grant(f.userID, &f.wsB.ID, security.RoleExaminer)
	svc := f.service(callerWith(&f.userID, nil))

	require.NoError(t, svc.RevokeUserRole(context.Background(), f.userID, role.RoleExaminer))

	got, err := svc.GetWorkspacesByUserIDAndRole(context.Background(), f.userID, role.RoleExaminer)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSaveAndUpdateWorkspace(t *testing.T) {
	f := newFixture()
	svc := f.service(callerWith(&f.userID, nil))

	saved, err := svc.SaveWorkspace(context.Background(), &Workspace{Name: "gamma"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, saved.ID)

	body := &Workspace{ID: f.wsA.ID, Name: "renamed"}
	updated, err := svc.UpdateWorkspace(context.Background(), body, saved.ID)
	require.NoError(t, err)
	require.Equal(t, saved.ID, updated.ID)
	require.Equal(t, saved.ID, f.store.lastUpdate.ID)
	require.Equal(t, "renamed", updated.Name)

	// The workspace named by the body's own id is untouched.
	alpha, err := svc.GetWorkspaceByID(context.Background(), f.wsA.ID)
	require.NoError(t, err)
	require.Equal(t, "alpha", alpha.Name)
}

func TestDeleteWorkspace(t *testing.T) {
	f := newFixture()
	svc := f.service(callerWith(&f.userID, nil))

	require.NoError(t, svc.DeleteWorkspace(context.Background(), f.wsA.ID))
	require.ErrorIs(t, svc.DeleteWorkspace(context.Background(), f.wsA.ID), ErrWorkspaceNotFound)
}

func TestSwitchActiveWorkspace(t *testing.T) {
	f := newFixture()
	f.store.grant(f.userID, &f.wsA.ID, security.RoleExaminee)

	t.Run("member", func(t *testing.T) {
		f.sessions.On("SetActiveWorkspace", mock.Anything, f.userID, f.wsA.ID).Return(nil).Once()
		w, err := f.service(callerWith(&f.userID, nil)).SwitchActiveWorkspace(context.Background(), f.wsA.ID)
		require.NoError(t, err)
		require.Equal(t, f.wsA.ID, w.ID)
	})

	t.Run("not a member", func(t *testing.T) {
		f.users.On("GlobalRoles", mock.Anything, f.userID).Return([]security.Role{security.RoleExaminee}, nil).Once()
		_, err := f.service(callerWith(&f.userID, nil)).SwitchActiveWorkspace(context.Background(), f.wsB.ID)
		require.ErrorIs(t, err, ErrNotWorkspaceMember)
	})

	t.Run("global admin", func(t *testing.T) {
		f.users.On("GlobalRoles", mock.Anything, f.userID).Return([]security.Role{security.RoleGlobalAdmin}, nil).Once()
		f.sessions.On("SetActiveWorkspace", mock.Anything, f.userID, f.wsB.ID).Return(nil).Once()
		_, err := f.service(callerWith(&f.userID, nil)).SwitchActiveWorkspace(context.Background(), f.wsB.ID)
		require.NoError(t, err)
	})

	t.Run("stale global admin token", func(t *testing.T) {
		f.users.On("GlobalRoles", mock.Anything, f.userID).Return([]security.Role{}, nil).Once()
		_, err := f.service(callerWith(&f.userID, nil, security.RoleGlobalAdmin)).SwitchActiveWorkspace(context.Background(), f.wsB.ID)
		require.ErrorIs(t, err, ErrNotWorkspaceMember)
	})

	t.Run("unknown workspace", func(t *testing.T) {
		_, err := f.service(callerWith(&f.userID, nil)).SwitchActiveWorkspace(context.Background(), uuid.New())
		require.ErrorIs(t, err, ErrWorkspaceNotFound)
	})

	f.sessions.AssertExpectations(t)
	f.users.AssertExpectations(t)
}

func TestResolveActiveWorkspaceAndRoles(t *testing.T) {
	f := newFixture()
	f.store.grant(f.userID, &f.wsA.ID, security.RoleExaminer)
	f.store.grant(f.userID, &f.wsB.ID, security.RoleReviewer)

	t.Run("defaults to first workspace", func(t *testing.T) {
		f.sessions.On("SetActiveWorkspace", mock.Anything, f.userID, f.wsA.ID).Return(nil).Once()
		svc := f.service(callerWith(&f.userID, nil, security.RoleExaminee))

		got, err := svc.ResolveActiveWorkspaceAndRoles(context.Background())
		require.NoError(t, err)
		require.Equal(t, f.wsA.ID, *got.ActiveWorkspaceID)
		require.Equal(t, []security.Role{security.RoleExaminer, security.RoleExaminee}, got.AssignedRolesToWorkspace)
		require.Len(t, got.AssignedWorkspacesToUser, 2)
	})

	t.Run("keeps selected workspace", func(t *testing.T) {
		svc := f.service(callerWith(&f.userID, &f.wsB.ID))

		got, err := svc.ResolveActiveWorkspaceAndRoles(context.Background())
		require.NoError(t, err)
		require.Equal(t, f.wsB.ID, *got.ActiveWorkspaceID)
		require.Equal(t, []security.Role{security.RoleReviewer}, got.AssignedRolesToWorkspace)
	})

	t.Run("anonymous", func(t *testing.T) {
		_, err := f.service(callerWith(nil, nil)).ResolveActiveWorkspaceAndRoles(context.Background())
		require.ErrorIs(t, err, security.ErrAuthenticationRequired)
	})

	f.sessions.AssertExpectations(t)
}

func TestRequireWorkspaceAdmin(t *testing.T) {
	f := newFixture()
	f.store.grant(f.userID, &f.wsA.ID, security.RoleWorkspaceAdmin)
	f.store.grant(f.userID, &f.wsB.ID, security.RoleExaminer)
	f.users.On("GlobalRoles", mock.Anything, f.userID).Return([]security.Role{security.RoleExaminee}, nil).Twice()
	svc := f.service(callerWith(&f.userID, nil))

	require.NoError(t, svc.RequireWorkspaceAdmin(context.Background(), &f.wsA.ID))
	require.ErrorIs(t, svc.RequireWorkspaceAdmin(context.Background(), &f.wsB.ID), ErrForbidden)
	require.ErrorIs(t, svc.RequireWorkspaceAdmin(context.Background(), nil), ErrForbidden)
	f.users.AssertExpectations(t)

	t.Run("global admin", func(t *testing.T) {
		users := &mockUsers{}
		users.On("GlobalRoles", mock.Anything, f.userID).Return([]security.Role{security.RoleGlobalAdmin}, nil).Twice()
		svc := NewWorkspaceService(f.store, users, role.NewTransformer(), callerWith(&f.userID, nil), f.sessions, fastRetry)

		require.NoError(t, svc.RequireWorkspaceAdmin(context.Background(), nil))
		require.NoError(t, svc.RequireWorkspaceAdmin(context.Background(), &f.wsB.ID))
		users.AssertExpectations(t)
	})

	t.Run("revoked global admin with stale token", func(t *testing.T) {
		users := &mockUsers{}
		users.On("GlobalRoles", mock.Anything, f.userID).Return([]security.Role{}, nil).Once()
		svc := NewWorkspaceService(f.store, users, role.NewTransformer(), callerWith(&f.userID, nil, security.RoleGlobalAdmin), f.sessions, fastRetry)

		require.ErrorIs(t, svc.RequireWorkspaceAdmin(context.Background(), nil), ErrForbidden)
		users.AssertExpectations(t)
	})

	t.Run("user store failure", func(t *testing.T) {
		users := &mockUsers{}
		users.On("GlobalRoles", mock.Anything, f.userID).Return(nil, errors.New("db down")).Once()
		svc := NewWorkspaceService(f.store, users, role.NewTransformer(), callerWith(&f.userID, nil), f.sessions, fastRetry)

		err := svc.RequireWorkspaceAdmin(context.Background(), nil)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrForbidden)
	})

	t.Run("anonymous", func(t *testing.T) {
		require.ErrorIs(t, f.service(callerWith(nil, nil)).RequireWorkspaceAdmin(context.Background(), nil), security.ErrAuthenticationRequired)
	})
}

func TestReconcileActiveWorkspace(t *testing.T) {
	f := newFixture()
	f.store.grant(f.userID, &f.wsA.ID, security.RoleExaminer)
	svc := f.service(callerWith(&f.userID, nil))

	// still a member of alpha, nothing to clear
	require.NoError(t, svc.ReconcileActiveWorkspace(context.Background(), f.userID, f.wsA.ID))

	f.sessions.On("ClearActiveWorkspace", mock.Anything, f.userID, &f.wsB.ID).Return(nil).Once()
	require.NoError(t, svc.ReconcileActiveWorkspace(context.Background(), f.userID, f.wsB.ID))

	f.sessions.On("ClearActiveWorkspace", mock.Anything, f.userID, &f.wsB.ID).Return(errors.New("redis down")).Once()
	require.Error(t, svc.ReconcileActiveWorkspace(context.Background(), f.userID, f.wsB.ID))

	f.sessions.AssertExpectations(t)
}
