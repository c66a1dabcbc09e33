package role

import (
	"errors"
	"fmt"
	"slices"

	"github.com/curaious/xm/internal/security"
)

var ErrUnknownRole = errors.New("unknown role")

// Role is the application-level role a user can hold, globally or within a workspace.
type Role string

const (
	RoleGlobalAdmin    Role = "global-admin"
	RoleExaminee       Role = "examinee"
	RoleWorkspaceAdmin Role = "workspace-admin"
	RoleExaminer       Role = "examiner"
	RoleReviewer       Role = "reviewer"
)

// toSecurity is the single source of truth between the two role enumerations.
// Every application role must appear here exactly once.
var toSecurity = map[Role]security.Role{
	RoleGlobalAdmin:    security.RoleGlobalAdmin,
	RoleExaminee:       security.RoleExaminee,
	RoleWorkspaceAdmin: security.RoleWorkspaceAdmin,
	RoleExaminer:       security.RoleExaminer,
	RoleReviewer:       security.RoleReviewer,
}

var fromSecurity = func() map[security.Role]Role {
	out := make(map[security.Role]Role, len(toSecurity))
	for app, sec := range toSecurity {
		out[sec] = app
	}
	return out
}()

// All returns every application role in a stable order.
func All() []Role {
	out := make([]Role, 0, len(toSecurity))
	for r := range toSecurity {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

func (r Role) IsValid() bool {
	_, ok := toSecurity[r]
	return ok
}

// Parse validates a role coming from user input.
func Parse(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownRole, s)
	}
	return r, nil
}

// ToSecurityRole maps an application role onto its security-context counterpart.
func ToSecurityRole(r Role) (security.Role, error) {
	sec, ok := toSecurity[r]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownRole, r)
	}
	return sec, nil
}

// FromSecurityRole is the inverse of ToSecurityRole.
func FromSecurityRole(sec security.Role) (Role, error) {
	r, ok := fromSecurity[sec]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownRole, sec)
	}
	return r, nil
}

// Set is an unordered collection of roles.
type Set map[Role]struct{}

func NewSet(roles ...Role) Set {
	s := make(Set, len(roles))
	for _, r := range roles {
		s.Add(r)
	}
	return s
}

func (s Set) Add(r Role) {
	s[r] = struct{}{}
}

func (s Set) Contains(r Role) bool {
	_, ok := s[r]
	return ok
}

// Slice returns the roles sorted, for stable JSON output.
func (s Set) Slice() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}
