package role

import (
	"fmt"

	"github.com/curaious/xm/internal/security"
)

// Transformer converts persisted role names into application roles.
type Transformer struct{}

func NewTransformer() *Transformer {
	return &Transformer{}
}

// TransformUserEntityRole converts a single persisted role name.
func (t *Transformer) TransformUserEntityRole(roleName string) (Role, error) {
	r, err := FromSecurityRole(security.Role(roleName))
	if err != nil {
		return "", fmt.Errorf("failed to transform role name: %w", err)
	}
	return r, nil
}

// TransformUserEntityRoles converts a batch of persisted role names. Duplicates collapse.
func (t *Transformer) TransformUserEntityRoles(roleNames []string) (Set, error) {
	out := make(Set, len(roleNames))
	for _, name := range roleNames {
		r, err := t.TransformUserEntityRole(name)
		if err != nil {
			return nil, err
		}
		out.Add(r)
	}
	return out, nil
}

// EntityRoleName is the name a role is persisted under.
func EntityRoleName(r Role) (string, error) {
	sec, err := ToSecurityRole(r)
	if err != nil {
		return "", err
	}
	return string(sec), nil
}
