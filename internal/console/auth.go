package console

import (
	"context"
	"strings"

	"rule-console/internal/view"
)

// Authorizer supplies the caller's privilege. The console only reads it.
type Authorizer interface {
	CanManageRules() bool
}

// AuthorizerFunc adapts a function to Authorizer
type AuthorizerFunc func() bool

func (f AuthorizerFunc) CanManageRules() bool { return f() }

// RoleAuthorizer grants management to a fixed set of roles
type RoleAuthorizer struct {
	Role         string
	ManagerRoles []string
}

func (a RoleAuthorizer) CanManageRules() bool {
	role := strings.TrimSpace(a.Role)
	if role == "" {
		return false
	}
	for _, r := range a.ManagerRoles {
		if strings.EqualFold(strings.TrimSpace(r), role) {
			return true
		}
	}
	return false
}

// guardFor maps every privileged console action onto one capability
func guardFor(auth Authorizer) view.Guard {
	if auth == nil {
		return view.DenyAll
	}
	return func(view.Action) bool {
		return auth.CanManageRules()
	}
}

// Confirmer asks the user a yes/no question
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}
