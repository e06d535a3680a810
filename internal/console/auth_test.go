package console

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rule-console/internal/view"
)

func TestRoleAuthorizer(t *testing.T) {
	managers := []string{"owner", "Admin"}

	tests := []struct {
		role string
		want bool
	}{
		{"owner", true},
		{"admin", true},
		{" ADMIN ", true},
		{"viewer", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			auth := RoleAuthorizer{Role: tt.role, ManagerRoles: managers}
			assert.Equal(t, tt.want, auth.CanManageRules())
		})
	}
}

func TestGuardReadsAuthorizerEachTime(t *testing.T) {
	allowed := false
	guard := guardFor(AuthorizerFunc(func() bool { return allowed }))

	assert.False(t, guard(view.ActionCreate))
	allowed = true
	assert.True(t, guard(view.ActionCreate))
	assert.True(t, guard(view.ActionViewQueue))

	assert.False(t, guardFor(nil)(view.ActionEdit))
}
