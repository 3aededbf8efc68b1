package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contactbook/internal/errs"
	"contactbook/internal/models"
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name     string
		role     models.UserRole
		required []models.UserRole
		allowed  bool
	}{
		{"user on admin route", models.UserRoleUser, AdminRoles, false},
		{"user on moderator route", models.UserRoleUser, ModeratorRoles, false},
		{"moderator on moderator route", models.UserRoleModerator, ModeratorRoles, true},
		{"moderator on admin route", models.UserRoleModerator, AdminRoles, false},
		{"admin on moderator route", models.UserRoleAdmin, ModeratorRoles, true},
		{"admin on admin route", models.UserRoleAdmin, AdminRoles, true},
		{"empty role", "", ModeratorRoles, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := models.User{ID: 9, Username: "u", Role: tt.role}
			got, err := Authorize(user, tt.required...)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, user, got)
				return
			}
			require.ErrorIs(t, err, errs.ErrForbidden)
		})
	}
}
