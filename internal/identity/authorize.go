package identity

import (
	"slices"

	"contactbook/internal/errs"
	"contactbook/internal/models"
)

var (
	ModeratorRoles = []models.UserRole{models.UserRoleModerator, models.UserRoleAdmin}
	AdminRoles     = []models.UserRole{models.UserRoleAdmin}
)

// Authorize returns user when its role is one of required.
func Authorize(user models.User, required ...models.UserRole) (models.User, error) {
	if slices.Contains(required, user.Role) {
		return user, nil
	}
	return models.User{}, errs.E(errs.KindForbidden, "identity.authorize", "insufficient role", nil)
}
