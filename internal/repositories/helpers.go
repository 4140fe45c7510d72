package repositories

import (
	"strings"
	"time"

	"github.com/BradenHooton/deepshield/internal/models"
	"github.com/google/uuid"
)

// prepareNewUser assigns the id, defaults and timestamps of a user about to be inserted
func prepareNewUser(user *models.User, now time.Time) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	if user.Status == "" {
		user.Status = models.StatusActive
	}
	if user.AuthProvider == "" {
		user.AuthProvider = models.ProviderLocal
	}
	user.LoginCount = 0
	user.LastLogin = nil
	user.FailedLoginAttempts = 0
	user.LastFailedLoginAttempt = nil
	user.CreatedAt = now
	user.UpdatedAt = now
}

// accountUpdateStrings lowers typed optional fields to driver-friendly pointers
func accountUpdateStrings(update models.AccountUpdate) (role, status *string) {
	if update.Role != nil {
		s := string(*update.Role)
		role = &s
	}
	if update.Status != nil {
		s := string(*update.Status)
		status = &s
	}
	return role, status
}

// filterStrings returns nil for empty sets so the query skips that predicate
func filterStrings(filter models.UserFilter) (roles, statuses []string) {
	for _, r := range filter.Roles {
		roles = append(roles, string(r))
	}
	for _, s := range filter.Statuses {
		statuses = append(statuses, string(s))
	}
	return roles, statuses
}

func newUserStats() *models.UserStats {
	return &models.UserStats{
		ByRole:   make(map[models.Role]int64),
		ByStatus: make(map[models.UserStatus]int64),
	}
}
