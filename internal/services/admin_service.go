package services

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/BradenHooton/deepshield/internal/models"
	pkglogger "github.com/BradenHooton/deepshield/pkg/logger"
)

// UserListResponse is one page of the admin user listing.
type UserListResponse struct {
	Users  []*models.User `json:"users"`
	Count  int            `json:"count"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// AdminService backs the admin user-management endpoints.
type AdminService struct {
	users  *UserService
	audit  *pkglogger.AuditLogger
	logger *slog.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(users *UserService, audit *pkglogger.AuditLogger, logger *slog.Logger) *AdminService {
	return &AdminService{
		users:  users,
		audit:  audit,
		logger: logger,
	}
}

// ListUsers returns a page of users filtered by role and status sets.
func (s *AdminService) ListUsers(ctx context.Context, filter models.UserFilter) (*UserListResponse, error) {
	filter = filter.Normalize()

	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &UserListResponse{
		Users:  users,
		Count:  len(users),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// UpdateUser applies an admin change to another account. An admin cannot
// demote, block or deactivate themselves.
func (s *AdminService) UpdateUser(ctx context.Context, actor *models.User, targetID string, update models.AccountUpdate, meta RequestMeta) (*models.User, error) {
	if actor.ID == targetID {
		switch {
		case update.Role != nil && *update.Role != models.RoleAdmin:
			return nil, models.NewValidationError("role", "admins cannot change their own role")
		case update.Status != nil && *update.Status != models.StatusActive:
			return nil, models.NewValidationError("status", "admins cannot deactivate or delete themselves")
		case update.IsBlocked != nil && *update.IsBlocked:
			return nil, models.NewValidationError("isBlocked", "admins cannot block themselves")
		}
	}

	user, err := s.users.UpdateAccount(ctx, targetID, update)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{}
	if update.Role != nil {
		metadata["role"] = string(*update.Role)
	}
	if update.Status != nil {
		metadata["status"] = string(*update.Status)
	}
	if update.IsBlocked != nil {
		metadata["is_blocked"] = strconv.FormatBool(*update.IsBlocked)
	}

	s.audit.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventUserUpdatedByAdmin,
		UserID:    targetID,
		ActorID:   actor.ID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Success:   true,
		Metadata:  metadata,
	})

	return user, nil
}

// GetStats returns user counts by role and status.
func (s *AdminService) GetStats(ctx context.Context) (*models.UserStats, error) {
	return s.users.Stats(ctx)
}
