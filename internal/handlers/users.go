package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/BradenHooton/deepshield/internal/auth"
	"github.com/BradenHooton/deepshield/internal/models"
	"github.com/BradenHooton/deepshield/internal/services"
	pkghttp "github.com/BradenHooton/deepshield/pkg/http"
	"github.com/go-chi/chi/v5"
)

// UpdateUserRequest represents the body of an admin account change.
// Absent fields are left untouched.
type UpdateUserRequest struct {
	Role      *string `json:"role,omitempty" validate:"omitempty,oneof=user admin"`
	Status    *string `json:"status,omitempty" validate:"omitempty,oneof=active inactive deleted"`
	IsBlocked *bool   `json:"isBlocked,omitempty"`
}

func (req UpdateUserRequest) toUpdate() models.AccountUpdate {
	var update models.AccountUpdate
	if req.Role != nil {
		role := models.Role(*req.Role)
		update.Role = &role
	}
	if req.Status != nil {
		status := models.UserStatus(*req.Status)
		update.Status = &status
	}
	update.IsBlocked = req.IsBlocked
	return update
}

// ListUsersResponse represents a page of users
type ListUsersResponse struct {
	Success bool `json:"success"`
	*services.UserListResponse
}

// ListUsers retrieves users with optional role and status filters
//
// @Summary List users
// @Param role query string false "Comma-separated roles"
// @Param status query string false "Comma-separated statuses"
// @Param limit query int false "Limit (default 50, max 200)"
// @Param offset query int false "Offset (default 0)"
// @Produce json
// @Success 200 {object} ListUsersResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	filter, err := parseUserFilter(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	page, err := h.service.ListUsers(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ListUsersResponse{Success: true, UserListResponse: page})
}

// UpdateUser changes role, status or the blocked flag of an account
//
// @Summary Update user account
// @Param id path string true "User ID"
// @Param request body UpdateUserRequest true "Fields to change"
// @Produce json
// @Success 200 {object} UserResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 404 {object} pkghttp.ErrorResponse
// @Router /admin/users/{id} [patch]
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actor := auth.UserFromContext(r.Context())
	if actor == nil {
		pkghttp.WriteUnauthorized(w, "Please login to access this resource")
		return
	}

	userID := chi.URLParam(r, "id")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "User ID is required")
		return
	}

	var req UpdateUserRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	meta := services.RequestMeta{
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.UserAgent(),
	}
	user, err := h.service.UpdateUser(r.Context(), actor, userID, req.toUpdate(), meta)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, UserResponse{Success: true, User: user})
}

// parseUserFilter reads role, status, limit and offset from the query string
func parseUserFilter(r *http.Request) (models.UserFilter, error) {
	q := r.URL.Query()
	var filter models.UserFilter

	for _, raw := range splitCSV(q.Get("role")) {
		role := models.Role(raw)
		if !role.Valid() {
			return filter, models.NewValidationError("role", "must be user or admin")
		}
		filter.Roles = append(filter.Roles, role)
	}

	for _, raw := range splitCSV(q.Get("status")) {
		status := models.UserStatus(raw)
		if !status.Valid() {
			return filter, models.NewValidationError("status", "must be active, inactive or deleted")
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			return filter, models.NewValidationError("limit", "must be a positive integer")
		}
		filter.Limit = n
	}

	if o := q.Get("offset"); o != "" {
		n, err := strconv.Atoi(o)
		if err != nil || n < 0 {
			return filter, models.NewValidationError("offset", "must be a non-negative integer")
		}
		filter.Offset = n
	}

	return filter.Normalize(), nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
