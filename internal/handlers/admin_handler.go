package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/deepshield/internal/models"
	"github.com/BradenHooton/deepshield/internal/services"
	pkghttp "github.com/BradenHooton/deepshield/pkg/http"
)

// AdminServiceInterface defines the admin service contract.
type AdminServiceInterface interface {
	ListUsers(ctx context.Context, filter models.UserFilter) (*services.UserListResponse, error)
	UpdateUser(ctx context.Context, actor *models.User, targetID string, update models.AccountUpdate, meta services.RequestMeta) (*models.User, error)
	GetStats(ctx context.Context) (*models.UserStats, error)
}

// AdminHandler handles admin HTTP requests. Routes are expected behind
// authentication and the admin role check.
type AdminHandler struct {
	service  AdminServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service AdminServiceInterface, ipConfig *pkghttp.IPConfig) *AdminHandler {
	return &AdminHandler{service: service, ipConfig: ipConfig}
}

// StatsResponse wraps the user counts
type StatsResponse struct {
	Success bool              `json:"success"`
	Stats   *models.UserStats `json:"stats"`
}

// GetStats handles GET /admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, StatsResponse{Success: true, Stats: stats})
}
