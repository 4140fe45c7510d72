package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BradenHooton/deepshield/internal/handlers"
	"github.com/BradenHooton/deepshield/internal/models"
	"github.com/BradenHooton/deepshield/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminRouter(svc *handlers.MockAdminService, actor *models.User) http.Handler {
	h := handlers.NewAdminHandler(svc, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, handlers.WithUser(req, actor))
		})
	})
	r.Get("/admin/users", h.ListUsers)
	r.Patch("/admin/users/{id}", h.UpdateUser)
	r.Get("/admin/stats", h.GetStats)
	return r
}

func TestAdminHandler_ListUsers_ParsesFilter(t *testing.T) {
	var got models.UserFilter
	svc := &handlers.MockAdminService{
		ListUsersFunc: func(ctx context.Context, filter models.UserFilter) (*services.UserListResponse, error) {
			got = filter
			users := []*models.User{handlers.NewTestUser("u-1", "a@example.com", models.RoleUser)}
			return &services.UserListResponse{Users: users, Count: 1, Limit: filter.Limit, Offset: filter.Offset}, nil
		},
	}
	admin := handlers.NewTestUser("admin-1", "root@example.com", models.RoleAdmin)

	w := httptest.NewRecorder()
	newAdminRouter(svc, admin).ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/admin/users?role=user,Admin&status=active,%20inactive&limit=10&offset=20", nil))

	var resp handlers.ListUsersResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.UserListResponse)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 10, resp.Limit)
	assert.Equal(t, 20, resp.Offset)
	require.Len(t, resp.Users, 1)

	assert.Equal(t, []models.Role{models.RoleUser, models.RoleAdmin}, got.Roles)
	assert.Equal(t, []models.UserStatus{models.StatusActive, models.StatusInactive}, got.Statuses)
	assert.Equal(t, 10, got.Limit)
	assert.Equal(t, 20, got.Offset)
}

func TestAdminHandler_ListUsers_Defaults(t *testing.T) {
	var got models.UserFilter
	svc := &handlers.MockAdminService{
		ListUsersFunc: func(ctx context.Context, filter models.UserFilter) (*services.UserListResponse, error) {
			got = filter
			return &services.UserListResponse{Users: []*models.User{}, Limit: filter.Limit}, nil
		},
	}

	w := httptest.NewRecorder()
	newAdminRouter(svc, handlers.NewTestUser("admin-1", "root@example.com", models.RoleAdmin)).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/users?limit=5000", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, got.Roles)
	assert.Empty(t, got.Statuses)
	assert.Equal(t, models.MaxListLimit, got.Limit)
}

func TestAdminHandler_ListUsers_BadQuery(t *testing.T) {
	for _, query := range []string{"role=owner", "status=archived", "limit=abc", "limit=0", "offset=-1"} {
		t.Run(query, func(t *testing.T) {
			w := httptest.NewRecorder()
			newAdminRouter(&handlers.MockAdminService{}, handlers.NewTestUser("admin-1", "root@example.com", models.RoleAdmin)).
				ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/users?"+query, nil))

			handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
		})
	}
}

func TestAdminHandler_UpdateUser(t *testing.T) {
	admin := handlers.NewTestUser("admin-1", "root@example.com", models.RoleAdmin)

	var gotActor *models.User
	var gotTarget string
	var gotUpdate models.AccountUpdate
	svc := &handlers.MockAdminService{
		UpdateUserFunc: func(ctx context.Context, actor *models.User, targetID string, update models.AccountUpdate, meta services.RequestMeta) (*models.User, error) {
			gotActor, gotTarget, gotUpdate = actor, targetID, update
			user := handlers.NewTestUser(targetID, "t@example.com", models.RoleUser)
			user.IsBlocked = *update.IsBlocked
			return user, nil
		},
	}

	req := httptest.NewRequest(http.MethodPatch, "/admin/users/u-7", strings.NewReader(`{"isBlocked":true}`))
	w := httptest.NewRecorder()
	newAdminRouter(svc, admin).ServeHTTP(w, req)

	var resp handlers.UserResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.True(t, resp.User.IsBlocked)

	assert.Equal(t, "admin-1", gotActor.ID)
	assert.Equal(t, "u-7", gotTarget)
	assert.Nil(t, gotUpdate.Role)
	assert.Nil(t, gotUpdate.Status)
	require.NotNil(t, gotUpdate.IsBlocked)
	assert.True(t, *gotUpdate.IsBlocked)
}

func TestAdminHandler_UpdateUser_Errors(t *testing.T) {
	admin := handlers.NewTestUser("admin-1", "root@example.com", models.RoleAdmin)

	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{"invalid role", `{"role":"owner"}`, nil, http.StatusBadRequest, "bad_request"},
		{"invalid status", `{"status":"archived"}`, nil, http.StatusBadRequest, "bad_request"},
		{"bad json", `{"role":`, nil, http.StatusBadRequest, "bad_request"},
		{"self demotion", `{"role":"user"}`, models.NewValidationError("role", "admins cannot change their own role"), http.StatusBadRequest, "bad_request"},
		{"unknown user", `{"role":"admin"}`, models.ErrNotFound, http.StatusNotFound, "not_found"},
		{"store failure", `{"role":"admin"}`, errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &handlers.MockAdminService{
				UpdateUserFunc: func(ctx context.Context, actor *models.User, targetID string, update models.AccountUpdate, meta services.RequestMeta) (*models.User, error) {
					return nil, tt.err
				},
			}

			req := httptest.NewRequest(http.MethodPatch, "/admin/users/u-7", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			newAdminRouter(svc, admin).ServeHTTP(w, req)

			handlers.AssertErrorResponse(t, w, tt.status, tt.code)
		})
	}
}

func TestAdminHandler_GetStats(t *testing.T) {
	svc := &handlers.MockAdminService{
		GetStatsFunc: func(ctx context.Context) (*models.UserStats, error) {
			return &models.UserStats{
				Total:    3,
				ByRole:   map[models.Role]int64{models.RoleAdmin: 1, models.RoleUser: 2},
				ByStatus: map[models.UserStatus]int64{models.StatusActive: 3},
				Verified: 1,
			}, nil
		},
	}

	w := httptest.NewRecorder()
	newAdminRouter(svc, handlers.NewTestUser("admin-1", "root@example.com", models.RoleAdmin)).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))

	var resp handlers.StatsResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	require.NotNil(t, resp.Stats)
	assert.EqualValues(t, 3, resp.Stats.Total)
	assert.EqualValues(t, 2, resp.Stats.ByRole[models.RoleUser])
	assert.EqualValues(t, 1, resp.Stats.Verified)
}

type stubHealth struct{ err error }

func (s stubHealth) HealthCheck(context.Context) error { return s.err }

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	handlers.Health(stubHealth{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var resp handlers.HealthResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "healthy", resp.Status)

	w = httptest.NewRecorder()
	handlers.Health(stubHealth{err: errors.New("down")}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	handlers.AssertJSONResponse(t, w, http.StatusServiceUnavailable, &resp)
	assert.Equal(t, "unhealthy", resp.Status)
}
