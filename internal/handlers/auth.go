package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/BradenHooton/deepshield/internal/auth"
	"github.com/BradenHooton/deepshield/internal/models"
	"github.com/BradenHooton/deepshield/internal/services"
	pkghttp "github.com/BradenHooton/deepshield/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Register(ctx context.Context, in services.NewUser, meta services.RequestMeta) (*models.User, error)
	Login(ctx context.Context, email, password string, meta services.RequestMeta) (*services.LoginResult, error)
	Logout(ctx context.Context, user *models.User, meta services.RequestMeta)
	ChangePassword(ctx context.Context, user *models.User, current, next string, meta services.RequestMeta) error
	ResendVerification(ctx context.Context, user *models.User) error
	VerifyEmail(ctx context.Context, token string) (*models.User, error)
	TokenTTL() time.Duration
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	cookies  auth.CookieConfig
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, cookies auth.CookieConfig, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		cookies:  cookies,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required,max=100"`
	Avatar   string `json:"avatar,omitempty" validate:"omitempty,url"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

// Response DTOs

// UserResponse wraps a single user
type UserResponse struct {
	Success bool         `json:"success"`
	User    *models.User `json:"user"`
}

// LoginResponse carries the session token alongside the cookie for clients
// that cannot read http-only cookies
type LoginResponse struct {
	Success bool         `json:"success"`
	User    *models.User `json:"user"`
	Token   string       `json:"token"`
}

// MessageResponse is a bare acknowledgement
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *AuthHandler) requestMeta(r *http.Request) services.RequestMeta {
	return services.RequestMeta{
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.UserAgent(),
	}
}

// Register handles user registration
// @Summary User registration
// @Accept json
// @Param request body RegisterRequest true "Register request"
// @Produce json
// @Success 201 {object} UserResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 409 {object} pkghttp.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	user, err := h.service.Register(r.Context(), services.NewUser{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Avatar:   req.Avatar,
	}, h.requestMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, UserResponse{Success: true, User: user})
}

// Login handles user login
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} LoginResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password, h.requestMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	auth.SetSessionCookie(w, result.Token, h.service.TokenTTL(), h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Success: true,
		User:    result.User,
		Token:   result.Token,
	})
}

// Logout clears the session cookie
// @Summary User logout
// @Produce json
// @Success 200 {object} MessageResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/logout [get]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if user := auth.UserFromContext(r.Context()); user != nil {
		h.service.Logout(r.Context(), user, h.requestMeta(r))
	}

	auth.ClearSessionCookie(w, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "Logged out successfully",
	})
}

// Me returns the authenticated user
// @Summary Current user
// @Produce json
// @Success 200 {object} UserResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Please login to access this resource")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, UserResponse{Success: true, User: user})
}

// ChangePassword replaces the password of the authenticated user
// @Summary Change password
// @Accept json
// @Param request body ChangePasswordRequest true "Change password request"
// @Produce json
// @Success 200 {object} MessageResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/password [put]
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Please login to access this resource")
		return
	}

	var req ChangePasswordRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	err := h.service.ChangePassword(r.Context(), user, req.CurrentPassword, req.NewPassword, h.requestMeta(r))
	if errors.Is(err, models.ErrInvalidCredentials) {
		pkghttp.WriteUnauthorized(w, "Current password is incorrect")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "Password updated successfully",
	})
}

// VerifyEmail consumes the token of a verification link
// @Summary Verify email
// @Param token query string true "Verification token"
// @Produce json
// @Success 200 {object} UserResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Router /auth/verify-email [get]
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, UserResponse{Success: true, User: user})
}

// ResendVerification mails a new verification link to the authenticated user
// @Summary Resend verification email
// @Produce json
// @Success 202 {object} MessageResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/resend-verification [post]
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Please login to access this resource")
		return
	}

	if user.IsVerified {
		pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{
			Success: true,
			Message: "Email address is already verified",
		})
		return
	}

	if err := h.service.ResendVerification(r.Context(), user); err != nil {
		writeServiceError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{
		Success: true,
		Message: "Verification email sent",
	})
}
