package account

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wanderauth/go-user-accounts/internal/api"
	"github.com/wanderauth/go-user-accounts/internal/types"
)

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	Signup(w http.ResponseWriter, r *http.Request)
	Login(w http.ResponseWriter, r *http.Request)
	EditProfile(w http.ResponseWriter, r *http.Request)
	RequestPasswordReset(w http.ResponseWriter, r *http.Request)
	ResetPassword(w http.ResponseWriter, r *http.Request)
	ChangePassword(w http.ResponseWriter, r *http.Request)
	Logout(w http.ResponseWriter, r *http.Request)
	LogoutAll(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	accountService AccountService
	logger         *slog.Logger
}

func NewHandlerImpl(accountService AccountService, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		accountService: accountService,
		logger:         logger,
	}
}

// domainErrorMessage maps a handled domain error to its boundary message, or ""
// when the error is not part of the taxonomy. All handled errors surface as 400.
func domainErrorMessage(err error) string {
	switch {
	case errors.Is(err, types.ErrValidation):
		return err.Error()
	case errors.Is(err, types.ErrConflict):
		return "Email is already registered"
	case errors.Is(err, types.ErrNotFound):
		return "User not found"
	case errors.Is(err, types.ErrInvalidCredentials):
		return "Invalid credentials"
	case errors.Is(err, types.ErrPasswordMismatch):
		return "Passwords do not match"
	case errors.Is(err, types.ErrResetTokenInvalid):
		return "Token is invalid or has expired"
	case errors.Is(err, types.ErrNotification):
		return "Failed to send recovery email"
	}
	return ""
}

func (h *HandlerImpl) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if msg := domainErrorMessage(err); msg != "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, msg)
		return
	}
	api.ErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
}

// callerID resolves the authenticated identity set by the Authenticate
// middleware.
func (h *HandlerImpl) callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userIDStr, ok := GetUserIDFromContext(r.Context())
	if !ok || userIDStr == "" {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid user ID format")
		return uuid.Nil, false
	}
	return userID, true
}

// Signup handles POST /signup.
func (h *HandlerImpl) Signup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "Signup"))

	var req SignupRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode request", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.accountService.Register(ctx, req)
	if err != nil {
		l.WarnContext(ctx, "Registration failed", slog.Any("error", err))
		h.respondDomainError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusCreated, user)
}

// Login handles POST /login.
func (h *HandlerImpl) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "Login"))

	var req LoginRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Email and password are required")
		return
	}

	token, user, err := h.accountService.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		l.WarnContext(ctx, "Login failed", slog.String("email", req.Email), slog.Any("error", err))
		h.respondDomainError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, LoginResponse{
		AccessToken: token,
		User:        user,
		Message:     "Login successful",
	})
}

// EditProfile handles PUT /profile/edit.
func (h *HandlerImpl) EditProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "EditProfile"))

	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	var params types.UpdateProfileParams
	if err := api.DecodeJSONBody(w, r, &params); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.accountService.EditProfile(ctx, userID, params)
	if err != nil {
		l.WarnContext(ctx, "Profile update failed", slog.Any("error", err))
		h.respondDomainError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, user)
}

// RequestPasswordReset handles POST /password/reset.
func (h *HandlerImpl) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "RequestPasswordReset"))

	var req RequestResetRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Email is required")
		return
	}

	if err := h.accountService.RequestPasswordReset(ctx, req.Email); err != nil {
		l.WarnContext(ctx, "Password reset request failed", slog.Any("error", err))
		h.respondDomainError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, types.Response{
		Success: true,
		Message: "Recovery email sent",
	})
}

// ResetPassword handles POST /password/reset/{token}.
func (h *HandlerImpl) ResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "ResetPassword"))

	token := chi.URLParam(r, "token")
	if token == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Reset token is required")
		return
	}

	var req ResetPasswordRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.accountService.ResetPassword(ctx, token, req.NewPassword, req.ConfirmPassword); err != nil {
		l.WarnContext(ctx, "Password reset failed", slog.Any("error", err))
		h.respondDomainError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, types.Response{
		Success: true,
		Message: "Password reset successful",
	})
}

// ChangePassword handles POST /password/change.
func (h *HandlerImpl) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "ChangePassword"))

	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	err := h.accountService.ChangePassword(ctx, userID, req.OldPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		l.WarnContext(ctx, "Password change failed", slog.Any("error", err))
		h.respondDomainError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, types.Response{
		Success: true,
		Message: "Password changed successfully",
	})
}

// Logout handles POST /logout. Access tokens are stateless, so the server has
// nothing to revoke for a single device; the client discards its token.
func (h *HandlerImpl) Logout(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.callerID(w, r); !ok {
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, types.Response{
		Success: true,
		Message: "Logged out successfully",
	})
}

// LogoutAll handles POST /logout/all by bumping the account's session epoch.
func (h *HandlerImpl) LogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "LogoutAll"))

	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	if err := h.accountService.InvalidateAllSessions(ctx, userID); err != nil {
		l.ErrorContext(ctx, "Failed to invalidate sessions", slog.Any("error", err))
		h.respondDomainError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, types.Response{
		Success: true,
		Message: "Signed out from all devices",
	})
}
