package account

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wanderauth/go-user-accounts/internal/types"
)

// MockAccountService is a mock implementation of the AccountService interface
type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) Register(ctx context.Context, req SignupRequest) (*types.UserAccount, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.UserAccount), args.Error(1)
}

func (m *MockAccountService) Authenticate(ctx context.Context, email, password string) (string, *types.UserAccount, error) {
	args := m.Called(ctx, email, password)
	if args.Get(1) == nil {
		return args.String(0), nil, args.Error(2)
	}
	return args.String(0), args.Get(1).(*types.UserAccount), args.Error(2)
}

func (m *MockAccountService) EditProfile(ctx context.Context, userID uuid.UUID, params types.UpdateProfileParams) (*types.UserAccount, error) {
	args := m.Called(ctx, userID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.UserAccount), args.Error(1)
}

func (m *MockAccountService) RequestPasswordReset(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockAccountService) ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) error {
	args := m.Called(ctx, token, newPassword, confirmPassword)
	return args.Error(0)
}

func (m *MockAccountService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword, confirmPassword string) error {
	args := m.Called(ctx, userID, oldPassword, newPassword, confirmPassword)
	return args.Error(0)
}

func (m *MockAccountService) InvalidateAllSessions(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockAccountService) CurrentTokenVersion(ctx context.Context, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func newTestHandler(service AccountService) *HandlerImpl {
	return NewHandlerImpl(service, slog.Default())
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func authedContext(r *http.Request, userID uuid.UUID) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), UserIDKey, userID.String()))
}

func TestSignupHandler(t *testing.T) {
	t.Run("Created", func(t *testing.T) {
		mockService := new(MockAccountService)
		handler := newTestHandler(mockService)

		body := SignupRequest{
			FullName:    "Ana Silva",
			Email:       "ana@example.com",
			PhoneNumber: "+351912345678",
			Password:    "P@ss1234",
		}
		created := &types.UserAccount{ID: uuid.New(), Email: body.Email, FullName: body.FullName}
		mockService.On("Register", mock.Anything, body).Return(created, nil).Once()

		rr := httptest.NewRecorder()
		handler.Signup(rr, jsonRequest(t, http.MethodPost, "/signup", body))

		assert.Equal(t, http.StatusCreated, rr.Code)

		var got types.UserAccount
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, created.ID, got.ID)
		mockService.AssertExpectations(t)
	})

	t.Run("SecretsNeverSerialized", func(t *testing.T) {
		mockService := new(MockAccountService)
		handler := newTestHandler(mockService)

		body := SignupRequest{
			FullName:    "Ana Silva",
			Email:       "ana@example.com",
			PhoneNumber: "+351912345678",
			Password:    "P@ss1234",
		}
		tok := "secrettoken"
		created := &types.UserAccount{
			ID:           uuid.New(),
			Email:        body.Email,
			PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
			ResetToken:   &tok,
			TokenVersion: 7,
		}
		mockService.On("Register", mock.Anything, body).Return(created, nil).Once()

		rr := httptest.NewRecorder()
		handler.Signup(rr, jsonRequest(t, http.MethodPost, "/signup", body))

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.NotContains(t, rr.Body.String(), "password_hash")
		assert.NotContains(t, rr.Body.String(), "secrettoken")
		assert.NotContains(t, rr.Body.String(), "token_version")
	})

	t.Run("DuplicateEmailIsBadRequest", func(t *testing.T) {
		mockService := new(MockAccountService)
		handler := newTestHandler(mockService)

		body := SignupRequest{
			FullName:    "Ana Silva",
			Email:       "ana@example.com",
			PhoneNumber: "+351912345678",
			Password:    "P@ss1234",
		}
		mockService.On("Register", mock.Anything, body).Return(nil, types.ErrConflict).Once()

		rr := httptest.NewRecorder()
		handler.Signup(rr, jsonRequest(t, http.MethodPost, "/signup", body))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "Email is already registered")
	})

	t.Run("MalformedBody", func(t *testing.T) {
		mockService := new(MockAccountService)
		handler := newTestHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/signup", bytes.NewBufferString("{not json"))
		rr := httptest.NewRecorder()
		handler.Signup(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
	})
}

func TestLoginHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockService := new(MockAccountService)
		handler := newTestHandler(mockService)

		user := &types.UserAccount{ID: uuid.New(), Email: "a@x.com"}
		mockService.On("Authenticate", mock.Anything, "a@x.com", "pw").
			Return("signed.jwt.token", user, nil).Once()

		rr := httptest.NewRecorder()
		handler.Login(rr, jsonRequest(t, http.MethodPost, "/login", LoginRequest{Email: "a@x.com", Password: "pw"}))

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp LoginResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "signed.jwt.token", resp.AccessToken)
		assert.Equal(t, "Login successful", resp.Message)
		require.NotNil(t, resp.User)
		assert.Equal(t, user.ID, resp.User.ID)
	})

	t.Run("InvalidCredentials", func(t *testing.T) {
		mockService := new(MockAccountService)
		handler := newTestHandler(mockService)

		mockService.On("Authenticate", mock.Anything, "a@x.com", "bad").
			Return("", nil, types.ErrInvalidCredentials).Once()

		rr := httptest.NewRecorder()
		handler.Login(rr, jsonRequest(t, http.MethodPost, "/login", LoginRequest{Email: "a@x.com", Password: "bad"}))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "Invalid credentials")
	})

	t.Run("MissingFields", func(t *testing.T) {
		mockService := new(MockAccountService)
		handler := newTestHandler(mockService)

		rr := httptest.NewRecorder()
		handler.Login(rr, jsonRequest(t, http.MethodPost, "/login", LoginRequest{Email: "a@x.com"}))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestEditProfileHandler(t *testing.T) {
	userID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockAccountService)
		handler := newTestHandler(mockService)

		name := "New Name"
		params := types.UpdateProfileParams{FullName: &name}
		updated := &types.UserAccount{ID: userID, FullName: name}
		mockService.On("EditProfile", mock.Anything, userID, params).Return(updated, nil).Once()

		req := authedContext(jsonRequest(t, http.MethodPut, "/profile/edit", params), userID)
		rr := httptest.NewRecorder()
		handler.EditProfile(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var got types.UserAccount
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, name, got.FullName)
		mockService.AssertExpectations(t)
	})

	t.Run("UnauthenticatedWithoutContext", func(t *testing.T) {
		mockService := new(MockAccountService)
		handler := newTestHandler(mockService)

		name := "New Name"
		req := jsonRequest(t, http.MethodPut, "/profile/edit", types.UpdateProfileParams{FullName: &name})
		rr := httptest.NewRecorder()
		handler.EditProfile(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		mockService.AssertNotCalled(t, "EditProfile", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("NonWhitelistedFieldRejected", func(t *testing.T) {
		mockService := new(MockAccountService)
		handler := newTestHandler(mockService)

		req := authedContext(jsonRequest(t, http.MethodPut, "/profile/edit",
			map[string]any{"password_hash": "sneaky"}), userID)
		rr := httptest.NewRecorder()
		handler.EditProfile(rr, req)

		// Unknown keys fail decoding before the service is ever reached.
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "EditProfile", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRequestPasswordResetHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockService := new(MockAccountService)
		handler := newTestHandler(mockService)

		mockService.On("RequestPasswordReset", mock.Anything, "a@x.com").Return(nil).Once()

		rr := httptest.NewRecorder()
		handler.RequestPasswordReset(rr, jsonRequest(t, http.MethodPost, "/password/reset", RequestResetRequest{Email: "a@x.com"}))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Recovery email sent")
	})

	t.Run("NotificationFailure", func(t *testing.T) {
		mockService := new(MockAccountService)
		handler := newTestHandler(mockService)

		mockService.On("RequestPasswordReset", mock.Anything, "a@x.com").
			Return(types.ErrNotification).Once()

		rr := httptest.NewRecorder()
		handler.RequestPasswordReset(rr, jsonRequest(t, http.MethodPost, "/password/reset", RequestResetRequest{Email: "a@x.com"}))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "Failed to send recovery email")
	})

	t.Run("UnknownEmail", func(t *testing.T) {
		mockService := new(MockAccountService)
		handler := newTestHandler(mockService)

		mockService.On("RequestPasswordReset", mock.Anything, "nobody@x.com").
			Return(types.ErrNotFound).Once()

		rr := httptest.NewRecorder()
		handler.RequestPasswordReset(rr, jsonRequest(t, http.MethodPost, "/password/reset", RequestResetRequest{Email: "nobody@x.com"}))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "User not found")
	})
}

func TestResetPasswordHandler(t *testing.T) {
	// Route through chi so the token URL parameter resolves.
	newRouter := func(h *HandlerImpl) *chi.Mux {
		r := chi.NewRouter()
		r.Post("/password/reset/{token}", h.ResetPassword)
		return r
	}

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockAccountService)
		handler := newTestHandler(mockService)

		mockService.On("ResetPassword", mock.Anything, "abc123", "newPass1", "newPass1").Return(nil).Once()

		rr := httptest.NewRecorder()
		newRouter(handler).ServeHTTP(rr, jsonRequest(t, http.MethodPost, "/password/reset/abc123",
			ResetPasswordRequest{NewPassword: "newPass1", ConfirmPassword: "newPass1"}))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Password reset successful")
	})

	t.Run("StaleToken", func(t *testing.T) {
		mockService := new(MockAccountService)
		handler := newTestHandler(mockService)

		mockService.On("ResetPassword", mock.Anything, "stale", "newPass1", "newPass1").
			Return(types.ErrResetTokenInvalid).Once()

		rr := httptest.NewRecorder()
		newRouter(handler).ServeHTTP(rr, jsonRequest(t, http.MethodPost, "/password/reset/stale",
			ResetPasswordRequest{NewPassword: "newPass1", ConfirmPassword: "newPass1"}))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "Token is invalid or has expired")
	})

	t.Run("Mismatch", func(t *testing.T) {
		mockService := new(MockAccountService)
		handler := newTestHandler(mockService)

		mockService.On("ResetPassword", mock.Anything, "abc123", "one", "two").
			Return(types.ErrPasswordMismatch).Once()

		rr := httptest.NewRecorder()
		newRouter(handler).ServeHTTP(rr, jsonRequest(t, http.MethodPost, "/password/reset/abc123",
			ResetPasswordRequest{NewPassword: "one", ConfirmPassword: "two"}))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "Passwords do not match")
	})
}

func TestChangePasswordHandler(t *testing.T) {
	userID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockAccountService)
		handler := newTestHandler(mockService)

		mockService.On("ChangePassword", mock.Anything, userID, "old", "new1", "new1").Return(nil).Once()

		req := authedContext(jsonRequest(t, http.MethodPost, "/password/change",
			ChangePasswordRequest{OldPassword: "old", NewPassword: "new1", ConfirmPassword: "new1"}), userID)
		rr := httptest.NewRecorder()
		handler.ChangePassword(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Password changed successfully")
	})

	t.Run("WrongOldPassword", func(t *testing.T) {
		mockService := new(MockAccountService)
		handler := newTestHandler(mockService)

		mockService.On("ChangePassword", mock.Anything, userID, "bad", "new1", "new1").
			Return(types.ErrInvalidCredentials).Once()

		req := authedContext(jsonRequest(t, http.MethodPost, "/password/change",
			ChangePasswordRequest{OldPassword: "bad", NewPassword: "new1", ConfirmPassword: "new1"}), userID)
		rr := httptest.NewRecorder()
		handler.ChangePassword(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "Invalid credentials")
	})
}

func TestLogoutHandlers(t *testing.T) {
	userID := uuid.New()

	t.Run("LogoutAcknowledges", func(t *testing.T) {
		mockService := new(MockAccountService)
		handler := newTestHandler(mockService)

		req := authedContext(httptest.NewRequest(http.MethodPost, "/logout", nil), userID)
		rr := httptest.NewRecorder()
		handler.Logout(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Logged out successfully")
		// Single-device logout never touches the session epoch.
		mockService.AssertNotCalled(t, "InvalidateAllSessions", mock.Anything, mock.Anything)
	})

	t.Run("LogoutAllBumpsEpoch", func(t *testing.T) {
		mockService := new(MockAccountService)
		handler := newTestHandler(mockService)

		mockService.On("InvalidateAllSessions", mock.Anything, userID).Return(nil).Once()

		req := authedContext(httptest.NewRequest(http.MethodPost, "/logout/all", nil), userID)
		rr := httptest.NewRecorder()
		handler.LogoutAll(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Signed out from all devices")
		mockService.AssertExpectations(t)
	})
}
