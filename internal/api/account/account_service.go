package account

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"

	"github.com/wanderauth/go-user-accounts/app/observability/metrics"
	"github.com/wanderauth/go-user-accounts/config"
	"github.com/wanderauth/go-user-accounts/internal/types"
)

// bcrypt work factor. Fixed; hashing cost is intentional backpressure and must
// not be short-circuited.
const bcryptCost = 10

// resetTokenBytes yields a 40-char hex token, 160 bits of entropy.
const resetTokenBytes = 20

// Epoch cache lifetime. Entries are overwritten on every bump, so within one
// process a stale token is rejected immediately; the TTL only bounds staleness
// across instances.
const tokenVersionCacheTTL = 30 * time.Second

var _ AccountService = (*AccountServiceImpl)(nil)

// Notifier delivers outbound messages. Failures are reported to the caller but
// never roll back state already persisted.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// AccountService owns all password and token logic.
type AccountService interface {
	// Register validates required fields, derives the password hash and
	// persists a new account with session epoch 0.
	Register(ctx context.Context, req SignupRequest) (*types.UserAccount, error)

	// Authenticate verifies credentials and issues an access token embedding
	// the account's current session epoch.
	Authenticate(ctx context.Context, email, password string) (string, *types.UserAccount, error)

	// EditProfile applies a partial update over the mutable-field whitelist.
	EditProfile(ctx context.Context, userID uuid.UUID, params types.UpdateProfileParams) (*types.UserAccount, error)

	// RequestPasswordReset issues a fresh single-use token, persists it, then
	// asks the Notifier to deliver the reset link. Persistence completes before
	// delivery is attempted.
	RequestPasswordReset(ctx context.Context, email string) error

	// ResetPassword consumes a live token exactly once, rotating the hash and
	// clearing the token atomically.
	ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) error

	// ChangePassword rotates the hash after verifying the old password.
	// Existing sessions stay valid; the epoch is untouched.
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword, confirmPassword string) error

	// InvalidateAllSessions bumps the session epoch, invalidating every
	// previously issued access token at once.
	InvalidateAllSessions(ctx context.Context, userID uuid.UUID) error

	// CurrentTokenVersion reports the account's session epoch, served from a
	// short-lived in-process cache.
	CurrentTokenVersion(ctx context.Context, userID uuid.UUID) (int, error)
}

type AccountServiceImpl struct {
	logger       *slog.Logger
	repo         AccountRepo
	notifier     Notifier
	cfg          *config.Config
	versionCache *gocache.Cache
}

func NewAccountService(repo AccountRepo, notifier Notifier, cfg *config.Config, logger *slog.Logger) *AccountServiceImpl {
	return &AccountServiceImpl{
		logger:       logger,
		repo:         repo,
		notifier:     notifier,
		cfg:          cfg,
		versionCache: gocache.New(tokenVersionCacheTTL, 2*tokenVersionCacheTTL),
	}
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func generateResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *AccountServiceImpl) generateAccessToken(user *types.UserAccount) (string, error) {
	now := time.Now()
	claims := types.Claims{
		UserID:       user.ID.String(),
		Email:        user.Email,
		TokenVersion: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    s.cfg.JWT.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.JWT.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWT.AccessTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWT.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

func validateSignup(req SignupRequest) error {
	if req.FullName == "" {
		return fmt.Errorf("full_name is required: %w", types.ErrValidation)
	}
	if req.Email == "" {
		return fmt.Errorf("email is required: %w", types.ErrValidation)
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return fmt.Errorf("email is malformed: %w", types.ErrValidation)
	}
	if req.PhoneNumber == "" {
		return fmt.Errorf("phone_number is required: %w", types.ErrValidation)
	}
	if req.Password == "" {
		return fmt.Errorf("password is required: %w", types.ErrValidation)
	}
	return nil
}

func (s *AccountServiceImpl) Register(ctx context.Context, req SignupRequest) (*types.UserAccount, error) {
	l := s.logger.With(slog.String("method", "Register"), slog.String("email", req.Email))

	if err := validateSignup(req); err != nil {
		l.WarnContext(ctx, "Signup validation failed", slog.Any("error", err))
		return nil, err
	}

	hashed, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.CreateUser(ctx, types.CreateUserParams{
		FullName:       req.FullName,
		Email:          req.Email,
		PhoneNumber:    req.PhoneNumber,
		PasswordHash:   hashed,
		Profession:     req.Profession,
		AboutYou:       req.AboutYou,
		Education:      req.Education,
		Upload:         req.Upload,
		Age:            req.Age,
		IDVerification: req.IDVerification,
		UploadIDCard:   req.UploadIDCard,
	})
	if err != nil {
		l.WarnContext(ctx, "Failed to create user", slog.Any("error", err))
		return nil, err
	}

	if m := metrics.Get(); m != nil {
		m.RegisterRequestsTotal.Add(ctx, 1)
	}
	l.InfoContext(ctx, "User registered", slog.String("userID", user.ID.String()))
	return user, nil
}

func (s *AccountServiceImpl) Authenticate(ctx context.Context, email, password string) (string, *types.UserAccount, error) {
	l := s.logger.With(slog.String("method", "Authenticate"), slog.String("email", email))

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return "", nil, types.ErrNotFound
		}
		return "", nil, fmt.Errorf("looking up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		l.WarnContext(ctx, "Password verification failed")
		return "", nil, types.ErrInvalidCredentials
	}

	token, err := s.generateAccessToken(user)
	if err != nil {
		return "", nil, err
	}

	if m := metrics.Get(); m != nil {
		m.LoginRequestsTotal.Add(ctx, 1)
	}
	return token, user, nil
}

func (s *AccountServiceImpl) EditProfile(ctx context.Context, userID uuid.UUID, params types.UpdateProfileParams) (*types.UserAccount, error) {
	l := s.logger.With(slog.String("method", "EditProfile"), slog.String("userID", userID.String()))

	user, err := s.repo.UpdateProfile(ctx, userID, params)
	if err != nil {
		l.WarnContext(ctx, "Failed to update profile", slog.Any("error", err))
		return nil, err
	}
	return user, nil
}

func (s *AccountServiceImpl) RequestPasswordReset(ctx context.Context, email string) error {
	l := s.logger.With(slog.String("method", "RequestPasswordReset"), slog.String("email", email))

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return types.ErrNotFound
		}
		return fmt.Errorf("looking up user: %w", err)
	}

	token, err := generateResetToken()
	if err != nil {
		return err
	}
	expires := time.Now().Add(s.cfg.Reset.TokenTTL)

	// Token must be durable before any delivery attempt.
	if err := s.repo.SetResetToken(ctx, user.ID, token, expires); err != nil {
		return fmt.Errorf("persisting reset token: %w", err)
	}

	if m := metrics.Get(); m != nil {
		m.PasswordResetRequestsTotal.Add(ctx, 1)
	}

	// Delivery runs detached from the request context so a client disconnect
	// cannot cancel it, bounded by its own timeout.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SMTP.SendTimeout)
	defer cancel()

	link := fmt.Sprintf("http://%s/reset/%s", s.cfg.Reset.LinkHost, token)
	body := fmt.Sprintf("You are receiving this because you (or someone else) have requested "+
		"the reset of the password for your account.\n\n"+
		"Please click on the following link, or paste it into your browser to complete the process:\n\n"+
		"%s\n\n"+
		"If you did not request this, please ignore this email and your password will remain unchanged.\n", link)

	if err := s.notifier.Send(sendCtx, user.Email, "Password Reset", body); err != nil {
		// The token stays live: the inconsistency is accepted and operators
		// resend manually.
		l.ErrorContext(ctx, "Reset mail delivery failed, token remains issued", slog.Any("error", err))
		return fmt.Errorf("sending reset mail: %w", types.ErrNotification)
	}

	l.InfoContext(ctx, "Recovery email sent", slog.String("userID", user.ID.String()))
	return nil
}

func (s *AccountServiceImpl) ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) error {
	l := s.logger.With(slog.String("method", "ResetPassword"))

	if newPassword == "" || newPassword != confirmPassword {
		return types.ErrPasswordMismatch
	}

	user, err := s.repo.GetUserByValidResetToken(ctx, token, time.Now())
	if err != nil {
		if errors.Is(err, types.ErrResetTokenInvalid) {
			l.WarnContext(ctx, "Reset attempted with invalid or expired token")
			return types.ErrResetTokenInvalid
		}
		return fmt.Errorf("looking up reset token: %w", err)
	}

	hashed, err := hashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := s.repo.UpdatePasswordAndClearResetToken(ctx, user.ID, hashed); err != nil {
		return fmt.Errorf("consuming reset token: %w", err)
	}

	if m := metrics.Get(); m != nil {
		m.PasswordResetConsumedTotal.Add(ctx, 1)
	}
	l.InfoContext(ctx, "Password reset successful", slog.String("userID", user.ID.String()))
	return nil
}

func (s *AccountServiceImpl) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword, confirmPassword string) error {
	l := s.logger.With(slog.String("method", "ChangePassword"), slog.String("userID", userID.String()))

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return types.ErrNotFound
		}
		return fmt.Errorf("looking up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		l.WarnContext(ctx, "Old password verification failed")
		return types.ErrInvalidCredentials
	}

	if newPassword == "" || newPassword != confirmPassword {
		return types.ErrPasswordMismatch
	}

	hashed, err := hashPassword(newPassword)
	if err != nil {
		return err
	}

	// Epoch untouched: existing sessions survive a password change.
	if err := s.repo.UpdatePassword(ctx, userID, hashed); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	l.InfoContext(ctx, "Password changed")
	return nil
}

func (s *AccountServiceImpl) InvalidateAllSessions(ctx context.Context, userID uuid.UUID) error {
	l := s.logger.With(slog.String("method", "InvalidateAllSessions"), slog.String("userID", userID.String()))

	version, err := s.repo.IncrementTokenVersion(ctx, userID)
	if err != nil {
		return err
	}
	s.versionCache.Set(userID.String(), version, tokenVersionCacheTTL)

	if m := metrics.Get(); m != nil {
		m.SessionEpochBumpsTotal.Add(ctx, 1)
	}
	l.InfoContext(ctx, "Session epoch bumped", slog.Int("token_version", version))
	return nil
}

func (s *AccountServiceImpl) CurrentTokenVersion(ctx context.Context, userID uuid.UUID) (int, error) {
	key := userID.String()
	if v, ok := s.versionCache.Get(key); ok {
		return v.(int), nil
	}

	version, err := s.repo.GetTokenVersion(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.versionCache.Set(key, version, tokenVersionCacheTTL)
	return version, nil
}
