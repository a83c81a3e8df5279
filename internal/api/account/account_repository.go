package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/wanderauth/go-user-accounts/internal/types"
)

var _ AccountRepo = (*PostgresAccountRepo)(nil)

// DBTX is the subset of pgxpool.Pool the repository needs. pgxmock satisfies it
// in tests.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AccountRepo is the directory contract the credential manager depends on.
// Per-record atomicity is the only concurrency guarantee it provides; no
// cross-account transactions exist.
type AccountRepo interface {
	// GetUserByEmail looks an account up by its exact (case-sensitive) address.
	// Returns types.ErrNotFound when no record matches.
	GetUserByEmail(ctx context.Context, email string) (*types.UserAccount, error)

	// GetUserByID returns types.ErrNotFound when no record matches.
	GetUserByID(ctx context.Context, userID uuid.UUID) (*types.UserAccount, error)

	// GetUserByValidResetToken finds the account holding this exact token with
	// an expiry strictly after now. Lookup and expiry check are a single query,
	// so the comparison instant is atomic.
	GetUserByValidResetToken(ctx context.Context, token string, now time.Time) (*types.UserAccount, error)

	// CreateUser inserts a new record. Returns types.ErrConflict when the email
	// unique constraint is violated.
	CreateUser(ctx context.Context, params types.CreateUserParams) (*types.UserAccount, error)

	// UpdateProfile applies a partial update over the mutable-field whitelist
	// and returns the updated record. Returns types.ErrNotFound when no row.
	UpdateProfile(ctx context.Context, userID uuid.UUID, params types.UpdateProfileParams) (*types.UserAccount, error)

	// SetResetToken stores a fresh token and expiry, overwriting any prior
	// unconsumed pair (last writer wins).
	SetResetToken(ctx context.Context, userID uuid.UUID, token string, expires time.Time) error

	// UpdatePasswordAndClearResetToken rotates the hash and clears both reset
	// columns in one statement, making token consumption single-use.
	UpdatePasswordAndClearResetToken(ctx context.Context, userID uuid.UUID, newHashedPassword string) error

	// UpdatePassword rotates the hash only; the session epoch is untouched.
	UpdatePassword(ctx context.Context, userID uuid.UUID, newHashedPassword string) error

	// IncrementTokenVersion bumps the session epoch by one and returns the new
	// value.
	IncrementTokenVersion(ctx context.Context, userID uuid.UUID) (int, error)

	// GetTokenVersion reads the current session epoch.
	GetTokenVersion(ctx context.Context, userID uuid.UUID) (int, error)
}

const userColumns = `id, full_name, email, phone_number, password_hash, profession, about_you,
	education, upload, age, id_verification, upload_id_card, reset_token,
	reset_token_expires, date_of_birth, gender, token_version, created_at, updated_at`

type PostgresAccountRepo struct {
	logger *slog.Logger
	db     DBTX
}

func NewPostgresAccountRepo(db DBTX, logger *slog.Logger) *PostgresAccountRepo {
	return &PostgresAccountRepo{
		logger: logger,
		db:     db,
	}
}

func scanUser(row pgx.Row) (*types.UserAccount, error) {
	var u types.UserAccount
	err := row.Scan(
		&u.ID, &u.FullName, &u.Email, &u.PhoneNumber, &u.PasswordHash,
		&u.Profession, &u.AboutYou, &u.Education, &u.Upload, &u.Age,
		&u.IDVerification, &u.UploadIDCard, &u.ResetToken, &u.ResetTokenExpires,
		&u.DateOfBirth, &u.Gender, &u.TokenVersion, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("scanning user row: %w", err)
	}
	return &u, nil
}

func (r *PostgresAccountRepo) GetUserByEmail(ctx context.Context, email string) (*types.UserAccount, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE email = $1", userColumns)
	return scanUser(r.db.QueryRow(ctx, query, email))
}

func (r *PostgresAccountRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (*types.UserAccount, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1", userColumns)
	return scanUser(r.db.QueryRow(ctx, query, userID))
}

func (r *PostgresAccountRepo) GetUserByValidResetToken(ctx context.Context, token string, now time.Time) (*types.UserAccount, error) {
	// Strict > keeps a token from validating at its expiry instant.
	query := fmt.Sprintf(
		"SELECT %s FROM users WHERE reset_token = $1 AND reset_token_expires > $2",
		userColumns)
	user, err := scanUser(r.db.QueryRow(ctx, query, token, now))
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, types.ErrResetTokenInvalid
		}
		return nil, err
	}
	return user, nil
}

func (r *PostgresAccountRepo) CreateUser(ctx context.Context, params types.CreateUserParams) (*types.UserAccount, error) {
	ctx, span := otel.Tracer("AccountRepo").Start(ctx, "CreateUser", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "CreateUser"), slog.String("email", params.Email))

	query := fmt.Sprintf(`INSERT INTO users
		(full_name, email, phone_number, password_hash, profession, about_you,
		 education, upload, age, id_verification, upload_id_card)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING %s`, userColumns)

	user, err := scanUser(r.db.QueryRow(ctx, query,
		params.FullName, params.Email, params.PhoneNumber, params.PasswordHash,
		params.Profession, params.AboutYou, params.Education, params.Upload,
		params.Age, params.IDVerification, params.UploadIDCard,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // Unique violation
			l.WarnContext(ctx, "Duplicate email on insert")
			span.SetStatus(codes.Error, "unique violation")
			return nil, fmt.Errorf("email already registered: %w", types.ErrConflict)
		}
		l.ErrorContext(ctx, "Failed to insert user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB INSERT failed")
		return nil, fmt.Errorf("database error inserting user: %w", err)
	}

	span.SetStatus(codes.Ok, "user created")
	return user, nil
}

func (r *PostgresAccountRepo) UpdateProfile(ctx context.Context, userID uuid.UUID, params types.UpdateProfileParams) (*types.UserAccount, error) {
	ctx, span := otel.Tracer("AccountRepo").Start(ctx, "UpdateProfile", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "UpdateProfile"), slog.String("userID", userID.String()))

	// Build the SET clause dynamically from the provided fields.
	var setClauses []string
	var args []interface{}
	argID := 1

	if params.FullName != nil {
		setClauses = append(setClauses, fmt.Sprintf("full_name = $%d", argID))
		args = append(args, *params.FullName)
		argID++
	}
	if params.Email != nil {
		setClauses = append(setClauses, fmt.Sprintf("email = $%d", argID))
		args = append(args, *params.Email)
		argID++
	}
	if params.DateOfBirth != nil {
		setClauses = append(setClauses, fmt.Sprintf("date_of_birth = $%d", argID))
		args = append(args, *params.DateOfBirth)
		argID++
	}
	if params.Gender != nil {
		setClauses = append(setClauses, fmt.Sprintf("gender = $%d", argID))
		args = append(args, *params.Gender)
		argID++
	}

	if len(setClauses) == 0 {
		l.DebugContext(ctx, "UpdateProfile called with no fields to update")
		span.SetStatus(codes.Ok, "No update fields provided")
		return r.GetUserByID(ctx, userID)
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argID))
	args = append(args, time.Now())
	argID++

	args = append(args, userID)

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d RETURNING %s",
		strings.Join(setClauses, ", "), argID, userColumns)

	user, err := scanUser(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			span.SetStatus(codes.Error, "user not found")
			return nil, types.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("email already registered: %w", types.ErrConflict)
		}
		l.ErrorContext(ctx, "Failed to update profile", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPDATE failed")
		return nil, fmt.Errorf("database error updating profile: %w", err)
	}

	return user, nil
}

func (r *PostgresAccountRepo) SetResetToken(ctx context.Context, userID uuid.UUID, token string, expires time.Time) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE users SET reset_token = $1, reset_token_expires = $2, updated_at = $3 WHERE id = $4",
		token, expires, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("store reset token: db update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *PostgresAccountRepo) UpdatePasswordAndClearResetToken(ctx context.Context, userID uuid.UUID, newHashedPassword string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET password_hash = $1, reset_token = NULL,
		 reset_token_expires = NULL, updated_at = $2 WHERE id = $3`,
		newHashedPassword, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("consume reset token: db update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *PostgresAccountRepo) UpdatePassword(ctx context.Context, userID uuid.UUID, newHashedPassword string) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3",
		newHashedPassword, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("update password: db update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *PostgresAccountRepo) IncrementTokenVersion(ctx context.Context, userID uuid.UUID) (int, error) {
	ctx, span := otel.Tracer("AccountRepo").Start(ctx, "IncrementTokenVersion", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	var version int
	err := r.db.QueryRow(ctx,
		"UPDATE users SET token_version = token_version + 1, updated_at = $1 WHERE id = $2 RETURNING token_version",
		time.Now(), userID).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "user not found")
			return 0, types.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPDATE failed")
		return 0, fmt.Errorf("increment token version: db update failed: %w", err)
	}
	return version, nil
}

func (r *PostgresAccountRepo) GetTokenVersion(ctx context.Context, userID uuid.UUID) (int, error) {
	var version int
	err := r.db.QueryRow(ctx,
		"SELECT token_version FROM users WHERE id = $1", userID).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, types.ErrNotFound
		}
		return 0, fmt.Errorf("get token version: query failed: %w", err)
	}
	return version, nil
}
