package types

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UserAccount is the directory record for a registered user. PasswordHash and the
// reset-token pair are never serialized. Email lookups are case-sensitive: the
// directory stores the address exactly as given and never normalizes it.
type UserAccount struct {
	ID                uuid.UUID  `json:"id"`
	FullName          string     `json:"full_name"`
	Email             string     `json:"email"`
	PhoneNumber       string     `json:"phone_number"`
	PasswordHash      string     `json:"-"`
	Profession        *string    `json:"profession,omitempty"`
	AboutYou          *string    `json:"about_you,omitempty"`
	Education         *string    `json:"education,omitempty"`
	Upload            *string    `json:"upload,omitempty"`
	Age               *int       `json:"age,omitempty"`
	IDVerification    *string    `json:"id_verification,omitempty"`
	UploadIDCard      *string    `json:"upload_id_card,omitempty"`
	DateOfBirth       *time.Time `json:"date_of_birth,omitempty"`
	Gender            *string    `json:"gender,omitempty"`
	ResetToken        *string    `json:"-"`
	ResetTokenExpires *time.Time `json:"-"`
	TokenVersion      int        `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// CreateUserParams carries everything needed to insert a new account record.
// PasswordHash must already be derived; the raw password never reaches the directory.
type CreateUserParams struct {
	FullName       string
	Email          string
	PhoneNumber    string
	PasswordHash   string
	Profession     *string
	AboutYou       *string
	Education      *string
	Upload         *string
	Age            *int
	IDVerification *string
	UploadIDCard   *string
}

// UpdateProfileParams defines the whitelist of mutable profile fields.
// Pointers distinguish "not provided" from an explicit empty value.
type UpdateProfileParams struct {
	FullName    *string    `json:"full_name,omitempty"`
	Email       *string    `json:"email,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Gender      *string    `json:"gender,omitempty"`
}

// Claims is the access-token payload. TokenVersion is the account's session epoch
// at issuance time; the middleware rejects tokens whose epoch is behind the
// directory's current value.
type Claims struct {
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	TokenVersion int    `json:"token_version"`
	jwt.RegisteredClaims
}

// Response is the generic envelope for simple success/error messages.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
