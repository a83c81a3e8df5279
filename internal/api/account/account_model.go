package account

import "github.com/wanderauth/go-user-accounts/internal/types"

// SignupRequest is the body of POST /signup. fullName, email, phoneNumber and
// password are required; the rest is opaque profile data passed through to the
// directory unchanged.
type SignupRequest struct {
	FullName       string  `json:"full_name"`
	Email          string  `json:"email"`
	PhoneNumber    string  `json:"phone_number"`
	Password       string  `json:"password"`
	Profession     *string `json:"profession,omitempty"`
	AboutYou       *string `json:"about_you,omitempty"`
	Education      *string `json:"education,omitempty"`
	Upload         *string `json:"upload,omitempty"`
	Age            *int    `json:"age,omitempty"`
	IDVerification *string `json:"id_verification,omitempty"`
	UploadIDCard   *string `json:"upload_id_card,omitempty"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued access token alongside the account.
type LoginResponse struct {
	AccessToken string             `json:"access_token"`
	User        *types.UserAccount `json:"user"`
	Message     string             `json:"message"`
}

// RequestResetRequest is the body of POST /password/reset.
type RequestResetRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the body of POST /password/reset/{token}.
type ResetPasswordRequest struct {
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ChangePasswordRequest is the body of POST /password/change.
type ChangePasswordRequest struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}
