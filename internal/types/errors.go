package types

import "errors"

// Domain error taxonomy. Services wrap these with context via fmt.Errorf("...: %w", err)
// and handlers map them to HTTP statuses with errors.Is.
var (
	ErrValidation         = errors.New("required field missing or malformed")
	ErrConflict           = errors.New("item already exists or conflict")
	ErrNotFound           = errors.New("requested item not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrResetTokenInvalid  = errors.New("reset token is invalid or has expired")
	ErrUnauthenticated    = errors.New("authentication required or invalid credentials")
	ErrNotification       = errors.New("notification delivery failed")
)
