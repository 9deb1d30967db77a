package auth

import (
	"context"
	"fmt"

	"github.com/cyp0633/librecur/server/storage"
)

// Principal identifies the caller of a write or query. Sync adapters write
// on behalf of one account and are trusted with fields that app callers may
// not set.
type Principal struct {
	ID          string
	Account     string
	SyncAdapter bool
}

// Credentials represents authentication credentials
type Credentials struct {
	Username string
	Password string
}

// ErrorType represents the type of authentication error
type ErrorType string

const (
	ErrInvalidCredentials ErrorType = "invalid_credentials"
	ErrUnauthorized       ErrorType = "unauthorized"
	ErrForbidden          ErrorType = "forbidden"
)

// Error represents an authentication-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Authenticator defines the interface for authentication providers
type Authenticator interface {
	// Authenticate validates credentials and returns a Principal if successful
	Authenticate(ctx context.Context, creds Credentials) (*Principal, error)

	// ValidateAccess checks if a principal may write to a calendar. A nil
	// principal is an app caller.
	ValidateAccess(ctx context.Context, principal *Principal, cal *storage.Calendar) error
}

// CheckAccountAccess is the default write policy: a sync adapter may only
// touch calendars of its own account; app callers may touch any calendar.
func CheckAccountAccess(principal *Principal, cal *storage.Calendar) error {
	if principal == nil || !principal.SyncAdapter {
		return nil
	}
	if principal.Account != cal.AccountName {
		return &Error{
			Type:    ErrForbidden,
			Message: fmt.Sprintf("account %q may not write calendar %d of account %q", principal.Account, cal.ID, cal.AccountName),
		}
	}
	return nil
}
