package memory

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/cyp0633/librecur/server/auth"
	"github.com/cyp0633/librecur/server/storage"
)

// User represents a user in the memory store
type User struct {
	Username    string
	Password    string // In production this should be hashed
	Account     string
	SyncAdapter bool
}

// Store implements an in-memory authentication store
type Store struct {
	mu     sync.RWMutex
	users  map[string]User // map[username]User
	logger *slog.Logger
}

// New creates a new in-memory authentication store
func New(opts ...Option) *Store {
	s := &Store{
		users:  make(map[string]User),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	// Apply options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Option represents a configuration option for the Store
type Option func(*Store)

// WithLogger sets the logger for the store
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// AddUser adds a new user to the store. An empty account defaults to the
// username.
func (s *Store) AddUser(user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.Username]; exists {
		s.logger.Warn("failed to add user: already exists",
			"username", user.Username)
		return fmt.Errorf("user already exists: %s", user.Username)
	}
	if user.Account == "" {
		user.Account = user.Username
	}
	s.users[user.Username] = user

	s.logger.Info("user added successfully",
		"username", user.Username,
		"account", user.Account,
		"sync_adapter", user.SyncAdapter)

	return nil
}

// Authenticate implements auth.Authenticator
func (s *Store) Authenticate(ctx context.Context, creds auth.Credentials) (*auth.Principal, error) {
	s.mu.RLock()
	user, exists := s.users[creds.Username]
	s.mu.RUnlock()

	if !exists {
		s.logger.Info("authentication failed: user not found",
			"username", creds.Username)
		return nil, &auth.Error{
			Type:    auth.ErrInvalidCredentials,
			Message: "invalid username or password",
		}
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(user.Password), []byte(creds.Password)) != 1 {
		s.logger.Info("authentication failed: invalid password",
			"username", creds.Username)
		return nil, &auth.Error{
			Type:    auth.ErrInvalidCredentials,
			Message: "invalid username or password",
		}
	}

	s.logger.Debug("authentication successful",
		"username", creds.Username)

	return &auth.Principal{
		ID:          user.Username,
		Account:     user.Account,
		SyncAdapter: user.SyncAdapter,
	}, nil
}

// ValidateAccess implements auth.Authenticator
func (s *Store) ValidateAccess(ctx context.Context, principal *auth.Principal, cal *storage.Calendar) error {
	if principal != nil {
		s.mu.RLock()
		_, known := s.users[principal.ID]
		s.mu.RUnlock()
		if !known {
			s.logger.Info("access validation failed: unknown principal",
				"username", principal.ID)
			return &auth.Error{
				Type:    auth.ErrUnauthorized,
				Message: "authentication required",
			}
		}
	}

	if err := auth.CheckAccountAccess(principal, cal); err != nil {
		s.logger.Warn("access validation failed: forbidden",
			"username", principal.ID,
			"account", principal.Account,
			"calendar_id", cal.ID,
			"calendar_account", cal.AccountName)
		return err
	}

	s.logger.Debug("access validation successful",
		"calendar_id", cal.ID)

	return nil
}
