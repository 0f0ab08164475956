// Package identity wraps the account backend: sign-in, sign-up, privileged account
// creation, and the ambient session an actor holds against it.
package identity

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
)

var (
	// ErrInvalidCredentials never tells which of the email or password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPrivilegedUnsupported is returned by backends with no out-of-band account creation.
	ErrPrivilegedUnsupported = errors.New("privileged account creation not supported")
	ErrAdminRequired         = errors.New("an administrator session is required")
	// ErrRunInProgress is returned when a guarded run already holds the client.
	ErrRunInProgress         = errors.New("another registration is already running on this session")
	ErrNoSession             = errors.New("no active session")
	ErrAccountNotFound       = errors.New("account not found")
)

type (
	// Session is what the backend issues on sign-in.
	Session struct {
		AccountID    string    `json:"account_id"`
		Email        string    `json:"email"`
		AccessToken  string    `json:"-"`
		RefreshToken string    `json:"-"`
		ExpiresAt    time.Time `json:"expires_at"`
	}

	// Principal is the cached "current user" of a Client.
	Principal struct {
		ProfileID string `json:"profile_id"`
		AccountID string `json:"account_id"`
		IDNumber  string `json:"id_number"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		Role      string `json:"role"`
	}

	// Snapshot captures a Client's session and principal.
	Snapshot struct {
		Session   *Session
		Principal *Principal
	}

	// Backend is the account service.
	Backend interface {
		SignIn(ctx context.Context, email, password string) (Session, error)
		// SignUp may return a Session without tokens when the backend requires email confirmation.
		SignUp(ctx context.Context, email, password string) (Session, error)
		// CreateAccount creates an account without touching any session.
		// Returns ErrPrivilegedUnsupported when the backend cannot do that.
		CreateAccount(ctx context.Context, email, password string) (accountID string, err error)
		UpdatePassword(ctx context.Context, session Session, password string) error
		SetPassword(ctx context.Context, accountID, password string) error
		DeleteAccount(ctx context.Context, accountID string) error
	}
)

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

func (s Session) IsZero() bool { return s.AccountID == "" && s.AccessToken == "" }

// Equal reports whether both snapshots hold the same session tokens and principal.
func (s Snapshot) Equal(other Snapshot) bool {
	if (s.Session == nil) != (other.Session == nil) || (s.Principal == nil) != (other.Principal == nil) {
		return false
	}
	if s.Session != nil && *s.Session != *other.Session {
		return false
	}
	return s.Principal == nil || *s.Principal == *other.Principal
}
