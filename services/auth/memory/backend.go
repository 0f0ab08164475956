// Package memory is an in-process account backend for development and tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pnl-akademik/disiplin/core/identity"
)

// Operations, as counted by Calls and seen by hooks.
const (
	OpSignIn         = "signIn"
	OpSignUp         = "signUp"
	OpCreateAccount  = "createAccount"
	OpUpdatePassword = "updatePassword"
	OpSetPassword    = "setPassword"
	OpDeleteAccount  = "deleteAccount"
)

type (
	// Hook runs before every operation; a non-nil error is returned instead of running it.
	Hook func(op, email string) error

	account struct {
		id           string
		email        string
		passwordHash []byte
	}

	Backend struct {
		mu         sync.Mutex
		byEmail    map[string]*account
		byID       map[string]*account
		tokens     map[string]string // access token -> account id
		calls      map[string]int
		privileged bool
		hook       Hook
		sessionTTL time.Duration
	}

	Option func(*Backend)
)

var _ identity.Backend = (*Backend)(nil)

// WithoutPrivileged makes CreateAccount unsupported, like a backend reached with a public key only.
func WithoutPrivileged() Option {
	return func(b *Backend) { b.privileged = false }
}

func WithHook(h Hook) Option {
	return func(b *Backend) { b.hook = h }
}

func New(opts ...Option) *Backend {
	b := &Backend{
		byEmail:    make(map[string]*account),
		byID:       make(map[string]*account),
		tokens:     make(map[string]string),
		calls:      make(map[string]int),
		privileged: true,
		sessionTTL: time.Hour,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetHook replaces the hook.
func (b *Backend) SetHook(h Hook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hook = h
}

// Calls returns how many times op was called, failed calls included.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Len returns the number of accounts.
func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byID)
}

// Seed creates an account directly and returns its id.
func (b *Backend) Seed(email, password string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, err := b.create(email, password)
	if err != nil {
		panic(err)
	}
	return acc.id
}

// HasAccount reports whether email has an account.
func (b *Backend) HasAccount(email string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.byEmail[normalize(email)]
	return ok
}

func (b *Backend) SignIn(ctx context.Context, email, password string) (identity.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpSignIn, email); err != nil {
		return identity.Session{}, err
	}

	acc, ok := b.byEmail[normalize(email)]
	if !ok || bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)) != nil {
		return identity.Session{}, identity.NewAuthError("Invalid login credentials", identity.ErrInvalidCredentials)
	}
	return b.issue(acc), nil
}

func (b *Backend) SignUp(ctx context.Context, email, password string) (identity.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpSignUp, email); err != nil {
		return identity.Session{}, err
	}

	acc, err := b.create(email, password)
	if err != nil {
		return identity.Session{}, err
	}
	return b.issue(acc), nil
}

func (b *Backend) CreateAccount(ctx context.Context, email, password string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpCreateAccount, email); err != nil {
		return "", err
	}
	if !b.privileged {
		return "", identity.ErrPrivilegedUnsupported
	}

	acc, err := b.create(email, password)
	if err != nil {
		return "", err
	}
	return acc.id, nil
}

func (b *Backend) UpdatePassword(ctx context.Context, session identity.Session, password string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpUpdatePassword, session.Email); err != nil {
		return err
	}

	id, ok := b.tokens[session.AccessToken]
	if !ok || id != session.AccountID {
		return identity.NewAuthError("invalid session", nil, identity.KindPolicyDenied)
	}
	return b.setPassword(id, password)
}

func (b *Backend) SetPassword(ctx context.Context, accountID, password string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpSetPassword, ""); err != nil {
		return err
	}
	return b.setPassword(accountID, password)
}

func (b *Backend) DeleteAccount(ctx context.Context, accountID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpDeleteAccount, ""); err != nil {
		return err
	}

	acc, ok := b.byID[accountID]
	if !ok {
		return identity.ErrAccountNotFound
	}
	delete(b.byID, acc.id)
	delete(b.byEmail, acc.email)
	for token, id := range b.tokens {
		if id == acc.id {
			delete(b.tokens, token)
		}
	}
	return nil
}

// enter counts the call and runs the hook. b.mu must be held.
func (b *Backend) enter(op, email string) error {
	b.calls[op]++
	if b.hook != nil {
		return b.hook(op, normalize(email))
	}
	return nil
}

func (b *Backend) create(email, password string) (*account, error) {
	email = normalize(email)
	if _, ok := b.byEmail[email]; ok {
		return nil, identity.NewAuthError("User already registered", nil)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	acc := &account{id: uuid.New().String(), email: email, passwordHash: hash}
	b.byEmail[email] = acc
	b.byID[acc.id] = acc
	return acc, nil
}

func (b *Backend) setPassword(accountID, password string) error {
	acc, ok := b.byID[accountID]
	if !ok {
		return identity.ErrAccountNotFound
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	acc.passwordHash = hash
	return nil
}

func (b *Backend) issue(acc *account) identity.Session {
	sess := identity.Session{
		AccountID:    acc.id,
		Email:        acc.email,
		AccessToken:  uuid.New().String(),
		RefreshToken: uuid.New().String(),
		ExpiresAt:    time.Now().Add(b.sessionTTL).UTC(),
	}
	b.tokens[sess.AccessToken] = acc.id
	return sess
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
