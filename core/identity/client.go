package identity

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Client is one actor's handle on the backend. It holds the actor's ambient session,
// which SignIn and SignUp replace, and the cached Principal.
// A Client is created at login and dropped at logout; it is safe for concurrent use.
type Client struct {
	backend Backend

	mu        sync.Mutex
	session   *Session
	principal *Principal

	// guarded is held for the whole of WithPreservedSession.
	guarded sync.Mutex
}

func NewClient(backend Backend) *Client {
	return &Client{backend: backend}
}

func (c *Client) Backend() Backend { return c.backend }

// SignIn signs in and makes the new session the ambient one.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	sess, err := c.backend.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	c.setSession(sess)
	return sess, nil
}

// SignUp registers a new account. When the backend signs the new account in,
// its session replaces the ambient one.
func (c *Client) SignUp(ctx context.Context, email, password string) (Session, error) {
	sess, err := c.backend.SignUp(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	if sess.AccessToken != "" {
		c.setSession(sess)
	}
	return sess, nil
}

// CreateAccountPrivileged creates an account for someone else.
// The out-of-band path is preferred; without one it falls back to SignUp, which
// rotates the ambient session: callers must run it inside WithPreservedSession.
func (c *Client) CreateAccountPrivileged(ctx context.Context, email, password string) (string, error) {
	id, err := c.backend.CreateAccount(ctx, email, password)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrPrivilegedUnsupported) {
		return "", err
	}

	sess, err := c.SignUp(ctx, email, password)
	if err != nil {
		return "", err
	}
	return sess.AccountID, nil
}

// UpdatePassword changes the password of the ambient session's account.
func (c *Client) UpdatePassword(ctx context.Context, password string) error {
	sess, ok := c.Session()
	if !ok {
		return ErrNoSession
	}
	return c.backend.UpdatePassword(ctx, sess, password)
}

func (c *Client) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

func (c *Client) Principal() (Principal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.principal == nil {
		return Principal{}, false
	}
	return *c.principal, true
}

func (c *Client) SetPrincipal(p Principal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.principal = &p
}

// SaveSession captures the ambient session and the cached principal.
func (c *Client) SaveSession() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	var snap Snapshot
	if c.session != nil {
		sess := *c.session
		snap.Session = &sess
	}
	if c.principal != nil {
		p := *c.principal
		snap.Principal = &p
	}
	return snap
}

// RestoreSession reinstates a snapshot taken by SaveSession.
func (c *Client) RestoreSession(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session, c.principal = nil, nil
	if snap.Session != nil {
		sess := *snap.Session
		c.session = &sess
	}
	if snap.Principal != nil {
		p := *snap.Principal
		c.principal = &p
	}
}

// SignOut forgets the session and the principal.
func (c *Client) SignOut() {
	c.RestoreSession(Snapshot{})
}

func (c *Client) setSession(sess Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = &sess
}
