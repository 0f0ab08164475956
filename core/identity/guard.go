package identity

import "context"

// Guard is handed to operations run by WithPreservedSession.
type Guard struct {
	client *Client
	snap   Snapshot
}

// Restore puts the admin's session back; call it after every step that may have rotated it.
func (g *Guard) Restore() {
	g.client.RestoreSession(g.snap)
}

// Snapshot returns what Restore puts back.
func (g *Guard) Snapshot() Snapshot { return g.snap }

// WithPreservedSession runs op on behalf of the admin signed in on c.
// The admin's session and principal are restored when op returns, fails or panics.
// It fails with ErrAdminRequired, without calling op, unless c holds an admin session,
// and with ErrRunInProgress while another guarded run holds c.
func (c *Client) WithPreservedSession(ctx context.Context, op func(ctx context.Context, g *Guard) error) error {
	if !c.guarded.TryLock() {
		return ErrRunInProgress
	}
	defer c.guarded.Unlock()

	p, ok := c.Principal()
	if !ok || !p.IsAdmin() {
		return ErrAdminRequired
	}
	if _, ok := c.Session(); !ok {
		return ErrAdminRequired
	}

	g := &Guard{client: c, snap: c.SaveSession()}
	defer g.Restore()
	return op(ctx, g)
}
