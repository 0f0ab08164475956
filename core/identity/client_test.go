package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnl-akademik/disiplin/core/identity"
	"github.com/pnl-akademik/disiplin/services/auth/memory"
)

var adminPrincipal = identity.Principal{ProfileID: "p-admin", IDNumber: "ADM001", Name: "Admin", Email: "admin@pnl.ac.id", Role: identity.RoleAdmin}

func adminClient(t *testing.T, backend *memory.Backend) *identity.Client {
	t.Helper()
	backend.Seed("admin@pnl.ac.id", "admin-secret")
	c := identity.NewClient(backend)
	sess, err := c.SignIn(context.Background(), "admin@pnl.ac.id", "admin-secret")
	require.NoError(t, err)
	p := adminPrincipal
	p.AccountID = sess.AccountID
	c.SetPrincipal(p)
	return c
}

func TestClient_SignInReplacesSession(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	backend.Seed("budi@student.pnl.ac.id", "123456")
	c := adminClient(t, backend)
	before, _ := c.Session()

	_, err := c.SignIn(ctx, "budi@student.pnl.ac.id", "wrong")
	assert.Equal(t, identity.KindInvalidCredentials, identity.KindOf(err))
	after, _ := c.Session()
	assert.Equal(t, before, after, "a failed sign-in keeps the session")

	sess, err := c.SignIn(ctx, "budi@student.pnl.ac.id", "123456")
	require.NoError(t, err)
	after, _ = c.Session()
	assert.Equal(t, sess, after)
	assert.NotEqual(t, before.AccountID, after.AccountID)
}

func TestClient_CreateAccountPrivileged(t *testing.T) {
	ctx := context.Background()

	t.Run("out of band", func(t *testing.T) {
		backend := memory.New()
		c := adminClient(t, backend)
		before := c.SaveSession()

		id, err := c.CreateAccountPrivileged(ctx, "budi@student.pnl.ac.id", "123456")
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.True(t, before.Equal(c.SaveSession()), "session must not move")
		assert.Equal(t, 0, backend.Calls(memory.OpSignUp))
	})

	t.Run("sign-up fallback rotates the session", func(t *testing.T) {
		backend := memory.New(memory.WithoutPrivileged())
		c := adminClient(t, backend)
		before := c.SaveSession()

		id, err := c.CreateAccountPrivileged(ctx, "budi@student.pnl.ac.id", "123456")
		require.NoError(t, err)
		sess, _ := c.Session()
		assert.Equal(t, id, sess.AccountID)
		assert.False(t, before.Equal(c.SaveSession()))
		assert.Equal(t, 1, backend.Calls(memory.OpSignUp))
	})
}

func TestClient_WithPreservedSession(t *testing.T) {
	ctx := context.Background()

	t.Run("admin required", func(t *testing.T) {
		backend := memory.New()
		c := identity.NewClient(backend)
		called := false
		err := c.WithPreservedSession(ctx, func(ctx context.Context, g *identity.Guard) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, identity.ErrAdminRequired)
		assert.False(t, called)

		backend.Seed("budi@student.pnl.ac.id", "123456")
		_, err = c.SignIn(ctx, "budi@student.pnl.ac.id", "123456")
		require.NoError(t, err)
		c.SetPrincipal(identity.Principal{Name: "Budi", Role: identity.RoleStudent})
		err = c.WithPreservedSession(ctx, func(ctx context.Context, g *identity.Guard) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, identity.ErrAdminRequired)
		assert.False(t, called)
	})

	t.Run("restored after failure", func(t *testing.T) {
		backend := memory.New(memory.WithoutPrivileged())
		c := adminClient(t, backend)
		before := c.SaveSession()

		boom := assert.AnError
		err := c.WithPreservedSession(ctx, func(ctx context.Context, g *identity.Guard) error {
			if _, err := c.CreateAccountPrivileged(ctx, "budi@student.pnl.ac.id", "123456"); err != nil {
				return err
			}
			c.SetPrincipal(identity.Principal{Name: "Budi", Role: identity.RoleStudent})
			return boom
		})
		assert.Equal(t, boom, err)
		assert.True(t, before.Equal(c.SaveSession()))
		p, _ := c.Principal()
		assert.True(t, p.IsAdmin())
	})

	t.Run("restored after panic", func(t *testing.T) {
		backend := memory.New(memory.WithoutPrivileged())
		c := adminClient(t, backend)
		before := c.SaveSession()

		assert.Panics(t, func() {
			_ = c.WithPreservedSession(ctx, func(ctx context.Context, g *identity.Guard) error {
				_, _ = c.CreateAccountPrivileged(ctx, "budi@student.pnl.ac.id", "123456")
				panic("boom")
			})
		})
		assert.True(t, before.Equal(c.SaveSession()))
	})

	t.Run("guard restores between steps", func(t *testing.T) {
		backend := memory.New(memory.WithoutPrivileged())
		c := adminClient(t, backend)
		before := c.SaveSession()

		err := c.WithPreservedSession(ctx, func(ctx context.Context, g *identity.Guard) error {
			for _, email := range []string{"a@student.pnl.ac.id", "b@student.pnl.ac.id"} {
				if _, err := c.CreateAccountPrivileged(ctx, email, "123456"); err != nil {
					return err
				}
				g.Restore()
				if !before.Equal(c.SaveSession()) {
					t.Errorf("session not restored after %s", email)
				}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, backend.Len())
	})

	t.Run("one guarded run at a time", func(t *testing.T) {
		backend := memory.New(memory.WithoutPrivileged())
		c := adminClient(t, backend)
		before := c.SaveSession()

		rotated := make(chan struct{})
		release := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- c.WithPreservedSession(ctx, func(ctx context.Context, g *identity.Guard) error {
				if _, err := c.CreateAccountPrivileged(ctx, "budi@student.pnl.ac.id", "123456"); err != nil {
					return err
				}
				close(rotated)
				<-release
				return nil
			})
		}()
		<-rotated

		called := false
		err := c.WithPreservedSession(ctx, func(ctx context.Context, g *identity.Guard) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, identity.ErrRunInProgress)
		assert.False(t, called)

		close(release)
		require.NoError(t, <-done)
		assert.True(t, before.Equal(c.SaveSession()))

		err = c.WithPreservedSession(ctx, func(ctx context.Context, g *identity.Guard) error { return nil })
		assert.NoError(t, err, "the client is free again")
	})
}

func TestRegistry(t *testing.T) {
	backend := memory.New()
	r := identity.NewRegistry(backend, time.Minute)

	c := r.Open("jti-1")
	c.SetPrincipal(adminPrincipal)
	got, ok := r.Get("jti-1")
	require.True(t, ok)
	assert.Same(t, c, got)

	moved, ok := r.Rekey("jti-1", "jti-2")
	require.True(t, ok)
	assert.Same(t, c, moved)
	_, ok = r.Get("jti-1")
	assert.False(t, ok)

	r.Close("jti-2")
	_, ok = r.Get("jti-2")
	assert.False(t, ok)
	_, ok = c.Principal()
	assert.False(t, ok, "closed clients are signed out")
}
