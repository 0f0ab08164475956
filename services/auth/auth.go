// Package auth picks the account backend named by the configuration.
package auth

import (
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/identity"
	"github.com/pnl-akademik/disiplin/services/auth/gotrue"
	"github.com/pnl-akademik/disiplin/services/auth/local"
	"github.com/pnl-akademik/disiplin/services/auth/memory"
)

// NewBackend returns the backend of conf.Identity.Backend.
// db is only used by the local backend.
func NewBackend(conf *core.Config, db *sqlx.DB) (identity.Backend, error) {
	switch conf.Identity.Backend {
	case core.IdentityLocal, "":
		if db == nil {
			return nil, errors.New("local identity backend needs a database")
		}
		return local.NewBackend(db, conf), nil
	case core.IdentityGoTrue:
		backend := gotrue.NewBackend(conf.Identity)
		if err := backend.Check(); err != nil {
			return nil, err
		}
		return backend, nil
	case core.IdentityMemory:
		return memory.New(), nil
	}
	return nil, errors.Errorf("unknown identity backend %q", conf.Identity.Backend)
}
