package auth

import (
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/services/auth/gotrue"
	"github.com/pnl-akademik/disiplin/services/auth/local"
	"github.com/pnl-akademik/disiplin/services/auth/memory"
)

func TestNewBackend(t *testing.T) {
	db := sqlx.NewDb(nil, "postgres")

	tests := []struct {
		name        string
		identity    core.IdentityConfig
		db          *sqlx.DB
		wantType    interface{}
		wantSetting string
		wantErr     bool
	}{
		{name: "default", db: db, wantType: &local.Backend{}},
		{name: "local", identity: core.IdentityConfig{Backend: core.IdentityLocal}, db: db, wantType: &local.Backend{}},
		{name: "local without db", identity: core.IdentityConfig{Backend: core.IdentityLocal}, wantErr: true},
		{name: "memory", identity: core.IdentityConfig{Backend: core.IdentityMemory}, wantType: &memory.Backend{}},
		{
			name:     "gotrue",
			identity: core.IdentityConfig{Backend: core.IdentityGoTrue, URL: "https://auth.test/auth/v1", AnonKey: "anon"},
			wantType: &gotrue.Backend{},
		},
		{
			name:        "gotrue without url",
			identity:    core.IdentityConfig{Backend: core.IdentityGoTrue, AnonKey: "anon"},
			wantSetting: "IDENTITY_URL",
			wantErr:     true,
		},
		{name: "unknown", identity: core.IdentityConfig{Backend: "ldap"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := NewBackend(&core.Config{Identity: tt.identity, SecretKey: "secret"}, tt.db)
			if tt.wantErr {
				require.Error(t, err)
				if tt.wantSetting != "" {
					var cErr *core.ConfigurationError
					require.ErrorAs(t, err, &cErr)
					assert.Equal(t, tt.wantSetting, cErr.Setting)
				}
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, backend)
		})
	}
}
