package database

import (
	"io/fs"
	"net/url"
	"strings"
	"testing"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnl-akademik/disiplin/assets"
	"github.com/pnl-akademik/disiplin/core"
)

func TestDSN(t *testing.T) {
	conf := &core.Config{Database: core.DatabaseConfig{
		Engine: "postgres", Host: "db", Port: "5432", Name: "disiplin",
		User: "app", Password: "p@ss", AdminUser: "root", AdminPassword: "rootpw",
	}}

	tests := []struct {
		name     string
		admin    bool
		tls      bool
		wantUser string
		wantSSL  string
	}{
		{"app user", false, true, "app", "require"},
		{"admin user", true, true, "root", "require"},
		{"no tls", false, false, "app", "disable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf.Database.DisableTLS = !tt.tls
			u, err := url.Parse(dsn("disiplin", tt.admin, conf))
			require.NoError(t, err)
			assert.Equal(t, "postgres", u.Scheme)
			assert.Equal(t, "db:5432", u.Host)
			assert.Equal(t, "/disiplin", u.Path)
			assert.Equal(t, tt.wantUser, u.User.Username())
			assert.Equal(t, tt.wantSSL, u.Query().Get("sslmode"))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(errors.Wrap(&pq.Error{Code: "23505"}, "inserting")))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestMigrations_resultLabelsUnbounded(t *testing.T) {
	data, err := fs.ReadFile(assets.FS, "migrations/00003_hasil_clustering.sql")
	require.NoError(t, err)

	columns := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			columns[fields[0]] = fields[1]
		}
	}
	// free-text labels from the clustering service
	for _, col := range []string{"nama_mahasiswa", "tingkat", "kelas", "kedisiplinan", "cluster", "insight"} {
		assert.Equal(t, "TEXT", columns[col], col)
	}
}
